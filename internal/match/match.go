// Package match maps noisy spoken transcripts onto catalog categories.
//
// The core algorithm is a deliberately simple token-containment heuristic: a
// category matches when any transcript token and any name token contain one
// another, or the token appears anywhere in the full normalized name. Every
// matching category is returned — spoken phrases like "home repair" routinely
// refer to more than one category and the catalog is small enough that
// scoring or ranking buys nothing. The heuristic is frozen behavior; do not
// replace it with a scored algorithm without an explicit opt-in (see
// [WithPhoneticAssist]).
package match

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/okarinen/voicepick/internal/catalog"
)

// minTokenLen is the shortest transcript token considered for matching.
// Shorter tokens are filler ("a", "to", "of") and only cause false positives.
const minTokenLen = 3

// defaultPhoneticThreshold is the Jaro-Winkler score a phonetic-assist
// candidate must reach.
const defaultPhoneticThreshold = 0.85

// Candidate pairs a matched category with the transcript token that hit it.
type Candidate struct {
	Record       catalog.Record
	MatchedToken string
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticAssist enables an opt-in second pass that runs only when the
// containment heuristic finds nothing: transcript tokens are compared to name
// tokens by Double Metaphone code overlap and ranked by Jaro-Winkler
// similarity against threshold (values <= 0 select the default 0.85).
//
// This changes matching behavior relative to the plain heuristic and is
// therefore off by default.
func WithPhoneticAssist(threshold float64) Option {
	return func(m *Matcher) {
		m.phonetic = true
		if threshold > 0 {
			m.phoneticThreshold = threshold
		}
	}
}

// Matcher resolves transcripts against a catalog. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phonetic          bool
	phoneticThreshold float64
}

// New returns a Matcher configured with the supplied options. The default
// configuration is the pure containment heuristic.
func New(opts ...Option) *Matcher {
	m := &Matcher{phoneticThreshold: defaultPhoneticThreshold}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Tokenize normalizes a transcript for matching: lowercase, trimmed, split on
// whitespace, with tokens shorter than three runes discarded.
func Tokenize(transcript string) []string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(transcript)))
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= minTokenLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Match returns every category the transcript refers to, in catalog order.
// The result is deterministic for fixed inputs. An empty transcript, or one
// that tokenizes to nothing, matches nothing.
func (m *Matcher) Match(transcript string, cat *catalog.Catalog) []Candidate {
	tokens := Tokenize(transcript)
	if len(tokens) == 0 {
		return nil
	}

	var out []Candidate
	for _, rec := range cat.Records() {
		if token, ok := matchRecord(tokens, rec); ok {
			out = append(out, Candidate{Record: rec, MatchedToken: token})
		}
	}

	if len(out) == 0 && m.phonetic {
		out = m.phoneticPass(tokens, cat)
	}
	return out
}

// matchRecord tests the containment heuristic for one record and returns the
// first transcript token that matched.
func matchRecord(tokens []string, rec catalog.Record) (string, bool) {
	nameTokens := catalog.NameTokens(rec.Name)
	fullName := strings.ToLower(rec.Name)

	for _, token := range tokens {
		if strings.Contains(fullName, token) {
			return token, true
		}
		for _, nt := range nameTokens {
			if strings.Contains(nt, token) || strings.Contains(token, nt) {
				return token, true
			}
		}
	}
	return "", false
}

// phoneticPass finds categories whose name tokens sound like a transcript
// token. A name token qualifies when it shares a Double Metaphone code with
// the transcript token and their Jaro-Winkler similarity clears the
// threshold.
func (m *Matcher) phoneticPass(tokens []string, cat *catalog.Catalog) []Candidate {
	var out []Candidate
	for _, rec := range cat.Records() {
		if token, ok := m.phoneticRecord(tokens, rec); ok {
			out = append(out, Candidate{Record: rec, MatchedToken: token})
		}
	}
	return out
}

func (m *Matcher) phoneticRecord(tokens []string, rec catalog.Record) (string, bool) {
	for _, token := range tokens {
		tp, ts := matchr.DoubleMetaphone(token)
		for _, nt := range catalog.NameTokens(rec.Name) {
			np, ns := matchr.DoubleMetaphone(nt)
			if !codesOverlap(tp, ts, np, ns) {
				continue
			}
			if matchr.JaroWinkler(token, nt, false) >= m.phoneticThreshold {
				return token, true
			}
		}
	}
	return "", false
}

// codesOverlap reports whether any non-empty metaphone code is shared.
func codesOverlap(ap, as, bp, bs string) bool {
	for _, a := range []string{ap, as} {
		if a == "" {
			continue
		}
		if a == bp || (bs != "" && a == bs) {
			return true
		}
	}
	return false
}

// FallbackFilter is the safety net for transcripts that tokenize to nothing
// useful: a plain case-insensitive substring test of the whole trimmed
// transcript against full category names, in catalog order. An empty
// transcript filters to nothing.
func FallbackFilter(transcript string, cat *catalog.Catalog) []catalog.Record {
	q := strings.ToLower(strings.TrimSpace(transcript))
	if q == "" {
		return nil
	}

	var out []catalog.Record
	for _, rec := range cat.Records() {
		if strings.Contains(strings.ToLower(rec.Name), q) {
			out = append(out, rec)
		}
	}
	return out
}
