// Package search composes the matching engine: it wires recognizer sessions
// into the transcript matcher, merges matches into the selection accumulator,
// and serves typed-search suggestions — all behind an explicit state machine.
//
// The controller is event-driven: recognizer callbacks, UI actions, and the
// error-display timer all funnel through the same mutex-guarded state, and
// every listening turn carries a generation number so late-arriving recognizer
// events (a final result landing after the user already pressed clear) are
// discarded instead of double-applied.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/okarinen/voicepick/internal/catalog"
	"github.com/okarinen/voicepick/internal/match"
	"github.com/okarinen/voicepick/internal/observe"
	"github.com/okarinen/voicepick/internal/selection"
	"github.com/okarinen/voicepick/internal/suggest"
	"github.com/okarinen/voicepick/pkg/recognizer"
)

// State is the lifecycle state of the search controller.
type State string

const (
	// StateIdle means no voice turn is in progress.
	StateIdle State = "idle"

	// StateListening means a recognition stream is open; interim transcripts
	// may update at any moment.
	StateListening State = "listening"

	// StateProcessing means a final transcript is being matched against the
	// catalog. This state is brief: matching is synchronous.
	StateProcessing State = "processing"

	// StateError means the last turn ended in a recognizer failure; the error
	// message is displayed for a bounded window and then self-clears.
	StateError State = "error"
)

// defaultErrorWindow is how long a recognizer error stays visible before the
// controller self-clears back to idle.
const defaultErrorWindow = 4 * time.Second

// ErrUnknownCategory is returned by [Controller.ToggleCategory] for an id not
// present in the catalog.
var ErrUnknownCategory = errors.New("search: unknown category id")

// Snapshot is the read-only view handed to the rendering layer. Everything it
// contains is copied; mutating it has no effect on the engine.
type Snapshot struct {
	// State is the current controller state.
	State State `json:"state"`

	// ErrorMessage is the transient recognizer error, set only in StateError.
	ErrorMessage string `json:"error_message,omitempty"`

	// InterimTranscript is the live speech echo while listening.
	InterimTranscript string `json:"interim_transcript,omitempty"`

	// SelectedIDs is the accumulated selection in insertion order.
	SelectedIDs []string `json:"selected_ids"`

	// Suggestions is the category list to display: the typed-search filter
	// result, or the voice fallback-filter view when the last utterance
	// matched no category.
	Suggestions []catalog.Record `json:"suggestions"`
}

// Config holds the collaborators for a [Controller].
type Config struct {
	// Catalog is the fixed category catalog. Required.
	Catalog *catalog.Catalog

	// Session is the recognition session wrapper. Required.
	Session *recognizer.Session

	// Matcher resolves transcripts to categories. Required.
	Matcher *match.Matcher

	// ErrorDisplayWindow bounds how long a recognizer error is shown before
	// self-clearing. Zero selects the 4s default.
	ErrorDisplayWindow time.Duration

	// Metrics receives engine metrics. Nil selects [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Controller owns the search screen's engine state. All exported methods are
// safe for concurrent use.
type Controller struct {
	cat       *catalog.Catalog
	session   *recognizer.Session
	matcher   *match.Matcher
	index     *suggest.Index
	selected  *selection.Accumulator
	metrics   *observe.Metrics
	errWindow time.Duration

	mu        sync.Mutex
	state     State
	errMsg    string
	interim   string
	query     string
	fallback  []catalog.Record // voice fallback-filter view, nil when absent
	gen       uint64           // current voice turn; bumped by every start/stop/clear
	turnStart time.Time
}

// NewController wires a Controller from cfg.
func NewController(cfg Config) *Controller {
	errWindow := cfg.ErrorDisplayWindow
	if errWindow <= 0 {
		errWindow = defaultErrorWindow
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Controller{
		cat:       cfg.Catalog,
		session:   cfg.Session,
		matcher:   cfg.Matcher,
		index:     suggest.NewIndex(cfg.Catalog),
		selected:  selection.New(),
		metrics:   metrics,
		errWindow: errWindow,
		state:     StateIdle,
	}
}

// StartListening opens a voice turn. Calling it while already listening is a
// no-op that leaves the active turn untouched. When the recognizer capability
// is unavailable it returns [recognizer.ErrUnsupported] and flashes an error
// state for the display window; the controller is otherwise unchanged.
func (c *Controller) StartListening(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateListening || c.state == StateProcessing {
		c.mu.Unlock()
		return nil
	}
	if !c.session.Supported() {
		c.gen++
		gen := c.gen
		c.state = StateError
		c.errMsg = "speech recognition is not available"
		c.mu.Unlock()
		c.scheduleErrorClear(gen)
		return recognizer.ErrUnsupported
	}

	c.gen++
	gen := c.gen
	c.state = StateListening
	c.errMsg = ""
	c.interim = ""
	c.fallback = nil
	c.turnStart = time.Now()
	c.mu.Unlock()

	err := c.session.Start(ctx,
		func(res recognizer.Result) { c.onResult(ctx, gen, res) },
		func(err error) { c.onError(gen, err) },
	)
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.state = StateError
			c.errMsg = err.Error()
		}
		c.mu.Unlock()
		c.scheduleErrorClear(gen)
		return err
	}

	c.metrics.ActiveListening.Add(ctx, 1)
	slog.Debug("search: listening started")
	return nil
}

// StopListening cancels the voice turn. The in-flight interim transcript is
// discarded and any recognizer event still in the pipe is dropped by the
// generation check. Safe to call in any state.
func (c *Controller) StopListening() {
	c.mu.Lock()
	wasListening := c.state == StateListening || c.state == StateProcessing
	c.gen++
	// Bumping gen orphans any pending error-clear timer, so dismiss the
	// error state here as well.
	c.state = StateIdle
	c.errMsg = ""
	c.interim = ""
	c.mu.Unlock()

	c.session.Stop()
	if wasListening {
		c.metrics.ActiveListening.Add(context.Background(), -1)
		slog.Debug("search: listening stopped by user")
	}
}

// onResult handles recognizer callbacks for turn gen.
func (c *Controller) onResult(ctx context.Context, gen uint64, res recognizer.Result) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateListening {
		c.mu.Unlock()
		slog.Debug("search: discarded late recognition result", "transcript", res.Transcript)
		return
	}

	if !res.IsFinal {
		c.interim = res.Transcript
		c.mu.Unlock()
		return
	}

	c.state = StateProcessing
	c.interim = ""
	start := c.turnStart
	cat := c.cat
	c.mu.Unlock()

	c.processTranscript(ctx, gen, res.Transcript, cat, start)
}

// processTranscript matches a final transcript, merges matches into the
// selection, and returns the controller to idle. cat is the catalog snapshot
// taken when the turn's final result arrived.
func (c *Controller) processTranscript(ctx context.Context, gen uint64, transcript string, cat *catalog.Catalog, start time.Time) {
	ctx, span := observe.StartSpan(ctx, "search.process_transcript")
	defer span.End()

	candidates := c.matcher.Match(transcript, cat)

	outcome := observe.OutcomeMatched
	var fallback []catalog.Record
	haveFallback := false
	if len(candidates) == 0 {
		outcome = observe.OutcomeEmpty
		// NoMatchFound is not an error: degrade to filtering the visible
		// catalog by the raw transcript. An empty transcript filters nothing
		// and leaves the view alone.
		if strings.TrimSpace(transcript) != "" {
			fallback = match.FallbackFilter(transcript, cat)
			haveFallback = true
			if len(fallback) > 0 {
				outcome = observe.OutcomeFallback
			} else {
				fallback = []catalog.Record{}
			}
		}
	}

	c.mu.Lock()
	if c.gen != gen {
		// Superseded mid-processing by stop/clear; the turn's results must
		// not be applied.
		c.mu.Unlock()
		return
	}
	if len(candidates) > 0 {
		ids := make([]string, len(candidates))
		for i, cand := range candidates {
			ids[i] = cand.Record.ID
		}
		c.selected.Accumulate(ids...)
	} else if haveFallback {
		c.fallback = fallback
	}
	c.state = StateIdle
	c.mu.Unlock()

	c.session.Stop()
	c.metrics.ActiveListening.Add(ctx, -1)
	c.metrics.RecordTurn(ctx, time.Since(start).Seconds(), outcome)
	if len(candidates) > 0 {
		c.metrics.RecordSelection(ctx, "voice")
	}
	observe.Logger(ctx).Debug("search: transcript processed",
		"transcript", transcript,
		"outcome", outcome,
		"matches", len(candidates),
	)
}

// onError handles a terminal recognizer error for turn gen. The session is
// already idle when this fires; the controller surfaces the message for the
// display window and self-clears. The aborted turn never touches the
// selection.
func (c *Controller) onError(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateListening {
		c.mu.Unlock()
		slog.Debug("search: discarded late recognizer error", "err", err)
		return
	}
	c.state = StateError
	c.errMsg = err.Error()
	c.interim = ""
	c.mu.Unlock()

	c.metrics.ActiveListening.Add(context.Background(), -1)
	c.metrics.RecognizerErrors.Add(context.Background(), 1)
	slog.Warn("search: recognizer error", "err", err)
	c.scheduleErrorClear(gen)
}

// scheduleErrorClear arms the bounded error-display window for turn gen. The
// timer is a no-op when the turn has been superseded or the error was already
// replaced by new activity.
func (c *Controller) scheduleErrorClear(gen uint64) {
	time.AfterFunc(c.errWindow, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen == gen && c.state == StateError {
			c.state = StateIdle
			c.errMsg = ""
		}
	})
}

// SetQuery updates the typed-search text. It only affects the suggestion
// view; the selection set is untouched. Setting a query replaces any voice
// fallback-filter view.
func (c *Controller) SetQuery(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query = query
	c.fallback = nil
}

// ToggleCategory flips the manual selection state of id. Unknown ids are
// rejected so a stale rendering layer cannot grow the set with ghosts.
func (c *Controller) ToggleCategory(id string) error {
	c.mu.Lock()
	_, ok := c.cat.Get(id)
	c.mu.Unlock()
	if !ok {
		return ErrUnknownCategory
	}
	c.selected.Toggle(id)
	c.metrics.RecordSelection(context.Background(), "toggle")
	return nil
}

// ClearSelection empties the selection set, clears the search text, and
// cancels any in-flight voice turn so a late result cannot resurrect cleared
// state.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	wasActive := c.state == StateListening || c.state == StateProcessing
	c.gen++
	c.state = StateIdle
	c.errMsg = ""
	c.query = ""
	c.interim = ""
	c.fallback = nil
	c.mu.Unlock()

	c.session.Stop()
	if wasActive {
		c.metrics.ActiveListening.Add(context.Background(), -1)
	}
	c.selected.Clear()
}

// Continue is the handoff: it returns the selected ids and resets the
// controller for the next visit, stopping any active turn and clearing the
// selection. The caller owns forwarding the ids to the next stage.
func (c *Controller) Continue() []string {
	ids := c.selected.IDs()
	c.ClearSelection()
	return ids
}

// ReplaceCatalog swaps in a reloaded catalog. The suggestion index is
// rebuilt, any voice fallback view is dropped (it was computed against the
// old records), and selected ids that no longer exist are pruned. The query
// text and any active voice turn survive the swap.
func (c *Controller) ReplaceCatalog(cat *catalog.Catalog) {
	c.mu.Lock()
	c.cat = cat
	c.index = suggest.NewIndex(cat)
	c.fallback = nil
	c.mu.Unlock()

	c.selected.Retain(func(id string) bool {
		_, ok := cat.Get(id)
		return ok
	})
	slog.Info("search: catalog replaced", "categories", cat.Len())
}

// Catalog returns the catalog currently backing the engine.
func (c *Controller) Catalog() *catalog.Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cat
}

// Supported reports whether the recognizer capability is available. The
// rendering layer uses this to grey out the microphone affordance.
func (c *Controller) Supported() bool {
	return c.session.Supported()
}

// Snapshot returns the current read-only view for the rendering layer.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:             c.state,
		ErrorMessage:      c.errMsg,
		InterimTranscript: c.interim,
		SelectedIDs:       c.selected.IDs(),
	}
	if c.fallback != nil {
		// Keep an empty fallback view distinct from "no view": it must render
		// as an empty list, not as the full catalog.
		snap.Suggestions = append(make([]catalog.Record, 0, len(c.fallback)), c.fallback...)
	} else {
		snap.Suggestions = c.index.Filter(c.query)
	}
	return snap
}
