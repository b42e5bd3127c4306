// Package recognizer defines the capability boundary to the platform speech
// recognizer and a single-listener Session wrapper over it.
//
// The platform recognizer (a browser or mobile speech API on the far side of
// a transport) is modelled as a [Provider] that opens channel-based [Handle]
// streams. A [Session] adapts one Handle at a time into the callback contract
// the search controller consumes: interim results, exactly one final result
// or exactly one error per listening turn, and a hard guarantee that nothing
// is delivered after the session returns to idle.
package recognizer

import (
	"context"
	"errors"
)

// Result is one recognition event for the current utterance. Zero or more
// interim results (IsFinal=false) precede exactly one final result
// (IsFinal=true) within a single listening turn.
type Result struct {
	// Transcript is the recognized text so far.
	Transcript string

	// IsFinal indicates whether this is the authoritative result for the
	// utterance. After a final result the provider stream is done.
	IsFinal bool

	// Confidence is the recognizer's confidence score (0.0–1.0). May be zero
	// when the platform does not report confidence.
	Confidence float64
}

// Handle is an open recognition stream. Implementations are channel-based so
// that a Session can multiplex results and errors in a single select loop.
//
// After a final Result or an error the stream is exhausted; implementations
// close both channels when the stream ends. Close must be safe to call more
// than once.
type Handle interface {
	// Results returns the stream of interim and final recognition results.
	Results() <-chan Result

	// Err returns the stream of terminal recognizer errors. At most one error
	// is ever delivered.
	Err() <-chan error

	// Close tears the stream down and releases platform resources. No results
	// are delivered on the channels after Close returns.
	Close() error
}

// Provider is the capability boundary to the platform recognizer. It is the
// only contract this module requires from the host platform.
type Provider interface {
	// Supported reports whether the platform recognizer is currently
	// available. Callers must check this before opening a stream.
	Supported() bool

	// Open starts a new recognition stream. The returned Handle is live
	// immediately. Returns an error when the platform cannot start listening
	// (capability missing, permission denied, transport gone).
	Open(ctx context.Context) (Handle, error)
}

// ErrUnsupported is returned by [Session.Start] when the provider reports no
// recognition capability.
var ErrUnsupported = errors.New("recognizer: speech recognition is not supported")
