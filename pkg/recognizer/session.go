package recognizer

import (
	"context"
	"log/slog"
	"sync"
)

// State is the lifecycle state of a [Session].
type State string

const (
	// StateIdle means no recognition stream is open.
	StateIdle State = "idle"

	// StateListening means a recognition stream is open and results may be
	// delivered at any moment.
	StateListening State = "listening"
)

// Session wraps a [Provider] behind the start/stop contract the rest of the
// engine relies on. At most one recognition stream is open at a time (the
// single-listener invariant): calling Start while listening is a no-op, and
// Stop unconditionally returns the session to idle.
//
// Callback delivery guarantees, per listening turn:
//
//   - onResult receives zero or more interim results followed by at most one
//     final result, after which the session auto-returns to idle.
//   - onError is invoked at most once, terminally; no onResult call follows it.
//   - Nothing is delivered after Stop returns or after the session went idle.
//
// All exported methods are safe for concurrent use.
type Session struct {
	provider Provider

	mu     sync.Mutex
	state  State
	gen    uint64
	handle Handle
}

// NewSession creates an idle Session over provider.
func NewSession(provider Provider) *Session {
	return &Session{
		provider: provider,
		state:    StateIdle,
	}
}

// Supported reports whether the underlying provider can recognize speech.
func (s *Session) Supported() bool {
	return s.provider.Supported()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens a recognition stream and begins delivering results to onResult
// and a terminal error to onError.
//
// If the session is already listening, Start returns nil without touching the
// active stream — callers toggling a microphone button should call Stop
// instead. Returns [ErrUnsupported] when the provider reports no capability,
// or the provider's error when the stream cannot be opened; in both cases the
// session stays idle.
func (s *Session) Start(ctx context.Context, onResult func(Result), onError func(error)) error {
	s.mu.Lock()
	if s.state == StateListening {
		s.mu.Unlock()
		return nil
	}
	if !s.provider.Supported() {
		s.mu.Unlock()
		return ErrUnsupported
	}

	handle, err := s.provider.Open(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.gen++
	gen := s.gen
	s.state = StateListening
	s.handle = handle
	s.mu.Unlock()

	go s.pump(gen, handle, onResult, onError)
	return nil
}

// Stop closes the active recognition stream and returns the session to idle.
// Any in-flight result is discarded. Calling Stop when idle is a no-op; it is
// safe to call any number of times.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return
	}
	s.gen++ // invalidate the running pump
	s.state = StateIdle
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()

	if err := handle.Close(); err != nil {
		slog.Debug("recognizer: close after stop", "err", err)
	}
}

// pump drains one recognition stream and forwards events to the callbacks.
// It exits on the first terminal event (final result, error, or stream close)
// or as soon as its generation is superseded by Stop or a new Start.
func (s *Session) pump(gen uint64, handle Handle, onResult func(Result), onError func(error)) {
	results := handle.Results()
	errs := handle.Err()
	for {
		select {
		case res, ok := <-results:
			if !ok {
				// Stream closed without a final result. Treat as a recognizer
				// failure unless this turn was already superseded.
				if s.retire(gen) {
					onError(errStreamClosed)
				}
				return
			}
			if res.IsFinal {
				if s.retire(gen) {
					onResult(res)
				}
				return
			}
			if !s.current(gen) {
				return
			}
			onResult(res)

		case err, ok := <-errs:
			if !ok {
				// A nil channel blocks forever, leaving only the results
				// stream to drive the loop.
				errs = nil
				continue
			}
			if s.retire(gen) {
				onError(err)
			}
			return
		}
	}
}

// current reports whether gen is still the live listening turn.
func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateListening && s.gen == gen
}

// retire atomically ends the listening turn for gen. It returns true when gen
// was still live, in which case the caller owns delivery of exactly one
// terminal callback; the session is idle before that callback runs, so no
// later event can slip through.
func (s *Session) retire(gen uint64) bool {
	s.mu.Lock()
	if s.state != StateListening || s.gen != gen {
		s.mu.Unlock()
		return false
	}
	s.state = StateIdle
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()

	if handle != nil {
		_ = handle.Close()
	}
	return true
}

var errStreamClosed = errorString("recognizer: stream closed before a final result")

// errorString is a trivial constant-friendly error type.
type errorString string

func (e errorString) Error() string { return string(e) }
