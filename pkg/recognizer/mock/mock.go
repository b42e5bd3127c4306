// Package mock provides in-memory implementations of [recognizer.Provider]
// and [recognizer.Handle] for unit tests.
//
// The mocks record call counts and expose exported fields to control return
// values. Results and errors are fed manually through [Handle.Emit] and
// [Handle.EmitError], so tests control event ordering precisely:
//
//	p := mock.NewProvider()
//	sess := recognizer.NewSession(p)
//	_ = sess.Start(ctx, onResult, onError)
//	h := p.LastHandle()
//	h.Emit(recognizer.Result{Transcript: "plumbers", IsFinal: true})
package mock

import (
	"context"
	"sync"

	"github.com/okarinen/voicepick/pkg/recognizer"
)

// Provider is a mock [recognizer.Provider]. Set the exported fields before
// use; inspect call counts after. Safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// SupportedResult is returned by Supported. NewProvider sets it to true.
	SupportedResult bool

	// OpenError, when non-nil, is returned by Open instead of a new Handle.
	OpenError error

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	handles []*Handle
}

// NewProvider returns a Provider that reports the capability as supported.
func NewProvider() *Provider {
	return &Provider{SupportedResult: true}
}

// Supported implements [recognizer.Provider].
func (p *Provider) Supported() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.SupportedResult
}

// Open implements [recognizer.Provider]. Each successful call creates a fresh
// [Handle] that the test can drive.
func (p *Provider) Open(_ context.Context) (recognizer.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountOpen++
	if p.OpenError != nil {
		return nil, p.OpenError
	}
	h := NewHandle()
	p.handles = append(p.handles, h)
	return h, nil
}

// LastHandle returns the most recently opened Handle, or nil when Open has
// not been called successfully yet.
func (p *Provider) LastHandle() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.handles) == 0 {
		return nil
	}
	return p.handles[len(p.handles)-1]
}

// Handle is a manually driven [recognizer.Handle]. Events emitted after Close
// are silently dropped, mirroring a platform recognizer that keeps talking
// after the stream was torn down.
type Handle struct {
	results chan recognizer.Result
	errs    chan error

	mu             sync.Mutex
	closed         bool
	CallCountClose int
}

// NewHandle returns an open Handle with buffered event channels.
func NewHandle() *Handle {
	return &Handle{
		results: make(chan recognizer.Result, 16),
		errs:    make(chan error, 1),
	}
}

// Emit queues a recognition result for delivery. Dropped after Close.
func (h *Handle) Emit(r recognizer.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.results <- r
}

// EmitError queues a terminal recognizer error for delivery. Dropped after
// Close.
func (h *Handle) EmitError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.errs <- err
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Results implements [recognizer.Handle].
func (h *Handle) Results() <-chan recognizer.Result { return h.results }

// Err implements [recognizer.Handle].
func (h *Handle) Err() <-chan error { return h.errs }

// Close implements [recognizer.Handle]. The first call closes both channels.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CallCountClose++
	if !h.closed {
		h.closed = true
		close(h.results)
		close(h.errs)
	}
	return nil
}
