// Package wsfeed implements a [recognizer.Provider] fed by a WebSocket peer.
//
// The platform speech recognizer lives on the client (a browser or mobile
// shell that owns the microphone). The client keeps one WebSocket open to the
// engine and forwards the platform recognizer's events as JSON text frames:
//
//	{"type": "result", "transcript": "plumbing repair", "is_final": false, "confidence": 0.92}
//	{"type": "error", "message": "not-allowed"}
//
// The engine signals listening turns back over the same socket:
//
//	{"action": "start"}
//	{"action": "stop"}
//
// At most one feed may be attached at a time; the provider reports the
// capability as supported only while a feed is attached. Events that arrive
// while no recognition stream is open are dropped.
package wsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/okarinen/voicepick/pkg/recognizer"
)

// ErrFeedAttached is returned by [Provider.Attach] when another feed is
// already connected.
var ErrFeedAttached = errors.New("wsfeed: a recognizer feed is already attached")

// errNoFeed is returned by Open when no client feed is connected.
var errNoFeed = errors.New("wsfeed: no recognizer feed attached")

// event is the JSON frame sent by the client feed.
type event struct {
	Type       string  `json:"type"`
	Transcript string  `json:"transcript"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
}

// control is the JSON frame sent to the client feed.
type control struct {
	Action string `json:"action"`
}

// Provider implements [recognizer.Provider] over a client WebSocket feed.
// All methods are safe for concurrent use.
type Provider struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	stream *stream // open recognition stream, nil when idle
}

// New returns a Provider with no feed attached.
func New() *Provider {
	return &Provider{}
}

// Supported reports whether a client feed is currently attached. The platform
// capability probe maps directly onto feed presence: without a connected
// client there is nothing that can listen.
func (p *Provider) Supported() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

// Attach takes ownership of conn as the active recognizer feed and blocks
// reading events from it until the peer disconnects or ctx is cancelled.
// Returns [ErrFeedAttached] immediately when a feed is already present.
func (p *Provider) Attach(ctx context.Context, conn *websocket.Conn) error {
	p.mu.Lock()
	if p.conn != nil {
		p.mu.Unlock()
		return ErrFeedAttached
	}
	p.conn = conn
	p.mu.Unlock()

	slog.Info("wsfeed: recognizer feed attached")
	err := p.readLoop(ctx, conn)
	p.detach(conn)
	slog.Info("wsfeed: recognizer feed detached", "err", err)
	return err
}

// Open implements [recognizer.Provider]. It sends a start control frame to
// the feed and returns a Handle carrying the events of this listening turn.
func (p *Provider) Open(ctx context.Context) (recognizer.Handle, error) {
	p.mu.Lock()
	conn := p.conn
	if conn == nil {
		p.mu.Unlock()
		return nil, errNoFeed
	}
	if p.stream != nil {
		p.stream.end()
	}
	st := newStream(p, conn)
	p.stream = st
	p.mu.Unlock()

	if err := writeControl(ctx, conn, "start"); err != nil {
		p.mu.Lock()
		p.stream = nil
		p.mu.Unlock()
		return nil, fmt.Errorf("wsfeed: start listening: %w", err)
	}
	return st, nil
}

// detach clears conn if it is still the active feed and fails any open stream.
func (p *Provider) detach(conn *websocket.Conn) {
	p.mu.Lock()
	if p.conn != conn {
		p.mu.Unlock()
		return
	}
	p.conn = nil
	st := p.stream
	p.stream = nil
	p.mu.Unlock()

	if st != nil {
		st.fail(errors.New("wsfeed: recognizer feed disconnected"))
	}
}

// release clears st as the active stream; called from the stream's Close.
func (p *Provider) release(st *stream) {
	p.mu.Lock()
	if p.stream == st {
		p.stream = nil
	}
	p.mu.Unlock()
}

// readLoop decodes event frames and dispatches them to the open stream.
func (p *Provider) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		ev, ok := parseEvent(msg)
		if !ok {
			continue
		}

		p.mu.Lock()
		st := p.stream
		p.mu.Unlock()
		if st == nil {
			// No listening turn in progress; the engine never buffers
			// recognition events across turns.
			continue
		}

		switch ev.Type {
		case "result":
			st.deliver(recognizer.Result{
				Transcript: ev.Transcript,
				IsFinal:    ev.IsFinal,
				Confidence: ev.Confidence,
			})
		case "error":
			st.fail(errors.New(ev.Message))
		}
	}
}

// parseEvent decodes a raw feed frame. Returns (event, false) for frames that
// should be ignored.
func parseEvent(data []byte) (event, bool) {
	var ev event
	if err := json.Unmarshal(data, &ev); err != nil {
		return event{}, false
	}
	if ev.Type != "result" && ev.Type != "error" {
		return event{}, false
	}
	return ev, true
}

// writeControl sends a control frame to the feed.
func writeControl(ctx context.Context, conn *websocket.Conn, action string) error {
	msg, err := json.Marshal(control{Action: action})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, msg)
}

// ─── stream ──────────────────────────────────────────────────────────────────

// stream is one listening turn over the feed. It implements [recognizer.Handle].
//
// Delivery and teardown are serialized by the mutex so a frame arriving at
// the same moment the turn ends can never hit a closed channel.
type stream struct {
	provider *Provider
	conn     *websocket.Conn

	mu      sync.Mutex
	closed  bool
	results chan recognizer.Result
	errs    chan error
}

func newStream(p *Provider, conn *websocket.Conn) *stream {
	return &stream{
		provider: p,
		conn:     conn,
		results:  make(chan recognizer.Result, 16),
		errs:     make(chan error, 1),
	}
}

// deliver forwards a recognition result unless the stream has ended. A full
// buffer drops the oldest-unread interim; finals always carry more weight
// than liveness echo, so the buffer is sized to make this effectively
// unreachable.
func (s *stream) deliver(r recognizer.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.results <- r:
	default:
	}
}

// fail forwards a terminal recognizer error unless the stream has ended.
// The first error wins.
func (s *stream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.errs <- err:
	default:
	}
}

// end closes the event channels without touching the feed connection.
func (s *stream) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.results)
	close(s.errs)
}

// Results implements [recognizer.Handle].
func (s *stream) Results() <-chan recognizer.Result { return s.results }

// Err implements [recognizer.Handle].
func (s *stream) Err() <-chan error { return s.errs }

// Close implements [recognizer.Handle]. It tells the feed to stop listening
// and ends the stream. Safe to call more than once.
func (s *stream) Close() error {
	s.provider.release(s)
	s.end()
	// Best effort: the feed may already be gone.
	if err := writeControl(context.Background(), s.conn, "stop"); err != nil {
		slog.Debug("wsfeed: stop control frame", "err", err)
	}
	return nil
}
