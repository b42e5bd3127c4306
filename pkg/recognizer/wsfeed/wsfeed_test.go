package wsfeed_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/okarinen/voicepick/pkg/recognizer"
	"github.com/okarinen/voicepick/pkg/recognizer/wsfeed"
)

// feedEnv hosts a Provider behind a real WebSocket round trip: the test plays
// the client shell that owns the platform recognizer.
type feedEnv struct {
	provider *wsfeed.Provider
	client   *websocket.Conn
	attached chan error
}

func newFeedEnv(t *testing.T) *feedEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	env := &feedEnv{
		provider: wsfeed.New(),
		attached: make(chan error, 1),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		env.attached <- env.provider.Attach(ctx, conn)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.Dial(ctx, srv.URL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close(websocket.StatusNormalClosure, "test done") })
	env.client = client

	// Attach runs in the handler goroutine; wait for the capability to flip.
	deadline := time.Now().Add(2 * time.Second)
	for !env.provider.Supported() {
		if time.Now().After(deadline) {
			t.Fatal("feed never attached")
		}
		time.Sleep(time.Millisecond)
	}
	return env
}

// readControl reads the next control frame the engine sent to the client.
func (env *feedEnv) readControl(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, msg, err := env.client.Read(ctx)
	if err != nil {
		t.Fatalf("read control frame: %v", err)
	}
	var ctrl struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(msg, &ctrl); err != nil {
		t.Fatalf("decode control frame %q: %v", msg, err)
	}
	return ctrl.Action
}

// send writes a recognizer event frame as the client shell would.
func (env *feedEnv) send(t *testing.T, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := env.client.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func recvResult(t *testing.T, h recognizer.Handle) recognizer.Result {
	t.Helper()
	select {
	case r, ok := <-h.Results():
		if !ok {
			t.Fatal("results channel closed")
		}
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a result")
		return recognizer.Result{}
	}
}

func TestProvider_UnsupportedWithoutFeed(t *testing.T) {
	t.Parallel()

	p := wsfeed.New()
	if p.Supported() {
		t.Error("Supported() = true with no feed attached")
	}
	if _, err := p.Open(context.Background()); err == nil {
		t.Error("Open succeeded with no feed attached")
	}
}

func TestProvider_ResultRoundTrip(t *testing.T) {
	t.Parallel()

	env := newFeedEnv(t)

	h, err := env.provider.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if action := env.readControl(t); action != "start" {
		t.Fatalf("control frame = %q, want start", action)
	}

	env.send(t, `{"type":"result","transcript":"plum","is_final":false,"confidence":0.4}`)
	env.send(t, `{"type":"result","transcript":"plumbers","is_final":true,"confidence":0.93}`)

	if r := recvResult(t, h); r.IsFinal || r.Transcript != "plum" {
		t.Errorf("first result = %+v, want interim plum", r)
	}
	if r := recvResult(t, h); !r.IsFinal || r.Transcript != "plumbers" || r.Confidence != 0.93 {
		t.Errorf("second result = %+v, want final plumbers", r)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if action := env.readControl(t); action != "stop" {
		t.Errorf("control frame after Close = %q, want stop", action)
	}
}

func TestProvider_ErrorFrame(t *testing.T) {
	t.Parallel()

	env := newFeedEnv(t)

	h, err := env.provider.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	env.readControl(t)

	env.send(t, `{"type":"error","message":"not-allowed"}`)

	select {
	case err := <-h.Err():
		if err == nil || err.Error() != "not-allowed" {
			t.Errorf("stream error = %v, want not-allowed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the stream error")
	}
}

func TestProvider_SecondAttachRefused(t *testing.T) {
	t.Parallel()

	env := newFeedEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := env.provider.Attach(ctx, env.client)
	if !errors.Is(err, wsfeed.ErrFeedAttached) {
		t.Errorf("second Attach = %v, want ErrFeedAttached", err)
	}
}

func TestProvider_FeedDisconnectFailsStream(t *testing.T) {
	t.Parallel()

	env := newFeedEnv(t)

	h, err := env.provider.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	env.readControl(t)

	env.client.Close(websocket.StatusNormalClosure, "shell closed")

	select {
	case err := <-h.Err():
		if err == nil {
			t.Error("expected a disconnect error on the stream")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the disconnect error")
	}

	select {
	case <-env.attached:
	case <-time.After(2 * time.Second):
		t.Fatal("Attach never returned after disconnect")
	}
	if env.provider.Supported() {
		t.Error("Supported() = true after the feed disconnected")
	}
}

func TestProvider_EventsWithoutOpenStreamDropped(t *testing.T) {
	t.Parallel()

	env := newFeedEnv(t)
	env.send(t, `{"type":"result","transcript":"orphan","is_final":true}`)

	// The frame must be consumed and dropped; a stream opened afterwards sees
	// only its own events.
	time.Sleep(50 * time.Millisecond)
	h, err := env.provider.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	env.readControl(t)

	select {
	case r := <-h.Results():
		t.Errorf("received stale result %+v on a fresh stream", r)
	case <-time.After(100 * time.Millisecond):
	}
}
