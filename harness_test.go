package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// fakeTransport is a scripted stand-in for the websocket client. Outbound
// frames are recorded; the remote script reacts to them by injecting
// inbound events through the session's OnText handler.
type fakeTransport struct {
	mu      sync.Mutex
	frames  []map[string]any
	closed  bool
	onText  func([]byte) error
	onClose func(error)
	script  func(ft *fakeTransport, evt map[string]any)
}

func (f *fakeTransport) WriteText(data []byte) {
	var evt map[string]any
	_ = json.Unmarshal(data, &evt)

	f.mu.Lock()
	f.frames = append(f.frames, evt)
	script := f.script
	f.mu.Unlock()

	if script != nil {
		script(f, evt)
	}
}

func (f *fakeTransport) Close(_ context.Context) error {
	f.mu.Lock()
	already := f.closed
	f.closed = true
	f.mu.Unlock()
	if !already && f.onClose != nil {
		f.onClose(nil)
	}
	return nil
}

// serverEvent injects an inbound event as if it arrived on the wire.
func (f *fakeTransport) serverEvent(evt map[string]any) {
	data, _ := json.Marshal(evt)
	_ = f.onText(data)
}

// fail simulates a transport-level failure.
func (f *fakeTransport) fail(err error) {
	f.mu.Lock()
	already := f.closed
	f.closed = true
	f.mu.Unlock()
	if !already && f.onClose != nil {
		f.onClose(err)
	}
}

func (f *fakeTransport) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) sentFrames() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.frames...)
}

func (f *fakeTransport) framesOfType(eventType string) []map[string]any {
	var out []map[string]any
	for _, fr := range f.sentFrames() {
		if fr["type"] == eventType {
			out = append(out, fr)
		}
	}
	return out
}

// fakeRemote hands out fakeTransports and remembers them so tests can
// inspect traffic or kill connections.
type fakeRemote struct {
	mu         sync.Mutex
	transports []*fakeTransport
	script     func(ft *fakeTransport, evt map[string]any)
}

func newFakeRemote(script func(ft *fakeTransport, evt map[string]any)) *fakeRemote {
	return &fakeRemote{script: script}
}

func (fr *fakeRemote) dialer() Dialer {
	return func(_ context.Context, cfg DialConfig) (Transport, error) {
		ft := &fakeTransport{
			onText:  cfg.OnText,
			onClose: cfg.OnClose,
			script:  fr.script,
		}
		fr.mu.Lock()
		fr.transports = append(fr.transports, ft)
		fr.mu.Unlock()

		ft.serverEvent(map[string]any{
			"type":    "session.created",
			"session": map[string]any{"id": "sess_remote"},
		})
		return ft, nil
	}
}

func (fr *fakeRemote) transport(i int) *fakeTransport {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return fr.transports[i]
}

// ackConfig answers configuration updates and nothing else. Sessions
// negotiate successfully but no call ever gets a response.
func ackConfig(ft *fakeTransport, evt map[string]any) {
	if evt["type"] == "session.update" {
		ft.serverEvent(map[string]any{"type": "session.updated"})
	}
}

// respondWith builds a script that, on every response.create, replays the
// given inbound events followed by a terminal response.done.
func respondWith(evts ...map[string]any) func(ft *fakeTransport, evt map[string]any) {
	return func(ft *fakeTransport, evt map[string]any) {
		ackConfig(ft, evt)
		if evt["type"] != "response.create" {
			return
		}
		for _, e := range evts {
			ft.serverEvent(e)
		}
		ft.serverEvent(map[string]any{
			"type":     "response.done",
			"response": map[string]any{"status": "completed"},
		})
	}
}

// recordingArchiver captures archived transcripts in memory.
type recordingArchiver struct {
	mu       sync.Mutex
	archived map[string][]Turn
}

func (a *recordingArchiver) ArchiveTranscript(_ context.Context, sessionID string, turns []Turn) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.archived == nil {
		a.archived = make(map[string][]Turn)
	}
	a.archived[sessionID] = append([]Turn(nil), turns...)
	return nil
}

func (a *recordingArchiver) turns(sessionID string) []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.archived[sessionID]
}

func newTestRegistry(t *testing.T, script func(ft *fakeTransport, evt map[string]any), opts ...Option) (*Registry, *fakeRemote) {
	t.Helper()
	fr := newFakeRemote(script)
	base := []Option{
		WithDialer(fr.dialer()),
		WithSweepInterval(time.Hour),
		WithIdleTimeout(time.Hour),
		WithRequestTimeout(2 * time.Second),
		WithConnectTimeout(2 * time.Second),
	}
	r := New(append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Close(ctx)
	})
	return r, fr
}
