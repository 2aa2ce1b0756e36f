package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/lokv010/voiceagent-sub001/internal/pipeline"
	"github.com/lokv010/voiceagent-sub001/pkg/audio"
)

// chunkRecord captures one HandleChunk invocation.
type chunkRecord struct {
	sessionID string
	chunk     []byte
	ts        time.Duration
}

// managerMock records the manager calls the adapter makes and captures the
// sink so tests can drive outbound playback.
type managerMock struct {
	mu sync.Mutex

	startErr  error
	chunkErr  error
	sessionID string

	startedKind   pipeline.Transport
	startedCallID string
	sink          pipeline.Sink
	chunks        []chunkRecord
	stopped       []string
}

func (m *managerMock) StartSession(kind pipeline.Transport, callID string, sink pipeline.Sink) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return "", m.startErr
	}
	m.startedKind = kind
	m.startedCallID = callID
	m.sink = sink
	if m.sessionID == "" {
		m.sessionID = "session-1"
	}
	return m.sessionID, nil
}

func (m *managerMock) HandleChunk(sessionID string, chunk []byte, ts time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	m.chunks = append(m.chunks, chunkRecord{sessionID: sessionID, chunk: cp, ts: ts})
	return m.chunkErr
}

func (m *managerMock) StopSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, sessionID)
}

func (m *managerMock) snapshot() managerMock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return managerMock{
		startedKind:   m.startedKind,
		startedCallID: m.startedCallID,
		sink:          m.sink,
		chunks:        append([]chunkRecord(nil), m.chunks...),
		stopped:       append([]string(nil), m.stopped...),
	}
}

// dialTestStream starts an httptest server around the handler and dials it.
func dialTestStream(t *testing.T, mgr SessionManager) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewHandler(mgr))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// waitForMock polls cond until it returns true or the deadline passes.
func waitForMock(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHandler_StreamLifecycle(t *testing.T) {
	mgr := &managerMock{}
	conn := dialTestStream(t, mgr)

	send(t, conn, streamEvent{Event: eventStart, CallID: "call-7"})
	waitForMock(t, "session start", func() bool { return mgr.snapshot().startedCallID != "" })

	got := mgr.snapshot()
	if got.startedKind != pipeline.TransportTelephony {
		t.Errorf("transport kind = %q, want telephony", got.startedKind)
	}
	if got.startedCallID != "call-7" {
		t.Errorf("call id = %q, want call-7", got.startedCallID)
	}

	mulaw := []byte{0x11, 0x22, 0x33, 0x44}
	send(t, conn, streamEvent{
		Event:       eventMedia,
		Payload:     base64.StdEncoding.EncodeToString(mulaw),
		TimestampMs: 40,
	})
	waitForMock(t, "chunk delivery", func() bool { return len(mgr.snapshot().chunks) == 1 })

	ch := mgr.snapshot().chunks[0]
	if ch.sessionID != "session-1" {
		t.Errorf("chunk session id = %q", ch.sessionID)
	}
	if string(ch.chunk) != string(mulaw) {
		t.Errorf("chunk = %v, want decoded μ-law %v", ch.chunk, mulaw)
	}
	if ch.ts != 40*time.Millisecond {
		t.Errorf("chunk ts = %v, want 40ms", ch.ts)
	}

	send(t, conn, streamEvent{Event: eventStop})
	waitForMock(t, "session stop", func() bool { return len(mgr.snapshot().stopped) == 1 })
	if got := mgr.snapshot().stopped[0]; got != "session-1" {
		t.Errorf("stopped session = %q", got)
	}
}

func TestHandler_ConnectionCloseStopsSession(t *testing.T) {
	mgr := &managerMock{}
	conn := dialTestStream(t, mgr)

	send(t, conn, streamEvent{Event: eventStart, CallID: "call-9"})
	waitForMock(t, "session start", func() bool { return mgr.snapshot().startedCallID != "" })

	// Hang up without a stop event.
	_ = conn.Close(websocket.StatusNormalClosure, "hangup")
	waitForMock(t, "session stop on close", func() bool { return len(mgr.snapshot().stopped) == 1 })
}

func TestHandler_MalformedMediaIsDropped(t *testing.T) {
	mgr := &managerMock{}
	conn := dialTestStream(t, mgr)

	send(t, conn, streamEvent{Event: eventStart, CallID: "call-1"})
	waitForMock(t, "session start", func() bool { return mgr.snapshot().startedCallID != "" })

	// Bad base64 is dropped without tearing the stream down.
	send(t, conn, streamEvent{Event: eventMedia, Payload: "!!bad!!"})

	good := base64.StdEncoding.EncodeToString([]byte{0x01})
	send(t, conn, streamEvent{Event: eventMedia, Payload: good, TimestampMs: 20})
	waitForMock(t, "good chunk after bad one", func() bool { return len(mgr.snapshot().chunks) == 1 })
}

func TestHandler_SinkReEncodesReply(t *testing.T) {
	mgr := &managerMock{}
	conn := dialTestStream(t, mgr)

	send(t, conn, streamEvent{Event: eventStart, CallID: "call-1"})
	waitForMock(t, "session start", func() bool { return mgr.snapshot().sink != nil })

	// One pipeline frame of silence: 320 samples at 16 kHz.
	pcm := make([]byte, audio.FrameBytes)
	if err := mgr.snapshot().sink.Play(context.Background(), pcm); err != nil {
		t.Fatalf("Play: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read outbound media: %v", err)
	}

	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal outbound event: %v", err)
	}
	if ev.Event != eventMedia {
		t.Fatalf("outbound event = %q, want media", ev.Event)
	}
	mulaw, err := base64.StdEncoding.DecodeString(ev.Payload)
	if err != nil {
		t.Fatalf("decode outbound payload: %v", err)
	}
	// 320 samples at 16 kHz downsample to 160 μ-law bytes at 8 kHz.
	if len(mulaw) != 160 {
		t.Errorf("outbound μ-law length = %d, want 160", len(mulaw))
	}
}

func TestHandler_FirstEventMustBeStart(t *testing.T) {
	mgr := &managerMock{}
	conn := dialTestStream(t, mgr)

	send(t, conn, streamEvent{Event: eventStop})

	// The handler closes the stream without starting a session.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("expected connection close after protocol violation")
	}
	if got := mgr.snapshot(); got.startedCallID != "" || len(got.stopped) != 0 {
		t.Errorf("session activity on bad stream: %+v", &got)
	}
}
