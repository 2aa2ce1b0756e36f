package telephony

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/lokv010/voiceagent-sub001/internal/pipeline"
	"github.com/lokv010/voiceagent-sub001/pkg/audio"
)

// writeTimeout bounds each outbound media write so one stalled carrier
// connection cannot wedge a turn runner.
const writeTimeout = 10 * time.Second

// SessionManager is the slice of the pipeline manager the adapter needs.
// *pipeline.Manager satisfies it.
type SessionManager interface {
	StartSession(kind pipeline.Transport, callID string, sink pipeline.Sink) (string, error)
	HandleChunk(sessionID string, chunk []byte, ts time.Duration) error
	StopSession(sessionID string)
}

// Handler serves the telephony media-stream WebSocket endpoint. One
// connection carries one call: the first event must be start, media events
// stream audio, and stop (or connection close) tears the session down.
type Handler struct {
	mgr SessionManager
}

// NewHandler returns a handler feeding the given manager.
func NewHandler(mgr SessionManager) *Handler {
	return &Handler{mgr: mgr}
}

// ServeHTTP implements [http.Handler]. It upgrades the connection and runs
// the event loop until stop, close, or a fatal protocol error.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("telephony: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	if err := h.serveStream(r.Context(), conn); err != nil {
		slog.Warn("telephony: stream ended with error", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "stream complete")
}

// serveStream runs one call's event loop.
func (h *Handler) serveStream(ctx context.Context, conn *websocket.Conn) error {
	// The stream must open with a start event.
	ev, err := h.readEvent(ctx, conn)
	if err != nil {
		return err
	}
	if ev.Event != eventStart {
		return errors.New("telephony: first event must be start")
	}
	callID := ev.CallID

	sink := &wsSink{conn: conn}
	sessionID, err := h.mgr.StartSession(pipeline.TransportTelephony, callID, sink)
	if err != nil {
		return err
	}
	defer h.mgr.StopSession(sessionID)

	slog.Info("telephony: stream started", "call_id", callID, "session_id", sessionID)

	for {
		ev, err := h.readEvent(ctx, conn)
		if err != nil {
			// Carrier hung up without a stop event; treat as stop.
			slog.Debug("telephony: stream read ended", "call_id", callID, "err", err)
			return nil
		}

		switch ev.Event {
		case eventMedia:
			chunk, ts, err := mediaPayload(ev)
			if err != nil {
				slog.Warn("telephony: dropping malformed media event", "call_id", callID, "err", err)
				continue
			}
			if err := h.mgr.HandleChunk(sessionID, chunk, ts); err != nil {
				if errors.Is(err, pipeline.ErrSessionNotFound) {
					return nil
				}
				// Decode failures drop the chunk, the session lives on.
				slog.Warn("telephony: chunk dropped", "call_id", callID, "err", err)
			}
		case eventStop:
			slog.Info("telephony: stream stopped", "call_id", callID, "session_id", sessionID)
			return nil
		case eventStart:
			slog.Warn("telephony: duplicate start event ignored", "call_id", callID)
		}
	}
}

// readEvent reads and parses the next inbound message.
func (h *Handler) readEvent(ctx context.Context, conn *websocket.Conn) (streamEvent, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return streamEvent{}, err
	}
	return parseEvent(data)
}

// wsSink re-encodes pipeline replies into outbound media events: downsample
// to 8 kHz, compand to μ-law, base64 into a media message. Writes are
// serialized; the pipeline's serial turn runner is the only caller, but the
// mutex keeps the contract local.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Play implements [pipeline.Sink].
func (s *wsSink) Play(ctx context.Context, pcm []byte) error {
	pcm8k := audio.ResampleMono16(pcm, audio.PipelineSampleRate, 8000)
	msg, err := encodeMediaEvent(audio.MuLawEncode(pcm8k))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, msg)
}
