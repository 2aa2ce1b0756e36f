package webrtcmedia

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// offerRequest is the signaling request body: the browser's call id and SDP
// offer.
type offerRequest struct {
	CallID string `json:"call_id"`
	SDP    string `json:"sdp"`
}

// answerResponse is the signaling response body: the server's SDP answer.
type answerResponse struct {
	SDP string `json:"sdp"`
}

// Handler serves the one-shot HTTP signaling endpoint. A POST with an SDP
// offer creates the peer, starts the pipeline session, and returns the
// answer; media then flows peer-to-peer and teardown follows the connection
// state, not HTTP.
type Handler struct {
	mgr        SessionManager
	iceServers []string
}

// NewHandler returns a signaling handler feeding the given manager.
// iceServers may be empty for host-candidate-only deployments.
func NewHandler(mgr SessionManager, iceServers []string) *Handler {
	return &Handler{mgr: mgr, iceServers: iceServers}
}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed offer request", http.StatusBadRequest)
		return
	}
	if req.CallID == "" || req.SDP == "" {
		http.Error(w, "call_id and sdp are required", http.StatusBadRequest)
		return
	}

	_, answer, err := newPeer(h.mgr, req.CallID, h.iceServers, req.SDP)
	if err != nil {
		slog.Warn("webrtcmedia: offer rejected", "call_id", req.CallID, "err", err)
		http.Error(w, "offer rejected", http.StatusUnprocessableEntity)
		return
	}

	slog.Info("webrtcmedia: peer answered", "call_id", req.CallID)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(answerResponse{SDP: answer}); err != nil {
		slog.Warn("webrtcmedia: answer write failed", "call_id", req.CallID, "err", err)
	}
}
