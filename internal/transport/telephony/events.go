// Package telephony adapts a server-pushed WebSocket media stream to the
// call pipeline. The carrier pushes an ordered JSON event stream — start,
// media, stop — where media events carry base64-encoded 8 kHz G.711 μ-law
// audio. Outbound reply audio flows back over the same connection as media
// events in the same encoding.
//
// The adapter is a pure translation layer: it holds no VAD or segmentation
// state and talks to the pipeline only through the manager's three calls.
package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Event names on the media stream.
const (
	eventStart = "start"
	eventMedia = "media"
	eventStop  = "stop"
)

// streamEvent is the wire format of one media-stream message, inbound or
// outbound. Fields are populated per event type: start carries CallID,
// media carries Payload and TimestampMs.
type streamEvent struct {
	Event       string `json:"event"`
	CallID      string `json:"call_id,omitempty"`
	Payload     string `json:"payload,omitempty"`
	TimestampMs int64  `json:"timestamp_ms,omitempty"`
}

// parseEvent decodes and validates one inbound message.
func parseEvent(data []byte) (streamEvent, error) {
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return streamEvent{}, fmt.Errorf("telephony: malformed event: %w", err)
	}
	switch ev.Event {
	case eventStart:
		if ev.CallID == "" {
			return streamEvent{}, fmt.Errorf("telephony: start event without call_id")
		}
	case eventMedia:
		if ev.Payload == "" {
			return streamEvent{}, fmt.Errorf("telephony: media event without payload")
		}
	case eventStop:
		// No payload required.
	default:
		return streamEvent{}, fmt.Errorf("telephony: unknown event %q", ev.Event)
	}
	return ev, nil
}

// mediaPayload decodes the base64 μ-law audio of a media event and returns
// it with the event's transport timestamp.
func mediaPayload(ev streamEvent) ([]byte, time.Duration, error) {
	raw, err := base64.StdEncoding.DecodeString(ev.Payload)
	if err != nil {
		return nil, 0, fmt.Errorf("telephony: media payload is not valid base64: %w", err)
	}
	return raw, time.Duration(ev.TimestampMs) * time.Millisecond, nil
}

// encodeMediaEvent builds an outbound media message from raw μ-law bytes.
func encodeMediaEvent(mulaw []byte) ([]byte, error) {
	data, err := json.Marshal(streamEvent{
		Event:   eventMedia,
		Payload: base64.StdEncoding.EncodeToString(mulaw),
	})
	if err != nil {
		return nil, fmt.Errorf("telephony: encode media event: %w", err)
	}
	return data, nil
}
