package webrtcmedia

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/lokv010/voiceagent-sub001/internal/pipeline"
	"github.com/lokv010/voiceagent-sub001/pkg/audio"
)

// SessionManager is the slice of the pipeline manager the adapter needs.
// *pipeline.Manager satisfies it.
type SessionManager interface {
	StartSession(kind pipeline.Transport, callID string, sink pipeline.Sink) (string, error)
	HandleChunk(sessionID string, chunk []byte, ts time.Duration) error
	StopSession(sessionID string)
}

// Peer is one browser call: a pion peer connection, a pipeline session, and
// the Opus codecs between them. Created by [Handler] on an offer; torn down
// on ICE failure, peer close, or [Peer.Close].
type Peer struct {
	callID    string
	mgr       SessionManager
	pc        *webrtc.PeerConnection
	local     *webrtc.TrackLocalStaticSample
	sessionID string

	closeOnce sync.Once
}

// newPeer builds the peer connection, registers the pipeline session, and
// completes the offer/answer exchange. Returns the peer and the answer SDP.
func newPeer(mgr SessionManager, callID string, iceServers []string, offerSDP string) (*Peer, string, error) {
	var cfg webrtc.Configuration
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, "", fmt.Errorf("webrtcmedia: create peer connection: %w", err)
	}

	p := &Peer{callID: callID, mgr: mgr, pc: pc}

	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusSampleRate, Channels: opusChannels},
		"audio", "voicepipe",
	)
	if err != nil {
		pc.Close()
		return nil, "", fmt.Errorf("webrtcmedia: create local track: %w", err)
	}
	p.local = local
	if _, err := pc.AddTrack(local); err != nil {
		pc.Close()
		return nil, "", fmt.Errorf("webrtcmedia: add local track: %w", err)
	}

	sink, err := newTrackSink(local)
	if err != nil {
		pc.Close()
		return nil, "", err
	}
	sessionID, err := mgr.StartSession(pipeline.TransportWebRTC, callID, sink)
	if err != nil {
		pc.Close()
		return nil, "", err
	}
	p.sessionID = sessionID

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		go p.readLoop(track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			slog.Info("webrtcmedia: peer connection ended",
				"call_id", p.callID, "session_id", p.sessionID, "state", state.String())
			p.Close()
		}
	})

	answer, err := p.negotiate(offerSDP)
	if err != nil {
		p.Close()
		return nil, "", err
	}
	return p, answer, nil
}

// negotiate applies the remote offer and produces a complete local answer
// (ICE gathering finished, so the SDP carries all candidates and no
// trickle signaling is needed).
func (p *Peer) negotiate(offerSDP string) (string, error) {
	err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	})
	if err != nil {
		return "", fmt.Errorf("webrtcmedia: set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("webrtcmedia: create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("webrtcmedia: set local description: %w", err)
	}
	<-gatherComplete

	return p.pc.LocalDescription().SDP, nil
}

// readLoop decodes inbound Opus packets and feeds the pipeline until the
// track or session ends.
func (p *Peer) readLoop(track *webrtc.TrackRemote) {
	dec, err := newOpusDecoder()
	if err != nil {
		slog.Error("webrtcmedia: cannot decode inbound audio",
			"call_id", p.callID, "err", err)
		p.Close()
		return
	}

	var clock rtpClock
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			slog.Debug("webrtcmedia: inbound track ended", "call_id", p.callID, "err", err)
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		pcm, err := dec.decode(pkt.Payload)
		if err != nil {
			slog.Warn("webrtcmedia: dropping undecodable packet", "call_id", p.callID, "err", err)
			continue
		}

		if err := p.mgr.HandleChunk(p.sessionID, pcm, clock.elapsed(pkt)); err != nil {
			if errors.Is(err, pipeline.ErrSessionNotFound) {
				return
			}
			slog.Warn("webrtcmedia: chunk dropped", "call_id", p.callID, "err", err)
		}
	}
}

// Close tears down the pipeline session and the peer connection. Safe to
// call multiple times.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		p.mgr.StopSession(p.sessionID)
		if err := p.pc.Close(); err != nil {
			slog.Warn("webrtcmedia: peer connection close error",
				"call_id", p.callID, "err", err)
		}
	})
}

// rtpClock converts RTP timestamps (48 kHz units) into elapsed stream time,
// anchored at the first packet.
type rtpClock struct {
	anchored bool
	first    uint32
}

func (c *rtpClock) elapsed(pkt *rtp.Packet) time.Duration {
	if !c.anchored {
		c.first = pkt.Timestamp
		c.anchored = true
	}
	// Unsigned subtraction keeps this correct across timestamp wraparound.
	return time.Duration(pkt.Timestamp-c.first) * time.Second / opusSampleRate
}

// trackSink re-encodes pipeline replies for the local track: upsample to
// 48 kHz, Opus-encode in 20 ms frames, write as timed samples.
type trackSink struct {
	mu    sync.Mutex
	enc   *opusEncoder
	track *webrtc.TrackLocalStaticSample
}

func newTrackSink(track *webrtc.TrackLocalStaticSample) (*trackSink, error) {
	enc, err := newOpusEncoder()
	if err != nil {
		return nil, err
	}
	return &trackSink{enc: enc, track: track}, nil
}

// Play implements [pipeline.Sink].
func (s *trackSink) Play(ctx context.Context, pcm []byte) error {
	pcm48k := audio.ResampleMono16(pcm, audio.PipelineSampleRate, opusSampleRate)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, frame := range frameOutbound(pcm48k) {
		if err := ctx.Err(); err != nil {
			return err
		}
		opusPkt, err := s.enc.encode(frame)
		if err != nil {
			return err
		}
		err = s.track.WriteSample(media.Sample{
			Data:     opusPkt,
			Duration: opusFrameSizeMs * time.Millisecond,
		})
		if err != nil {
			return fmt.Errorf("webrtcmedia: write sample: %w", err)
		}
	}
	return nil
}
