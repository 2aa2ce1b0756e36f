package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/lokv010/voiceagent-sub001/internal/observe"
	"github.com/lokv010/voiceagent-sub001/internal/transcript"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/conversation"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/stt"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/tts"
)

// DefaultFallbackPhrase is spoken when the conversation collaborator fails
// and no configured phrase overrides it.
const DefaultFallbackPhrase = "I'm sorry, I didn't catch that. Could you say it again?"

// Sink receives reply audio for one session. Transport adapters implement
// it to re-encode pipeline-format PCM into their native outbound form
// (μ-law media events, Opus samples).
//
// Play blocks until the reply has been handed to the transport; the serial
// turn runner calling it guarantees replies never interleave.
type Sink interface {
	Play(ctx context.Context, pcm []byte) error
}

// SinkFunc adapts a function to the [Sink] interface.
type SinkFunc func(ctx context.Context, pcm []byte) error

// Play implements [Sink].
func (f SinkFunc) Play(ctx context.Context, pcm []byte) error { return f(ctx, pcm) }

// TurnResult is the transient outcome of one turn round-trip. Fields are
// populated as far as the turn progressed: a synthesis failure still yields
// Transcript and Reply with empty ReplyPCM.
type TurnResult struct {
	// Transcript is the (vocabulary-corrected) customer text.
	Transcript string

	// Reply is the agent's reply text.
	Reply string

	// ReplyPCM is the synthesized reply in pipeline format. Empty when
	// synthesis failed or was skipped.
	ReplyPCM []byte
}

// Corrector post-processes transcripts before the conversation turn.
// [transcript.Corrector] is the production implementation.
type Corrector interface {
	Correct(text string) (string, []transcript.Correction)
}

// Orchestrator runs the turn round-trip: transcribe → correct → conversation
// turn → synthesize → play. It is stateless across turns and safe for
// concurrent use by multiple sessions; per-session serialization is the
// session's turn runner's job, not the orchestrator's.
//
// Failure containment per stage:
//   - transcription error or empty transcript: the turn produces no reply
//     and the session stays usable;
//   - conversation error: the configured fallback phrase is spoken instead;
//   - synthesis or playback error: the turn completes without audio.
type Orchestrator struct {
	sttP     stt.Provider
	convP    conversation.Provider
	ttsP     tts.Provider
	corr     Corrector
	voice    string
	fallback string
	metrics  *observe.Metrics
}

// OrchestratorConfig holds the collaborators for an [Orchestrator].
type OrchestratorConfig struct {
	STT          stt.Provider
	Conversation conversation.Provider
	TTS          tts.Provider

	// Corrector is optional; nil disables transcript correction.
	Corrector Corrector

	// Voice is passed through to the TTS collaborator.
	Voice string

	// FallbackPhrase replaces the reply when the conversation collaborator
	// fails. Empty selects [DefaultFallbackPhrase].
	FallbackPhrase string

	// Metrics is optional; nil selects [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// NewOrchestrator builds an orchestrator from the given collaborators.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		sttP:     cfg.STT,
		convP:    cfg.Conversation,
		ttsP:     cfg.TTS,
		corr:     cfg.Corrector,
		voice:    cfg.Voice,
		fallback: cfg.FallbackPhrase,
		metrics:  cfg.Metrics,
	}
	if o.fallback == "" {
		o.fallback = DefaultFallbackPhrase
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// RunTurn executes one round-trip for the given utterance and plays the
// reply on sink. A nil result with a nil error means the turn was dropped by
// policy (transcription failed or heard nothing); the session remains
// usable either way. The returned error is always nil today but kept in the
// signature so callers handle future hard failures uniformly.
func (o *Orchestrator) RunTurn(ctx context.Context, callID string, utt Utterance, sink Sink) (*TurnResult, error) {
	turnStart := time.Now()

	// ── Transcribe ──
	sttStart := time.Now()
	tr, err := o.sttP.Transcribe(ctx, utt.PCM)
	o.metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	if err != nil {
		o.metrics.RecordProviderError(ctx, "stt", "transcribe")
		slog.Warn("turn dropped: transcription failed",
			"call_id", callID, "utterance_ms", utt.Duration.Milliseconds(), "err", err)
		return nil, nil
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		slog.Debug("turn dropped: empty transcript",
			"call_id", callID, "utterance_ms", utt.Duration.Milliseconds())
		return nil, nil
	}

	// ── Correct vocabulary ──
	if o.corr != nil {
		corrected, corrections := o.corr.Correct(text)
		if len(corrections) > 0 {
			slog.Debug("transcript corrected",
				"call_id", callID, "corrections", len(corrections))
		}
		text = corrected
	}

	result := &TurnResult{Transcript: text}

	// ── Conversation turn ──
	convStart := time.Now()
	reply, err := o.convP.GetTurn(ctx, callID, text)
	o.metrics.ConversationDuration.Record(ctx, time.Since(convStart).Seconds())
	if err != nil {
		o.metrics.RecordProviderError(ctx, "conversation", "get_turn")
		slog.Warn("conversation turn failed, using fallback phrase",
			"call_id", callID, "err", err)
		reply = o.fallback
	}
	result.Reply = reply

	// ── Synthesize ──
	ttsStart := time.Now()
	pcm, err := o.ttsP.Synthesize(ctx, reply, o.voice)
	o.metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
	if err != nil {
		o.metrics.RecordProviderError(ctx, "tts", "synthesize")
		slog.Warn("synthesis failed, skipping playback",
			"call_id", callID, "err", err)
		o.metrics.TurnDuration.Record(ctx, time.Since(turnStart).Seconds())
		return result, nil
	}
	result.ReplyPCM = pcm

	// ── Play ──
	if err := sink.Play(ctx, pcm); err != nil {
		o.metrics.RecordProviderError(ctx, "sink", "play")
		slog.Warn("reply playback failed",
			"call_id", callID, "reply_bytes", len(pcm), "err", err)
	}

	o.metrics.TurnDuration.Record(ctx, time.Since(turnStart).Seconds())
	return result, nil
}
