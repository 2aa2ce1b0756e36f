// Package openai provides a TTS provider backed by the OpenAI speech API
// using the official Go SDK. It implements the tts.Provider interface.
//
// The speech endpoint emits 24 kHz PCM; each reply is resampled down to the
// 16 kHz pipeline rate before it is returned.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lokv010/voiceagent-sub001/pkg/audio"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/tts"
)

const (
	defaultModel = openai.SpeechModelTTS1
	defaultVoice = "alloy"

	// The speech API returns raw PCM at this rate when response_format=pcm.
	speechSampleRate = 24000
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the speech model (e.g., "tts-1", "tts-1-hd").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = openai.SpeechModel(model) }
}

// WithDefaultVoice sets the voice used when Synthesize is called with an
// empty voice.
func WithDefaultVoice(voice string) Option {
	return func(p *Provider) { p.defaultVoice = voice }
}

// WithBaseURL overrides the API base URL. Primarily used in tests to point at
// a local mock server.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) { p.baseURL = baseURL }
}

// Provider implements tts.Provider backed by the OpenAI speech API.
type Provider struct {
	client       openai.Client
	model        openai.SpeechModel
	defaultVoice string
	baseURL      string
}

// New creates a new OpenAI TTS Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	p := &Provider{
		model:        defaultModel,
		defaultVoice: defaultVoice,
	}
	for _, o := range opts {
		o(p)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = openai.NewClient(clientOpts...)
	return p, nil
}

// Synthesize requests PCM speech for the reply text and resamples it to the
// pipeline rate.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: openai: empty text", tts.ErrSynthesis)
	}
	if voice == "" {
		voice = p.defaultVoice
	}

	resp, err := p.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          p.model,
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %v", tts.ErrSynthesis, err)
	}
	defer resp.Body.Close()

	pcm24k, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: openai: read response: %v", tts.ErrSynthesis, err)
	}

	return audio.ResampleMono16(pcm24k, speechSampleRate, audio.PipelineSampleRate), nil
}

var _ tts.Provider = (*Provider)(nil)
