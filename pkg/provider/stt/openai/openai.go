// Package openai provides an OpenAI Whisper-backed STT provider using the
// official Go SDK. It implements the stt.Provider interface.
//
// The transcription endpoint only accepts containerized audio, so each
// utterance's raw PCM is wrapped in a minimal WAV header before upload.
package openai

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lokv010/voiceagent-sub001/pkg/provider/stt"
)

const (
	defaultModel = openai.AudioModelWhisper1
	sampleRate   = 16000
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the transcription model (e.g., "whisper-1").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = openai.AudioModel(model) }
}

// WithLanguage sets the ISO-639-1 language hint (e.g., "en"). Empty lets the
// model auto-detect.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithBaseURL overrides the API base URL. Primarily used in tests to point at
// a local mock server.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) { p.baseURL = baseURL }
}

// Provider implements stt.Provider backed by the OpenAI audio transcription
// API.
type Provider struct {
	client   openai.Client
	model    openai.AudioModel
	language string
	baseURL  string
}

// New creates a new OpenAI STT Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	p := &Provider{model: defaultModel}
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

// Transcribe wraps the utterance PCM in a WAV container and submits it to the
// transcription endpoint.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (stt.Transcript, error) {
	params := openai.AudioTranscriptionNewParams{
		Model: p.model,
		File:  openai.File(bytes.NewReader(wavFromPCM(pcm)), "utterance.wav", "audio/wav"),
	}
	if p.language != "" {
		params.Language = openai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("%w: openai: %v", stt.ErrTranscription, err)
	}

	return stt.Transcript{
		Text:     resp.Text,
		Duration: pcmDuration(len(pcm)),
	}, nil
}

// wavFromPCM prefixes 16 kHz mono int16 PCM with a canonical 44-byte RIFF
// header.
func wavFromPCM(pcm []byte) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func pcmDuration(n int) time.Duration {
	samples := n / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

var _ stt.Provider = (*Provider)(nil)
