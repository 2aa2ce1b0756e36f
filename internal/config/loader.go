package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "openai"},
	"tts": {"elevenlabs", "openai"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"vad": {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Pipeline tuning ranges. Zero means "use the default", so only
	// explicitly-set bad values fail.
	p := cfg.Pipeline
	if p.SpeechThreshold < 0 || p.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.speech_threshold %.3f is out of range (0, 1]", p.SpeechThreshold))
	}
	if p.SilenceHoldMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.silence_hold_ms %d must not be negative", p.SilenceHoldMs))
	}
	if p.MaxUtteranceMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_utterance_ms %d must not be negative", p.MaxUtteranceMs))
	}
	if p.MaxUtteranceMs > 0 && p.SilenceHoldMs > 0 && p.MaxUtteranceMs < p.SilenceHoldMs {
		errs = append(errs, fmt.Errorf("pipeline.max_utterance_ms %d is shorter than silence_hold_ms %d", p.MaxUtteranceMs, p.SilenceHoldMs))
	}
	if p.MinUtteranceFrames < 0 {
		errs = append(errs, fmt.Errorf("pipeline.min_utterance_frames %d must not be negative", p.MinUtteranceFrames))
	}
	if p.FrameQueue < 0 {
		errs = append(errs, fmt.Errorf("pipeline.frame_queue %d must not be negative", p.FrameQueue))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// The pipeline cannot run without its three collaborators.
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}

	// Conversation
	c := cfg.Conversation
	if c.HistoryStore != "" && !c.HistoryStore.IsValid() {
		errs = append(errs, fmt.Errorf("conversation.history_store %q is invalid; valid values: memory, postgres", c.HistoryStore))
	}
	if c.HistoryStore == HistoryPostgres && c.PostgresDSN == "" {
		errs = append(errs, errors.New("conversation.postgres_dsn is required when history_store is postgres"))
	}
	if c.MaxHistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_history_turns %d must not be negative", c.MaxHistoryTurns))
	}
	if c.Voice == "" {
		slog.Warn("conversation.voice is empty; the TTS provider's default voice will be used")
	}
	if c.HistoryStore == "" || c.HistoryStore == HistoryMemory {
		if c.PostgresDSN != "" {
			slog.Warn("conversation.postgres_dsn is set but history_store is memory; the DSN is ignored")
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
