package config_test

import (
	"errors"
	"testing"

	"github.com/lokv010/voiceagent-sub001/internal/config"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/conversation"
	convmock "github.com/lokv010/voiceagent-sub001/pkg/provider/conversation/mock"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/stt"
	sttmock "github.com/lokv010/voiceagent-sub001/pkg/provider/stt/mock"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/tts"
	ttsmock "github.com/lokv010/voiceagent-sub001/pkg/provider/tts/mock"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/vad"
	vadmock "github.com/lokv010/voiceagent-sub001/pkg/provider/vad/mock"
)

func TestRegistry_CreateSTT(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()

	var gotEntry config.ProviderEntry
	r.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		gotEntry = entry
		return &sttmock.Provider{}, nil
	})

	p, err := r.CreateSTT(config.ProviderEntry{Name: "deepgram", APIKey: "dg-test", Model: "nova-3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected a provider, got nil")
	}
	if gotEntry.APIKey != "dg-test" || gotEntry.Model != "nova-3" {
		t.Errorf("factory entry = %+v, want api key and model passed through", gotEntry)
	}
}

func TestRegistry_CreateTTS(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterTTS("elevenlabs", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	if _, err := r.CreateTTS(config.ProviderEntry{Name: "elevenlabs"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegistry_CreateVAD(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return &vadmock.Engine{}, nil
	})

	if _, err := r.CreateVAD(config.ProviderEntry{Name: "energy"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegistry_CreateConversationPassesConversationConfig(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()

	var gotConv config.ConversationConfig
	r.RegisterConversation("openai", func(_ config.ProviderEntry, conv config.ConversationConfig) (conversation.Provider, error) {
		gotConv = conv
		return &convmock.Provider{}, nil
	})

	conv := config.ConversationConfig{
		SystemPrompt:    "Answer like a call-center agent.",
		MaxHistoryTurns: 12,
	}
	if _, err := r.CreateConversation(config.ProviderEntry{Name: "openai"}, conv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotConv.SystemPrompt != conv.SystemPrompt {
		t.Errorf("system prompt = %q, want %q", gotConv.SystemPrompt, conv.SystemPrompt)
	}
	if gotConv.MaxHistoryTurns != 12 {
		t.Errorf("max history turns = %d, want 12", gotConv.MaxHistoryTurns)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()

	if _, err := r.CreateSTT(config.ProviderEntry{Name: "whisper"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT error = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateTTS(config.ProviderEntry{Name: "polly"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS error = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateConversation(config.ProviderEntry{Name: "claude"}, config.ConversationConfig{}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateConversation error = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateVAD(config.ProviderEntry{Name: "silero"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateVAD error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryErrorIsReturned(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	wantErr := errors.New("missing api key")
	r.RegisterSTT("deepgram", func(config.ProviderEntry) (stt.Provider, error) {
		return nil, wantErr
	})

	_, err := r.CreateSTT(config.ProviderEntry{Name: "deepgram"})
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want the factory's error", err)
	}
}

func TestRegistry_ReRegisterOverwrites(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()

	first := &sttmock.Provider{}
	second := &sttmock.Provider{}
	r.RegisterSTT("deepgram", func(config.ProviderEntry) (stt.Provider, error) { return first, nil })
	r.RegisterSTT("deepgram", func(config.ProviderEntry) (stt.Provider, error) { return second, nil })

	p, err := r.CreateSTT(config.ProviderEntry{Name: "deepgram"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != second {
		t.Error("expected the later registration to win")
	}
}
