package llmturn

import (
	"context"
	"testing"
	"time"

	"github.com/lokv010/voiceagent-sub001/pkg/provider/conversation"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/conversation/memory"
)

// ── buildParams ───────────────────────────────────────────────────────────────

func testProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New("ollama", "test-model", memory.New(0),
		WithSystemPrompt("Be brief."),
		WithMaxTokens(128))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := testProvider(t)
	params := p.buildParams(nil, "hello")

	if params.Model != "test-model" {
		t.Errorf("model = %q, want test-model", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != "system" {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[0].ContentString() != "Be brief." {
		t.Errorf("system prompt = %q", params.Messages[0].ContentString())
	}
	if params.Messages[1].Role != "user" || params.Messages[1].ContentString() != "hello" {
		t.Errorf("last message = %+v", params.Messages[1])
	}
}

func TestBuildParams_HistoryInterleaved(t *testing.T) {
	p := testProvider(t)
	history := []conversation.Turn{
		{Role: conversation.RoleCustomer, Text: "hi"},
		{Role: conversation.RoleAgent, Text: "hello, how can I help?"},
	}
	params := p.buildParams(history, "what are your hours?")

	if len(params.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(params.Messages))
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	for i, want := range wantRoles {
		if params.Messages[i].Role != want {
			t.Errorf("message %d role = %q, want %q", i, params.Messages[i].Role, want)
		}
	}
}

func TestBuildParams_MaxTokens(t *testing.T) {
	p := testProvider(t)
	params := p.buildParams(nil, "hi")
	if params.MaxTokens == nil || *params.MaxTokens != 128 {
		t.Errorf("MaxTokens = %v, want 128", params.MaxTokens)
	}
}

func TestBuildParams_Temperature(t *testing.T) {
	p, err := New("ollama", "m", memory.New(0), WithTemperature(0.3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params := p.buildParams(nil, "hi")
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("Temperature = %v, want 0.3", params.Temperature)
	}
}

// ── roleFor ───────────────────────────────────────────────────────────────────

func TestRoleFor(t *testing.T) {
	if got := roleFor(conversation.RoleAgent); got != "assistant" {
		t.Errorf("agent role = %q, want assistant", got)
	}
	if got := roleFor(conversation.RoleCustomer); got != "user" {
		t.Errorf("customer role = %q, want user", got)
	}
}

// ── constructor ───────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	store := memory.New(0)
	if _, err := New("", "m", store); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("openai", "", store); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("openai", "m", nil); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := New("not-a-provider", "m", store); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("ollama", "m", memory.New(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.systemPrompt != defaultSystemPrompt {
		t.Errorf("system prompt = %q", p.systemPrompt)
	}
	if p.maxHistory != defaultMaxHistory {
		t.Errorf("max history = %d, want %d", p.maxHistory, defaultMaxHistory)
	}
}

// ── GetTurn input validation ──────────────────────────────────────────────────

func TestGetTurn_EmptyText(t *testing.T) {
	p := testProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := p.GetTurn(ctx, "call-1", ""); err == nil {
		t.Error("expected error for empty customer text")
	}
}
