package resilience

import (
	"context"

	"github.com/lokv010/voiceagent-sub001/pkg/provider/conversation"
)

// ConversationFallback implements [conversation.Provider] with automatic
// failover across multiple conversation backends. Each backend has its own
// circuit breaker; when the primary fails or its breaker is open, the next
// healthy fallback is tried.
//
// Turn history is kept per backend, so a fallback that takes over mid-call
// answers without the turns the primary accumulated. That trade-off is
// acceptable for short outage windows; the alternative of replicating history
// across backends would couple their stores.
type ConversationFallback struct {
	group *FallbackGroup[conversation.Provider]
}

// Compile-time interface assertion.
var _ conversation.Provider = (*ConversationFallback)(nil)

// NewConversationFallback creates a [ConversationFallback] with primary as the
// preferred backend.
func NewConversationFallback(primary conversation.Provider, primaryName string, cfg FallbackConfig) *ConversationFallback {
	return &ConversationFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional conversation provider as a fallback.
func (f *ConversationFallback) AddFallback(name string, provider conversation.Provider) {
	f.group.AddFallback(name, provider)
}

// GetTurn generates the reply using the first healthy provider.
func (f *ConversationFallback) GetTurn(ctx context.Context, callID, customerText string) (string, error) {
	return ExecuteWithResult(f.group, func(p conversation.Provider) (string, error) {
		return p.GetTurn(ctx, callID, customerText)
	})
}
