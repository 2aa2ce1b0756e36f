// Package mock provides a test double for the conversation package
// interface.
//
// Use Provider to feed controlled replies and inspect the utterances that
// were submitted for turn generation.
//
// Example:
//
//	p := &mock.Provider{GetTurnResult: "How can I help?"}
//	reply, _ := p.GetTurn(ctx, "call-1", "hello")
package mock

import (
	"context"
	"sync"

	"github.com/lokv010/voiceagent-sub001/pkg/provider/conversation"
)

// GetTurnCall records a single invocation of Provider.GetTurn.
type GetTurnCall struct {
	// Ctx is the context passed to GetTurn.
	Ctx context.Context
	// CallID is the call identifier passed to GetTurn.
	CallID string
	// CustomerText is the utterance text passed to GetTurn.
	CustomerText string
}

// Provider is a mock implementation of conversation.Provider.
type Provider struct {
	mu sync.Mutex

	// GetTurnResult is returned by every GetTurn call unless GetTurnFunc is
	// set.
	GetTurnResult string

	// GetTurnErr, if non-nil, is returned as the error from GetTurn.
	GetTurnErr error

	// GetTurnFunc, if non-nil, replaces the canned result entirely.
	GetTurnFunc func(ctx context.Context, callID, customerText string) (string, error)

	// GetTurnCalls records every call to GetTurn in order.
	GetTurnCalls []GetTurnCall
}

// GetTurn records the call and returns GetTurnResult, GetTurnErr (or
// delegates to GetTurnFunc when set).
func (p *Provider) GetTurn(ctx context.Context, callID, customerText string) (string, error) {
	p.mu.Lock()
	p.GetTurnCalls = append(p.GetTurnCalls, GetTurnCall{Ctx: ctx, CallID: callID, CustomerText: customerText})
	fn := p.GetTurnFunc
	result, err := p.GetTurnResult, p.GetTurnErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, callID, customerText)
	}
	return result, err
}

// GetTurnCallCount returns the number of GetTurn calls. Thread-safe.
func (p *Provider) GetTurnCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.GetTurnCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GetTurnCalls = nil
}

// Ensure Provider implements conversation.Provider at compile time.
var _ conversation.Provider = (*Provider)(nil)
