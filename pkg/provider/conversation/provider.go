// Package conversation defines the Provider interface for conversational
// reply generation.
//
// A conversation provider takes the transcribed text of one customer
// utterance and produces the agent's reply for that turn. History handling
// is the provider's concern: implementations keep per-call turn history in a
// Store so that each reply is generated with the context of the preceding
// exchange.
//
// Implementations must be safe for concurrent use. Turns from different
// calls may be generated simultaneously; turns within one call are always
// serialized by the pipeline.
package conversation

import (
	"context"
	"errors"
)

// ErrTurn wraps any backend failure during reply generation. Callers match
// it with errors.Is; a turn whose generation fails is answered with a
// configured fallback phrase instead of silence.
var ErrTurn = errors.New("conversation: turn generation failed")

// Provider is the abstraction over any conversational backend.
type Provider interface {
	// GetTurn generates the agent's reply to one customer utterance. callID
	// scopes the turn history; customerText is the transcribed utterance.
	// Empty customerText is an error.
	GetTurn(ctx context.Context, callID, customerText string) (string, error)
}
