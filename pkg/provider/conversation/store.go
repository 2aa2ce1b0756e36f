package conversation

import (
	"context"
	"time"
)

// Role identifies which side of the call produced a turn.
type Role string

const (
	// RoleCustomer marks turns transcribed from the caller's speech.
	RoleCustomer Role = "customer"

	// RoleAgent marks turns generated by the system.
	RoleAgent Role = "agent"
)

// Turn is one entry in a call's conversation history.
type Turn struct {
	// CallID identifies the call this turn belongs to.
	CallID string

	// Role is who produced the turn.
	Role Role

	// Text is the turn's content.
	Text string

	// CreatedAt is when the turn was recorded.
	CreatedAt time.Time
}

// Store persists per-call turn history. Implementations must be safe for
// concurrent use.
type Store interface {
	// Append records one turn at the end of the call's history.
	Append(ctx context.Context, turn Turn) error

	// Recent returns up to limit of the call's most recent turns in
	// chronological order (oldest first). A limit <= 0 returns the full
	// history.
	Recent(ctx context.Context, callID string, limit int) ([]Turn, error)
}
