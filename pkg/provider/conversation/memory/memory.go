// Package memory provides an in-process conversation.Store. History lives
// only as long as the process; it suits single-instance deployments and
// tests, where call history does not need to survive a restart.
package memory

import (
	"context"
	"sync"

	"github.com/lokv010/voiceagent-sub001/pkg/provider/conversation"
)

// DefaultMaxTurnsPerCall caps the per-call history when New is given a
// non-positive limit. Old turns are discarded oldest-first beyond the cap.
const DefaultMaxTurnsPerCall = 200

// Store is an in-memory conversation.Store. All methods are safe for
// concurrent use.
type Store struct {
	mu       sync.RWMutex
	turns    map[string][]conversation.Turn
	maxTurns int
}

// New creates an in-memory store. maxTurnsPerCall caps the history kept per
// call; values <= 0 use DefaultMaxTurnsPerCall.
func New(maxTurnsPerCall int) *Store {
	if maxTurnsPerCall <= 0 {
		maxTurnsPerCall = DefaultMaxTurnsPerCall
	}
	return &Store{
		turns:    make(map[string][]conversation.Turn),
		maxTurns: maxTurnsPerCall,
	}
}

// Append implements [conversation.Store].
func (s *Store) Append(_ context.Context, turn conversation.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.turns[turn.CallID], turn)
	if len(history) > s.maxTurns {
		history = history[len(history)-s.maxTurns:]
	}
	s.turns[turn.CallID] = history
	return nil
}

// Recent implements [conversation.Store].
func (s *Store) Recent(_ context.Context, callID string, limit int) ([]conversation.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.turns[callID]
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]conversation.Turn, len(history))
	copy(out, history)
	return out, nil
}

// Drop removes all history for a call. Call it when a call ends to keep the
// map from growing without bound.
func (s *Store) Drop(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, callID)
}

var _ conversation.Store = (*Store)(nil)
