package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lokv010/voiceagent-sub001/pkg/provider/conversation"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/stt"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/tts"
	"github.com/lokv010/voiceagent-sub001/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	stt          map[string]func(ProviderEntry) (stt.Provider, error)
	tts          map[string]func(ProviderEntry) (tts.Provider, error)
	conversation map[string]func(ProviderEntry, ConversationConfig) (conversation.Provider, error)
	vad          map[string]func(ProviderEntry) (vad.Engine, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:          make(map[string]func(ProviderEntry) (stt.Provider, error)),
		tts:          make(map[string]func(ProviderEntry) (tts.Provider, error)),
		conversation: make(map[string]func(ProviderEntry, ConversationConfig) (conversation.Provider, error)),
		vad:          make(map[string]func(ProviderEntry) (vad.Engine, error)),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterConversation registers a conversation provider factory under
// name. Conversation factories also receive the conversation block since
// system prompt and history settings live there, not in the provider entry.
func (r *Registry) RegisterConversation(name string, factory func(ProviderEntry, ConversationConfig) (conversation.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversation[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under
// entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateConversation instantiates a conversation provider using the factory
// registered under entry.Name.
func (r *Registry) CreateConversation(entry ProviderEntry, conv ConversationConfig) (conversation.Provider, error) {
	r.mu.RLock()
	factory, ok := r.conversation[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: conversation/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, conv)
}

// CreateVAD instantiates a VAD engine using the factory registered under
// entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
