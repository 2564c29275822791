// Package convstore implements the orchestrator's process-local
// conversation history: a concurrent map of conversation id to an ordered
// message list, with coarse per-list locking.
package convstore

import (
	"sync"

	"github.com/brightloop/opsmesh/pkg/models"
)

// Store maps conversation id to message history. It is the only shared
// mutable state in the orchestrator; state is lost on restart, since
// persistence is out of scope for the core.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
}

type conversation struct {
	mu       sync.Mutex
	messages []models.Message
}

// New returns an empty Store.
func New() *Store {
	return &Store{conversations: make(map[string]*conversation)}
}

func (s *Store) getOrCreate(id string) *conversation {
	s.mu.RLock()
	c, ok := s.conversations[id]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		return c
	}
	c = &conversation{}
	s.conversations[id] = c
	return c
}

// Exists reports whether id already has a conversation, without creating one.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conversations[id]
	return ok
}

// Append adds message to id's history, creating the conversation on first use.
func (s *Store) Append(id string, message models.Message) {
	c := s.getOrCreate(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
}

// GetHistory returns a snapshot of id's message history. Concurrent appends
// that race with this call are not guaranteed to be observed.
func (s *Store) GetHistory(id string) []models.Message {
	s.mu.RLock()
	c, ok := s.conversations[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Clear removes a conversation entirely. It is a no-op if id is unknown.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
}

// ListIDs returns every known conversation id, in no particular order.
func (s *Store) ListIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of known conversations.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
