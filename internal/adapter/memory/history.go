// Package memory implements the history store port in process memory, for
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Strob0t/StreamForge/internal/domain"
	"github.com/Strob0t/StreamForge/internal/domain/history"
)

// HistoryStore keeps per-workspace message lists in memory. Sequence stamping
// matches the persistent stores: each append gets max(existing)+1 for its
// workspace, computed under the store lock.
type HistoryStore struct {
	mu       sync.Mutex
	messages map[string][]history.Message
}

// NewHistoryStore creates an empty in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{messages: make(map[string][]history.Message)}
}

// Append stores msg at the end of the workspace history and stamps its
// sequence number.
func (s *HistoryStore) Append(_ context.Context, workspaceID string, msg *history.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := history.NextSequence(s.messages[workspaceID])
	msg.Metadata.HistorySequence = &seq

	stored := history.CloneMessages([]history.Message{*msg})
	s.messages[workspaceID] = append(s.messages[workspaceID], stored[0])
	return nil
}

// History returns a copy of the workspace's messages in append order.
func (s *HistoryStore) History(_ context.Context, workspaceID string) ([]history.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return history.CloneMessages(s.messages[workspaceID]), nil
}

// Update replaces the stored message with the same ID.
func (s *HistoryStore) Update(_ context.Context, workspaceID string, msg *history.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.messages[workspaceID]
	for i := range list {
		if list[i].ID == msg.ID {
			cloned := history.CloneMessages([]history.Message{*msg})
			list[i] = cloned[0]
			return nil
		}
	}
	return fmt.Errorf("update message %s: %w", msg.ID, domain.ErrNotFound)
}

// DeleteMessage removes the message by ID. Missing messages are ignored.
func (s *HistoryStore) DeleteMessage(_ context.Context, workspaceID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.messages[workspaceID]
	for i := range list {
		if list[i].ID == messageID {
			s.messages[workspaceID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}
