package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/sentinel/pkg/models"
)

// MemoryStore is the default, in-process Store implementation —
// grounded on nexus's internal/sessions/memory.go clone-on-read/write
// map-of-maps shape, generalized from its simple count-based trim to
// the matched-pair trim spec.md §3-ii requires.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[models.ConversationKey]*models.Conversation
}

// NewMemoryStore builds an empty in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: map[models.ConversationKey]*models.Conversation{}}
}

func (s *MemoryStore) Get(ctx context.Context, key models.ConversationKey) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[key]
	if !ok {
		now := time.Now()
		conv = &models.Conversation{Key: key, CreatedAt: now, UpdatedAt: now}
		s.conversations[key] = conv
	}
	return cloneConversation(conv), nil
}

func (s *MemoryStore) Append(ctx context.Context, key models.ConversationKey, msg *models.Message, historyCap int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[key]
	if !ok {
		now := time.Now()
		conv = &models.Conversation{Key: key, CreatedAt: now, UpdatedAt: now}
		s.conversations[key] = conv
	}

	conv.Messages = append(conv.Messages, msg)
	conv.Messages = TrimMatchedPairs(conv.Messages, historyCap)
	conv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, key models.ConversationKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.conversations[key] = &models.Conversation{Key: key, CreatedAt: now, UpdatedAt: now}
	return nil
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	clone := *c
	clone.Messages = append([]*models.Message(nil), c.Messages...)
	return &clone
}
