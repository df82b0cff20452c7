// internal/pkg/session/memory_store.go
package session

import (
	"context"
	"sync"
	"time"

	"backoffice-service/internal/domain/conversation"

	"go.uber.org/zap"
)

// MemoryStore keeps conversations in a process-local map and reaps stale ones
// on a fixed interval. A dialogue still being answered 59 minutes after it
// started is live; one hour after creation it is reaped regardless of
// activity.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]conversation.Conversation

	ttl           time.Duration
	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
	logger        *zap.Logger
}

func NewMemoryStore(ttl, sweepInterval time.Duration, logger *zap.Logger) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	s := &MemoryStore{
		conversations: make(map[string]conversation.Conversation),
		ttl:           ttl,
		sweepInterval: sweepInterval,
		stop:          make(chan struct{}),
		logger:        logger,
	}

	go s.reap()

	return s
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}

	copied := conv
	return &copied, nil
}

func (s *MemoryStore) Set(ctx context.Context, conv *conversation.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *conv
	stored.LastTouchedAt = time.Now()
	s.conversations[conv.ID] = stored

	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, id)
	return nil
}

func (s *MemoryStore) Active(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}

	return ids, nil
}

// Sweep removes every conversation whose creation is older than the TTL and
// returns how many were evicted. The reaper calls this on its ticker; tests
// call it directly.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, conv := range s.conversations {
		if now.Sub(conv.CreatedAt) > s.ttl {
			delete(s.conversations, id)
			evicted++
		}
	}

	return evicted
}

// Close stops the background reaper. Safe to call more than once.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) reap() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(time.Now()); n > 0 && s.logger != nil {
				s.logger.Info("reaped expired conversations", zap.Int("count", n))
			}
		case <-s.stop:
			return
		}
	}
}
