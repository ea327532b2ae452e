package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// draftStore holds live drafts in memory. Drafts idle for longer than ttl are
// treated as gone and removed by the cleanup loop.
type draftStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	drafts map[string]*Draft
	now    func() time.Time
}

func newDraftStore(ttl time.Duration) *draftStore {
	if ttl <= 0 {
		ttl = defaultDraftTTL
	}
	return &draftStore{
		ttl:    ttl,
		drafts: make(map[string]*Draft),
		now:    time.Now,
	}
}

func (s *draftStore) Create() *Draft {
	draft := newDraft(uuid.NewString(), s.now())
	s.mu.Lock()
	s.drafts[draft.ID] = draft
	s.mu.Unlock()
	return draft
}

func (s *draftStore) Get(id string) (*Draft, bool) {
	now := s.now()
	s.mu.Lock()
	draft, ok := s.drafts[id]
	if ok && draft.idleSince(now) >= s.ttl {
		delete(s.drafts, id)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	draft.touch(now)
	return draft, true
}

func (s *draftStore) Discard(id string) {
	s.mu.Lock()
	delete(s.drafts, id)
	s.mu.Unlock()
}

func (s *draftStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}

func (s *draftStore) startCleanup(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if removed := s.prune(now); removed > 0 {
					logger.Debug("pruned idle drafts", "count", removed)
				}
			}
		}
	}()
}

func (s *draftStore) prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, draft := range s.drafts {
		if draft.idleSince(now) >= s.ttl {
			delete(s.drafts, id)
			removed++
		}
	}
	return removed
}
