package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestDraftStoreExpiresIdleDrafts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newDraftStore(time.Hour)
	store.now = func() time.Time { return now }

	draft := store.Create()
	now = now.Add(59 * time.Minute)
	if _, ok := store.Get(draft.ID); !ok {
		t.Fatal("expected draft to be live before the ttl")
	}

	// Get refreshed lastSeen, so another 59 minutes is still fine
	now = now.Add(59 * time.Minute)
	if _, ok := store.Get(draft.ID); !ok {
		t.Fatal("expected access to extend the draft")
	}

	now = now.Add(time.Hour)
	if _, ok := store.Get(draft.ID); ok {
		t.Fatal("expected idle draft to expire")
	}
	if store.Len() != 0 {
		t.Fatalf("expected expired draft to be removed, got %d", store.Len())
	}
}

func TestDraftStorePrune(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newDraftStore(time.Hour)
	store.now = func() time.Time { return start }

	store.Create()
	store.Create()
	store.now = func() time.Time { return start.Add(30 * time.Minute) }
	fresh := store.Create()

	if removed := store.prune(start.Add(70 * time.Minute)); removed != 2 {
		t.Fatalf("expected 2 pruned drafts, got %d", removed)
	}
	if _, ok := store.drafts[fresh.ID]; !ok {
		t.Fatal("expected recent draft to survive pruning")
	}
}

func TestDraftStoreDiscard(t *testing.T) {
	store := newDraftStore(time.Hour)
	draft := store.Create()
	store.Discard(draft.ID)
	if _, ok := store.Get(draft.ID); ok {
		t.Fatal("expected discarded draft to be gone")
	}
}

func TestDraftStoreCleanupStopsWithContext(t *testing.T) {
	store := newDraftStore(time.Millisecond)
	store.Create()

	ctx, cancel := context.WithCancel(context.Background())
	store.startCleanup(ctx, time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer cancel()

	deadline := time.Now().Add(time.Second)
	for store.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected cleanup loop to prune the idle draft")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
