package main

import (
	"net/http"
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToMaxPerWindow(t *testing.T) {
	limiter := newRateLimiter(2, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if !limiter.allow("ip", now) || !limiter.allow("ip", now.Add(time.Second)) {
		t.Fatal("expected first two requests to pass")
	}
	if limiter.allow("ip", now.Add(2*time.Second)) {
		t.Fatal("expected third request to be limited")
	}
	if !limiter.allow("other", now) {
		t.Fatal("expected keys to be independent")
	}
	if !limiter.allow("ip", now.Add(time.Minute)) {
		t.Fatal("expected a new window to reset the count")
	}
}

func TestRateLimiterPrune(t *testing.T) {
	limiter := newRateLimiter(2, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.allow("old", now)
	limiter.allow("new", now.Add(50*time.Second))

	limiter.prune(now.Add(70 * time.Second))
	if _, ok := limiter.buckets["old"]; ok {
		t.Fatal("expected expired bucket to be pruned")
	}
	if _, ok := limiter.buckets["new"]; !ok {
		t.Fatal("expected live bucket to stay")
	}
}

func TestDraftSubmitValidationFailuresAreNotThrottled(t *testing.T) {
	app, router := newTestServer(t)
	app.submitLimiter = newRateLimiter(1, time.Hour)
	b := &browser{t: t, router: router}
	b.json(http.MethodGet, "/api/v1/draft", "")

	for i := 0; i < 3; i++ {
		rec := b.json(http.MethodPost, "/api/v1/draft/submit", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: expected validation error, got %d", i+1, rec.Code)
		}
	}

	draft, ok := app.currentDraft(cookieContext(t, b.cookie))
	if !ok {
		t.Fatal("expected draft to survive failed submits")
	}
	fillDraft(t, app, draft)
	rec := b.json(http.MethodPost, "/api/v1/draft/submit", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected first complete submit to pass, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDraftSubmitIsRateLimited(t *testing.T) {
	app, router := newTestServer(t)
	app.submitLimiter = newRateLimiter(1, time.Hour)

	for i, want := range []int{http.StatusCreated, http.StatusTooManyRequests} {
		b := &browser{t: t, router: router}
		b.json(http.MethodGet, "/api/v1/draft", "")
		draft, ok := app.currentDraft(cookieContext(t, b.cookie))
		if !ok {
			t.Fatalf("attempt %d: expected a draft", i+1)
		}
		fillDraft(t, app, draft)

		rec := b.json(http.MethodPost, "/api/v1/draft/submit", "")
		if rec.Code != want {
			t.Fatalf("attempt %d: expected %d, got %d", i+1, want, rec.Code)
		}
	}
	if got := len(app.points.created()); got != 1 {
		t.Fatalf("expected one backend write, got %d", got)
	}
}
