package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func TestParseRetryAfter_UsesTrailingDescriptionToken(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := ParseRetryAfter("Too Many Requests: retry after 7", map[string]string{"Retry-After": "30"}, now)
	if got != 7*time.Second {
		t.Fatalf("expected 7s from description, got %s", got)
	}
}

func TestParseRetryAfter_FallsBackToHeaderThenDefault(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := ParseRetryAfter("Too Many Requests", map[string]string{"retry-after": "12"}, now); got != 12*time.Second {
		t.Fatalf("expected 12s from header, got %s", got)
	}
	date := now.Add(20 * time.Second).Format(time.RFC1123)
	if got := ParseRetryAfter("", map[string]string{"Retry-After": date}, now); got != 20*time.Second {
		t.Fatalf("expected 20s from http date, got %s", got)
	}
	if got := ParseRetryAfter("Too Many Requests: retry after soon", nil, now); got != DefaultRetryAfter {
		t.Fatalf("expected default retry after, got %s", got)
	}
}

func TestParseRetryAfter_CapsOversizedHints(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := map[string]struct {
		description string
		headers     map[string]string
	}{
		"description":          {description: "Too Many Requests: retry after 9300000000"},
		"description overflow": {description: "Too Many Requests: retry after 99999999999999999999999"},
		"header":               {headers: map[string]string{"Retry-After": "9300000000"}},
		"header overflow":      {headers: map[string]string{"Retry-After": "99999999999999999999999"}},
		"header date":          {headers: map[string]string{"Retry-After": now.AddDate(5, 0, 0).Format(time.RFC1123)}},
	}
	for name, tc := range cases {
		got := ParseRetryAfter(tc.description, tc.headers, now)
		if got != MaxRetryAfter {
			t.Fatalf("%s: expected %s cap, got %s", name, MaxRetryAfter, got)
		}
	}
}

func TestParseRetryAfter_RejectsNegativeHints(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := ParseRetryAfter("retry after -5", map[string]string{"Retry-After": "-99999999999999999999"}, now); got != DefaultRetryAfter {
		t.Fatalf("expected default for negative hints, got %s", got)
	}
}

func TestTracker_OversizedHintKeepsWindowInFuture(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := NewTracker("bot-1", nil)
	tracker.Now = func() time.Time { return now }

	delay := ParseRetryAfter("Too Many Requests: retry after 9300000000", nil, now)
	if err := tracker.Throttled(ctx, "getUpdates", delay); err != nil {
		t.Fatalf("record throttle: %v", err)
	}
	states, err := tracker.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(states) != 1 || states[0].RetryAfter <= 0 || !states[0].ThrottledUntil.After(now) {
		t.Fatalf("expected positive advised wait in the future, got %+v", states)
	}
}

func TestTracker_RecordsAndClearsThrottle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := NewTracker("bot-1", nil)
	tracker.Now = func() time.Time { return now }

	if err := tracker.Throttled(ctx, "sendMessage", 7*time.Second); err != nil {
		t.Fatalf("record throttle: %v", err)
	}
	err := tracker.BeforeCall(ctx, "sendMessage")
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected throttled error, got %v", err)
	}
	if throttled.RetryAfter != 7*time.Second {
		t.Fatalf("expected 7s remaining, got %s", throttled.RetryAfter)
	}
	if err := tracker.BeforeCall(ctx, "getUpdates"); err != nil {
		t.Fatalf("expected other methods unaffected, got %v", err)
	}

	now = now.Add(8 * time.Second)
	if err := tracker.BeforeCall(ctx, "sendMessage"); err != nil {
		t.Fatalf("expected window to lapse, got %v", err)
	}

	if err := tracker.Recovered(ctx, "sendMessage"); err != nil {
		t.Fatalf("recover: %v", err)
	}
	states, err := tracker.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("expected one tracked method, got %d", len(states))
	}
	if states[0].ThrottledUntil != nil || states[0].Throttles != 1 {
		t.Fatalf("expected cleared window with one recorded throttle, got %+v", states[0])
	}
}

func TestThrottledError_ToServiceError(t *testing.T) {
	mapped := ThrottledError{Method: "getUpdates", RetryAfter: 3 * time.Second}.ToServiceError()
	if mapped.Category != goerrors.CategoryRateLimit {
		t.Fatalf("expected rate limit category, got %q", mapped.Category)
	}
	if mapped.Code != 429 {
		t.Fatalf("expected 429, got %d", mapped.Code)
	}
	if mapped.Metadata["retry_after_ms"] != int64(3000) {
		t.Fatalf("expected retry_after_ms metadata, got %#v", mapped.Metadata)
	}
}

func TestMemoryStateStore_GetMissing(t *testing.T) {
	store := NewMemoryStateStore()
	if _, err := store.Get(context.Background(), Key{BotID: "b", Method: "m"}); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
