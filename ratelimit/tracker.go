package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-botpoll/core"
	goerrors "github.com/goliatone/go-errors"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

type Key struct {
	BotID  string
	Method string
}

type State struct {
	Key            Key
	RetryAfter     time.Duration
	ThrottledUntil *time.Time
	Throttles      int
	LastThrottled  *time.Time
	UpdatedAt      time.Time
}

// Throttled reports whether the advised wait is still running at now.
func (s State) Throttled(now time.Time) bool {
	return s.ThrottledUntil != nil && now.Before(*s.ThrottledUntil)
}

type StateStore interface {
	Get(ctx context.Context, key Key) (State, error)
	Upsert(ctx context.Context, state State) error
	List(ctx context.Context) ([]State, error)
}

type ThrottledError struct {
	Method     string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: method %q throttled for %s",
		strings.TrimSpace(e.Method),
		e.RetryAfter,
	)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"method": strings.TrimSpace(e.Method),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ErrorRateLimited).
		WithMetadata(metadata)
}

// Tracker records per-method throttle windows advised by the remote API so
// they can be reported and checked before optional calls.
type Tracker struct {
	BotID string
	Store StateStore
	Now   func() time.Time
}

func NewTracker(botID string, store StateStore) *Tracker {
	if store == nil {
		store = NewMemoryStateStore()
	}
	return &Tracker{
		BotID: strings.TrimSpace(botID),
		Store: store,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// Throttled records an advised wait for method.
func (t *Tracker) Throttled(ctx context.Context, method string, retryAfter time.Duration) error {
	if t == nil || t.Store == nil {
		return nil
	}
	key := t.key(method)
	state, err := t.Store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return err
	}
	if errors.Is(err, ErrStateNotFound) {
		state = State{Key: key}
	}
	now := t.now()
	until := now.Add(retryAfter)
	state.RetryAfter = retryAfter
	state.ThrottledUntil = &until
	state.Throttles++
	state.LastThrottled = &now
	state.UpdatedAt = now
	return t.Store.Upsert(ctx, state)
}

// Recovered clears the throttle window after a successful call.
func (t *Tracker) Recovered(ctx context.Context, method string) error {
	if t == nil || t.Store == nil {
		return nil
	}
	state, err := t.Store.Get(ctx, t.key(method))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}
	if state.ThrottledUntil == nil {
		return nil
	}
	state.ThrottledUntil = nil
	state.RetryAfter = 0
	state.UpdatedAt = t.now()
	return t.Store.Upsert(ctx, state)
}

// BeforeCall fails fast with ThrottledError while method is inside an advised
// wait.
func (t *Tracker) BeforeCall(ctx context.Context, method string) error {
	if t == nil || t.Store == nil {
		return nil
	}
	state, err := t.Store.Get(ctx, t.key(method))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}
	now := t.now()
	if state.Throttled(now) {
		return ThrottledError{Method: state.Key.Method, RetryAfter: state.ThrottledUntil.Sub(now)}
	}
	return nil
}

func (t *Tracker) Snapshot(ctx context.Context) ([]State, error) {
	if t == nil || t.Store == nil {
		return nil, nil
	}
	states, err := t.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]State, 0, len(states))
	for _, state := range states {
		if t.BotID == "" || state.Key.BotID == t.BotID {
			out = append(out, state)
		}
	}
	return out, nil
}

func (t *Tracker) key(method string) Key {
	return normalizeKey(Key{BotID: t.BotID, Method: method})
}

func (t *Tracker) now() time.Time {
	if t != nil && t.Now != nil {
		return t.Now().UTC()
	}
	return time.Now().UTC()
}

func normalizeKey(key Key) Key {
	return Key{
		BotID:  strings.TrimSpace(key.BotID),
		Method: strings.TrimSpace(key.Method),
	}
}

func stateKey(key Key) string {
	return key.BotID + "|" + key.Method
}

type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key Key) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[stateKey(normalizeKey(key))]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Key = normalizeKey(state.Key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[stateKey(state.Key)] = state
	return nil
}

func (s *MemoryStateStore) List(context.Context) ([]State, error) {
	if s == nil {
		return nil, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]State, 0, len(s.items))
	for _, state := range s.items {
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool {
		return stateKey(out[i].Key) < stateKey(out[j].Key)
	})
	return out, nil
}

var _ StateStore = (*MemoryStateStore)(nil)
