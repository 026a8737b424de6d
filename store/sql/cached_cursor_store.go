package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-botpoll/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const cursorCacheKeyPrefix = "go-botpoll::cursor::v1"

// CachedCursorStore fronts a cursor store with a read cache. Writes go to the
// base store first and then evict the cached entry.
type CachedCursorStore struct {
	base  core.CursorStore
	cache repositorycache.CacheService
}

type cachedCursor struct {
	Offset int64
	Found  bool
}

func NewCachedCursorStore(base core.CursorStore, cacheService repositorycache.CacheService) (*CachedCursorStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base cursor store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: cursor cache service is required")
	}
	return &CachedCursorStore{base: base, cache: cacheService}, nil
}

// CursorCacheKey returns go-botpoll::cursor::v1::<bot_id> with the bot id
// URL-path escaped.
func CursorCacheKey(botID string) (string, error) {
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return "", fmt.Errorf("sqlstore: bot id is required")
	}
	return cursorCacheKeyPrefix + "::" + url.PathEscape(botID), nil
}

func (s *CachedCursorStore) LoadCursor(ctx context.Context, botID string) (int64, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return 0, false, fmt.Errorf("sqlstore: cached cursor store is not configured")
	}
	key, err := CursorCacheKey(botID)
	if err != nil {
		return 0, false, err
	}
	entry, err := repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (cachedCursor, error) {
		offset, found, fetchErr := s.base.LoadCursor(ctx, strings.TrimSpace(botID))
		if fetchErr != nil {
			return cachedCursor{}, fetchErr
		}
		return cachedCursor{Offset: offset, Found: found}, nil
	})
	if err != nil {
		return 0, false, err
	}
	return entry.Offset, entry.Found, nil
}

func (s *CachedCursorStore) SaveCursor(ctx context.Context, botID string, offset int64) error {
	return s.writeThrough(ctx, botID, func(base core.CursorStore, id string) error {
		return base.SaveCursor(ctx, id, offset)
	})
}

// ResetCursor requires a base store that supports resets.
func (s *CachedCursorStore) ResetCursor(ctx context.Context, botID string, offset int64) error {
	return s.writeThrough(ctx, botID, func(base core.CursorStore, id string) error {
		resetter, ok := base.(interface {
			ResetCursor(ctx context.Context, botID string, offset int64) error
		})
		if !ok {
			return fmt.Errorf("sqlstore: base cursor store does not support resets")
		}
		return resetter.ResetCursor(ctx, id, offset)
	})
}

func (s *CachedCursorStore) writeThrough(ctx context.Context, botID string, write func(core.CursorStore, string) error) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached cursor store is not configured")
	}
	key, err := CursorCacheKey(botID)
	if err != nil {
		return err
	}
	if err := write(s.base, strings.TrimSpace(botID)); err != nil {
		return err
	}
	return s.cache.Delete(ctx, key)
}
