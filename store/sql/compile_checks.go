package sqlstore

import (
	"github.com/goliatone/go-botpoll/core"
	"github.com/goliatone/go-botpoll/ratelimit"
)

var (
	_ core.CursorStore     = (*CursorStore)(nil)
	_ core.CursorStore     = (*CachedCursorStore)(nil)
	_ ratelimit.StateStore = (*RateLimitStateStore)(nil)
	_ ratelimit.StateStore = (*CachedRateLimitStateStore)(nil)
)
