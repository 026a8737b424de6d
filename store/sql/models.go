package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type cursorRecord struct {
	bun.BaseModel `bun:"table:bot_update_cursors,alias:buc"`

	ID         string    `bun:"id,pk"`
	BotID      string    `bun:"bot_id,notnull"`
	NextOffset int64     `bun:"next_offset,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:bot_rate_limit_states,alias:brl"`

	ID              string     `bun:"id,pk"`
	BotID           string     `bun:"bot_id,notnull"`
	Method          string     `bun:"method,notnull"`
	RetryAfterMS    int64      `bun:"retry_after_ms,notnull"`
	ThrottledUntil  *time.Time `bun:"throttled_until,nullzero"`
	Throttles       int        `bun:"throttles,notnull"`
	LastThrottledAt *time.Time `bun:"last_throttled_at,nullzero"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *cursorRecord) toDomain() Cursor {
	if r == nil {
		return Cursor{}
	}
	return Cursor{
		BotID:     r.BotID,
		Offset:    r.NextOffset,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}
