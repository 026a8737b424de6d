package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-botpoll/ratelimit"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RateLimitStateStore persists advised waits recorded by ratelimit.Tracker.
type RateLimitStateStore struct {
	db   *bun.DB
	repo repository.Repository[*rateLimitStateRecord]
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*rateLimitStateRecord](db, rateLimitStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid rate-limit state repository wiring: %w", err)
		}
	}
	return &RateLimitStateStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *RateLimitStateStore) Get(ctx context.Context, key ratelimit.Key) (ratelimit.State, error) {
	if s == nil || s.db == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	key = normalizeRateLimitKey(key)
	if err := validateRateLimitKey(key); err != nil {
		return ratelimit.State{}, err
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("bot_id", "=", key.BotID),
		repository.SelectBy("method", "=", key.Method),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return ratelimit.State{}, err
	}
	if len(records) == 0 {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	return records[0].toDomain(), nil
}

func (s *RateLimitStateStore) List(ctx context.Context) ([]ratelimit.State, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	records, _, err := s.repo.List(ctx, repository.OrderBy("bot_id ASC, method ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]ratelimit.State, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	state.Key = normalizeRateLimitKey(state.Key)
	if err := validateRateLimitKey(state.Key); err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findRateLimitStateTx(ctx, tx, state.Key)
		if err != nil {
			return err
		}
		created := false
		if record == nil {
			created = true
			record = &rateLimitStateRecord{
				ID:        uuid.NewString(),
				BotID:     state.Key.BotID,
				Method:    state.Key.Method,
				CreatedAt: state.UpdatedAt.UTC(),
			}
		}
		record.RetryAfterMS = state.RetryAfter.Milliseconds()
		record.ThrottledUntil = copyTimePointer(state.ThrottledUntil)
		record.Throttles = state.Throttles
		record.LastThrottledAt = copyTimePointer(state.LastThrottled)
		record.UpdatedAt = state.UpdatedAt.UTC()

		if created {
			_, insertErr := s.repo.CreateTx(ctx, tx, record)
			return insertErr
		}
		_, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
}

func (r *rateLimitStateRecord) toDomain() ratelimit.State {
	if r == nil {
		return ratelimit.State{}
	}
	return ratelimit.State{
		Key:            ratelimit.Key{BotID: r.BotID, Method: r.Method},
		RetryAfter:     time.Duration(r.RetryAfterMS) * time.Millisecond,
		ThrottledUntil: copyTimePointer(r.ThrottledUntil),
		Throttles:      r.Throttles,
		LastThrottled:  copyTimePointer(r.LastThrottledAt),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func findRateLimitStateTx(ctx context.Context, tx bun.Tx, key ratelimit.Key) (*rateLimitStateRecord, error) {
	record := &rateLimitStateRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.bot_id = ?", key.BotID).
		Where("?TableAlias.method = ?", key.Method).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func normalizeRateLimitKey(key ratelimit.Key) ratelimit.Key {
	return ratelimit.Key{
		BotID:  strings.TrimSpace(key.BotID),
		Method: strings.TrimSpace(key.Method),
	}
}

func validateRateLimitKey(key ratelimit.Key) error {
	if key.BotID == "" {
		return fmt.Errorf("sqlstore: rate-limit bot id is required")
	}
	if key.Method == "" {
		return fmt.Errorf("sqlstore: rate-limit method is required")
	}
	return nil
}

func copyTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
