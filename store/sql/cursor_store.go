package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-botpoll/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Cursor is the persisted next offset for one bot.
type Cursor struct {
	BotID     string
	Offset    int64
	UpdatedAt time.Time
}

type CursorStore struct {
	db   *bun.DB
	repo repository.Repository[*cursorRecord]
	now  func() time.Time
}

func NewCursorStore(db *bun.DB) (*CursorStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*cursorRecord](db, cursorHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid cursor repository wiring: %w", err)
		}
	}
	return &CursorStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// LoadCursor reports the stored offset for botID; found is false when the bot
// has never persisted one.
func (s *CursorStore) LoadCursor(ctx context.Context, botID string) (int64, bool, error) {
	cursor, err := s.Get(ctx, botID)
	if err != nil {
		if errors.Is(err, core.ErrCursorNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return cursor.Offset, true, nil
}

func (s *CursorStore) Get(ctx context.Context, botID string) (Cursor, error) {
	if s == nil || s.db == nil {
		return Cursor{}, fmt.Errorf("sqlstore: cursor store is not configured")
	}
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return Cursor{}, fmt.Errorf("sqlstore: bot id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("bot_id", "=", botID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return Cursor{}, err
	}
	if len(records) == 0 {
		return Cursor{}, core.ErrCursorNotFound
	}
	return records[0].toDomain(), nil
}

func (s *CursorStore) List(ctx context.Context) ([]Cursor, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: cursor store is not configured")
	}
	records, _, err := s.repo.List(ctx, repository.OrderBy("bot_id ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]Cursor, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// SaveCursor persists offset for botID. The stored value only moves forward;
// a smaller or equal offset is a no-op.
func (s *CursorStore) SaveCursor(ctx context.Context, botID string, offset int64) error {
	return s.write(ctx, botID, offset, false)
}

// ResetCursor overwrites the stored offset, including moving it backwards.
func (s *CursorStore) ResetCursor(ctx context.Context, botID string, offset int64) error {
	return s.write(ctx, botID, offset, true)
}

func (s *CursorStore) write(ctx context.Context, botID string, offset int64, force bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: cursor store is not configured")
	}
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return fmt.Errorf("sqlstore: bot id is required")
	}
	if offset < 0 {
		return fmt.Errorf("sqlstore: cursor offset must not be negative")
	}
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findCursorTx(ctx, tx, botID)
		if err != nil {
			return err
		}
		if record == nil {
			record = &cursorRecord{
				ID:         uuid.NewString(),
				BotID:      botID,
				NextOffset: offset,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			_, insertErr := s.repo.CreateTx(ctx, tx, record)
			if insertErr == nil {
				return nil
			}
			if !isUniqueViolation(insertErr) {
				return insertErr
			}
			record, err = findCursorTx(ctx, tx, botID)
			if err != nil {
				return err
			}
			if record == nil {
				return insertErr
			}
		}

		if !force && offset <= record.NextOffset {
			return nil
		}
		record.NextOffset = offset
		record.UpdatedAt = now
		_, updateErr := tx.NewUpdate().
			Model(record).
			Column("next_offset", "updated_at").
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
}

func findCursorTx(ctx context.Context, tx bun.Tx, botID string) (*cursorRecord, error) {
	record := &cursorRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.bot_id = ?", botID).
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
