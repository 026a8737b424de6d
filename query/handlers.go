package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-botpoll/core"
)

type EngineStatusReader interface {
	EngineStatus(ctx context.Context, botID string) (core.EngineStatus, error)
}

type CursorReader interface {
	LoadCursor(ctx context.Context, botID string) (int64, bool, error)
}

type EngineStatusQuery struct {
	reader EngineStatusReader
}

func NewEngineStatusQuery(reader EngineStatusReader) *EngineStatusQuery {
	return &EngineStatusQuery{reader: reader}
}

func (q *EngineStatusQuery) Query(ctx context.Context, msg EngineStatusMessage) (core.EngineStatus, error) {
	if q == nil || q.reader == nil {
		return core.EngineStatus{}, queryDependencyError("query: engine status reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.EngineStatus{}, err
	}
	return q.reader.EngineStatus(ctx, strings.TrimSpace(msg.BotID))
}

type LoadCursorQuery struct {
	reader CursorReader
}

func NewLoadCursorQuery(reader CursorReader) *LoadCursorQuery {
	return &LoadCursorQuery{reader: reader}
}

// Query returns a not-found envelope when the bot has never stored a cursor.
func (q *LoadCursorQuery) Query(ctx context.Context, msg LoadCursorMessage) (CursorResult, error) {
	if q == nil || q.reader == nil {
		return CursorResult{}, queryDependencyError("query: cursor reader is required")
	}
	if err := msg.Validate(); err != nil {
		return CursorResult{}, err
	}
	botID := strings.TrimSpace(msg.BotID)
	offset, found, err := q.reader.LoadCursor(ctx, botID)
	if err != nil {
		return CursorResult{}, err
	}
	if !found {
		return CursorResult{}, cursorNotFoundError(botID)
	}
	return CursorResult{BotID: botID, Offset: offset}, nil
}
