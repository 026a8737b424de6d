package query

import "strings"

const (
	TypeEngineStatus = "botpoll.query.engine.status"
	TypeLoadCursor   = "botpoll.query.cursor.load"
)

type EngineStatusMessage struct {
	BotID string
}

func (EngineStatusMessage) Type() string { return TypeEngineStatus }

func (m EngineStatusMessage) Validate() error {
	if strings.TrimSpace(m.BotID) == "" {
		return queryValidationError("bot_id", "is required")
	}
	return nil
}

type LoadCursorMessage struct {
	BotID string
}

func (LoadCursorMessage) Type() string { return TypeLoadCursor }

func (m LoadCursorMessage) Validate() error {
	if strings.TrimSpace(m.BotID) == "" {
		return queryValidationError("bot_id", "is required")
	}
	return nil
}

type CursorResult struct {
	BotID  string `json:"bot_id"`
	Offset int64  `json:"offset"`
}
