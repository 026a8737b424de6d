package command

import "strings"

const (
	TypeStartPolling = "botpoll.command.polling.start"
	TypeStopPolling  = "botpoll.command.polling.stop"
	TypeSaveCursor   = "botpoll.command.cursor.save"
)

type StartPollingMessage struct {
	BotID string
}

func (StartPollingMessage) Type() string { return TypeStartPolling }

func (m StartPollingMessage) Validate() error {
	return validateBotID(m.BotID)
}

type StopPollingMessage struct {
	BotID  string
	Reason string
}

func (StopPollingMessage) Type() string { return TypeStopPolling }

func (m StopPollingMessage) Validate() error {
	return validateBotID(m.BotID)
}

// SaveCursorMessage persists a cursor. Force allows moving it backwards.
type SaveCursorMessage struct {
	BotID  string
	Offset int64
	Force  bool
}

func (SaveCursorMessage) Type() string { return TypeSaveCursor }

func (m SaveCursorMessage) Validate() error {
	if err := validateBotID(m.BotID); err != nil {
		return err
	}
	if m.Offset < 0 {
		return commandValidationError("offset", "must not be negative")
	}
	return nil
}

func validateBotID(botID string) error {
	if strings.TrimSpace(botID) == "" {
		return commandValidationError("bot_id", "is required")
	}
	return nil
}
