package command

import (
	"context"
	"fmt"
	"strings"

	gocmd "github.com/goliatone/go-command"
)

// PollingController is the part of a bot runtime the polling commands drive.
type PollingController interface {
	StartPolling(ctx context.Context, botID string) error
	StopPolling(ctx context.Context, botID string, reason string) error
}

type CursorWriter interface {
	SaveCursor(ctx context.Context, botID string, offset int64) error
	ResetCursor(ctx context.Context, botID string, offset int64) error
}

type StartPollingCommand struct {
	controller PollingController
}

func NewStartPollingCommand(controller PollingController) *StartPollingCommand {
	return &StartPollingCommand{controller: controller}
}

// Execute starts the engine detached from the dispatch context, so the run
// outlives the dispatch call. Use StopPolling to end it.
func (c *StartPollingCommand) Execute(ctx context.Context, msg StartPollingMessage) error {
	if c == nil || c.controller == nil {
		return commandDependencyError("command: polling controller is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.controller.StartPolling(context.WithoutCancel(ctx), strings.TrimSpace(msg.BotID))
}

type StopPollingCommand struct {
	controller PollingController
}

func NewStopPollingCommand(controller PollingController) *StopPollingCommand {
	return &StopPollingCommand{controller: controller}
}

func (c *StopPollingCommand) Execute(ctx context.Context, msg StopPollingMessage) error {
	if c == nil || c.controller == nil {
		return commandDependencyError("command: polling controller is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.controller.StopPolling(ctx, strings.TrimSpace(msg.BotID), strings.TrimSpace(msg.Reason))
}

type SaveCursorCommand struct {
	writer CursorWriter
}

func NewSaveCursorCommand(writer CursorWriter) *SaveCursorCommand {
	return &SaveCursorCommand{writer: writer}
}

func (c *SaveCursorCommand) Execute(ctx context.Context, msg SaveCursorMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: cursor writer is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	botID := strings.TrimSpace(msg.BotID)
	var err error
	if msg.Force {
		err = c.writer.ResetCursor(ctx, botID, msg.Offset)
	} else {
		err = c.writer.SaveCursor(ctx, botID, msg.Offset)
	}
	if err != nil {
		return fmt.Errorf("command: save cursor for %s: %w", botID, err)
	}
	storeResult(ctx, msg.Offset)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
