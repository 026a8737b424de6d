package botpoll

import (
	"fmt"

	botcommand "github.com/goliatone/go-botpoll/command"
	botquery "github.com/goliatone/go-botpoll/query"
)

// Runtime is what the command and query handlers need from a bot.
type Runtime interface {
	botcommand.PollingController
	botcommand.CursorWriter
	botquery.EngineStatusReader
	botquery.CursorReader
}

type Commands struct {
	StartPolling *botcommand.StartPollingCommand
	StopPolling  *botcommand.StopPollingCommand
	SaveCursor   *botcommand.SaveCursorCommand
}

type Queries struct {
	EngineStatus *botquery.EngineStatusQuery
	LoadCursor   *botquery.LoadCursorQuery
}

type Facade struct {
	runtime  Runtime
	commands Commands
	queries  Queries
}

func NewFacade(runtime Runtime) (*Facade, error) {
	if runtime == nil {
		return nil, fmt.Errorf("botpoll: runtime is required")
	}
	return &Facade{
		runtime: runtime,
		commands: Commands{
			StartPolling: botcommand.NewStartPollingCommand(runtime),
			StopPolling:  botcommand.NewStopPollingCommand(runtime),
			SaveCursor:   botcommand.NewSaveCursorCommand(runtime),
		},
		queries: Queries{
			EngineStatus: botquery.NewEngineStatusQuery(runtime),
			LoadCursor:   botquery.NewLoadCursorQuery(runtime),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Runtime() Runtime {
	if f == nil {
		return nil
	}
	return f.runtime
}

var _ Runtime = (*Bot)(nil)
