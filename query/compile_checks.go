package query

import (
	"github.com/goliatone/go-botpoll/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[EngineStatusMessage, core.EngineStatus] = (*EngineStatusQuery)(nil)
	_ gocmd.Querier[LoadCursorMessage, CursorResult]        = (*LoadCursorQuery)(nil)
)
