package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[StartPollingMessage] = (*StartPollingCommand)(nil)
	_ gocmd.Commander[StopPollingMessage]  = (*StopPollingCommand)(nil)
	_ gocmd.Commander[SaveCursorMessage]   = (*SaveCursorCommand)(nil)
)
