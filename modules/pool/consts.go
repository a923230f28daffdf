package pool

import (
	"github.com/MobiusL/ecoinpool/build"
)

const (
	// logFile is the name of the coordinator's log file inside its persist
	// directory.
	logFile = "pool.log"
)

var (
	// mailboxSize is the capacity of a coordinator's message queue. Senders
	// block once the queue is full, preserving send order.
	mailboxSize = build.Select(build.Var{
		Standard: 256,
		Dev:      64,
		Testing:  16,
	}).(int)
)
