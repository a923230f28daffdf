package pool

import (
	"bytes"
	"encoding/json"

	"github.com/MobiusL/ecoinpool/modules"
	"github.com/MobiusL/ecoinpool/modules/coindaemon"
)

// serviceOp names what must happen to one dependent sub-service during a
// configuration reload.
type serviceOp int

const (
	opNone serviceOp = iota
	opStart
	opStop
	opRestart
)

type (
	// listenerAction describes the reload's effect on the network listener.
	listenerAction struct {
		op        serviceOp
		stopPort  uint16
		startPort uint16
	}

	// daemonAction describes the reload's effect on the coin daemon
	// adapter. The factory is always resolved from the new pool type, even
	// for opNone, so that an unknown pool type fails the reload before any
	// sub-service is touched.
	daemonAction struct {
		op      serviceOp
		factory modules.DaemonFactory
		config  json.RawMessage
	}

	// reloadPlan is the full decision of one configuration reconciliation.
	// Planning is separate from execution so the restart policy can be
	// tested without collaborators.
	reloadPlan struct {
		listener listenerAction
		daemon   daemonAction
	}
)

// planReload compares the previous configuration (nil if the pool has none
// yet) against the next one and decides which sub-services must be stopped
// or started. It performs no side effects.
func planReload(prev *modules.PoolConfig, next modules.PoolConfig) (reloadPlan, error) {
	var plan reloadPlan

	// Resolve the daemon adapter factory first. Resolution is a static
	// lookup; a configuration naming an unknown pool type is rejected here,
	// before anything has been stopped or started.
	factory, err := coindaemon.Factory(next.PoolType)
	if err != nil {
		return reloadPlan{}, err
	}

	var prevPort uint16
	if prev != nil {
		prevPort = prev.ListenPort
	}
	switch {
	case prevPort == next.ListenPort:
		// Includes both ports being unset.
	case prevPort == 0:
		plan.listener = listenerAction{op: opStart, startPort: next.ListenPort}
	case next.ListenPort == 0:
		plan.listener = listenerAction{op: opStop, stopPort: prevPort}
	default:
		plan.listener = listenerAction{op: opRestart, stopPort: prevPort, startPort: next.ListenPort}
	}

	switch {
	case prev == nil:
		plan.daemon = daemonAction{op: opStart, factory: factory, config: next.CoinDaemonConfig}
	case prev.PoolType == next.PoolType && bytes.Equal(prev.CoinDaemonConfig, next.CoinDaemonConfig):
		// Same adapter, same configuration: leave the daemon alone.
	default:
		plan.daemon = daemonAction{op: opRestart, factory: factory, config: next.CoinDaemonConfig}
	}

	return plan, nil
}
