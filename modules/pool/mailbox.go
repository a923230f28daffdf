package pool

import (
	"encoding/json"
	"sync/atomic"

	"gitlab.com/NebulousLabs/errors"

	"github.com/MobiusL/ecoinpool/modules"
)

type (
	// poolMessage is a message in the coordinator's private mailbox.
	// Messages are processed one at a time, in mailbox order, never
	// concurrently.
	poolMessage interface{}

	reloadConfigMsg struct {
		config modules.PoolConfig
	}

	reloadWorkersMsg struct{}

	upsertWorkerMsg struct {
		worker modules.Worker
	}

	removeWorkerMsg struct {
		id modules.WorkerID
	}

	rpcRequestMsg struct {
		resp   modules.Responder
		method string
		params json.RawMessage
		auth   modules.RPCAuth
	}

	longPollMsg struct {
		resp modules.Responder
		auth modules.RPCAuth
	}

	subsQueryMsg struct {
		reply chan []modules.PoolID
	}

	statusQueryMsg struct {
		reply chan modules.PoolStatus
	}
)

// threadedMailbox serves the coordinator's mailbox until the pool stops or a
// handler fails. A handler failure is fatal: the loop exits with the pool's
// state as-is and the error is surfaced to the owning supervisor, whose
// restart policy rebuilds the coordinator from the store.
func (p *Pool) threadedMailbox() {
	defer close(p.loopDone)
	if p.tg.Add() != nil {
		return
	}
	defer p.tg.Done()

	for {
		select {
		case <-p.tg.StopChan():
			return
		case msg := <-p.mailbox:
			err := p.handleMessage(msg)
			if err != nil {
				p.log.Printf("ERROR: pool %v failed processing a message: %v", p.id, err)
				p.fatal <- err
				return
			}
		}
	}
}

func (p *Pool) handleMessage(msg poolMessage) error {
	switch m := msg.(type) {
	case reloadConfigMsg:
		return p.managedReloadConfig(m.config)
	case reloadWorkersMsg:
		return p.managedReloadWorkers()
	case upsertWorkerMsg:
		p.workers.upsert(m.worker)
	case removeWorkerMsg:
		p.workers.remove(m.id)
	case rpcRequestMsg:
		p.managedRPCRequest(m)
	case longPollMsg:
		// The long-poll path has no defined contract. The responder still
		// fires exactly once; no wait-for-work behavior is implied.
		m.resp(modules.RPCResult{
			Status: modules.RPCStatusError,
			Error:  "long polling is not available",
		})
	case subsQueryMsg:
		m.reply <- p.subscriptionSet()
	case statusQueryMsg:
		m.reply <- p.statusSnapshot()
	default:
		// Unrecognized messages are dropped for forward compatibility, but
		// observably, so protocol drift shows up in the log and in the
		// drop counter instead of vanishing.
		atomic.AddUint64(&p.dropped, 1)
		p.log.Printf("WARN: pool %v dropped an unrecognized message of type %T", p.id, msg)
	}
	return nil
}

// managedReloadConfig reconciles the new configuration against the current
// one and restarts the dependent sub-services the plan names. The listener
// action runs first; a listener failure surfaces immediately and the daemon
// is not touched. If the daemon then fails to start, a listener started by
// this reload is stopped again before the failure surfaces, so the pool is
// never left listening without a daemon behind it.
func (p *Pool) managedReloadConfig(next modules.PoolConfig) error {
	p.mu.Lock()
	prev := p.config
	daemon := p.daemon
	p.mu.Unlock()

	plan, err := planReload(prev, next)
	if err != nil {
		return errors.AddContext(err, "unable to plan configuration reload")
	}

	listenerStarted := false
	switch plan.listener.op {
	case opStop:
		err = p.listeners.Stop(plan.listener.stopPort)
		if err != nil {
			return errors.AddContext(err, "unable to stop listener")
		}
	case opRestart:
		err = p.listeners.Stop(plan.listener.stopPort)
		if err != nil {
			return errors.AddContext(err, "unable to stop listener")
		}
		fallthrough
	case opStart:
		err = p.listeners.Start(plan.listener.startPort, p)
		if err != nil {
			return errors.AddContext(err, "unable to start listener")
		}
		listenerStarted = true
	}

	switch plan.daemon.op {
	case opRestart:
		err = p.daemons.Stop(p.id)
		if err == nil {
			daemon, err = p.daemons.Start(p.id, plan.daemon.factory, plan.daemon.config)
		}
	case opStart:
		daemon, err = p.daemons.Start(p.id, plan.daemon.factory, plan.daemon.config)
	}
	if err != nil {
		if listenerStarted {
			stopErr := p.listeners.Stop(plan.listener.startPort)
			if stopErr != nil {
				p.log.Println("ERROR: rollback of listener failed:", stopErr)
			}
		}
		return errors.AddContext(err, "unable to start coin daemon adapter")
	}

	p.mu.Lock()
	p.config = &next
	p.daemon = daemon
	p.mu.Unlock()

	p.log.Printf("INFO: pool %v now running config (type %v, port %v)", p.id, next.PoolType, next.ListenPort)
	return nil
}

// managedReloadWorkers resyncs the registry from the store and re-registers
// the pool's worker-change subscriptions with the notification hub.
func (p *Pool) managedReloadWorkers() error {
	ids := p.subscriptionSet()
	workers, err := p.store.WorkersForPools(ids)
	if err != nil {
		return errors.AddContext(err, "unable to fetch workers from the store")
	}
	p.workers.replaceAll(workers)

	p.mu.Lock()
	p.subscriptions = ids
	p.mu.Unlock()
	p.hub.SetSubscriptions(p.id, ids)

	p.log.Printf("INFO: pool %v reloaded %v workers", p.id, len(workers))
	return nil
}

// managedRPCRequest answers one miner RPC request. Protocol semantics live
// in the transport; the coordinator only guarantees that the responder fires
// exactly once, and serves the registry-backed authorization lookup.
func (p *Pool) managedRPCRequest(m rpcRequestMsg) {
	switch m.method {
	case "mining.authorize":
		_, authorized := p.workers.byName(m.auth.Username)
		payload, _ := json.Marshal(authorized)
		m.resp(modules.RPCResult{Status: modules.RPCStatusOK, Payload: payload})
	default:
		p.log.Debugln("unknown rpc method:", m.method)
		m.resp(modules.RPCResult{
			Status: modules.RPCStatusError,
			Error:  "unknown method: " + m.method,
		})
	}
}

// statusSnapshot builds the pool's status. The caller must hold p.mu or be
// the mailbox goroutine.
func (p *Pool) statusSnapshot() modules.PoolStatus {
	status := modules.PoolStatus{
		ID:              p.id,
		NumWorkers:      p.workers.count(),
		DroppedMessages: atomic.LoadUint64(&p.dropped),
	}
	if p.config != nil {
		status.Config = *p.config
	}
	return status
}
