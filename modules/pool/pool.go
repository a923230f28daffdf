// Package pool implements the per-pool coordinator. Each coordinator owns
// the runtime state of one mining sub-pool: the current configuration
// snapshot, the worker registry, and handles to the started sub-services
// (network listener, coin daemon adapter). All mutations flow through a
// private, strictly ordered mailbox served by a single goroutine, which is
// what makes the registry invariant and the reload rollback correct without
// per-field locking.
package pool

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/NebulousLabs/threadgroup"

	"github.com/MobiusL/ecoinpool/modules"
	"github.com/MobiusL/ecoinpool/persist"
)

// A Pool is the coordinator actor of one sub-pool. It implements
// modules.Pool.
type Pool struct {
	id modules.PoolID

	// Collaborators.
	store     modules.PoolStore
	listeners modules.ListenerService
	daemons   modules.DaemonSupervisor
	hub       modules.NotificationHub

	// State owned by the mailbox goroutine. The mutex only covers the
	// handoff to readers outside the loop (status fallback, shutdown
	// teardown); the loop is the sole writer.
	config        *modules.PoolConfig
	daemon        modules.CoinDaemon
	subscriptions []modules.PoolID
	workUnits     map[string]modules.WorkUnit
	mu            sync.Mutex

	workers *workerRegistry

	mailbox  chan poolMessage
	loopDone chan struct{}
	fatal    chan error
	dropped  uint64 // accessed atomically

	persistDir string
	log        *persist.Logger
	tg         threadgroup.ThreadGroup
}

// initPersist creates the pool's persist directory and opens its logger.
func (p *Pool) initPersist() error {
	err := os.MkdirAll(p.persistDir, 0700)
	if err != nil {
		return err
	}
	p.log, err = persist.NewLogger(filepath.Join(p.persistDir, logFile))
	if err != nil {
		return err
	}
	p.tg.AfterStop(func() error {
		return p.log.Close()
	})
	return nil
}

// New creates the coordinator for one sub-pool. The pool's configuration is
// fetched from the store synchronously; if the fetch fails the coordinator
// does not start and the error is returned to the caller. On success the
// coordinator schedules an initial configuration reload and worker reload to
// itself and begins serving its mailbox.
func New(id modules.PoolID, store modules.PoolStore, listeners modules.ListenerService, daemons modules.DaemonSupervisor, hub modules.NotificationHub, persistDir string) (*Pool, error) {
	if store == nil {
		return nil, errors.New("pool cannot use a nil store")
	}
	if listeners == nil {
		return nil, errors.New("pool cannot use a nil listener service")
	}
	if daemons == nil {
		return nil, errors.New("pool cannot use a nil daemon supervisor")
	}
	if hub == nil {
		return nil, errors.New("pool cannot use a nil notification hub")
	}

	p := &Pool{
		id:        id,
		store:     store,
		listeners: listeners,
		daemons:   daemons,
		hub:       hub,

		workUnits: make(map[string]modules.WorkUnit),
		workers:   newWorkerRegistry(),

		mailbox:  make(chan poolMessage, mailboxSize),
		loopDone: make(chan struct{}),
		fatal:    make(chan error, 1),

		persistDir: persistDir,
	}
	err := p.initPersist()
	if err != nil {
		return nil, errors.AddContext(err, "unable to initialize pool persistence")
	}

	cfg, err := store.PoolConfig(id)
	if err != nil {
		p.log.Println("ERROR: unable to fetch pool configuration:", err)
		p.log.Close()
		return nil, errors.AddContext(err, "unable to fetch pool configuration")
	}

	// Teardown: stop the listener and clear the notification subscriptions.
	// The coin daemon adapter is owned by the daemon supervisor and is not
	// stopped here.
	p.tg.OnStop(func() error {
		p.mu.Lock()
		cfg := p.config
		p.mu.Unlock()
		p.hub.SetSubscriptions(p.id, nil)
		if cfg != nil && cfg.ListenPort != 0 {
			return p.listeners.Stop(cfg.ListenPort)
		}
		return nil
	})

	// The initial reconciliation and worker sync are ordinary mailbox
	// messages, queued before any external message can arrive.
	p.mailbox <- reloadConfigMsg{config: cfg}
	p.mailbox <- reloadWorkersMsg{}
	go p.threadedMailbox()

	p.log.Printf("INFO: pool %v coordinator started", id)
	return p, nil
}

// Fatal returns a channel that receives the error that killed the mailbox
// loop, if any. The owning supervisor watches this channel to apply its
// restart policy.
func (p *Pool) Fatal() <-chan error {
	return p.fatal
}

// ReloadConfig enqueues a configuration reload.
func (p *Pool) ReloadConfig(cfg modules.PoolConfig) {
	p.enqueue(reloadConfigMsg{config: cfg})
}

// ReloadWorkers enqueues a full worker resync from the store.
func (p *Pool) ReloadWorkers() {
	p.enqueue(reloadWorkersMsg{})
}

// UpsertWorker enqueues an insert-or-update of one worker record.
func (p *Pool) UpsertWorker(w modules.Worker) {
	p.enqueue(upsertWorkerMsg{worker: w})
}

// RemoveWorker enqueues the removal of one worker record.
func (p *Pool) RemoveWorker(id modules.WorkerID) {
	p.enqueue(removeWorkerMsg{id: id})
}

// RPCRequest enqueues an RPC request to be answered through resp.
func (p *Pool) RPCRequest(resp modules.Responder, method string, params json.RawMessage, auth modules.RPCAuth) {
	p.enqueue(rpcRequestMsg{resp: resp, method: method, params: params, auth: auth})
}

// RPCLongPoll enqueues a long-poll request to be answered through resp.
func (p *Pool) RPCLongPoll(resp modules.Responder, auth modules.RPCAuth) {
	p.enqueue(longPollMsg{resp: resp, auth: auth})
}

// Worker looks up a live worker record by id. Reads are safe concurrently
// with the coordinator's own writes.
func (p *Pool) Worker(id modules.WorkerID) (modules.Worker, bool) {
	return p.workers.byID(id)
}

// WorkerByName looks up a live worker record by its current name.
func (p *Pool) WorkerByName(name string) (modules.Worker, bool) {
	return p.workers.byName(name)
}

// WorkerNotificationSubscriptions returns the set of pool ids whose worker
// changes this pool observes. The query is answered by the mailbox loop so
// that it is serialized with the pool's own mutations.
func (p *Pool) WorkerNotificationSubscriptions() []modules.PoolID {
	q := subsQueryMsg{reply: make(chan []modules.PoolID, 1)}
	if p.deliver(q) {
		select {
		case set := <-q.reply:
			return set
		case <-p.loopDone:
			// The loop may have replied just before exiting.
			select {
			case set := <-q.reply:
				return set
			default:
			}
		}
	}
	// The mailbox is no longer served; fall back to a direct snapshot.
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscriptionSet()
}

// Status reports the coordinator's current configuration and registry size.
func (p *Pool) Status() modules.PoolStatus {
	q := statusQueryMsg{reply: make(chan modules.PoolStatus, 1)}
	if p.deliver(q) {
		select {
		case s := <-q.reply:
			return s
		case <-p.loopDone:
			select {
			case s := <-q.reply:
				return s
			default:
			}
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusSnapshot()
}

// Close stops the coordinator. The listener is stopped and the notification
// subscriptions are cleared during teardown.
func (p *Pool) Close() error {
	return p.tg.Stop()
}

// enqueue delivers a message to the mailbox unless the pool has stopped.
// Messages from one sender are processed in send order.
func (p *Pool) enqueue(m poolMessage) {
	p.deliver(m)
}

// deliver places a message in the mailbox and reports whether it was
// accepted. A false return means the mailbox loop has exited or the pool is
// stopping.
func (p *Pool) deliver(m poolMessage) bool {
	select {
	case p.mailbox <- m:
		return true
	case <-p.tg.StopChan():
		return false
	case <-p.loopDone:
		return false
	}
}

// subscriptionSet returns the current subscription set, which always
// contains at least the pool's own id. The caller must hold p.mu or be the
// mailbox goroutine.
func (p *Pool) subscriptionSet() []modules.PoolID {
	if len(p.subscriptions) == 0 {
		return []modules.PoolID{p.id}
	}
	set := make([]modules.PoolID, len(p.subscriptions))
	copy(set, p.subscriptions)
	return set
}
