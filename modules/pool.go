package modules

import (
	"encoding/json"
	"errors"

	"github.com/MobiusL/ecoinpool/persist"
)

var (
	// ErrPoolNotFound is returned by a PoolStore when no pool configuration
	// exists for the requested id.
	ErrPoolNotFound = errors.New("no pool configuration with that id")

	// ErrUnknownPoolType is returned when a pool configuration names a pool
	// type with no registered daemon adapter.
	ErrUnknownPoolType = errors.New("no daemon adapter registered for pool type")
)

type (
	// PoolID is the stable, externally assigned identifier of a sub-pool.
	PoolID string

	// WorkerID is the stable, externally assigned identifier of a worker.
	// The worker's name may change over its lifetime; its id never does.
	WorkerID string

	// PoolType selects which coin daemon adapter implementation a pool uses.
	PoolType string
)

type (
	// PoolConfig identifies a sub-pool and the sub-services it requires. A
	// config is immutable once read; a reload replaces it wholesale.
	PoolConfig struct {
		ID   PoolID `json:"id"`
		Name string `json:"name,omitempty"`

		// ListenPort is the port the pool's network listener accepts miner
		// connections on. Zero means the pool runs without a listener.
		ListenPort uint16 `json:"listenport,omitempty"`

		PoolType PoolType `json:"pooltype"`

		// CoinDaemonConfig is an opaque blob handed to the daemon adapter.
		// The coordinator only compares it for equality.
		CoinDaemonConfig json.RawMessage `json:"coindaemonconfig,omitempty"`
	}

	// Worker is a miner identity tracked by the pool. Exactly one worker
	// record per id is live at a time.
	Worker struct {
		ID   WorkerID `json:"id"`
		Pool PoolID   `json:"pool"`
		Name string   `json:"name"`

		// Extra carries fields the coordinator does not inspect.
		Extra json.RawMessage `json:"extra,omitempty"`
	}

	// WorkUnit pairs an issued unit of work with the worker it was issued
	// to. Reserved for work distribution; no coordinator handler populates
	// it yet.
	WorkUnit struct {
		ID     string   `json:"id"`
		Worker WorkerID `json:"worker"`
	}
)

// RPCStatus indicates whether an RPC result carries a payload or an error.
type RPCStatus string

const (
	RPCStatusOK    RPCStatus = "ok"
	RPCStatusError RPCStatus = "error"
)

// RPCFlags are option flags attached to an RPC result.
type RPCFlags uint8

const (
	// RPCFlagClose asks the transport to close the connection after the
	// result has been written.
	RPCFlagClose RPCFlags = 1 << iota
)

type (
	// RPCResult is the structured result delivered to a Responder.
	RPCResult struct {
		Status  RPCStatus       `json:"status"`
		Payload json.RawMessage `json:"payload,omitempty"`
		Error   string          `json:"error,omitempty"`
		Flags   RPCFlags        `json:"-"`
	}

	// A Responder is a single-use callback that delivers the result of one
	// RPC request. It must be invoked exactly once; invoking it more than
	// once or not at all is a contract violation.
	Responder func(RPCResult)

	// RPCAuth carries the credentials presented with an RPC request. The
	// coordinator uses it to authorize against the worker registry; it is
	// otherwise opaque.
	RPCAuth struct {
		Username   string
		Password   string
		RemoteAddr string
	}
)

type (
	// An RPCReceiver accepts asynchronous RPC requests on behalf of a pool.
	// The listener service delivers decoded miner requests through this
	// interface.
	RPCReceiver interface {
		// RPCRequest enqueues an RPC request. The responder is invoked
		// exactly once with the result.
		RPCRequest(resp Responder, method string, params json.RawMessage, auth RPCAuth)

		// RPCLongPoll enqueues a long-poll request. The responder is
		// invoked exactly once with the result.
		RPCLongPoll(resp Responder, auth RPCAuth)
	}

	// A Pool is the coordinator actor owning the runtime state of one
	// sub-pool. All mutating operations are asynchronous: they enqueue a
	// message to the pool's private mailbox and return immediately.
	Pool interface {
		RPCReceiver

		// ReloadConfig enqueues a configuration reload. The coordinator
		// reconciles the new configuration against the current one and
		// restarts dependent sub-services as needed.
		ReloadConfig(PoolConfig)

		// ReloadWorkers enqueues a full worker resync from the store.
		ReloadWorkers()

		// UpsertWorker enqueues an insert-or-update of one worker record.
		UpsertWorker(Worker)

		// RemoveWorker enqueues the removal of one worker record. Removing
		// an unknown id is a no-op.
		RemoveWorker(WorkerID)

		// WorkerNotificationSubscriptions returns the set of pool ids whose
		// worker changes this pool observes. The set always contains the
		// pool's own id once the pool has reloaded its workers.
		WorkerNotificationSubscriptions() []PoolID

		// Worker looks up a live worker record by id.
		Worker(WorkerID) (Worker, bool)

		// WorkerByName looks up a live worker record by its current name.
		WorkerByName(string) (Worker, bool)

		// Status reports the coordinator's current configuration and
		// registry size.
		Status() PoolStatus

		// Close stops the coordinator, its listener, and clears its
		// notification subscriptions. The coin daemon adapter is left to
		// the daemon supervisor.
		Close() error
	}

	// PoolStatus is a snapshot of one coordinator's state.
	PoolStatus struct {
		ID              PoolID     `json:"id"`
		Config          PoolConfig `json:"config"`
		NumWorkers      int        `json:"numworkers"`
		DroppedMessages uint64     `json:"droppedmessages"`
	}
)

type (
	// A PoolStore is the persistence collaborator the coordinator pulls its
	// configuration and worker lists from.
	PoolStore interface {
		// PoolConfig returns the configuration of one pool, or
		// ErrPoolNotFound.
		PoolConfig(PoolID) (PoolConfig, error)

		// WorkersForPools returns every worker belonging to any of the
		// given pools.
		WorkersForPools([]PoolID) ([]Worker, error)

		// Pools lists the ids of all stored pool configurations.
		Pools() ([]PoolID, error)

		// UpsertPoolConfig stores a pool configuration, replacing any
		// previous configuration with the same id.
		UpsertPoolConfig(PoolConfig) error

		// UpsertWorker stores a worker record, replacing any previous
		// record with the same id.
		UpsertWorker(Worker) error

		// RemoveWorker deletes a worker record. Removing an unknown worker
		// is not an error.
		RemoveWorker(PoolID, WorkerID) error

		Close() error
	}

	// A ListenerService manages the network-facing sub-services that accept
	// pool-protocol connections. One listener runs per port; requests
	// arriving on a listener are delivered to its owning pool.
	ListenerService interface {
		// Start opens a listener on the given port delivering requests to
		// owner.
		Start(port uint16, owner RPCReceiver) error

		// Stop closes the listener on the given port. Stopping a port with
		// no listener is a no-op.
		Stop(port uint16) error
	}

	// A CoinDaemon is a handle to a running coin daemon adapter.
	CoinDaemon interface {
		// Type reports the pool type the adapter was built for.
		Type() PoolType

		// Call performs one RPC against the backing coin daemon.
		Call(method string, params, result interface{}) error

		Close() error
	}

	// A DaemonFactory constructs a coin daemon adapter from an opaque
	// configuration blob. Factories are registered statically per pool
	// type; resolution of a pool type to a factory happens at
	// configuration-load time and fails loudly on unknown types.
	DaemonFactory func(config json.RawMessage, log *persist.Logger) (CoinDaemon, error)

	// A DaemonSupervisor owns the lifecycle of coin daemon adapters. The
	// coordinator asks it to start and stop adapters during configuration
	// reloads; the supervisor retains ownership of the running adapter.
	DaemonSupervisor interface {
		// Start constructs and tracks an adapter for the given pool.
		Start(id PoolID, factory DaemonFactory, config json.RawMessage) (CoinDaemon, error)

		// Stop closes and forgets the adapter of the given pool. Stopping
		// a pool with no adapter is a no-op.
		Stop(id PoolID) error
	}

	// A NotificationHub tracks which pools want to observe which other
	// pools' worker changes.
	NotificationHub interface {
		// SetSubscriptions replaces the set of pool ids whose worker
		// changes the given pool observes.
		SetSubscriptions(id PoolID, observed []PoolID)

		// Subscribers returns the ids of every pool observing worker
		// changes of the given pool.
		Subscribers(of PoolID) []PoolID
	}
)
