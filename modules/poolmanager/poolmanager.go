// Package poolmanager supervises the pool coordinators. It owns the mapping
// from pool id to running coordinator, applies the crash-and-restart policy
// when a coordinator fails, and fans worker changes out to the pools that
// subscribed to them.
package poolmanager

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/NebulousLabs/threadgroup"

	"github.com/MobiusL/ecoinpool/build"
	"github.com/MobiusL/ecoinpool/modules"
	"github.com/MobiusL/ecoinpool/modules/pool"
	"github.com/MobiusL/ecoinpool/persist"
)

var (
	// restartAttempts bounds how often a crashed coordinator is rebuilt
	// before the manager gives up on the pool.
	restartAttempts = build.Select(build.Var{
		Standard: 5,
		Dev:      3,
		Testing:  2,
	}).(int)

	// restartDelay is the pause between restart attempts.
	restartDelay = build.Select(build.Var{
		Standard: 5 * time.Second,
		Dev:      time.Second,
		Testing:  10 * time.Millisecond,
	}).(time.Duration)
)

// managedPool pairs a running coordinator with the channel that tells its
// watcher goroutine to stand down.
type managedPool struct {
	pool *pool.Pool
	stop chan struct{}
}

// A Manager creates, tracks, and restarts pool coordinators. It is the
// explicit registry addressing coordinators by pool id.
type Manager struct {
	store     modules.PoolStore
	listeners modules.ListenerService
	daemons   modules.DaemonSupervisor
	hub       *Hub

	pools map[modules.PoolID]*managedPool

	persistDir string
	log        *persist.Logger
	mu         sync.Mutex
	tg         threadgroup.ThreadGroup
}

// New creates a manager with no running pools.
func New(store modules.PoolStore, listeners modules.ListenerService, daemons modules.DaemonSupervisor, persistDir string) (*Manager, error) {
	if store == nil {
		return nil, errors.New("pool manager cannot use a nil store")
	}
	if listeners == nil {
		return nil, errors.New("pool manager cannot use a nil listener service")
	}
	if daemons == nil {
		return nil, errors.New("pool manager cannot use a nil daemon supervisor")
	}

	err := os.MkdirAll(persistDir, 0700)
	if err != nil {
		return nil, err
	}
	log, err := persist.NewLogger(filepath.Join(persistDir, "poolmanager.log"))
	if err != nil {
		return nil, err
	}

	m := &Manager{
		store:     store,
		listeners: listeners,
		daemons:   daemons,
		hub:       NewHub(),

		pools: make(map[modules.PoolID]*managedPool),

		persistDir: persistDir,
		log:        log,
	}
	m.tg.AfterStop(func() error {
		return m.log.Close()
	})
	return m, nil
}

// Hub exposes the manager's notification hub.
func (m *Manager) Hub() modules.NotificationHub {
	return m.hub
}

// StartPool creates and initializes the coordinator of one pool. It fails if
// the pool's configuration cannot be fetched from the store, or if the pool
// is already running.
func (m *Manager) StartPool(id modules.PoolID) error {
	if err := m.tg.Add(); err != nil {
		return err
	}
	defer m.tg.Done()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.pools[id]; running {
		return errors.New("pool is already running")
	}
	p, err := m.newCoordinator(id)
	if err != nil {
		return err
	}
	m.registerPool(id, p)
	return nil
}

// newCoordinator runs the coordinator startup sequence for one pool.
func (m *Manager) newCoordinator(id modules.PoolID) (*pool.Pool, error) {
	dir := filepath.Join(m.persistDir, string(id))
	return pool.New(id, m.store, m.listeners, m.daemons, m.hub, dir)
}

// registerPool records a running coordinator and spawns its watcher. The
// caller must hold m.mu.
func (m *Manager) registerPool(id modules.PoolID, p *pool.Pool) {
	mp := &managedPool{pool: p, stop: make(chan struct{})}
	m.pools[id] = mp
	go m.threadedWatchPool(id, mp)
}

// threadedWatchPool waits for a coordinator to fail and applies the restart
// policy: close the dead coordinator and re-run the startup sequence, which
// rebuilds its state from the store.
func (m *Manager) threadedWatchPool(id modules.PoolID, mp *managedPool) {
	if m.tg.Add() != nil {
		return
	}
	defer m.tg.Done()

	select {
	case <-m.tg.StopChan():
		return
	case <-mp.stop:
		return
	case err := <-mp.pool.Fatal():
		m.log.Printf("ERROR: pool %v coordinator failed: %v", id, err)
		mp.pool.Close()
		// The crashed coordinator's daemon adapter is still registered with
		// the supervisor, which allows only one adapter per pool. Release it
		// so the restarted coordinator can start its own.
		if stopErr := m.daemons.Stop(id); stopErr != nil {
			m.log.Printf("ERROR: unable to stop daemon adapter of pool %v: %v", id, stopErr)
		}
	}

	err := build.Retry(restartAttempts, restartDelay, func() error {
		p, err := m.newCoordinator(id)
		if err != nil {
			m.log.Printf("WARN: pool %v restart failed: %v", id, err)
			return err
		}
		m.mu.Lock()
		m.registerPool(id, p)
		m.mu.Unlock()
		m.log.Printf("INFO: pool %v coordinator restarted", id)
		return nil
	})
	if err != nil {
		m.mu.Lock()
		delete(m.pools, id)
		m.mu.Unlock()
		m.log.Critical("pool", id, "could not be restarted:", err)
	}
}

// StopPool shuts one pool's coordinator down and releases its daemon
// adapter, so that a later StartPool can bring the pool back.
func (m *Manager) StopPool(id modules.PoolID) error {
	m.mu.Lock()
	mp, running := m.pools[id]
	if running {
		delete(m.pools, id)
	}
	m.mu.Unlock()
	if !running {
		return errors.New("pool is not running")
	}
	close(mp.stop)
	return errors.Compose(mp.pool.Close(), m.daemons.Stop(id))
}

// Pool returns the running coordinator of one pool.
func (m *Manager) Pool(id modules.PoolID) (modules.Pool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, running := m.pools[id]
	if !running {
		return nil, false
	}
	return mp.pool, true
}

// Pools lists the ids of the running pools.
func (m *Manager) Pools() []modules.PoolID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]modules.PoolID, 0, len(m.pools))
	for id := range m.pools {
		ids = append(ids, id)
	}
	return ids
}

// ReloadConfig persists a pool configuration and routes it to the running
// coordinator as a reload message. A pool that is not yet running is
// started.
func (m *Manager) ReloadConfig(cfg modules.PoolConfig) error {
	err := m.store.UpsertPoolConfig(cfg)
	if err != nil {
		return errors.AddContext(err, "unable to persist pool configuration")
	}
	p, running := m.Pool(cfg.ID)
	if !running {
		return m.StartPool(cfg.ID)
	}
	p.ReloadConfig(cfg)
	return nil
}

// UpsertWorker persists a worker record and fans the change out to every
// pool subscribed to the worker's pool.
func (m *Manager) UpsertWorker(w modules.Worker) error {
	err := m.store.UpsertWorker(w)
	if err != nil {
		return errors.AddContext(err, "unable to persist worker")
	}
	for _, id := range m.hub.Subscribers(w.Pool) {
		if p, running := m.Pool(id); running {
			p.UpsertWorker(w)
		}
	}
	return nil
}

// RemoveWorker deletes a worker record and fans the removal out to every
// pool subscribed to the worker's pool.
func (m *Manager) RemoveWorker(poolID modules.PoolID, id modules.WorkerID) error {
	err := m.store.RemoveWorker(poolID, id)
	if err != nil {
		return errors.AddContext(err, "unable to remove worker")
	}
	for _, sub := range m.hub.Subscribers(poolID) {
		if p, running := m.Pool(sub); running {
			p.RemoveWorker(id)
		}
	}
	return nil
}

// Close stops every running coordinator and the manager itself.
func (m *Manager) Close() error {
	m.mu.Lock()
	pools := make(map[modules.PoolID]*managedPool, len(m.pools))
	for id, mp := range m.pools {
		pools[id] = mp
		delete(m.pools, id)
	}
	m.mu.Unlock()

	var errs []error
	for id, mp := range pools {
		close(mp.stop)
		errs = append(errs, mp.pool.Close(), m.daemons.Stop(id))
	}
	errs = append(errs, m.tg.Stop())
	return errors.Compose(errs...)
}
