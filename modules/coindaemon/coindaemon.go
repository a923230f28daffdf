// Package coindaemon supervises the coin daemon adapters that mediate
// between a pool and its backing coin daemon. Adapters are constructed
// through factories registered statically per pool type; a pool type with no
// registered factory is rejected when its configuration is loaded.
package coindaemon

import (
	"encoding/json"
	"sync"

	"gitlab.com/NebulousLabs/errors"

	"github.com/MobiusL/ecoinpool/modules"
	"github.com/MobiusL/ecoinpool/persist"
)

// factories maps every supported pool type to its adapter constructor. The
// mapping is fixed at compile time; configuration can only select from it.
var factories = map[modules.PoolType]modules.DaemonFactory{
	"bitcoin":  newBitcoinDaemon,
	"litecoin": newLitecoinDaemon,
	"namecoin": newNamecoinDaemon,
}

// Factory resolves a pool type to its registered adapter factory. Unknown
// pool types return modules.ErrUnknownPoolType.
func Factory(t modules.PoolType) (modules.DaemonFactory, error) {
	f, ok := factories[t]
	if !ok {
		return nil, errors.AddContext(modules.ErrUnknownPoolType, string(t))
	}
	return f, nil
}

// Supervisor tracks the running coin daemon adapters, one per pool. It
// implements modules.DaemonSupervisor.
type Supervisor struct {
	running map[modules.PoolID]modules.CoinDaemon
	log     *persist.Logger
	mu      sync.Mutex
}

// NewSupervisor returns an empty daemon supervisor.
func NewSupervisor(log *persist.Logger) *Supervisor {
	return &Supervisor{
		running: make(map[modules.PoolID]modules.CoinDaemon),
		log:     log,
	}
}

// Start constructs an adapter for the given pool and tracks it. A pool that
// already has a running adapter must be stopped first.
func (s *Supervisor) Start(id modules.PoolID, factory modules.DaemonFactory, config json.RawMessage) (modules.CoinDaemon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.running[id]; exists {
		return nil, errors.New("pool already has a running coin daemon adapter")
	}
	d, err := factory(config, s.log)
	if err != nil {
		return nil, errors.AddContext(err, "unable to start coin daemon adapter")
	}
	s.running[id] = d
	s.log.Printf("INFO: started %v daemon adapter for pool %v", d.Type(), id)
	return d, nil
}

// Stop closes and forgets the adapter of the given pool. Stopping a pool
// with no adapter is a no-op.
func (s *Supervisor) Stop(id modules.PoolID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, exists := s.running[id]
	if !exists {
		return nil
	}
	delete(s.running, id)
	err := d.Close()
	if err != nil {
		return errors.AddContext(err, "unable to stop coin daemon adapter")
	}
	s.log.Printf("INFO: stopped daemon adapter for pool %v", id)
	return nil
}

// Close stops every running adapter.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for id, d := range s.running {
		if err := d.Close(); err != nil {
			errs = append(errs, errors.AddContext(err, "unable to close adapter of pool "+string(id)))
		}
		delete(s.running, id)
	}
	return errors.Compose(errs...)
}
