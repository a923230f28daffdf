package pool

import (
	"gitlab.com/NebulousLabs/demotemutex"

	"github.com/MobiusL/ecoinpool/build"
	"github.com/MobiusL/ecoinpool/modules"
)

// workerRegistry is the pool's worker table pair: an id to current-name
// index, and the canonical records keyed by name. The two maps are kept
// mutually consistent at all times - for every (id, name) pair in the index
// there is exactly one record, stored under that name, whose id matches.
//
// All writes originate from the coordinator's serialized mailbox loop, so
// there is never more than one writer. External readers (the stratum
// authorization path, API status reads) take the read lock, so a rename is
// never observed half-applied.
type workerRegistry struct {
	names   map[modules.WorkerID]string
	records map[string]modules.Worker

	mu demotemutex.DemoteMutex
}

func newWorkerRegistry() *workerRegistry {
	return &workerRegistry{
		names:   make(map[modules.WorkerID]string),
		records: make(map[string]modules.Worker),
	}
}

// upsert inserts or updates a worker record. If the worker is already known
// under a different name, the old name-keyed record is removed so that the
// rename is a single logical transition.
func (wr *workerRegistry) upsert(w modules.Worker) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	oldName, known := wr.names[w.ID]
	if known && oldName != w.Name {
		if _, exists := wr.records[oldName]; !exists {
			build.Critical("worker registry index names", oldName, "but no record exists under it")
		}
		delete(wr.records, oldName)
	}
	wr.names[w.ID] = w.Name
	wr.records[w.Name] = w
}

// remove deletes a worker record by id. Removing an unknown id is a no-op.
func (wr *workerRegistry) remove(id modules.WorkerID) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	name, known := wr.names[id]
	if !known {
		return
	}
	delete(wr.names, id)
	delete(wr.records, name)
}

// byID looks up a worker record by id.
func (wr *workerRegistry) byID(id modules.WorkerID) (modules.Worker, bool) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	name, known := wr.names[id]
	if !known {
		return modules.Worker{}, false
	}
	w, exists := wr.records[name]
	if !exists {
		build.Critical("worker registry index names", name, "but no record exists under it")
		return modules.Worker{}, false
	}
	return w, true
}

// byName looks up a worker record by its current name.
func (wr *workerRegistry) byName(name string) (modules.Worker, bool) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	w, exists := wr.records[name]
	return w, exists
}

// replaceAll discards both tables and rebuilds them from the given records.
// No entry of a previous generation survives.
func (wr *workerRegistry) replaceAll(workers []modules.Worker) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	wr.names = make(map[modules.WorkerID]string)
	wr.records = make(map[string]modules.Worker)
	for _, w := range workers {
		oldName, known := wr.names[w.ID]
		if known && oldName != w.Name {
			delete(wr.records, oldName)
		}
		wr.names[w.ID] = w.Name
		wr.records[w.Name] = w
	}
}

// count returns the number of live worker records.
func (wr *workerRegistry) count() int {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	return len(wr.names)
}
