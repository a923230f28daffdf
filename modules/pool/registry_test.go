package pool

import (
	"testing"

	"github.com/MobiusL/ecoinpool/modules"
)

// checkConsistency verifies that the id index and the name-keyed record
// table agree: every indexed name holds a record with the matching id, and
// no record exists that the index does not name.
func checkConsistency(t *testing.T, wr *workerRegistry) {
	t.Helper()
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	if len(wr.names) != len(wr.records) {
		t.Fatalf("table sizes diverged: %v ids, %v records", len(wr.names), len(wr.records))
	}
	for id, name := range wr.names {
		w, exists := wr.records[name]
		if !exists {
			t.Fatalf("index names %q for id %q but no record exists", name, id)
		}
		if w.ID != id {
			t.Fatalf("record under %q has id %q, index says %q", name, w.ID, id)
		}
	}
}

// TestRegistryUpsert checks insertion and in-place updates.
func TestRegistryUpsert(t *testing.T) {
	wr := newWorkerRegistry()

	wr.upsert(modules.Worker{ID: "5", Name: "alice"})
	checkConsistency(t, wr)
	w, exists := wr.byID("5")
	if !exists || w.Name != "alice" {
		t.Fatal("inserted worker not found by id")
	}
	w, exists = wr.byName("alice")
	if !exists || w.ID != "5" {
		t.Fatal("inserted worker not found by name")
	}

	// Upserting the identical record must not change the state.
	wr.upsert(modules.Worker{ID: "5", Name: "alice"})
	checkConsistency(t, wr)
	if wr.count() != 1 {
		t.Fatal("idempotent upsert changed the registry size")
	}

	// Updating a non-name field overwrites the record in place.
	wr.upsert(modules.Worker{ID: "5", Name: "alice", Extra: []byte(`{"lp":true}`)})
	checkConsistency(t, wr)
	w, _ = wr.byID("5")
	if string(w.Extra) != `{"lp":true}` {
		t.Fatal("in-place update did not overwrite the record")
	}
	if wr.count() != 1 {
		t.Fatal("in-place update changed the registry size")
	}
}

// TestRegistryRename checks that renaming a worker removes the record under
// the old name and leaves the tables consistent.
func TestRegistryRename(t *testing.T) {
	wr := newWorkerRegistry()

	wr.upsert(modules.Worker{ID: "5", Name: "alice"})
	wr.upsert(modules.Worker{ID: "5", Name: "bob"})
	checkConsistency(t, wr)

	if _, exists := wr.byName("alice"); exists {
		t.Fatal("record survived under the old name")
	}
	w, exists := wr.byName("bob")
	if !exists || w.ID != "5" {
		t.Fatal("record not found under the new name")
	}
	w, exists = wr.byID("5")
	if !exists || w.Name != "bob" {
		t.Fatal("index was not moved to the new name")
	}
	if wr.count() != 1 {
		t.Fatal("rename changed the registry size")
	}
}

// TestRegistryRemove checks removal and its idempotence.
func TestRegistryRemove(t *testing.T) {
	wr := newWorkerRegistry()

	// Removing an id that was never present is a no-op.
	wr.remove("404")
	checkConsistency(t, wr)

	wr.upsert(modules.Worker{ID: "5", Name: "alice"})
	wr.upsert(modules.Worker{ID: "6", Name: "carol"})
	wr.remove("5")
	checkConsistency(t, wr)
	if _, exists := wr.byID("5"); exists {
		t.Fatal("removed worker still found by id")
	}
	if _, exists := wr.byName("alice"); exists {
		t.Fatal("removed worker still found by name")
	}
	if wr.count() != 1 {
		t.Fatal("wrong registry size after removal")
	}

	// Removing twice leaves the state of the first removal.
	wr.remove("5")
	checkConsistency(t, wr)
	if wr.count() != 1 {
		t.Fatal("second removal changed the registry")
	}
}

// TestRegistryReplaceAll checks that a full resync leaves no entries of the
// previous generation.
func TestRegistryReplaceAll(t *testing.T) {
	wr := newWorkerRegistry()

	wr.upsert(modules.Worker{ID: "1", Name: "stale"})
	wr.upsert(modules.Worker{ID: "2", Name: "stale2"})

	wr.replaceAll([]modules.Worker{
		{ID: "2", Name: "fresh2"},
		{ID: "3", Name: "fresh3"},
	})
	checkConsistency(t, wr)

	if _, exists := wr.byID("1"); exists {
		t.Fatal("stale id survived the resync")
	}
	if _, exists := wr.byName("stale2"); exists {
		t.Fatal("stale name survived the resync")
	}
	if w, exists := wr.byID("2"); !exists || w.Name != "fresh2" {
		t.Fatal("resynced worker missing or wrong")
	}
	if wr.count() != 2 {
		t.Fatal("wrong registry size after resync")
	}
}
