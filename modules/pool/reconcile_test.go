package pool

import (
	"testing"

	"gitlab.com/NebulousLabs/errors"

	"github.com/MobiusL/ecoinpool/modules"
)

// TestPlanReloadNoop checks that reconciling identical configurations plans
// no action at all.
func TestPlanReloadNoop(t *testing.T) {
	cfg := modules.PoolConfig{
		ID:               "p1",
		ListenPort:       8001,
		PoolType:         "bitcoin",
		CoinDaemonConfig: []byte(`{"host":"localhost","port":8332}`),
	}
	plan, err := planReload(&cfg, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if plan.listener.op != opNone {
		t.Error("identical configs planned a listener action")
	}
	if plan.daemon.op != opNone {
		t.Error("identical configs planned a daemon action")
	}
}

// TestPlanReloadInitial checks the plan for a pool with no previous
// configuration.
func TestPlanReloadInitial(t *testing.T) {
	next := modules.PoolConfig{
		ID:               "p1",
		ListenPort:       8001,
		PoolType:         "bitcoin",
		CoinDaemonConfig: []byte(`{"host":"localhost","port":8332}`),
	}
	plan, err := planReload(nil, next)
	if err != nil {
		t.Fatal(err)
	}
	if plan.listener.op != opStart || plan.listener.startPort != 8001 {
		t.Error("initial config did not plan a listener start on the new port")
	}
	if plan.daemon.op != opStart {
		t.Error("initial config did not plan a daemon start")
	}
	if plan.daemon.factory == nil {
		t.Error("daemon start was planned without a resolved factory")
	}
}

// TestPlanReloadPortChange checks that a changed port plans a
// stop-then-start carrying both ports.
func TestPlanReloadPortChange(t *testing.T) {
	prev := modules.PoolConfig{ID: "p1", ListenPort: 8001, PoolType: "bitcoin"}
	next := modules.PoolConfig{ID: "p1", ListenPort: 8002, PoolType: "bitcoin"}
	plan, err := planReload(&prev, next)
	if err != nil {
		t.Fatal(err)
	}
	if plan.listener.op != opRestart {
		t.Fatal("port change did not plan a listener restart")
	}
	if plan.listener.stopPort != 8001 || plan.listener.startPort != 8002 {
		t.Errorf("restart plan carries ports %v -> %v, want 8001 -> 8002", plan.listener.stopPort, plan.listener.startPort)
	}
	if plan.daemon.op != opNone {
		t.Error("unchanged daemon config planned a daemon action")
	}
}

// TestPlanReloadPortRemoved checks that dropping the port plans a stop.
func TestPlanReloadPortRemoved(t *testing.T) {
	prev := modules.PoolConfig{ID: "p1", ListenPort: 8001, PoolType: "bitcoin"}
	next := modules.PoolConfig{ID: "p1", PoolType: "bitcoin"}
	plan, err := planReload(&prev, next)
	if err != nil {
		t.Fatal(err)
	}
	if plan.listener.op != opStop || plan.listener.stopPort != 8001 {
		t.Error("removed port did not plan a listener stop")
	}
}

// TestPlanReloadDaemonChange checks that a changed daemon configuration or
// pool type plans a daemon restart.
func TestPlanReloadDaemonChange(t *testing.T) {
	prev := modules.PoolConfig{
		ID:               "p1",
		PoolType:         "bitcoin",
		CoinDaemonConfig: []byte(`{"host":"localhost","port":8332}`),
	}
	next := prev
	next.CoinDaemonConfig = []byte(`{"host":"localhost","port":9332}`)
	plan, err := planReload(&prev, next)
	if err != nil {
		t.Fatal(err)
	}
	if plan.daemon.op != opRestart {
		t.Error("changed daemon config did not plan a daemon restart")
	}

	next = prev
	next.PoolType = "litecoin"
	plan, err = planReload(&prev, next)
	if err != nil {
		t.Fatal(err)
	}
	if plan.daemon.op != opRestart {
		t.Error("changed pool type did not plan a daemon restart")
	}
}

// TestPlanReloadUnknownType checks that an unknown pool type fails the plan
// before any action is decided.
func TestPlanReloadUnknownType(t *testing.T) {
	next := modules.PoolConfig{ID: "p1", PoolType: "dogecoin"}
	_, err := planReload(nil, next)
	if !errors.Contains(err, modules.ErrUnknownPoolType) {
		t.Fatal("expected ErrUnknownPoolType, got", err)
	}
}
