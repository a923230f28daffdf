package api

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/MobiusL/ecoinpool/modules"
)

type (
	// PoolsGET lists the running pools.
	PoolsGET struct {
		Pools []modules.PoolID `json:"pools"`
	}

	// PoolSubscriptionsGET lists the pool ids whose worker changes a pool
	// observes.
	PoolSubscriptionsGET struct {
		Subscriptions []modules.PoolID `json:"subscriptions"`
	}
)

// poolsHandler handles the API call to list running pools.
func (srv *Server) poolsHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	writeJSON(w, PoolsGET{Pools: srv.manager.Pools()})
}

// poolStatusHandler handles the API call to fetch one pool's status.
func (srv *Server) poolStatusHandler(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	p, running := srv.manager.Pool(modules.PoolID(ps.ByName("id")))
	if !running {
		writeError(w, "pool is not running", http.StatusNotFound)
		return
	}
	writeJSON(w, p.Status())
}

// poolConfigHandler handles the API call that submits a new pool
// configuration. The configuration is persisted and routed to the pool's
// coordinator as an asynchronous reload.
func (srv *Server) poolConfigHandler(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	var cfg modules.PoolConfig
	err := json.NewDecoder(req.Body).Decode(&cfg)
	if err != nil {
		writeError(w, "malformed pool configuration: "+err.Error(), http.StatusBadRequest)
		return
	}
	if cfg.ID == "" {
		cfg.ID = modules.PoolID(ps.ByName("id"))
	}
	if cfg.ID != modules.PoolID(ps.ByName("id")) {
		writeError(w, "pool id in body does not match url", http.StatusBadRequest)
		return
	}
	err = srv.manager.ReloadConfig(cfg)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeSuccess(w)
}

// poolSubscriptionsHandler handles the API call that queries a pool's worker
// notification subscriptions.
func (srv *Server) poolSubscriptionsHandler(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	p, running := srv.manager.Pool(modules.PoolID(ps.ByName("id")))
	if !running {
		writeError(w, "pool is not running", http.StatusNotFound)
		return
	}
	writeJSON(w, PoolSubscriptionsGET{Subscriptions: p.WorkerNotificationSubscriptions()})
}

// poolWorkersUpsertHandler handles the API call that inserts or updates a
// worker record.
func (srv *Server) poolWorkersUpsertHandler(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	var worker modules.Worker
	err := json.NewDecoder(req.Body).Decode(&worker)
	if err != nil {
		writeError(w, "malformed worker record: "+err.Error(), http.StatusBadRequest)
		return
	}
	if worker.Pool == "" {
		worker.Pool = modules.PoolID(ps.ByName("id"))
	}
	if worker.Pool != modules.PoolID(ps.ByName("id")) {
		writeError(w, "worker pool in body does not match url", http.StatusBadRequest)
		return
	}
	err = srv.manager.UpsertWorker(worker)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeSuccess(w)
}

// poolWorkersRemoveHandler handles the API call that removes a worker
// record. Removing an unknown worker succeeds.
func (srv *Server) poolWorkersRemoveHandler(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	err := srv.manager.RemoveWorker(modules.PoolID(ps.ByName("id")), modules.WorkerID(ps.ByName("workerid")))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeSuccess(w)
}

// poolWorkerHandler handles the API call that fetches one live worker record
// from a running pool's registry.
func (srv *Server) poolWorkerHandler(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	p, running := srv.manager.Pool(modules.PoolID(ps.ByName("id")))
	if !running {
		writeError(w, "pool is not running", http.StatusNotFound)
		return
	}
	worker, exists := p.Worker(modules.WorkerID(ps.ByName("workerid")))
	if !exists {
		writeError(w, "no worker with that id", http.StatusNotFound)
		return
	}
	writeJSON(w, worker)
}
