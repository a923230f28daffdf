// Package api exposes the pool manager over HTTP. All mutating calls can be
// protected with HTTP basic auth; a user agent check keeps browsers out.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
)

// Error is the object returned to the caller when a call fails.
type Error struct {
	Message string `json:"message"`
}

// writeError writes an error to the API caller.
func writeError(w http.ResponseWriter, msg string, err int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err)
	json.NewEncoder(w).Encode(Error{Message: msg})
}

// writeJSON writes the object to the ResponseWriter. If the encoding fails,
// an error is written instead.
func writeJSON(w http.ResponseWriter, obj interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(obj)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeSuccess writes the success json object ({"Success":true}) to the
// ResponseWriter.
func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, struct{ Success bool }{true})
}

// requireUserAgent is middleware that requires all requests to set a
// UserAgent that contains the specified string.
func requireUserAgent(h http.Handler, ua string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.Contains(req.UserAgent(), ua) {
			writeError(w, "Browser access disabled. Use the ecoinpool client.", http.StatusBadRequest)
			return
		}
		h.ServeHTTP(w, req)
	})
}

// requirePassword is middleware that requires a request to authenticate with
// a password using HTTP basic auth. Usernames are ignored. Empty passwords
// indicate no authentication is required.
func requirePassword(h httprouter.Handle, password string) httprouter.Handle {
	// An empty password is equivalent to no password.
	if password == "" {
		return h
	}
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		_, pass, ok := req.BasicAuth()
		if !ok || pass != password {
			w.Header().Set("WWW-Authenticate", "Basic realm=\"EcoinpoolAPI\"")
			writeError(w, "API authentication failed.", http.StatusUnauthorized)
			return
		}
		h(w, req, ps)
	}
}

// initAPI determines which functions handle each API call. An empty string
// as the password indicates no password.
func (srv *Server) initAPI(password string) {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(srv.unrecognizedCallHandler)

	// Daemon API Calls
	router.GET("/daemon/version", srv.daemonVersionHandler)
	router.GET("/daemon/stop", requirePassword(srv.daemonStopHandler, password))

	// Pool API Calls
	router.GET("/pools", srv.poolsHandler)
	router.GET("/pools/:id", srv.poolStatusHandler)
	router.POST("/pools/:id/config", requirePassword(srv.poolConfigHandler, password))
	router.GET("/pools/:id/subscriptions", srv.poolSubscriptionsHandler)
	router.POST("/pools/:id/workers", requirePassword(srv.poolWorkersUpsertHandler, password))
	router.POST("/pools/:id/workers/remove/:workerid", requirePassword(srv.poolWorkersRemoveHandler, password))
	router.GET("/pools/:id/workers/:workerid", srv.poolWorkerHandler)

	uaRouter := requireUserAgent(router, srv.requiredUserAgent)
	srv.apiServer = &http.Server{Handler: uaRouter}
}

// unrecognizedCallHandler handles calls to unknown endpoints.
func (srv *Server) unrecognizedCallHandler(w http.ResponseWriter, req *http.Request) {
	writeError(w, "404 - Refer to API.md", http.StatusNotFound)
}
