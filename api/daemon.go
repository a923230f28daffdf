package api

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/MobiusL/ecoinpool/build"
)

// DaemonVersion holds the version information for ecoinpoold.
type DaemonVersion struct {
	Version     string `json:"version"`
	GitRevision string `json:"gitrevision"`
	BuildTime   string `json:"buildtime"`
}

// daemonVersionHandler handles the API call that requests the daemon's
// version.
func (srv *Server) daemonVersionHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	writeJSON(w, DaemonVersion{
		Version:     build.Version,
		GitRevision: build.GitRevision,
		BuildTime:   build.BuildTime,
	})
}

// daemonStopHandler handles the API call to stop the daemon cleanly.
func (srv *Server) daemonStopHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	// Can't write after the server stops, so lie a bit.
	writeSuccess(w)

	// Shut down the server after a second delay so the response makes it
	// back to the caller.
	go func() {
		time.Sleep(time.Second)
		srv.Close()
	}()
}
