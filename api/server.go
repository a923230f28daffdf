package api

import (
	"net"
	"net/http"
	"strings"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/NebulousLabs/threadgroup"

	"github.com/MobiusL/ecoinpool/modules/poolmanager"
)

// A Server serves the pool manager's operations over an http api.
type Server struct {
	manager           *poolmanager.Manager
	apiServer         *http.Server
	listener          net.Listener
	requiredUserAgent string
	tg                threadgroup.ThreadGroup
}

// NewServer creates a new API server listening on apiAddr. The API will
// require authentication using HTTP basic auth if the supplied password is
// not the empty string. Usernames are ignored for authentication. This type
// of authentication sends passwords in plaintext and should therefore only
// be used if apiAddr is localhost.
func NewServer(apiAddr string, requiredUserAgent string, requiredPassword string, manager *poolmanager.Manager) (*Server, error) {
	if manager == nil {
		return nil, errors.New("api server cannot use a nil pool manager")
	}
	listener, err := net.Listen("tcp", apiAddr)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		manager:           manager,
		listener:          listener,
		requiredUserAgent: requiredUserAgent,
	}
	srv.tg.OnStop(func() error {
		return errors.AddContext(listener.Close(), "unable to close server listener")
	})
	srv.initAPI(requiredPassword)
	return srv, nil
}

// Serve listens for and handles API calls. It is a blocking function.
func (srv *Server) Serve() error {
	err := srv.tg.Add()
	if err != nil {
		return errors.AddContext(err, "unable to initialize server")
	}
	defer srv.tg.Done()

	// The server will run until an error is encountered or the listener is
	// closed, via either the Close method or by signal handling. Closing
	// the listener will result in the benign error handled below.
	err = srv.apiServer.Serve(srv.listener)
	if err != nil && !strings.HasSuffix(err.Error(), "use of closed network connection") {
		return err
	}
	return nil
}

// Close closes the Server's listener, causing the HTTP server to shut down,
// and closes the pool manager behind it.
func (srv *Server) Close() error {
	err := srv.tg.Stop()
	if err != nil {
		return errors.AddContext(err, "unable to close server")
	}
	return srv.manager.Close()
}
