// Package stratum provides the network-facing listener service. It owns one
// TCP listener per configured pool port, frames newline-delimited JSON
// requests, and delivers them to the owning pool coordinator as RPC request
// messages. Protocol semantics are the coordinator's concern; this package
// only frames and routes.
package stratum

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"sync"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/NebulousLabs/fastrand"
	"gitlab.com/NebulousLabs/threadgroup"

	"github.com/MobiusL/ecoinpool/modules"
	"github.com/MobiusL/ecoinpool/persist"
)

const (
	// maxConnections bounds the miner connections accepted per port.
	maxConnections = 1024
)

// Server manages the pool-protocol listeners, one per port. It implements
// modules.ListenerService.
type Server struct {
	ports map[uint16]*portListener
	log   *persist.Logger

	mu sync.Mutex
	tg threadgroup.ThreadGroup
}

// portListener is one accepting socket bound to an owning pool.
type portListener struct {
	port     uint16
	owner    modules.RPCReceiver
	listener net.Listener
	srv      *Server

	connMu sync.Mutex
	conns  map[string]net.Conn
	closed chan struct{}
}

// NewServer returns a listener service with no open ports.
func NewServer(log *persist.Logger) *Server {
	srv := &Server{
		ports: make(map[uint16]*portListener),
		log:   log,
	}
	srv.tg.OnStop(func() error {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		var errs []error
		for port, pl := range srv.ports {
			errs = append(errs, pl.close())
			delete(srv.ports, port)
		}
		return errors.Compose(errs...)
	})
	return srv
}

// Start opens a listener on the given port delivering decoded requests to
// owner. Starting a port that is already open fails.
func (srv *Server) Start(port uint16, owner modules.RPCReceiver) error {
	if err := srv.tg.Add(); err != nil {
		return err
	}
	defer srv.tg.Done()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if _, open := srv.ports[port]; open {
		return errors.New(fmt.Sprintf("port %v already has a listener", port))
	}

	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return errors.AddContext(err, "unable to open pool listener")
	}
	pl := &portListener{
		port:     port,
		owner:    owner,
		listener: l,
		srv:      srv,
		conns:    make(map[string]net.Conn),
		closed:   make(chan struct{}),
	}
	srv.ports[port] = pl
	go pl.threadedAccept()

	srv.log.Printf("INFO: listening for miners on port %v", port)
	return nil
}

// Stop closes the listener on the given port along with its connections.
// Stopping a port with no listener is a no-op.
func (srv *Server) Stop(port uint16) error {
	srv.mu.Lock()
	pl, open := srv.ports[port]
	if open {
		delete(srv.ports, port)
	}
	srv.mu.Unlock()
	if !open {
		return nil
	}
	srv.log.Printf("INFO: closing miner listener on port %v", port)
	return pl.close()
}

// Close stops every listener.
func (srv *Server) Close() error {
	return srv.tg.Stop()
}

// close shuts the accepting socket and every open connection.
func (pl *portListener) close() error {
	close(pl.closed)
	err := pl.listener.Close()
	pl.connMu.Lock()
	for id, conn := range pl.conns {
		conn.Close()
		delete(pl.conns, id)
	}
	pl.connMu.Unlock()
	if err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
		return err
	}
	return nil
}

// threadedAccept runs the accept loop of one port.
func (pl *portListener) threadedAccept() {
	if pl.srv.tg.Add() != nil {
		return
	}
	defer pl.srv.tg.Done()

	for {
		conn, err := pl.listener.Accept()
		if err != nil {
			select {
			case <-pl.closed:
			case <-pl.srv.tg.StopChan():
			default:
				pl.srv.log.Println("WARN: accept failed:", err)
			}
			return
		}
		pl.connMu.Lock()
		if len(pl.conns) >= maxConnections {
			pl.connMu.Unlock()
			conn.Close()
			continue
		}
		id := hex.EncodeToString(fastrand.Bytes(8))
		pl.conns[id] = conn
		pl.connMu.Unlock()
		go pl.threadedHandleConn(id, conn)
	}
}
