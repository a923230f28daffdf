package stratum

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MobiusL/ecoinpool/build"
	"github.com/MobiusL/ecoinpool/modules"
	"github.com/MobiusL/ecoinpool/persist"
)

// echoReceiver answers authorize requests with true, "quit" with a
// close-flagged result, and everything else with an error. It records the
// auth context of every request.
type echoReceiver struct {
	auths []modules.RPCAuth
	mu    sync.Mutex
}

func (r *echoReceiver) RPCRequest(resp modules.Responder, method string, params json.RawMessage, auth modules.RPCAuth) {
	r.mu.Lock()
	r.auths = append(r.auths, auth)
	r.mu.Unlock()
	switch method {
	case "mining.authorize":
		resp(modules.RPCResult{Status: modules.RPCStatusOK, Payload: []byte("true")})
	case "quit":
		resp(modules.RPCResult{Status: modules.RPCStatusOK, Payload: []byte("true"), Flags: modules.RPCFlagClose})
	default:
		resp(modules.RPCResult{Status: modules.RPCStatusError, Error: "unknown method: " + method})
	}
}

func (r *echoReceiver) RPCLongPoll(resp modules.Responder, auth modules.RPCAuth) {
	resp(modules.RPCResult{Status: modules.RPCStatusError, Error: "long polling is not available"})
}

func (r *echoReceiver) lastAuth() modules.RPCAuth {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.auths) == 0 {
		return modules.RPCAuth{}
	}
	return r.auths[len(r.auths)-1]
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := build.TempDir("stratum", t.Name())
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	log, err := persist.NewLogger(filepath.Join(dir, "stratum.log"))
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(log)
}

// newTestConn wires a handler goroutine to one end of an in-memory pipe and
// returns the miner's end.
func newTestConn(t *testing.T, srv *Server, recv modules.RPCReceiver) net.Conn {
	t.Helper()
	pl := &portListener{
		owner:  recv,
		srv:    srv,
		conns:  make(map[string]net.Conn),
		closed: make(chan struct{}),
	}
	miner, server := net.Pipe()
	pl.conns["test"] = server
	go pl.threadedHandleConn("test", server)
	return miner
}

// TestConnFraming round-trips newline-delimited requests through a handler.
func TestConnFraming(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	recv := &echoReceiver{}
	miner := newTestConn(t, srv, recv)
	defer miner.Close()
	lines := bufio.NewScanner(miner)

	_, err := fmt.Fprintf(miner, `{"id":1,"method":"mining.authorize","params":["alice","secret"]}`+"\n")
	if err != nil {
		t.Fatal(err)
	}
	if !lines.Scan() {
		t.Fatal("no response line:", lines.Err())
	}
	var resp responseMsg
	if err := json.Unmarshal(lines.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if string(resp.ID) != "1" || string(resp.Result) != "true" || resp.Error != nil {
		t.Fatalf("unexpected authorize response: %s", lines.Bytes())
	}
	auth := recv.lastAuth()
	if auth.Username != "alice" || auth.Password != "secret" {
		t.Fatal("credentials were not captured:", auth)
	}

	// Unknown methods come back as protocol errors, not dropped connections.
	fmt.Fprintf(miner, `{"id":2,"method":"mining.frobnicate"}`+"\n")
	if !lines.Scan() {
		t.Fatal("no response line:", lines.Err())
	}
	if err := json.Unmarshal(lines.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if string(resp.ID) != "2" || resp.Error == nil {
		t.Fatalf("unexpected error response: %s", lines.Bytes())
	}
}

// TestConnCloseFlag checks that a close-flagged result drops the connection
// after the response is written.
func TestConnCloseFlag(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	miner := newTestConn(t, srv, &echoReceiver{})
	defer miner.Close()
	lines := bufio.NewScanner(miner)

	fmt.Fprintf(miner, `{"id":3,"method":"quit"}`+"\n")
	if !lines.Scan() {
		t.Fatal("no response line:", lines.Err())
	}
	if lines.Scan() {
		t.Fatal("connection still open after a close-flagged response")
	}
}

// TestServerStartStop exercises the per-port lifecycle over real TCP.
func TestServerStartStop(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}
	srv := newTestServer(t)
	defer srv.Close()
	recv := &echoReceiver{}

	const port = 28967
	if err := srv.Start(port, recv); err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(port, recv); err == nil {
		t.Fatal("starting an open port should fail")
	}

	miner, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", port), 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer miner.Close()
	fmt.Fprintf(miner, `{"id":1,"method":"mining.authorize","params":["alice","x"]}`+"\n")
	lines := bufio.NewScanner(miner)
	if !lines.Scan() {
		t.Fatal("no response over tcp:", lines.Err())
	}
	var resp responseMsg
	if err := json.Unmarshal(lines.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if string(resp.Result) != "true" {
		t.Fatalf("unexpected response: %s", lines.Bytes())
	}
	if auth := recv.lastAuth(); auth.RemoteAddr == "" {
		t.Fatal("remote address was not captured")
	}

	if err := srv.Stop(port); err != nil {
		t.Fatal(err)
	}
	if err := srv.Stop(port); err != nil {
		t.Fatal("stopping a closed port should be a no-op:", err)
	}
	if lines.Scan() {
		t.Fatal("connection survived its port being stopped")
	}

	// The port is free again.
	if err := srv.Start(port, recv); err != nil {
		t.Fatal(err)
	}
}
