package stratum

import (
	"encoding/json"
	"io"
	"net"
	"sync"

	"github.com/MobiusL/ecoinpool/modules"
)

type (
	// requestMsg is one framed miner request: newline-delimited JSON in the
	// stratum style.
	requestMsg struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}

	// responseMsg mirrors a coordinator RPC result back onto the wire.
	responseMsg struct {
		ID     json.RawMessage `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *string         `json:"error"`
	}
)

// threadedHandleConn frames requests from one miner connection and forwards
// them to the owning coordinator. Each request gets a single-use responder
// that writes the matching response line.
func (pl *portListener) threadedHandleConn(id string, conn io.ReadWriteCloser) {
	if pl.srv.tg.Add() != nil {
		return
	}
	defer pl.srv.tg.Done()
	defer func() {
		pl.connMu.Lock()
		delete(pl.conns, id)
		pl.connMu.Unlock()
		conn.Close()
	}()

	var writeMu sync.Mutex
	auth := modules.RPCAuth{}
	if nc, ok := conn.(net.Conn); ok {
		auth.RemoteAddr = nc.RemoteAddr().String()
	}

	dec := json.NewDecoder(conn)
	for {
		select {
		case <-pl.closed:
			return
		case <-pl.srv.tg.StopChan():
			return
		default:
		}
		var m requestMsg
		err := dec.Decode(&m)
		if err != nil {
			if err != io.EOF {
				pl.srv.log.Debugln("dropping miner connection:", err)
			}
			return
		}

		// The username of an authorize request doubles as the worker name
		// the coordinator authorizes against.
		if m.Method == "mining.authorize" {
			var creds []string
			if json.Unmarshal(m.Params, &creds) == nil {
				if len(creds) > 0 {
					auth.Username = creds[0]
				}
				if len(creds) > 1 {
					auth.Password = creds[1]
				}
			}
		}

		reqID := m.ID
		var once sync.Once
		responder := modules.Responder(func(res modules.RPCResult) {
			once.Do(func() {
				resp := responseMsg{ID: reqID, Result: res.Payload}
				if res.Status != modules.RPCStatusOK {
					errMsg := res.Error
					resp.Error = &errMsg
				}
				b, err := json.Marshal(resp)
				if err != nil {
					pl.srv.log.Debugln("unable to marshal response:", err)
					return
				}
				writeMu.Lock()
				_, err = conn.Write(append(b, '\n'))
				writeMu.Unlock()
				if err != nil {
					pl.srv.log.Debugln("unable to write response:", err)
				}
				if res.Flags&modules.RPCFlagClose != 0 {
					conn.Close()
				}
			})
		})
		pl.owner.RPCRequest(responder, m.Method, m.Params, auth)
	}
}
