package coindaemon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/NebulousLabs/fastrand"

	"github.com/MobiusL/ecoinpool/modules"
	"github.com/MobiusL/ecoinpool/persist"
)

const (
	// rpcTimeout bounds a single call to the backing coin daemon.
	rpcTimeout = 30 * time.Second
)

// rpcDaemonConfig is the expected shape of the opaque daemon configuration
// blob for JSON-RPC backed coins.
type rpcDaemonConfig struct {
	Host     string `json:"host"`
	Port     uint16 `json:"port"`
	User     string `json:"user"`
	Password string `json:"pass"`
}

// rpcDaemon talks to a coin daemon over JSON-RPC 1.0 via HTTP. It implements
// modules.CoinDaemon.
type rpcDaemon struct {
	poolType modules.PoolType
	url      string
	user     string
	password string

	client *http.Client
	log    *persist.Logger
}

type rpcRequest struct {
	ID     string      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// newRPCDaemon builds an adapter for a JSON-RPC coin daemon from the opaque
// configuration blob.
func newRPCDaemon(poolType modules.PoolType, config json.RawMessage, log *persist.Logger) (modules.CoinDaemon, error) {
	var cfg rpcDaemonConfig
	err := json.Unmarshal(config, &cfg)
	if err != nil {
		return nil, errors.AddContext(err, "malformed coin daemon configuration")
	}
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, errors.New("coin daemon configuration is missing host or port")
	}
	return &rpcDaemon{
		poolType: poolType,
		url:      fmt.Sprintf("http://%s:%d/", cfg.Host, cfg.Port),
		user:     cfg.User,
		password: cfg.Password,
		client:   &http.Client{Timeout: rpcTimeout},
		log:      log,
	}, nil
}

func newBitcoinDaemon(config json.RawMessage, log *persist.Logger) (modules.CoinDaemon, error) {
	return newRPCDaemon("bitcoin", config, log)
}

func newLitecoinDaemon(config json.RawMessage, log *persist.Logger) (modules.CoinDaemon, error) {
	return newRPCDaemon("litecoin", config, log)
}

func newNamecoinDaemon(config json.RawMessage, log *persist.Logger) (modules.CoinDaemon, error) {
	return newRPCDaemon("namecoin", config, log)
}

// Type reports the pool type the adapter was built for.
func (d *rpcDaemon) Type() modules.PoolType {
	return d.poolType
}

// Call performs one RPC against the backing coin daemon.
func (d *rpcDaemon) Call(method string, params, result interface{}) error {
	id := fmt.Sprintf("%x", fastrand.Bytes(8))
	if params == nil {
		params = []interface{}{}
	}
	reqBody, err := json.Marshal(rpcRequest{ID: id, Method: method, Params: params})
	if err != nil {
		return errors.AddContext(err, "unable to marshal rpc request")
	}

	req, err := http.NewRequest("POST", d.url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.user != "" {
		req.SetBasicAuth(d.user, d.password)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.AddContext(err, "coin daemon is unreachable")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.AddContext(err, "unable to read coin daemon response")
	}

	var rpcResp rpcResponse
	err = json.Unmarshal(body, &rpcResp)
	if err != nil {
		return errors.AddContext(err, "malformed coin daemon response")
	}
	if len(rpcResp.Error) > 0 && string(rpcResp.Error) != "null" {
		return errors.New("coin daemon error: " + string(rpcResp.Error))
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, result)
}

// Close releases the adapter. The backing daemon process is external and is
// not touched.
func (d *rpcDaemon) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
