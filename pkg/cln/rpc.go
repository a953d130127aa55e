// Package cln talks to a Core Lightning node over its unix-socket
// JSON-RPC interface.
package cln

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/pkg/errors"
)

// interface guard ensures Client implements lnurl.Lightning
var _ lnurl.Lightning = &Client{}

// Client holds one connection to lightningd. Calls are serialized: a
// long-poll such as waitanyinvoice blocks every other call on the same
// Client, so the invoice stream gets a Client of its own.
type Client struct {
	path string
	mu   sync.Mutex
	conn net.Conn
	dec  *json.Decoder
	id   uint64
}

// NewClient returns a Client for the lightning-rpc socket at path. The
// connection is made lazily and re-made after any transport error.
func NewClient(path string) *Client {
	return &Client{path: path}
}

type rpcRequest struct {
	JsonRPC string `json:"jsonrpc"`
	Id      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Id     uint64           `json:"id"`
	Result *json.RawMessage `json:"result"`
	Error  *RPCError        `json:"error"`
}

// RPCError is an error object returned by lightningd.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("cln rpc error %d: %s", e.Code, e.Message)
}

// Close drops the current connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reset()
}

func (c *Client) reset() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.dec = nil, nil
	return err
}

func (c *Client) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		return lnurl.NewErr(lnurl.NotAvailable, "cln connect %s: %v", c.path, err)
	}
	c.conn = conn
	c.dec = json.NewDecoder(conn)
	return nil
}

func (c *Client) request(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(ctx); err != nil {
		return err
	}
	c.id += 1 // each request should use a unique ID
	body := rpcRequest{JsonRPC: "2.0", Id: c.id, Method: method, Params: params}

	// unblock the socket read when ctx is done
	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer func() {
		// the deadline may have landed on a connection we keep
		if !stop() {
			c.reset()
		}
	}()

	if err := json.NewEncoder(conn).Encode(body); err != nil {
		c.reset()
		return c.transportErr(ctx, method, errors.Wrap(err, "write"))
	}
	var rpcres rpcResponse
	if err := c.dec.Decode(&rpcres); err != nil {
		c.reset()
		return c.transportErr(ctx, method, errors.Wrap(err, "read"))
	}
	if rpcres.Id != body.Id {
		c.reset()
		return lnurl.NewErr(lnurl.ProtocolMismatch, "cln %s: wrong ID returned: %v vs %v", method, rpcres.Id, body.Id)
	}
	if rpcres.Error != nil {
		return rpcres.Error
	}
	if rpcres.Result == nil {
		return lnurl.NewErr(lnurl.ProtocolMismatch, "cln %s: missing result", method)
	}
	if err := json.Unmarshal(*rpcres.Result, result); err != nil {
		return lnurl.NewErr(lnurl.ProtocolMismatch, "cln %s: unmarshal result: %v | %v", method, err, string(*rpcres.Result))
	}
	return nil
}

func (c *Client) transportErr(ctx context.Context, method string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return lnurl.NewErr(lnurl.NotAvailable, "cln %s: %v", method, err)
}
