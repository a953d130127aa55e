package cln

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
)

type handler func(params json.RawMessage) (any, *RPCError)

// fakeNode serves the lightning-rpc protocol on a unix socket.
func fakeNode(t *testing.T, handlers map[string]handler) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "cln")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "rpc")
	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go serve(conn, handlers)
		}
	}()
	return path
}

func serve(conn net.Conn, handlers map[string]handler) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	for {
		var req struct {
			Id     uint64          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := dec.Decode(&req); err != nil {
			return
		}
		h, ok := handlers[req.Method]
		if !ok {
			json.NewEncoder(conn).Encode(map[string]any{"id": req.Id, "error": RPCError{Code: -32601, Message: "unknown command"}})
			continue
		}
		res, rpcErr := h(req.Params)
		if rpcErr != nil {
			json.NewEncoder(conn).Encode(map[string]any{"jsonrpc": "2.0", "id": req.Id, "error": rpcErr})
		} else {
			json.NewEncoder(conn).Encode(map[string]any{"jsonrpc": "2.0", "id": req.Id, "result": res})
		}
		conn.Write([]byte("\n"))
	}
}

func TestWaitAnyInvoice(t *testing.T) {
	var asked uint64
	path := fakeNode(t, map[string]handler{
		"waitanyinvoice": func(p json.RawMessage) (any, *RPCError) {
			var req waitAnyInvoiceRequest
			json.Unmarshal(p, &req)
			asked = req.LastPayIndex
			return map[string]any{
				"label":                "lbl",
				"payment_hash":         "H1",
				"status":               "paid",
				"amount_msat":          "21000msat",
				"amount_received_msat": 21000,
				"bolt11":               "lnbc1",
				"pay_index":            req.LastPayIndex + 1,
				"paid_at":              1700000000,
				"payment_preimage":     "pre",
			}, nil
		},
	})
	c := NewClient(path)
	defer c.Close()

	ev, err := c.WaitAnyInvoice(context.Background(), 41)
	if err != nil {
		t.Fatal(err)
	}
	if asked != 41 {
		t.Errorf("lastpay_index sent = %d, want 41", asked)
	}
	if ev.PayIndex != 42 || ev.PaymentHash != "H1" || ev.AmountMsat != 21000 || ev.Preimage != "pre" {
		t.Errorf("unexpected event %+v", ev)
	}
	if !ev.PaidAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("paid_at = %v", ev.PaidAt)
	}

	// second call reuses the connection
	ev, err = c.WaitAnyInvoice(context.Background(), 42)
	if err != nil || ev.PayIndex != 43 {
		t.Fatalf("second call: %+v %v", ev, err)
	}
}

func TestWaitAnyInvoiceWithoutPayIndex(t *testing.T) {
	path := fakeNode(t, map[string]handler{
		"waitanyinvoice": func(p json.RawMessage) (any, *RPCError) {
			return map[string]any{"payment_hash": "H1", "status": "expired"}, nil
		},
	})
	c := NewClient(path)
	defer c.Close()
	_, err := c.WaitAnyInvoice(context.Background(), 0)
	if !lnurl.IsError(err, lnurl.ProtocolMismatch) {
		t.Fatalf("expected protocol mismatch, got %v", err)
	}
}

func TestWaitAnyInvoiceCancel(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	path := fakeNode(t, map[string]handler{
		"waitanyinvoice": func(p json.RawMessage) (any, *RPCError) {
			<-block
			return nil, &RPCError{Code: -1, Message: "gone"}
		},
	})
	c := NewClient(path)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.WaitAnyInvoice(ctx, 0)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestInvoice(t *testing.T) {
	var got invoiceRequest
	path := fakeNode(t, map[string]handler{
		"invoice": func(p json.RawMessage) (any, *RPCError) {
			json.Unmarshal(p, &got)
			return map[string]any{"payment_hash": "H2", "bolt11": "lnbc2", "expires_at": 1}, nil
		},
	})
	c := NewClient(path)
	defer c.Close()
	inv, err := c.Invoice(context.Background(), 5000, "meta", "label-1")
	if err != nil {
		t.Fatal(err)
	}
	if inv.PaymentHash != "H2" || inv.Bolt11 != "lnbc2" {
		t.Errorf("unexpected invoice %+v", inv)
	}
	if got.AmountMsat != 5000 || got.Label != "label-1" || got.Description != "meta" || !got.DescHashOnly {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestPay(t *testing.T) {
	path := fakeNode(t, map[string]handler{
		"pay": func(p json.RawMessage) (any, *RPCError) {
			var req payRequest
			json.Unmarshal(p, &req)
			if req.Bolt11 == "bad" {
				return nil, &RPCError{Code: 210, Message: "Ran out of routes"}
			}
			if req.MaxFee != 10000 {
				return nil, &RPCError{Code: -32602, Message: "wrong maxfee"}
			}
			return map[string]any{"payment_preimage": "pre", "status": "complete", "amount_sent_msat": 990000}, nil
		},
	})
	c := NewClient(path)
	defer c.Close()

	res, err := c.Pay(context.Background(), "lnbc3", 10000)
	if err != nil {
		t.Fatal(err)
	}
	if res.Preimage != "pre" || res.AmountSentMsat != 990000 {
		t.Errorf("unexpected result %+v", res)
	}

	_, err = c.Pay(context.Background(), "bad", 10000)
	rpcErr, ok := err.(*RPCError)
	if !ok || rpcErr.Code != 210 {
		t.Fatalf("expected rpc error 210, got %v", err)
	}
}

func TestConnectFailure(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing"))
	_, err := c.Pay(context.Background(), "lnbc", 1)
	if !lnurl.IsNotAvailableError(err) {
		t.Fatalf("expected not-available, got %v", err)
	}
}

func TestMsatDecoding(t *testing.T) {
	for in, want := range map[string]Msat{`1000`: 1000, `"1000msat"`: 1000, `"7"`: 7} {
		var m Msat
		if err := json.Unmarshal([]byte(in), &m); err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if m != want {
			t.Errorf("%s = %d, want %d", in, m, want)
		}
	}
	var m Msat
	if err := json.Unmarshal([]byte(`"abc"`), &m); err == nil {
		t.Error("expected error for garbage amount")
	}
}
