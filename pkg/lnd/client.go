// Package lnd is the LND gRPC backend for the Lightning interface.
package lnd

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"os"
	"time"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
)

// interface guard ensures Client implements lnurl.Lightning
var _ lnurl.Lightning = &Client{}

type Config struct {
	TlsCertPath  string
	RpcServer    string
	MacaroonPath string
}

type Client struct {
	client   lnrpc.LightningClient
	conn     *grpc.ClientConn
	macaroon string
}

func ConfigFrom(c lnurl.Config) *Config {
	return &Config{
		TlsCertPath:  c.Lightning.LndTlsCert,
		RpcServer:    c.Lightning.LndHost,
		MacaroonPath: c.Lightning.LndMacaroon,
	}
}

func NewClient(config *Config) (*Client, error) {
	cert, err := makeTlsCertFromPath(config.TlsCertPath)
	if err != nil {
		return nil, errors.Wrap(err, "could not make TLS cert")
	}
	creds := credentials.NewClientTLSFromCert(cert, "")

	conn, err := grpc.Dial(config.RpcServer, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, lnurl.NewErr(lnurl.NotAvailable, "could not connect to lightning node: %v", err)
	}

	macaroon, err := makeMacaroonFromPath(config.MacaroonPath)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "could not make macaroon")
	}

	c := newClient(lnrpc.NewLightningClient(conn), macaroon)
	c.conn = conn
	return c, nil
}

func newClient(client lnrpc.LightningClient, macaroon string) *Client {
	return &Client{client: client, macaroon: macaroon}
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) auth(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "macaroon", c.macaroon)
}

// WaitAnyInvoice maps lastPayIndex onto LND's settle index: the next
// settled invoice past it is returned.
func (c *Client) WaitAnyInvoice(ctx context.Context, lastPayIndex uint64) (lnurl.InvoiceEvent, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub, err := c.client.SubscribeInvoices(c.auth(ctx), &lnrpc.InvoiceSubscription{SettleIndex: lastPayIndex})
	if err != nil {
		return lnurl.InvoiceEvent{}, c.rpcErr(ctx, "subscribe invoices", err)
	}
	for {
		inv, err := sub.Recv()
		if err != nil {
			return lnurl.InvoiceEvent{}, c.rpcErr(ctx, "receive invoice", err)
		}
		if inv.State != lnrpc.Invoice_SETTLED || inv.SettleIndex <= lastPayIndex {
			continue
		}
		ev := lnurl.InvoiceEvent{
			PaymentHash: hex.EncodeToString(inv.RHash),
			PayIndex:    inv.SettleIndex,
			AmountMsat:  uint64(inv.AmtPaidMsat),
			Bolt11:      inv.PaymentRequest,
			Label:       inv.Memo,
			Preimage:    hex.EncodeToString(inv.RPreimage),
		}
		if inv.SettleDate > 0 {
			ev.PaidAt = time.Unix(inv.SettleDate, 0)
		}
		return ev, nil
	}
}

// Invoice commits to description by hash, as LNURL-pay requires. LND has
// no label; the label becomes the memo.
func (c *Client) Invoice(ctx context.Context, amountMsat uint64, description string, label string) (lnurl.NodeInvoice, error) {
	hash := sha256.Sum256([]byte(description))
	res, err := c.client.AddInvoice(c.auth(ctx), &lnrpc.Invoice{
		Memo:            label,
		ValueMsat:       int64(amountMsat),
		DescriptionHash: hash[:],
	})
	if err != nil {
		return lnurl.NodeInvoice{}, c.rpcErr(ctx, "add invoice", err)
	}
	return lnurl.NodeInvoice{
		Bolt11:      res.PaymentRequest,
		PaymentHash: hex.EncodeToString(res.RHash),
	}, nil
}

func (c *Client) Pay(ctx context.Context, bolt11 string, maxFeeMsat uint64) (lnurl.PayResult, error) {
	res, err := c.client.SendPaymentSync(c.auth(ctx), &lnrpc.SendRequest{
		PaymentRequest: bolt11,
		FeeLimit: &lnrpc.FeeLimit{
			Limit: &lnrpc.FeeLimit_FixedMsat{FixedMsat: int64(maxFeeMsat)},
		},
	})
	if err != nil {
		return lnurl.PayResult{}, c.rpcErr(ctx, "send payment", err)
	}
	if res.PaymentError != "" {
		return lnurl.PayResult{}, errors.Errorf("could not send payment: %v", res.PaymentError)
	}
	out := lnurl.PayResult{Preimage: hex.EncodeToString(res.PaymentPreimage)}
	if res.PaymentRoute != nil {
		out.AmountSentMsat = uint64(res.PaymentRoute.TotalAmtMsat)
	}
	return out, nil
}

func (c *Client) rpcErr(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return lnurl.NewErr(lnurl.NotAvailable, "lnd %s: %v", what, err)
}

func makeTlsCertFromPath(path string) (*x509.CertPool, error) {
	certBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("could not read tls cert %v", path)
	}
	cert := x509.NewCertPool()
	if ok := cert.AppendCertsFromPEM(certBytes); !ok {
		return nil, errors.New("could not parse tls cert")
	}
	return cert, nil
}

func makeMacaroonFromPath(path string) (string, error) {
	macaroonBytes, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Errorf("could not read macaroon %v", path)
	}
	return hex.EncodeToString(macaroonBytes), nil
}
