package cln

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
)

// Msat decodes both amount encodings lightningd has used: a bare number
// and the older "1000msat" string.
type Msat uint64

func (m *Msat) UnmarshalJSON(b []byte) error {
	var n uint64
	if err := json.Unmarshal(b, &n); err == nil {
		*m = Msat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	n, err := strconv.ParseUint(strings.TrimSuffix(s, "msat"), 10, 64)
	if err != nil {
		return err
	}
	*m = Msat(n)
	return nil
}

type waitAnyInvoiceRequest struct {
	LastPayIndex uint64 `json:"lastpay_index"`
}

type WaitAnyInvoiceResponse struct {
	Label              string  `json:"label"`
	Description        string  `json:"description"`
	PaymentHash        string  `json:"payment_hash"`
	Status             string  `json:"status"`
	AmountMsat         *Msat   `json:"amount_msat"`
	AmountReceivedMsat *Msat   `json:"amount_received_msat"`
	Bolt11             string  `json:"bolt11"`
	PayIndex           *uint64 `json:"pay_index"`
	PaidAt             int64   `json:"paid_at"`
	PaymentPreimage    string  `json:"payment_preimage"`
}

// WaitAnyInvoice blocks until an invoice with pay_index > lastPayIndex is
// paid. Zero means "the first paid invoice".
func (c *Client) WaitAnyInvoice(ctx context.Context, lastPayIndex uint64) (lnurl.InvoiceEvent, error) {
	var res WaitAnyInvoiceResponse
	err := c.request(ctx, "waitanyinvoice", waitAnyInvoiceRequest{lastPayIndex}, &res)
	if err != nil {
		return lnurl.InvoiceEvent{}, err
	}
	if res.PayIndex == nil || res.PaymentHash == "" {
		return lnurl.InvoiceEvent{}, lnurl.NewErr(lnurl.ProtocolMismatch, "waitanyinvoice: response without pay_index/payment_hash (status %q)", res.Status)
	}
	ev := lnurl.InvoiceEvent{
		PaymentHash: res.PaymentHash,
		PayIndex:    *res.PayIndex,
		Bolt11:      res.Bolt11,
		Label:       res.Label,
		Description: res.Description,
		Preimage:    res.PaymentPreimage,
	}
	if res.AmountReceivedMsat != nil {
		ev.AmountMsat = uint64(*res.AmountReceivedMsat)
	} else if res.AmountMsat != nil {
		ev.AmountMsat = uint64(*res.AmountMsat)
	}
	if res.PaidAt > 0 {
		ev.PaidAt = time.Unix(res.PaidAt, 0)
	}
	return ev, nil
}

type invoiceRequest struct {
	AmountMsat   uint64 `json:"amount_msat"`
	Label        string `json:"label"`
	Description  string `json:"description"`
	DescHashOnly bool   `json:"deschashonly"`
}

type invoiceResponse struct {
	PaymentHash string `json:"payment_hash"`
	Bolt11      string `json:"bolt11"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Invoice creates an invoice committing to description by hash only.
func (c *Client) Invoice(ctx context.Context, amountMsat uint64, description string, label string) (lnurl.NodeInvoice, error) {
	var res invoiceResponse
	err := c.request(ctx, "invoice", invoiceRequest{amountMsat, label, description, true}, &res)
	if err != nil {
		return lnurl.NodeInvoice{}, err
	}
	if res.Bolt11 == "" || res.PaymentHash == "" {
		return lnurl.NodeInvoice{}, lnurl.NewErr(lnurl.ProtocolMismatch, "invoice: response without bolt11/payment_hash")
	}
	return lnurl.NodeInvoice{Bolt11: res.Bolt11, PaymentHash: res.PaymentHash}, nil
}

type payRequest struct {
	Bolt11 string `json:"bolt11"`
	MaxFee uint64 `json:"maxfee"` // msat
}

type payResponse struct {
	PaymentPreimage string `json:"payment_preimage"`
	Status          string `json:"status"`
	AmountSentMsat  *Msat  `json:"amount_sent_msat"`
}

// Pay pays bolt11, spending no more than maxFeeMsat on routing.
func (c *Client) Pay(ctx context.Context, bolt11 string, maxFeeMsat uint64) (lnurl.PayResult, error) {
	var res payResponse
	err := c.request(ctx, "pay", payRequest{bolt11, maxFeeMsat}, &res)
	if err != nil {
		return lnurl.PayResult{}, err
	}
	if res.Status != "complete" || res.PaymentPreimage == "" {
		return lnurl.PayResult{}, lnurl.NewErr(lnurl.ProtocolMismatch, "pay: unexpected status %q", res.Status)
	}
	out := lnurl.PayResult{Preimage: res.PaymentPreimage}
	if res.AmountSentMsat != nil {
		out.AmountSentMsat = uint64(*res.AmountSentMsat)
	}
	return out, nil
}
