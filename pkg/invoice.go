package lnurl

import (
	"time"
)

// PendingInvoice is an invoice this gateway is waiting to see paid.
// Hash is the primary key: there is exactly one live record per hash.
type PendingInvoice struct {
	Mint        string `json:"mint"`     // mint the funds are destined for
	Username    string `json:"username"` // local payee
	Description string `json:"description,omitempty"`
	// Amount in millisatoshis, always positive.
	Amount uint64 `json:"amount"`
	Hash   string `json:"hash"` // Lightning payment hash
	Bolt11 string `json:"bolt11"`
	// LastChecked is only set on invoices issued by our own node.
	LastChecked *time.Time `json:"last_checked,omitempty"`
	// Proxied means this gateway generated (or is paying) the invoice on
	// behalf of the mint, rather than the payer paying the mint directly.
	Proxied bool      `json:"proxied"`
	Time    time.Time `json:"time"`
}

// AmountSats is the invoice amount truncated to whole satoshis.
func (i PendingInvoice) AmountSats() uint64 {
	return i.Amount / 1000
}

func (i PendingInvoice) Validate() error {
	if i.Hash == "" {
		return NewErr(BadRequest, "pending invoice has no payment hash")
	}
	if i.Amount == 0 {
		return NewErr(BadRequest, "pending invoice %s has zero amount", i.Hash)
	}
	if i.Bolt11 == "" {
		return NewErr(BadRequest, "pending invoice %s has no bolt11", i.Hash)
	}
	return nil
}

// InvoiceEvent is a settled invoice reported by the Lightning node.
// It is consumed once and never persisted.
type InvoiceEvent struct {
	PaymentHash string    `json:"payment_hash"`
	PayIndex    uint64    `json:"pay_index"`
	AmountMsat  uint64    `json:"amount_msat"`
	Bolt11      string    `json:"bolt11,omitempty"`
	Label       string    `json:"label,omitempty"`
	Description string    `json:"description,omitempty"`
	Preimage    string    `json:"payment_preimage,omitempty"`
	PaidAt      time.Time `json:"paid_at"`
}

// NodeInvoice is an invoice freshly created on our own node.
type NodeInvoice struct {
	Bolt11      string `json:"bolt11"`
	PaymentHash string `json:"payment_hash"`
}

// PayResult is returned by a successful outgoing payment.
type PayResult struct {
	Preimage       string `json:"payment_preimage"`
	AmountSentMsat uint64 `json:"amount_sent_msat"`
}

// MintQuote is a mint's answer to a mint request: an invoice that, once
// paid, lets the holder of Hash mint ecash tokens.
type MintQuote struct {
	Hash   string `json:"hash"`
	Bolt11 string `json:"pr"`
}

// SettledInvoice is the payload of INV_SETTLED messages on the bus.
type SettledInvoice struct {
	Invoice PendingInvoice `json:"invoice"`
	Event   InvoiceEvent   `json:"event"`
}

// ForwardedInvoice is the payload of INV_FORWARDED and INV_FORWARD_FAILED.
type ForwardedInvoice struct {
	From     string `json:"from_hash"`
	To       string `json:"to_hash,omitempty"`
	Mint     string `json:"mint"`
	Username string `json:"username"`
	Amount   uint64 `json:"amount"`  // msat forwarded to the mint
	FeeSats  uint64 `json:"fee_sat"` // routing allowance
	Preimage string `json:"payment_preimage,omitempty"`
	Error    string `json:"error,omitempty"`
}
