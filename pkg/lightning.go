package lnurl

import (
	"context"
)

// InvoiceWaiter blocks until the node reports an invoice settled with a
// pay-index greater than lastPayIndex.
type InvoiceWaiter interface {
	WaitAnyInvoice(ctx context.Context, lastPayIndex uint64) (InvoiceEvent, error)
}

// Lightning is the subset of node RPC the gateway needs. Implementations
// serialize calls over a single connection.
type Lightning interface {
	InvoiceWaiter
	// Invoice creates an invoice on our node, description is committed to
	// by hash only (LNURL metadata / zap request).
	Invoice(ctx context.Context, amountMsat uint64, description string, label string) (NodeInvoice, error)
	// Pay pays bolt11 spending at most maxFeeMsat in routing fees.
	Pay(ctx context.Context, bolt11 string, maxFeeMsat uint64) (PayResult, error)
}

// Mint requests invoices from a Cashu mint.
type Mint interface {
	RequestMint(ctx context.Context, amountSats uint64, mintURL string) (MintQuote, error)
}

// Checkpointer persists the last processed pay-index.
type Checkpointer interface {
	Read() (uint64, error)
	Write(lastPayIndex uint64) error
}
