package services

import (
	"context"
	"sync/atomic"
	"time"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// EventSource yields settled invoices, see paywatch.InvoiceStream.
type EventSource interface {
	Next(ctx context.Context) (lnurl.InvoiceEvent, error)
}

type ForwarderStats struct {
	Settled       uint64 `json:"settled"`
	Forwarded     uint64 `json:"forwarded"`
	Skipped       uint64 `json:"skipped"`
	MintFailures  uint64 `json:"mint_failures"`
	StoreFailures uint64 `json:"store_failures"`
	PayFailures   uint64 `json:"pay_failures"`
}

type forwarderCounters struct {
	settled       atomic.Uint64
	forwarded     atomic.Uint64
	skipped       atomic.Uint64
	mintFailures  atomic.Uint64
	storeFailures atomic.Uint64
	payFailures   atomic.Uint64
}

/*
 * Forwarder moves funds paid to our node on to the payee's mint.
 *
 * For every settled invoice it finds a proxied PendingInvoice for, it
 * keeps back ceil(1%) for routing, asks the mint for an invoice over the
 * rest, swaps the ledger record over to the mint's hash and pays it.
 *
 * INVARIANT: the replacement record is stored before the settled one is
 * removed, so a crash in between leaves two records, never none.
 * Failures abandon the event; nothing is retried or rolled back.
 */
type Forwarder struct {
	events EventSource
	store  lnurl.Store
	mint   lnurl.Mint
	ln     lnurl.Lightning
	bus    lnurl.MessageBus
	stats  forwarderCounters
}

func NewForwarder(events EventSource, store lnurl.Store, mint lnurl.Mint, ln lnurl.Lightning, bus lnurl.MessageBus) *Forwarder {
	return &Forwarder{
		events: events,
		store:  store,
		mint:   mint,
		ln:     ln,
		bus:    bus,
	}
}

func (f *Forwarder) Stats() ForwarderStats {
	return ForwarderStats{
		Settled:       f.stats.settled.Load(),
		Forwarded:     f.stats.forwarded.Load(),
		Skipped:       f.stats.skipped.Load(),
		MintFailures:  f.stats.mintFailures.Load(),
		StoreFailures: f.stats.storeFailures.Load(),
		PayFailures:   f.stats.payFailures.Load(),
	}
}

// Implements conductor.Service
func (f *Forwarder) Run(started, stopped chan bool, stop chan context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ev, err := f.events.Next(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Errorf("Forwarder: event source failed: %v", err)
				}
				return
			}
			if err := f.Forward(ctx, ev); err != nil {
				log.Warnf("Forwarder: %v", err)
			}
		}
	}()
	go func() {
		started <- true
		select {
		case <-stop:
			cancel()
			<-done
		case <-done:
			// the event source ended by itself
			cancel()
		}
		stopped <- true
	}()
	return nil
}

// Forward handles one settled invoice. An error means the event was
// abandoned; it is for logging only.
func (f *Forwarder) Forward(ctx context.Context, ev lnurl.InvoiceEvent) error {
	rec, err := f.store.GetPendingInvoice(ev.PaymentHash)
	if err != nil {
		if lnurl.IsNotFoundError(err) {
			// paid to our node, but not an invoice we issued
			log.Debugf("Forwarder: no pending invoice for %s", ev.PaymentHash)
			f.stats.skipped.Add(1)
			return nil
		}
		f.stats.storeFailures.Add(1)
		return errors.Wrapf(err, "looking up %s", ev.PaymentHash)
	}
	if !rec.Proxied {
		log.Debugf("Forwarder: %s is not proxied, skipping", rec.Hash)
		f.stats.skipped.Add(1)
		return nil
	}
	f.stats.settled.Add(1)
	f.bus.Send(lnurl.INV_SETTLED, lnurl.SettledInvoice{Invoice: rec, Event: ev}, rec.Hash)

	feeSats, forwardMsat := lnurl.ForwardAmounts(rec.Amount)
	forwardSats := forwardMsat / 1000
	fwd := lnurl.ForwardedInvoice{
		From:     rec.Hash,
		Mint:     rec.Mint,
		Username: rec.Username,
		Amount:   forwardSats * 1000,
		FeeSats:  feeSats,
	}
	if forwardSats == 0 {
		f.stats.skipped.Add(1)
		return f.failed(fwd, errors.Errorf("%s: %d msat does not cover the routing fee", rec.Hash, rec.Amount))
	}

	quote, err := f.mint.RequestMint(ctx, forwardSats, rec.Mint)
	if err != nil {
		f.stats.mintFailures.Add(1)
		return f.failed(fwd, errors.Wrapf(err, "requesting mint of %d sat from %s for %s", forwardSats, rec.Mint, rec.Hash))
	}
	fwd.To = quote.Hash

	next := lnurl.PendingInvoice{
		Mint:        rec.Mint,
		Username:    rec.Username,
		Description: rec.Description,
		Amount:      forwardSats * 1000,
		Hash:        quote.Hash,
		Bolt11:      quote.Bolt11,
		LastChecked: nil,
		Proxied:     true,
		Time:        time.Now(),
	}
	// add before remove, see INVARIANT
	if err := f.store.StorePendingInvoice(next); err != nil {
		f.stats.storeFailures.Add(1)
		log.Warnf("Forwarder: could not add pending invoice %s: %v", next.Hash, err)
	}
	if err := f.store.RemovePendingInvoice(rec.Hash); err != nil {
		f.stats.storeFailures.Add(1)
		log.Warnf("Forwarder: could not remove pending invoice %s: %v", rec.Hash, err)
	}

	res, err := f.ln.Pay(ctx, quote.Bolt11, feeSats*1000)
	if err != nil {
		f.stats.payFailures.Add(1)
		return f.failed(fwd, errors.Wrapf(err, "paying mint invoice %s", quote.Hash))
	}
	fwd.Preimage = res.Preimage
	f.stats.forwarded.Add(1)
	log.Infof("Forwarder: forwarded %s -> %s (%d sat, fee allowance %d sat)", rec.Hash, quote.Hash, forwardSats, feeSats)
	f.bus.Send(lnurl.INV_FORWARDED, fwd, quote.Hash)
	return nil
}

func (f *Forwarder) failed(fwd lnurl.ForwardedInvoice, err error) error {
	fwd.Error = err.Error()
	f.bus.Send(lnurl.INV_FORWARD_FAILED, fwd, fwd.From)
	return err
}
