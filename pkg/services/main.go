package services

import (
	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/cashubtc/cashu-lnurl/pkg/conductor"
)

// StartServices adds the forwarding engine to the conductor. It only runs
// when the gateway proxies invoices through its own node.
func StartServices(cond *conductor.Conductor, bus lnurl.MessageBus, conf lnurl.Config, store lnurl.Store, events EventSource, mint lnurl.Mint, ln lnurl.Lightning) *Forwarder {
	if !conf.Info.Proxy || ln == nil {
		return nil
	}
	// Forwarder sends "Invoice Settled", "Invoice Forwarded" and
	// "Invoice Forward Failed" events.
	fwd := NewForwarder(events, store, mint, ln, bus)
	cond.Service("Forwarder", fwd)
	return fwd
}
