// Package paywatch turns the node's settled-invoice long-poll into a
// resumable stream of events.
package paywatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	log "github.com/sirupsen/logrus"
)

const RETRY_DELAY = 1 * time.Second

// Stats are counters for operators, see /admin/stats.
type Stats struct {
	Events             atomic.Uint64
	RPCRetries         atomic.Uint64
	CheckpointFailures atomic.Uint64
}

type StatsSnapshot struct {
	Events             uint64 `json:"events"`
	RPCRetries         uint64 `json:"rpc_retries"`
	CheckpointFailures uint64 `json:"checkpoint_failures"`
	LastPayIndex       uint64 `json:"last_pay_index"`
}

/*
 * InvoiceStream yields settled invoices in the node's pay-index order.
 *
 * INVARIANT: the checkpoint only ever holds an index whose event has been
 * received from the node. It is written before the event is returned, so
 * a crash after Next returns loses that event (at-most-once) rather than
 * replaying it.
 *
 * The waiter must be a connection of its own: a waitanyinvoice long-poll
 * holds the connection until something is paid.
 */
type InvoiceStream struct {
	waiter     lnurl.InvoiceWaiter
	checkpoint lnurl.Checkpointer
	bus        lnurl.MessageBus
	retryDelay time.Duration
	last       atomic.Uint64
	stats      Stats
}

func NewInvoiceStream(waiter lnurl.InvoiceWaiter, checkpoint lnurl.Checkpointer, startIndex uint64, opts ...func(*InvoiceStream)) *InvoiceStream {
	s := &InvoiceStream{
		waiter:     waiter,
		checkpoint: checkpoint,
		retryDelay: RETRY_DELAY,
	}
	s.last.Store(startIndex)
	for _, optFn := range opts {
		optFn(s)
	}
	return s
}

// RetryDelay sets the pause between failed node calls.
func RetryDelay(d time.Duration) func(*InvoiceStream) {
	return func(s *InvoiceStream) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// Bus publishes checkpoint failures as SYS_ERR.
func Bus(bus lnurl.MessageBus) func(*InvoiceStream) {
	return func(s *InvoiceStream) {
		s.bus = bus
	}
}

// LastPayIndex is the highest pay-index received so far.
func (s *InvoiceStream) LastPayIndex() uint64 {
	return s.last.Load()
}

func (s *InvoiceStream) Stats() StatsSnapshot {
	return StatsSnapshot{
		Events:             s.stats.Events.Load(),
		RPCRetries:         s.stats.RPCRetries.Load(),
		CheckpointFailures: s.stats.CheckpointFailures.Load(),
		LastPayIndex:       s.last.Load(),
	}
}

// Next blocks until the node reports the next settled invoice. Node
// errors are retried forever on the same index; the only error returned
// is ctx's.
func (s *InvoiceStream) Next(ctx context.Context) (lnurl.InvoiceEvent, error) {
	for {
		last := s.last.Load()
		ev, err := s.waiter.WaitAnyInvoice(ctx, last)
		if err != nil {
			if ctx.Err() != nil {
				return lnurl.InvoiceEvent{}, ctx.Err()
			}
			s.stats.RPCRetries.Add(1)
			log.Warnf("InvoiceStream: waitanyinvoice after %d failed: %v", last, err)
			if sleepInterrupted(ctx, s.retryDelay) {
				return lnurl.InvoiceEvent{}, ctx.Err()
			}
			continue // retry.
		}

		if err := s.checkpoint.Write(ev.PayIndex); err != nil {
			s.stats.CheckpointFailures.Add(1)
			log.Errorf("InvoiceStream: cannot write checkpoint %d: %v", ev.PayIndex, err)
			s.bus.Send(lnurl.SYS_ERR, fmt.Sprintf("InvoiceStream: checkpoint write failed at pay index %d: %v", ev.PayIndex, err))
		}
		s.last.Store(ev.PayIndex)
		s.stats.Events.Add(1)
		log.Debugf("InvoiceStream: invoice %s paid (pay index %d)", ev.PaymentHash, ev.PayIndex)
		return ev, nil
	}
}

func sleepInterrupted(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(d):
		return false
	}
}
