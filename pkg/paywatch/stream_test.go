package paywatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
)

type result struct {
	ev  lnurl.InvoiceEvent
	err error
}

// scriptedNode answers WaitAnyInvoice from a script and records the
// index each call was made with.
type scriptedNode struct {
	mu     sync.Mutex
	script []result
	asked  []uint64
	calls  []time.Time
}

func (n *scriptedNode) WaitAnyInvoice(ctx context.Context, last uint64) (lnurl.InvoiceEvent, error) {
	n.mu.Lock()
	n.asked = append(n.asked, last)
	n.calls = append(n.calls, time.Now())
	if len(n.script) == 0 {
		n.mu.Unlock()
		<-ctx.Done()
		return lnurl.InvoiceEvent{}, ctx.Err()
	}
	r := n.script[0]
	n.script = n.script[1:]
	n.mu.Unlock()
	return r.ev, r.err
}

type memCheckpoint struct {
	mu      sync.Mutex
	value   uint64
	writes  []uint64
	failing bool
}

func (c *memCheckpoint) Read() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, nil
}

func (c *memCheckpoint) Write(v uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("disk full")
	}
	c.value = v
	c.writes = append(c.writes, v)
	return nil
}

func paid(hash string, idx uint64) result {
	return result{ev: lnurl.InvoiceEvent{PaymentHash: hash, PayIndex: idx}}
}

func TestCheckpointFollowsEvents(t *testing.T) {
	node := &scriptedNode{script: []result{paid("A", 5), paid("B", 6), paid("C", 9)}}
	cp := &memCheckpoint{}
	s := NewInvoiceStream(node, cp, 4)

	for _, want := range []uint64{5, 6, 9} {
		ev, err := s.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if ev.PayIndex != want {
			t.Fatalf("got index %d, want %d", ev.PayIndex, want)
		}
		if cp.value != want {
			t.Fatalf("checkpoint %d, want %d", cp.value, want)
		}
	}
	// each call asks for invoices after the last one received
	wantAsked := []uint64{4, 5, 6}
	for i, a := range node.asked {
		if a != wantAsked[i] {
			t.Errorf("call %d asked after %d, want %d", i, a, wantAsked[i])
		}
	}
	if s.Stats().Events != 3 || s.LastPayIndex() != 9 {
		t.Errorf("unexpected stats %+v", s.Stats())
	}
}

func TestResumeFromCheckpoint(t *testing.T) {
	cp := &memCheckpoint{value: 13}
	start, _ := cp.Read()
	node := &scriptedNode{script: []result{paid("N", 14)}}
	s := NewInvoiceStream(node, cp, start)
	ev, err := s.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if node.asked[0] != 13 || ev.PayIndex != 14 {
		t.Errorf("asked %v, got %d", node.asked, ev.PayIndex)
	}
}

func TestTransientFailuresRetrySameIndex(t *testing.T) {
	boom := lnurl.NewErr(lnurl.NotAvailable, "socket closed")
	node := &scriptedNode{script: []result{{err: boom}, {err: boom}, paid("A", 8)}}
	cp := &memCheckpoint{value: 7}
	delay := 20 * time.Millisecond
	s := NewInvoiceStream(node, cp, 7, RetryDelay(delay))

	start := time.Now()
	ev, err := s.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 2*delay {
		t.Errorf("returned after %v, want at least %v", elapsed, 2*delay)
	}
	if ev.PayIndex != 8 {
		t.Errorf("got index %d", ev.PayIndex)
	}
	for _, a := range node.asked {
		if a != 7 {
			t.Errorf("retry asked after %d, want 7", a)
		}
	}
	// only the successful event touched the checkpoint
	if len(cp.writes) != 1 || cp.writes[0] != 8 {
		t.Errorf("checkpoint writes %v", cp.writes)
	}
	if s.Stats().RPCRetries != 2 {
		t.Errorf("retries = %d", s.Stats().RPCRetries)
	}
}

func TestCheckpointFailureStillYields(t *testing.T) {
	node := &scriptedNode{script: []result{paid("A", 3), paid("B", 4)}}
	cp := &memCheckpoint{failing: true}
	s := NewInvoiceStream(node, cp, 2)
	ev, err := s.Next(context.Background())
	if err != nil || ev.PayIndex != 3 {
		t.Fatalf("got %+v %v", ev, err)
	}
	// the in-memory index still advances
	ev, _ = s.Next(context.Background())
	if node.asked[1] != 3 || ev.PayIndex != 4 {
		t.Errorf("asked %v", node.asked)
	}
	if s.Stats().CheckpointFailures != 2 {
		t.Errorf("checkpoint failures = %d", s.Stats().CheckpointFailures)
	}
}

func TestNextCancelled(t *testing.T) {
	node := &scriptedNode{}
	s := NewInvoiceStream(node, &memCheckpoint{}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := s.Next(ctx); err != context.Canceled {
		t.Errorf("expected cancellation, got %v", err)
	}
}

func TestCancelDuringRetryDelay(t *testing.T) {
	node := &scriptedNode{script: []result{{err: errors.New("down")}}}
	s := NewInvoiceStream(node, &memCheckpoint{}, 0, RetryDelay(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected deadline, got %v", err)
	}
}
