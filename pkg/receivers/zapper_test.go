package receivers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/nbd-wtf/go-nostr"
)

func zapRequest(t *testing.T, recipient string, relays ...string) string {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	ev := nostr.Event{
		PubKey:    pk,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindZapRequest,
		Tags: nostr.Tags{
			append(nostr.Tag{"relays"}, relays...),
			nostr.Tag{"amount", "21000"},
			nostr.Tag{"p", recipient},
			nostr.Tag{"e", "note-id"},
		},
		Content: "great post",
	}
	if err := ev.Sign(sk); err != nil {
		t.Fatal(err)
	}
	b, _ := json.Marshal(ev)
	return string(b)
}

func testZapper(t *testing.T) (*Zapper, *recordingPublisher) {
	t.Helper()
	z, err := NewZapper(nostr.GeneratePrivateKey(), []string{"wss://ours.example.com", "wss://shared.example.com"}, lnurl.MessageBus{})
	if err != nil {
		t.Fatal(err)
	}
	p := &recordingPublisher{}
	z.publish = p.publish
	return z, p
}

type recordingPublisher struct {
	mu     sync.Mutex
	relays []string
	events []nostr.Event
	fail   map[string]bool
}

func (p *recordingPublisher) publish(ctx context.Context, url string, ev nostr.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[url] {
		return errors.New("relay down")
	}
	p.relays = append(p.relays, url)
	p.events = append(p.events, ev)
	return nil
}

func TestParseZapRequest(t *testing.T) {
	recipient := "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	if _, err := ParseZapRequest(zapRequest(t, recipient)); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	if _, err := ParseZapRequest(""); err == nil {
		t.Error("empty description accepted")
	}
	if _, err := ParseZapRequest(`[["text/plain","Hello World"]]`); err == nil {
		t.Error("lnurl metadata accepted as zap")
	}

	var tampered nostr.Event
	json.Unmarshal([]byte(zapRequest(t, recipient)), &tampered)
	tampered.Content = "changed"
	b, _ := json.Marshal(tampered)
	if _, err := ParseZapRequest(string(b)); err == nil {
		t.Error("tampered request accepted")
	}
}

func TestReceipt(t *testing.T) {
	z, _ := testZapper(t)
	recipient := "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	desc := zapRequest(t, recipient, "wss://theirs.example.com")
	req, err := ParseZapRequest(desc)
	if err != nil {
		t.Fatal(err)
	}
	paidAt := time.Unix(1700000000, 0)
	settled := lnurl.SettledInvoice{
		Invoice: lnurl.PendingInvoice{Hash: "H1", Bolt11: "lnbc-stored", Description: desc},
		Event:   lnurl.InvoiceEvent{PaymentHash: "H1", Bolt11: "lnbc-paid", Preimage: "pre", PaidAt: paidAt},
	}
	ev, err := z.Receipt(req, settled)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != nostr.KindZap || ev.PubKey != z.Pubkey() || int64(ev.CreatedAt) != paidAt.Unix() {
		t.Errorf("unexpected receipt header %+v", ev)
	}
	if ok, err := ev.CheckSignature(); err != nil || !ok {
		t.Errorf("receipt signature invalid: %v", err)
	}
	want := map[string]string{
		"p":           recipient,
		"e":           "note-id",
		"P":           req.PubKey,
		"bolt11":      "lnbc-paid",
		"description": desc,
		"preimage":    "pre",
	}
	for name, value := range want {
		if got := firstTag(ev.Tags, name); got != value {
			t.Errorf("tag %s = %q, want %q", name, got, value)
		}
	}
}

func TestZapPublishesToAllRelays(t *testing.T) {
	z, p := testZapper(t)
	p.fail = map[string]bool{"wss://ours.example.com": true}
	recipient := "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	desc := zapRequest(t, recipient, "wss://theirs.example.com", "wss://shared.example.com")
	z.Zap(context.Background(), lnurl.SettledInvoice{
		Invoice: lnurl.PendingInvoice{Hash: "H1", Bolt11: "lnbc1", Description: desc},
	})
	if len(p.relays) != 2 || p.relays[0] != "wss://theirs.example.com" || p.relays[1] != "wss://shared.example.com" {
		t.Errorf("published to %v", p.relays)
	}
}

func TestZapIgnoresNonZaps(t *testing.T) {
	z, p := testZapper(t)
	z.Zap(context.Background(), lnurl.SettledInvoice{
		Invoice: lnurl.PendingInvoice{Hash: "H1", Bolt11: "lnbc1", Description: `[["text/plain","hi"]]`},
	})
	if len(p.relays) != 0 {
		t.Errorf("published %v", p.relays)
	}
}

func TestNostrKeys(t *testing.T) {
	// secret key 1 has the generator point as public key
	sk := "0000000000000000000000000000000000000000000000000000000000000001"
	_, pk, err := NostrKeys(sk)
	if err != nil {
		t.Fatal(err)
	}
	if pk != "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798" {
		t.Errorf("pubkey = %s", pk)
	}
	if _, _, err := NostrKeys("nsec1notvalid"); !lnurl.IsError(err, lnurl.ConfigError) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestMergeRelays(t *testing.T) {
	got := mergeRelays([]string{"a", "b", ""}, []string{"b", " c "})
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("got %v", got)
	}
}
