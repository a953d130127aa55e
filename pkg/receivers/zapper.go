package receivers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/cashubtc/cashu-lnurl/pkg/conductor"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	log "github.com/sirupsen/logrus"
)

const publishTimeout = 10 * time.Second

// Publisher sends a signed event to one relay.
type Publisher func(ctx context.Context, relayURL string, ev nostr.Event) error

// Zapper publishes NIP-57 zap receipts (kind 9735) for settled invoices
// whose description is a zap request.
type Zapper struct {
	Rec     chan lnurl.Message
	Bus     lnurl.MessageBus
	secret  string // hex
	pubkey  string // hex
	relays  []string
	publish Publisher
}

// NostrKeys decodes a nsec (or hex secret key) and returns the hex
// secret and public key.
func NostrKeys(nsec string) (secret, pubkey string, err error) {
	secret = nsec
	if strings.HasPrefix(nsec, "nsec") {
		prefix, value, err := nip19.Decode(nsec)
		if err != nil || prefix != "nsec" {
			return "", "", lnurl.NewErr(lnurl.ConfigError, "invalid nsec: %v", err)
		}
		secret = value.(string)
	}
	pubkey, err = nostr.GetPublicKey(secret)
	if err != nil {
		return "", "", lnurl.NewErr(lnurl.ConfigError, "invalid nostr secret key: %v", err)
	}
	return secret, pubkey, nil
}

func NewZapper(nsec string, relays []string, bus lnurl.MessageBus) (*Zapper, error) {
	secret, pubkey, err := NostrKeys(nsec)
	if err != nil {
		return nil, err
	}
	return &Zapper{
		Rec:     make(chan lnurl.Message, 1000),
		Bus:     bus,
		secret:  secret,
		pubkey:  pubkey,
		relays:  relays,
		publish: publishToRelay,
	}, nil
}

func (z *Zapper) Pubkey() string {
	return z.pubkey
}

// Implements lnurl.MessageSubscriber
func (z *Zapper) GetChan() chan lnurl.Message {
	return z.Rec
}

// Implements conductor.Service
func (z *Zapper) Run(started, stopped chan bool, stop chan context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		started <- true
		for {
			select {
			case <-stop:
				cancel()
				close(stopped)
				return
			case msg := <-z.Rec:
				if msg.Type != fmt.Sprintf("%s:%s", lnurl.INV_SETTLED.Type(), lnurl.INV_SETTLED) {
					continue
				}
				var settled lnurl.SettledInvoice
				if err := json.Unmarshal(msg.Message, &settled); err != nil {
					log.Warnf("Zapper: bad INV:SETTLED payload %s: %v", msg.ID, err)
					continue
				}
				go z.Zap(ctx, settled)
			}
		}
	}()
	return nil
}

// Zap builds, signs and publishes the receipt for a settled invoice. It
// is a no-op for invoices that are not zaps.
func (z *Zapper) Zap(ctx context.Context, settled lnurl.SettledInvoice) {
	req, err := ParseZapRequest(settled.Invoice.Description)
	if err != nil {
		log.Debugf("Zapper: %s is not a zap: %v", settled.Invoice.Hash, err)
		return
	}
	receipt, err := z.Receipt(req, settled)
	if err != nil {
		log.Warnf("Zapper: cannot build receipt for %s: %v", settled.Invoice.Hash, err)
		return
	}
	relays := mergeRelays(zapRelays(req), z.relays)
	ok := 0
	for _, url := range relays {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := z.publish(pctx, url, receipt)
		cancel()
		if err != nil {
			log.Warnf("Zapper: publish to %s failed: %v", url, err)
			continue
		}
		ok++
	}
	log.Infof("Zapper: zap receipt %s for %s published to %d/%d relays", receipt.ID, settled.Invoice.Hash, ok, len(relays))
	if ok == 0 && len(relays) > 0 {
		z.Bus.Send(lnurl.SYS_ERR, fmt.Sprintf("Zapper: receipt for %s reached no relay", settled.Invoice.Hash))
	}
}

// ParseZapRequest checks that description is a signed kind 9734 event.
func ParseZapRequest(description string) (nostr.Event, error) {
	var req nostr.Event
	if description == "" {
		return req, lnurl.NewErr(lnurl.BadRequest, "no description")
	}
	if err := json.Unmarshal([]byte(description), &req); err != nil {
		return req, lnurl.NewErr(lnurl.BadRequest, "description is not an event: %v", err)
	}
	if req.Kind != nostr.KindZapRequest {
		return req, lnurl.NewErr(lnurl.BadRequest, "event kind %d is not a zap request", req.Kind)
	}
	if ok, err := req.CheckSignature(); err != nil || !ok {
		return req, lnurl.NewErr(lnurl.BadRequest, "zap request signature invalid: %v", err)
	}
	if firstTag(req.Tags, "p") == "" {
		return req, lnurl.NewErr(lnurl.BadRequest, "zap request has no p tag")
	}
	return req, nil
}

// Receipt returns the signed kind 9735 event for req.
func (z *Zapper) Receipt(req nostr.Event, settled lnurl.SettledInvoice) (nostr.Event, error) {
	created := settled.Event.PaidAt
	if created.IsZero() {
		created = time.Now()
	}
	bolt11 := settled.Event.Bolt11
	if bolt11 == "" {
		bolt11 = settled.Invoice.Bolt11
	}
	tags := nostr.Tags{nostr.Tag{"p", firstTag(req.Tags, "p")}}
	if e := firstTag(req.Tags, "e"); e != "" {
		tags = append(tags, nostr.Tag{"e", e})
	}
	if a := firstTag(req.Tags, "a"); a != "" {
		tags = append(tags, nostr.Tag{"a", a})
	}
	tags = append(tags,
		nostr.Tag{"P", req.PubKey},
		nostr.Tag{"bolt11", bolt11},
		nostr.Tag{"description", settled.Invoice.Description},
	)
	if settled.Event.Preimage != "" {
		tags = append(tags, nostr.Tag{"preimage", settled.Event.Preimage})
	}
	ev := nostr.Event{
		PubKey:    z.pubkey,
		CreatedAt: nostr.Timestamp(created.Unix()),
		Kind:      nostr.KindZap,
		Tags:      tags,
		Content:   "",
	}
	if err := ev.Sign(z.secret); err != nil {
		return nostr.Event{}, err
	}
	return ev, nil
}

func firstTag(tags nostr.Tags, name string) string {
	for _, t := range tags {
		if len(t) >= 2 && t[0] == name {
			return t[1]
		}
	}
	return ""
}

func zapRelays(req nostr.Event) []string {
	for _, t := range req.Tags {
		if len(t) >= 1 && t[0] == "relays" {
			return t[1:]
		}
	}
	return nil
}

func mergeRelays(lists ...[]string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, l := range lists {
		for _, r := range l {
			r = strings.TrimSpace(r)
			if r == "" || seen[r] {
				continue
			}
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

func publishToRelay(ctx context.Context, relayURL string, ev nostr.Event) error {
	relay, err := nostr.RelayConnect(ctx, relayURL)
	if err != nil {
		return err
	}
	defer relay.Close()
	return relay.Publish(ctx, ev)
}

// SetupZapper publishes zap receipts when a nostr key is configured.
func SetupZapper(cond *conductor.Conductor, bus lnurl.MessageBus, conf lnurl.Config) (*Zapper, error) {
	if conf.Nostr.Nsec == "" {
		return nil, nil
	}
	z, err := NewZapper(conf.Nostr.Nsec, conf.Nostr.Relays, bus)
	if err != nil {
		return nil, err
	}
	cond.Service("Zapper", z)
	bus.Register(z, lnurl.EVENT_INV("INV"))
	return z, nil
}
