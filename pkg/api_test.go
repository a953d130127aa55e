package lnurl

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

type memStore struct {
	mu       sync.Mutex
	invoices map[string]PendingInvoice
	users    map[string]User
	failPut  error
}

func newMemStore() *memStore {
	return &memStore{invoices: map[string]PendingInvoice{}, users: map[string]User{}}
}

func (s *memStore) GetPendingInvoice(hash string) (PendingInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[hash]
	if !ok {
		return PendingInvoice{}, NewErr(NotFound, "no invoice %s", hash)
	}
	return inv, nil
}

func (s *memStore) StorePendingInvoice(inv PendingInvoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut != nil {
		return s.failPut
	}
	s.invoices[inv.Hash] = inv
	return nil
}

func (s *memStore) RemovePendingInvoice(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.invoices, hash)
	return nil
}

func (s *memStore) ListPendingInvoices(proxiedOnly bool) ([]PendingInvoice, error) {
	return nil, nil
}

func (s *memStore) GetUser(username string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return User{}, NewErr(NotFound, "no user %s", username)
	}
	return u, nil
}

func (s *memStore) CreateUser(u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Username] = u
	return nil
}

func (s *memStore) Close() {}

type stubMint struct {
	err  error
	sats uint64
}

func (m *stubMint) RequestMint(ctx context.Context, amountSats uint64, mintURL string) (MintQuote, error) {
	m.sats = amountSats
	if m.err != nil {
		return MintQuote{}, m.err
	}
	return MintQuote{Hash: "M1", Bolt11: "lnbc-mint"}, nil
}

type stubNode struct {
	description string
	label       string
}

func (n *stubNode) WaitAnyInvoice(ctx context.Context, last uint64) (InvoiceEvent, error) {
	<-ctx.Done()
	return InvoiceEvent{}, ctx.Err()
}

func (n *stubNode) Invoice(ctx context.Context, amountMsat uint64, description, label string) (NodeInvoice, error) {
	n.description, n.label = description, label
	return NodeInvoice{PaymentHash: "N1", Bolt11: "lnbc-node"}, nil
}

func (n *stubNode) Pay(ctx context.Context, bolt11 string, maxFeeMsat uint64) (PayResult, error) {
	return PayResult{}, nil
}

const testPubkey = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

func TestPayResponse(t *testing.T) {
	s := newMemStore()
	s.CreateUser(User{Username: "alice", Mint: "m", Pubkey: testPubkey})
	api := NewAPI(s, nil, &stubMint{}, MessageBus{}, TestConfig(), "")

	res, err := api.PayResponse("alice")
	if err != nil {
		t.Fatal(err)
	}
	if res.AllowsNostr || res.NostrPubkey != "" {
		t.Error("zaps advertised without a nostr key")
	}
	if res.MinSendable != 1000 || res.Callback != "http://example.com/lnurlp/alice/invoice" {
		t.Errorf("unexpected response %+v", res)
	}
	if _, err := api.PayResponse("bob"); !IsNotFoundError(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestCreateInvoiceProxyNeedsBothFlags(t *testing.T) {
	config := TestConfig()
	config.Info.Proxy = true
	s := newMemStore()
	s.CreateUser(User{Username: "alice", Mint: "m", Pubkey: testPubkey, Proxy: false})
	mint, node := &stubMint{}, &stubNode{}
	api := NewAPI(s, node, mint, MessageBus{}, config, "")

	inv, err := api.CreateInvoice(context.Background(), "alice", 5000, "")
	if err != nil {
		t.Fatal(err)
	}
	if inv.Hash != "M1" || inv.Proxied || mint.sats != 5 {
		t.Errorf("user without proxy should be served by the mint: %+v", inv)
	}

	s.CreateUser(User{Username: "carol", Mint: "m", Pubkey: testPubkey, Proxy: true})
	inv, err = api.CreateInvoice(context.Background(), "carol", 5000, "")
	if err != nil {
		t.Fatal(err)
	}
	if inv.Hash != "N1" || !inv.Proxied || node.label == "" {
		t.Errorf("expected a node invoice: %+v", inv)
	}
	if node.description != `[["text/plain","Hello World"]]` {
		t.Errorf("description %q", node.description)
	}
}

func TestCreateInvoiceFailures(t *testing.T) {
	s := newMemStore()
	s.CreateUser(User{Username: "alice", Mint: "m", Pubkey: testPubkey})
	mint := &stubMint{err: NewErr(NotAvailable, "mint down")}
	api := NewAPI(s, nil, mint, MessageBus{}, TestConfig(), "")

	if _, err := api.CreateInvoice(context.Background(), "alice", 5000, ""); !IsNotAvailableError(err) {
		t.Errorf("expected NotAvailable, got %v", err)
	}

	// the mint path does not fail the request when the store does
	mint.err = nil
	s.failPut = errors.New("disk full")
	inv, err := api.CreateInvoice(context.Background(), "alice", 5000, "")
	if err != nil || inv.Bolt11 != "lnbc-mint" {
		t.Errorf("got %+v, %v", inv, err)
	}

	// the proxy path does
	config := TestConfig()
	config.Info.Proxy = true
	s.CreateUser(User{Username: "carol", Mint: "m", Pubkey: testPubkey, Proxy: true})
	api = NewAPI(s, &stubNode{}, mint, MessageBus{}, config, "")
	if _, err := api.CreateInvoice(context.Background(), "carol", 5000, ""); err == nil {
		t.Error("expected store failure to fail a proxied invoice")
	}
}

func TestSignUp(t *testing.T) {
	s := newMemStore()
	api := NewAPI(s, nil, &stubMint{}, MessageBus{}, TestConfig(), "")

	user, err := api.SignUp(SignupRequest{Username: "alice", Pubkey: testPubkey, Mint: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if user.Relays == nil {
		t.Error("relays should default to an empty list")
	}
	if _, err := api.SignUp(SignupRequest{Username: "alice", Pubkey: testPubkey, Mint: "m"}); !IsAlreadyExistsError(err) {
		t.Errorf("expected AlreadyExists, got %v", err)
	}
	for _, req := range []SignupRequest{
		{Pubkey: testPubkey, Mint: "m"},
		{Username: "bob", Pubkey: testPubkey},
		{Username: "bob", Pubkey: "zz", Mint: "m"},
		{Username: "bob", Pubkey: testPubkey[:62], Mint: "m"},
	} {
		if _, err := api.SignUp(req); !IsError(err, BadRequest) {
			t.Errorf("%+v: expected BadRequest, got %v", req, err)
		}
	}
}

func TestEncodeLNURL(t *testing.T) {
	url := "https://example.com/.well-known/lnurlp/alice"
	got, err := EncodeLNURL(url)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "LNURL1") || strings.ToUpper(got) != got {
		t.Fatalf("unexpected encoding %s", got)
	}
	hrp, data, err := bech32.DecodeNoLimit(got)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		t.Fatal(err)
	}
	if hrp != "lnurl" || string(raw) != url {
		t.Errorf("decoded %s %q", hrp, raw)
	}
}
