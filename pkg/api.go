package lnurl

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// API is the LNURL-pay application layer. LN is nil when no Lightning
// node is configured, in which case every invoice comes from a mint.
type API struct {
	Store       Store
	LN          Lightning
	Mint        Mint
	Bus         MessageBus
	Config      Config
	NostrPubkey string // hex, empty when zaps are not supported
}

func NewAPI(store Store, ln Lightning, mint Mint, bus MessageBus, config Config, nostrPubkey string) API {
	return API{store, ln, mint, bus, config, nostrPubkey}
}

// PayResponse builds the LNURL-pay first-step response for a user.
func (a API) PayResponse(username string) (PayResponse, error) {
	_, err := a.Store.GetUser(username)
	if err != nil {
		return PayResponse{}, err
	}
	callback, err := a.CallbackURL(username)
	if err != nil {
		return PayResponse{}, err
	}
	metadata, err := a.Metadata()
	if err != nil {
		return PayResponse{}, err
	}
	return PayResponse{
		MinSendable: a.Config.Info.MinSendable * 1000,
		MaxSendable: a.Config.Info.MaxSendable * 1000,
		Metadata:    metadata,
		Callback:    callback,
		Tag:         TagPayRequest,
		AllowsNostr: a.NostrPubkey != "",
		NostrPubkey: a.NostrPubkey,
	}, nil
}

// Metadata is the LNURL metadata string, [["text/plain", description]].
func (a API) Metadata() (string, error) {
	b, err := json.Marshal([][]string{{"text/plain", a.Config.Info.InvoiceDescription}})
	if err != nil {
		return "", NewErr(UnknownError, "encoding metadata: %v", err)
	}
	return string(b), nil
}

// CallbackURL is <base>/lnurlp/<username>/invoice
func (a API) CallbackURL(username string) (string, error) {
	base, err := url.Parse(a.Config.Info.Url)
	if err != nil {
		return "", NewErr(ConfigError, "invalid base url %q: %v", a.Config.Info.Url, err)
	}
	return base.JoinPath("lnurlp", username, "invoice").String(), nil
}

// WellKnownURL is <base>/.well-known/lnurlp/<username>
func (a API) WellKnownURL(username string) (string, error) {
	base, err := url.Parse(a.Config.Info.Url)
	if err != nil {
		return "", NewErr(ConfigError, "invalid base url %q: %v", a.Config.Info.Url, err)
	}
	return base.JoinPath(".well-known", "lnurlp", username).String(), nil
}

// CreateInvoice answers the LNURL-pay callback. If both the gateway and
// the user have proxying enabled the invoice is issued by our own node
// and tracked for forwarding, otherwise the user's mint issues it.
// nostr is the optional zap request, committed to as the description.
func (a API) CreateInvoice(ctx context.Context, username string, amountMsat uint64, nostr string) (PendingInvoice, error) {
	user, err := a.Store.GetUser(username)
	if err != nil {
		return PendingInvoice{}, err
	}
	min, max := a.Config.Info.MinSendable*1000, a.Config.Info.MaxSendable*1000
	if amountMsat < min || amountMsat > max {
		return PendingInvoice{}, NewErr(BadRequest, "amount %d msat outside [%d, %d]", amountMsat, min, max)
	}
	sats := amountMsat / 1000
	if sats == 0 {
		return PendingInvoice{}, NewErr(BadRequest, "amount must be at least 1 sat")
	}

	var inv PendingInvoice
	if a.Config.Info.Proxy && user.Proxy && a.LN != nil {
		// the invoice commits to the zap request if there is one, else
		// to the metadata we advertised.
		description := nostr
		if description == "" {
			if description, err = a.Metadata(); err != nil {
				return PendingInvoice{}, err
			}
		}
		res, err := a.LN.Invoice(ctx, sats*1000, description, uuid.New().String())
		if err != nil {
			log.Errorf("API: node invoice for %s failed: %v", username, err)
			return PendingInvoice{}, err
		}
		now := time.Now()
		inv = PendingInvoice{
			Mint:        user.Mint,
			Username:    username,
			Description: nostr,
			Amount:      sats * 1000,
			Hash:        res.PaymentHash,
			Bolt11:      res.Bolt11,
			LastChecked: &now,
			Proxied:     true,
			Time:        now,
		}
		// the forwarder can only act on invoices it can find.
		if err := a.Store.StorePendingInvoice(inv); err != nil {
			return PendingInvoice{}, err
		}
	} else {
		quote, err := a.Mint.RequestMint(ctx, sats, user.Mint)
		if err != nil {
			log.Warnf("API: mint request for %s failed: %v", username, err)
			return PendingInvoice{}, err
		}
		inv = PendingInvoice{
			Mint:        user.Mint,
			Username:    username,
			Description: nostr,
			Amount:      sats * 1000,
			Hash:        quote.Hash,
			Bolt11:      quote.Bolt11,
			Proxied:     false,
			Time:        time.Now(),
		}
		if err := a.Store.StorePendingInvoice(inv); err != nil {
			log.Warnf("API: could not add pending invoice %s: %v", inv.Hash, err)
		}
	}
	a.Bus.Send(INV_CREATED, inv, inv.Hash)
	return inv, nil
}

// SignUp registers a new user.
func (a API) SignUp(req SignupRequest) (User, error) {
	if err := req.Validate(); err != nil {
		return User{}, err
	}
	if _, err := a.Store.GetUser(req.Username); err == nil {
		return User{}, NewErr(AlreadyExists, "user already exists: %s", req.Username)
	} else if !IsNotFoundError(err) {
		return User{}, err
	}
	relays := req.Relays
	if relays == nil {
		relays = []string{}
	}
	user := User{
		Username: req.Username,
		Mint:     req.Mint,
		Pubkey:   req.Pubkey,
		Relays:   relays,
		Proxy:    req.Proxy,
	}
	if err := a.Store.CreateUser(user); err != nil {
		return User{}, err
	}
	a.Bus.Send(USR_CREATED, user, user.Username)
	return user, nil
}

func (a API) ListPendingInvoices(proxiedOnly bool) ([]PendingInvoice, error) {
	items, err := a.Store.ListPendingInvoices(proxiedOnly)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []PendingInvoice{} // encoded as '[]' in JSON
	}
	return items, nil
}
