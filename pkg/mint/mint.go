// Package mint is a Cashu mint client: it asks a mint for the Lightning
// invoice that, once paid, entitles the payee to mint ecash.
package mint

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/pkg/errors"
)

// interface guard ensures Client implements lnurl.Mint
var _ lnurl.Mint = Client{}

type Client struct {
	HTTP *http.Client
}

func NewClient() Client {
	return Client{HTTP: &http.Client{Timeout: 30 * time.Second}}
}

// errorResponse covers both error shapes mints send back.
type errorResponse struct {
	Code   int    `json:"code"`
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

func (e errorResponse) message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Error
}

// RequestMint asks mintURL for an invoice of amountSats
// (GET <mint>/mint?amount=<sats>).
func (c Client) RequestMint(ctx context.Context, amountSats uint64, mintURL string) (lnurl.MintQuote, error) {
	endpoint, err := url.JoinPath(mintURL, "mint")
	if err != nil {
		return lnurl.MintQuote{}, lnurl.NewErr(lnurl.BadRequest, "invalid mint url %q: %v", mintURL, err)
	}
	q := url.Values{"amount": {strconv.FormatUint(amountSats, 10)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return lnurl.MintQuote{}, errors.Wrap(err, "mint request")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return lnurl.MintQuote{}, ctx.Err()
		}
		return lnurl.MintQuote{}, lnurl.NewErr(lnurl.NotAvailable, "mint %s unreachable: %v", mintURL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return lnurl.MintQuote{}, lnurl.NewErr(lnurl.NotAvailable, "mint %s: reading response: %v", mintURL, err)
	}

	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.message() != "" {
		return lnurl.MintQuote{}, lnurl.NewErr(lnurl.NotAvailable, "mint %s: %s (code %d)", mintURL, e.message(), e.Code)
	}
	if resp.StatusCode != http.StatusOK {
		return lnurl.MintQuote{}, lnurl.NewErr(lnurl.NotAvailable, "mint %s: status %d", mintURL, resp.StatusCode)
	}

	var quote lnurl.MintQuote
	if err := json.Unmarshal(body, &quote); err != nil {
		return lnurl.MintQuote{}, lnurl.NewErr(lnurl.ProtocolMismatch, "mint %s: bad response: %v", mintURL, err)
	}
	if quote.Bolt11 == "" || quote.Hash == "" {
		return lnurl.MintQuote{}, lnurl.NewErr(lnurl.ProtocolMismatch, "mint %s: response without pr/hash", mintURL)
	}
	return quote, nil
}
