package lnurl

import (
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

type Tag string

const TagPayRequest Tag = "payRequest"

// PayResponse is the LNURL-pay (LUD-06) first-step response, with the
// NIP-57 zap extension. Sendable amounts are millisatoshis.
type PayResponse struct {
	MinSendable uint64 `json:"minSendable"`
	MaxSendable uint64 `json:"maxSendable"`
	// Metadata json which must be presented as raw string here, this is
	// required to pass signature verification at a later step.
	Metadata    string `json:"metadata"`
	Callback    string `json:"callback"`
	Tag         Tag    `json:"tag"`
	AllowsNostr bool   `json:"allowsNostr"`
	NostrPubkey string `json:"nostrPubkey,omitempty"`
}

// InvoiceResponse is the LNURL-pay callback response.
type InvoiceResponse struct {
	PR            string   `json:"pr"`
	SuccessAction *string  `json:"successAction"`
	Routes        []string `json:"routes"`
}

// EncodeLNURL bech32-encodes a URL with the "lnurl" prefix (LUD-01).
func EncodeLNURL(rawURL string) (string, error) {
	conv, err := bech32.ConvertBits([]byte(rawURL), 8, 5, true)
	if err != nil {
		return "", NewErr(BadRequest, "lnurl: %v", err)
	}
	s, err := bech32.Encode("lnurl", conv)
	if err != nil {
		return "", NewErr(BadRequest, "lnurl: %v", err)
	}
	return strings.ToUpper(s), nil
}
