package lnurl

import (
	"encoding/hex"
)

// User is a local payee reachable as <username>@<domain>.
type User struct {
	Username string   `json:"username"`
	Mint     string   `json:"mint"`   // where this user's ecash is minted
	Pubkey   string   `json:"pubkey"` // nostr x-only public key (hex)
	Relays   []string `json:"relays"`
	// Proxy asks the gateway to issue invoices on its own node.
	Proxy bool `json:"proxy"`
}

// SignupRequest carries the /signup query parameters.
type SignupRequest struct {
	Username string
	Pubkey   string
	Mint     string
	Proxy    bool
	Relays   []string
}

func (r SignupRequest) Validate() error {
	if r.Username == "" {
		return NewErr(BadRequest, "missing username")
	}
	if r.Mint == "" {
		return NewErr(BadRequest, "missing mint")
	}
	b, err := hex.DecodeString(r.Pubkey)
	if err != nil || len(b) != 32 {
		return NewErr(BadRequest, "pubkey must be a 32-byte x-only public key in hex")
	}
	return nil
}
