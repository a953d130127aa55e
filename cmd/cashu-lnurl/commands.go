package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/pkg/errors"
)

/*
	These commands are convenience CLI tools that operate on a
	running gateway by calling the admin REST API.
*/

type SubCommandArgs struct {
	RemoteAdminServer string
}

// ListPending prints the invoices the gateway is still waiting on. With
// proxiedOnly these are node invoices that were paid but never forwarded
// to the mint, or are yet to be paid.
func ListPending(c lnurl.Config, s SubCommandArgs, proxiedOnly bool) error {
	path := "/admin/pending"
	if proxiedOnly {
		path += "?proxied=true"
	}
	url, err := adminAPIURL(c, s, path)
	if err != nil {
		return err
	}
	var items []lnurl.PendingInvoice
	if err := getURL(url, &items); err != nil {
		return err
	}
	for _, inv := range items {
		fmt.Printf("%s\t%s\t%d sat\tproxied=%v\t%s\t%s\n",
			inv.Time.Format(time.RFC3339), inv.Hash, inv.AmountSats(), inv.Proxied, inv.Username, inv.Mint)
	}
	fmt.Printf("%d pending\n", len(items))
	return nil
}

// work out the remote admin URL from args or config and return
// a complete path with our best guess
func adminAPIURL(c lnurl.Config, s SubCommandArgs, path string) (string, error) {
	base := ""
	if s.RemoteAdminServer != "" {
		base = s.RemoteAdminServer
	} else {
		host := c.WebAPI.AdminBind
		if host == "" {
			host = "localhost"
		}
		base = fmt.Sprintf("http://%s:%s/", host, c.WebAPI.AdminPort)
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	p, err := url.Parse(path)
	if err != nil {
		return "", err
	}

	return u.ResolveReference(p).String(), nil
}

// fetch JSON from a remote gateway admin API
func getURL(url string, out any) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return errors.Wrap(err, "failed to send HTTP request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response status code: %d: %s", resp.StatusCode, body)
	}
	return errors.Wrap(json.Unmarshal(body, out), "decoding response")
}
