package webapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/cashubtc/cashu-lnurl/pkg/conductor"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

// StatsFunc reports counters for /admin/stats.
type StatsFunc func() any

// WebAPI implements conductor.Service
type WebAPI struct {
	api    lnurl.API
	config lnurl.Config
	stats  map[string]StatsFunc
}

// interface guard ensures WebAPI implements conductor.Service
var _ conductor.Service = WebAPI{}

func NewWebAPI(config lnurl.Config, api lnurl.API, stats map[string]StatsFunc) (WebAPI, error) {
	if stats == nil {
		stats = map[string]StatsFunc{}
	}
	return WebAPI{api: api, config: config, stats: stats}, nil
}

func (t WebAPI) Run(started, stopped chan bool, stop chan context.Context) error {
	adminMux, pubMux := t.createRouters()

	// bind both listeners up front so a port clash fails startup
	adminAddr := net.JoinHostPort(t.config.WebAPI.AdminBind, t.config.WebAPI.AdminPort)
	adminLn, err := net.Listen("tcp", adminAddr)
	if err != nil {
		return lnurl.NewErr(lnurl.ConfigError, "admin API listen %s: %v", adminAddr, err)
	}
	pubAddr := net.JoinHostPort(t.config.WebAPI.Bind, t.config.WebAPI.Port)
	pubLn, err := net.Listen("tcp", pubAddr)
	if err != nil {
		adminLn.Close()
		return lnurl.NewErr(lnurl.ConfigError, "public API listen %s: %v", pubAddr, err)
	}

	adminServer := &http.Server{Handler: adminMux}
	pubServer := &http.Server{Handler: pubMux}
	failed := make(chan error, 2)
	serve := func(name string, srv *http.Server, l net.Listener) {
		log.Infof("WebAPI: %s API listening on %s", name, l.Addr())
		if err := srv.Serve(l); err != http.ErrServerClosed {
			failed <- err
		}
	}
	go serve("admin", adminServer, adminLn)
	go serve("public", pubServer, pubLn)

	go func() {
		started <- true
		var ctx context.Context
		select {
		case ctx = <-stop:
		case err := <-failed:
			log.Errorf("WebAPI: server failed: %v", err)
			ctx = context.Background()
		}
		adminServer.Shutdown(ctx)
		pubServer.Shutdown(ctx)
		stopped <- true
	}()
	return nil
}

func (t WebAPI) createRouters() (adminMux *httprouter.Router, pubMux *httprouter.Router) {
	adminMux = httprouter.New() // Admin APIs
	pubMux = httprouter.New()   // Public APIs

	// Admin APIs

	// GET /admin/pending?proxied=true -> [ {pending invoice}, .. ] unresolved invoices, oldest first
	adminMux.GET("/admin/pending", t.listPending)

	// GET /admin/stats -> { "stream": {..}, "forwarder": {..} }
	adminMux.GET("/admin/stats", t.getStats)

	// External APIs

	// GET /.well-known/lnurlp/:username -> { LNURL-pay response }
	pubMux.GET("/.well-known/lnurlp/:username", t.getPayRequest)

	// GET /lnurlp/:username/invoice?amount=<msat>&nostr=<zap request> -> { "pr": bolt11 }
	pubMux.GET("/lnurlp/:username/invoice", t.getInvoice)

	// GET /lnurlp/:username/qr.png -> LNURL QR code
	pubMux.GET("/lnurlp/:username/qr.png", t.getPayRequestQR)

	// GET /signup?username&pubkey&mint&proxy&relays -> 200, 409 if taken
	pubMux.GET("/signup", t.signUp)

	return
}

func (t WebAPI) getPayRequest(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	username := p.ByName("username")
	res, err := t.api.PayResponse(username)
	if err != nil {
		sendError(w, "PayResponse", err)
		return
	}
	sendResponse(w, res)
}

// getInvoice is the LNURL-pay callback.
func (t WebAPI) getInvoice(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	username := p.ByName("username")
	qs := r.URL.Query()
	amount, err := strconv.ParseUint(qs.Get("amount"), 10, 64)
	if err != nil {
		sendBadRequest(w, "amount invalid, must be millisatoshis")
		return
	}
	inv, err := t.api.CreateInvoice(r.Context(), username, amount, qs.Get("nostr"))
	if err != nil {
		sendError(w, "CreateInvoice", err)
		return
	}
	sendResponse(w, lnurl.InvoiceResponse{PR: inv.Bolt11, SuccessAction: nil, Routes: []string{}})
}

func (t WebAPI) getPayRequestQR(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	username := p.ByName("username")
	if _, err := t.api.Store.GetUser(username); err != nil {
		sendError(w, "GetUser", err)
		return
	}
	wellKnown, err := t.api.WellKnownURL(username)
	if err != nil {
		sendError(w, "WellKnownURL", err)
		return
	}
	encoded, err := lnurl.EncodeLNURL(wellKnown)
	if err != nil {
		sendError(w, "EncodeLNURL", err)
		return
	}
	qs := r.URL.Query()
	qr, err := GenerateQRCodePNG("lightning:"+encoded, 512, qs.Get("fg"), qs.Get("bg"))
	if err != nil {
		sendError(w, "GenerateQRCodePNG", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	// the LNURL of a user never changes
	w.Header().Set("Cache-Control", "max-age=900, immutable")
	w.Write(qr)
}

func (t WebAPI) signUp(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	qs := r.URL.Query()
	req := lnurl.SignupRequest{
		Username: qs.Get("username"),
		Pubkey:   qs.Get("pubkey"),
		Mint:     qs.Get("mint"),
		Relays:   splitRelays(qs["relays"]),
	}
	if proxy := qs.Get("proxy"); proxy != "" {
		v, err := strconv.ParseBool(proxy)
		if err != nil {
			sendBadRequest(w, "proxy invalid, must be true or false")
			return
		}
		req.Proxy = v
	}
	user, err := t.api.SignUp(req)
	if err != nil {
		sendError(w, "SignUp", err)
		return
	}
	sendResponse(w, user)
}

func (t WebAPI) listPending(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	proxied := false
	if v := r.URL.Query().Get("proxied"); v != "" {
		var err error
		if proxied, err = strconv.ParseBool(v); err != nil {
			sendBadRequest(w, "proxied invalid, must be true or false")
			return
		}
	}
	items, err := t.api.ListPendingInvoices(proxied)
	if err != nil {
		sendError(w, "ListPendingInvoices", err)
		return
	}
	sendResponse(w, items)
}

func (t WebAPI) getStats(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	out := make(map[string]any, len(t.stats))
	for name, fn := range t.stats {
		out[name] = fn()
	}
	sendResponse(w, out)
}

// splitRelays accepts relays=a&relays=b as well as relays=a,b
func splitRelays(values []string) []string {
	relays := []string{}
	seen := map[string]bool{}
	for _, v := range values {
		for _, r := range strings.Split(v, ",") {
			r = strings.TrimSpace(r)
			if r != "" && !seen[r] {
				seen[r] = true
				relays = append(relays, r)
			}
		}
	}
	return relays
}
