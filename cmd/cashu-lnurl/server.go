package main

import (
	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/cashubtc/cashu-lnurl/pkg/checkpoint"
	"github.com/cashubtc/cashu-lnurl/pkg/cln"
	"github.com/cashubtc/cashu-lnurl/pkg/conductor"
	"github.com/cashubtc/cashu-lnurl/pkg/lnd"
	"github.com/cashubtc/cashu-lnurl/pkg/mint"
	"github.com/cashubtc/cashu-lnurl/pkg/paywatch"
	"github.com/cashubtc/cashu-lnurl/pkg/receivers"
	"github.com/cashubtc/cashu-lnurl/pkg/services"
	"github.com/cashubtc/cashu-lnurl/pkg/store"
	"github.com/cashubtc/cashu-lnurl/pkg/webapi"
	log "github.com/sirupsen/logrus"
)

type closer interface {
	Close() error
}

func Server(conf lnurl.Config) {
	if err := lnurl.SetupLogging(conf); err != nil {
		log.Fatal(err)
	}

	c := conductor.NewConductor(
		conductor.HookSignals(),
		conductor.Noisy(),
	)

	// Start the MessageBus Service
	bus := lnurl.NewMessageBus()
	c.Service("MessageBus", bus)

	// Set up all configured receivers
	zapper, err := receivers.SetUpReceivers(c, bus, conf)
	if err != nil {
		log.Fatal(err)
	}
	nostrPubkey := ""
	if zapper != nil {
		nostrPubkey = zapper.Pubkey()
	}

	// Setup a Store
	dbPath, err := conf.DBPath()
	if err != nil {
		log.Fatal(err)
	}
	store, err := store.NewStore(dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	m := mint.NewClient()
	stats := map[string]webapi.StatsFunc{}

	// The node is only needed when we issue invoices ourselves. The
	// invoice stream gets its own connection so a long-poll never holds
	// up invoice creation or payments.
	var ln lnurl.Lightning
	if conf.Info.Proxy {
		node, waiter, err := connectNode(conf)
		if err != nil {
			log.Fatal(err)
		}
		defer node.(closer).Close()
		defer waiter.(closer).Close()
		ln = node

		path := conf.Lightning.PayIndexPath
		if path == "" {
			if path, err = checkpoint.DefaultPath(); err != nil {
				log.Fatal(err)
			}
		}
		cp := checkpoint.NewFile(path)
		start := checkpoint.Load(cp)
		log.Infof("Server: resuming invoice stream after pay index %d (%s)", start, path)

		stream := paywatch.NewInvoiceStream(waiter, cp, start,
			paywatch.RetryDelay(conf.Lightning.RetryDelay),
			paywatch.Bus(bus),
		)
		stats["stream"] = func() any { return stream.Stats() }

		// Start internal services
		if fwd := services.StartServices(c, bus, conf, store, stream, m, ln); fwd != nil {
			stats["forwarder"] = func() any { return fwd.Stats() }
		}
	}

	api := lnurl.NewAPI(store, ln, m, bus, conf, nostrPubkey)

	// Start the LNURL API
	p, err := webapi.NewWebAPI(conf, api, stats)
	if err != nil {
		log.Fatal(err)
	}
	c.Service("LNURL API", p)

	bus.Send(lnurl.SYS_STARTUP, "")
	<-c.Start()
}

// connectNode opens two connections to the configured node: one shared
// for invoices and payments, one dedicated to waiting on settlements.
func connectNode(conf lnurl.Config) (lnurl.Lightning, lnurl.Lightning, error) {
	switch conf.Lightning.Backend {
	case "lnd":
		node, err := lnd.NewClient(lnd.ConfigFrom(conf))
		if err != nil {
			return nil, nil, err
		}
		waiter, err := lnd.NewClient(lnd.ConfigFrom(conf))
		if err != nil {
			node.Close()
			return nil, nil, err
		}
		return node, waiter, nil
	default:
		return cln.NewClient(conf.Lightning.ClnPath), cln.NewClient(conf.Lightning.ClnPath), nil
	}
}
