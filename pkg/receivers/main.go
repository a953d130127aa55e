package receivers

import (
	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/cashubtc/cashu-lnurl/pkg/conductor"
)

// Sets up standard receivers. The Zapper is returned so its public key
// can be advertised in LNURL-pay responses; it is nil without a nostr key.
func SetUpReceivers(cond *conductor.Conductor, bus lnurl.MessageBus, conf lnurl.Config) (*Zapper, error) {
	// Set up configured loggers
	SetupLoggers(cond, bus, conf)

	// Set up configured Callbacks
	SetupCallbacks(cond, bus, conf)

	// Set up MQTT publishing
	SetupMQTTs(cond, bus, conf)

	// Zap receipts for settled zap requests
	return SetupZapper(cond, bus, conf)
}
