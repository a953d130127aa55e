package receivers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/cashubtc/cashu-lnurl/pkg/conductor"
	log "github.com/sirupsen/logrus"
)

const (
	SignatureHeader = "X-Lnurl-Signature"
	TimestampHeader = "X-Lnurl-Timestamp"
)

func NewCallbackSender(config lnurl.CallbackConfig, bus lnurl.MessageBus) CallbackSender {
	return CallbackSender{
		Rec:          make(chan lnurl.Message, 1000),
		Path:         config.Path,
		HMACSecret:   config.HMACSecret,
		Bus:          bus,
		Client:       &http.Client{Timeout: 30 * time.Second},
		MaxRetries:   6,
		InitialDelay: 1 * time.Second,
		MaxDelay:     32 * time.Second,
	}
}

// CallbackSender POSTs bus messages as JSON to a configured URL. When a
// secret is configured each request carries an HMAC-SHA256 signature of
// "<timestamp>.<body>".
type CallbackSender struct {
	// incomming msgs
	Rec        chan lnurl.Message
	Path       string
	HMACSecret string
	Bus        lnurl.MessageBus
	Client     *http.Client

	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Implements lnurl.MessageSubscriber
func (s CallbackSender) GetChan() chan lnurl.Message {
	return s.Rec
}

// Implements conductor.Service
func (s CallbackSender) Run(started, stopped chan bool, stop chan context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		started <- true
		for {
			select {
			// handle stopping the service
			case <-stop:
				cancel()
				close(stopped)
				return
			case msg := <-s.Rec:
				// deliver in the background so one slow endpoint does not
				// back up the bus
				go func(msg lnurl.Message) {
					if err := s.postWithRetry(ctx, msg); err != nil {
						log.Warnf("CallbackSender: %s: %v", s.Path, err)
						s.Bus.Send(lnurl.SYS_ERR, fmt.Sprintf("CallbackSender: %s: %v", s.Path, err))
					}
				}(msg)
			}
		}
	}()
	return nil
}

// Reads config and sets up any configured callbacks
func SetupCallbacks(cond *conductor.Conductor, bus lnurl.MessageBus, conf lnurl.Config) {
	for name, c := range conf.Callbacks {
		s := NewCallbackSender(c, bus)
		cond.Service(fmt.Sprintf("Callback sender for: %s", c.Path), s)

		types, invalid := lnurl.LookupEventTypes(c.Types)
		for _, t := range invalid {
			log.Warnf("Callback %s: ignoring invalid message type: %s", name, t)
		}
		bus.Register(s, types...)
	}
}

func generateSha256HMAC(timestamp string, payload []byte, secret string) string {
	if secret == "" {
		return ""
	}

	dataToSign := []byte(fmt.Sprintf("%s.%s", timestamp, string(payload)))
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(dataToSign)

	return hex.EncodeToString(h.Sum(nil))
}

func (s CallbackSender) postWithRetry(ctx context.Context, msg lnurl.Message) error {
	objJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message to JSON: %v", err)
	}

	delay := s.InitialDelay
	var lastErr error
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Debugf("CallbackSender: %s failed (attempt %d/%d), retrying in %v: %v", s.Path, attempt, s.MaxRetries+1, delay, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Increase delay exponentially, with a maximum limit
			delay *= 2
			if delay > s.MaxDelay {
				delay = s.MaxDelay
			}
		}
		lastErr = s.post(ctx, objJSON)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("request failed after %d attempts: %v", s.MaxRetries+1, lastErr)
}

func (s CallbackSender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.HMACSecret != "" {
		timestampStr := fmt.Sprintf("%d", time.Now().Unix())
		signature := generateSha256HMAC(timestampStr, body, s.HMACSecret)
		req.Header.Set(SignatureHeader, fmt.Sprintf("sha256=%s", signature))
		req.Header.Set(TimestampHeader, timestampStr)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
