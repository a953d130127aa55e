package lnurl

/*
The message subsystem exists to allow event-based access to
the various parts of the gateway's processes, for integration purposes.

A simple internal 'message bus' is passed around internally as a
singleton, with an internal goroutine and a 'send' method for sending
'messages'.

outbound destinations are created in config, which result in these
messages being routed to various external services, ie: MQTT, HTTP
callbacks, log-files, nostr relays. These are managed by MessageSubscribers:

MessageSubscribers are registered with the bus and are subscribed via
their own channels along with a list of EventTypes they want to subscribe
to.
*/

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const busCapacity = 1000

// MessageSubscribers are things that subscribe to the bus and handle
// messages, ie: MQTT, http callbacks etc.
type MessageSubscriber interface {
	GetChan() chan Message
}

// Created by the bus, wraps message sent with Send
type Message struct {
	EventType EventType       `json:"-"`
	Type      string          `json:"type"` // e.g. "INV:FORWARDED"
	Message   json.RawMessage `json:"message"`
	ID        string          `json:"id"` // optional
}

type Subscription struct {
	dest  MessageSubscriber
	types []EventType
}

func (s *Subscription) wants(t EventType) bool {
	for _, x := range s.types {
		if x.Type() == "ALL" || x.Type() == t.Type() {
			return true
		}
	}
	return false
}

func NewMessageBus() MessageBus {
	return MessageBus{
		register: make(chan *Subscription, 100),
		inbound:  make(chan Message, busCapacity),
	}
}

type MessageBus struct {
	// Register requests for MessageSubscribers.
	register chan *Subscription

	// Messages from Send(), destinated for MessageSubscribers
	inbound chan Message
}

// Send a message to the bus with a specific EventType
// msg can be anything JSON serialisable, this will be
// turned into a Message and delivered to any interested MessageSubscribers.
// Send never blocks: when the bus is backed up the message is dropped and
// an error returned.
func (b MessageBus) Send(t EventType, msg interface{}, msgID ...string) error {
	if b.inbound == nil {
		return nil // zero-value bus, nobody listening.
	}
	j, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	m := Message{EventType: t, Type: fmt.Sprintf("%s:%s", t.Type(), t), Message: j}
	if len(msgID) == 0 {
		m.ID = generateID()
	} else {
		m.ID = msgID[0]
	}
	select {
	case b.inbound <- m:
		return nil
	default:
		return NewErr(NotAvailable, "message bus full, dropped %s", m.Type)
	}
}

func (b MessageBus) Register(m MessageSubscriber, types ...EventType) {
	b.register <- &Subscription{m, types}
}

// Implements conductor Service
func (b MessageBus) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		receivers := make(map[*Subscription]bool)
		started <- true
		for {
			select {
			case <-stop:
				stopped <- true
				return
			case sub := <-b.register:
				receivers[sub] = true
			case message := <-b.inbound:
				for sub := range receivers {
					// check if this receiver wants this message type
					if !sub.wants(message.EventType) {
						continue
					}
					// send the message to the receiver
					select {
					case sub.dest.GetChan() <- message:
					default:
						// if we are unable to send, cancel the sub
						delete(receivers, sub)
						b.Send(SYS_ERR, "receiver failed to handle msg, unsubscribed")
					}
				}
			}
		}
	}()
	return nil
}

// create a short random ID for msgs that have none
func generateID() string {
	bytes := make([]byte, 4)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:8]
}
