package receivers

import (
	"context"
	"encoding/json"
	"fmt"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/cashubtc/cashu-lnurl/pkg/conductor"
	"github.com/yosssi/gmq/mqtt"
	"github.com/yosssi/gmq/mqtt/client"
)

func NewMQTTSender(config lnurl.MQTTConfig, bus lnurl.MessageBus) MQTTSender {
	return MQTTSender{
		make(chan lnurl.Message, 1000),
		config,
		bus,
	}
}

type MQTTSender struct {
	// incomming msgs
	Rec    chan lnurl.Message
	Config lnurl.MQTTConfig
	Bus    lnurl.MessageBus
}

// Implements lnurl.MessageSubscriber
func (s MQTTSender) GetChan() chan lnurl.Message {
	return s.Rec
}

// Implements conductor.Service
func (s MQTTSender) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		cli := client.New(&client.Options{
			// Define the processing of the error handler.
			ErrorHandler: func(err error) {
				s.Bus.Send(lnurl.SYS_ERR, fmt.Sprintf("MQTTSender: %s", err))
			},
		})
		defer cli.Terminate()

		// connect to MQTT Bus
		err := cli.Connect(&client.ConnectOptions{
			Network:  "tcp",
			Address:  s.Config.Address,
			ClientID: []byte(s.Config.ClientID),
			UserName: []byte(s.Config.Username),
			Password: []byte(s.Config.Password),
		})
		if err != nil {
			s.Bus.Send(lnurl.SYS_ERR, fmt.Sprintf("MQTTSender connection failure %s", err))
			// ending takes the gateway down with us, see conductor
			close(stopped)
			return
		}

		// Successfully started up
		started <- true

		for {
			select {
			// handle stopping the service
			case <-stop:
				cli.Disconnect()
				close(stopped)
				return
			case msg := <-s.Rec:
				jsonMsg, err := json.Marshal(msg)
				if err != nil {
					s.Bus.Send(lnurl.SYS_ERR, fmt.Sprintf("MQTTSender failed to marshall msg: %s", msg.ID))
					continue
				}
				for _, queue := range s.Config.Queues {
					if !queueWants(queue, msg) {
						continue
					}
					//send message to topic
					err = cli.Publish(&client.PublishOptions{
						QoS:       mqtt.QoS0,
						TopicName: []byte(queue.TopicFilter),
						Message:   jsonMsg,
					})
					if err != nil {
						s.Bus.Send(lnurl.SYS_ERR, fmt.Sprintf("MQTTSender: publish %s to %s: %v", msg.ID, queue.TopicFilter, err))
					}
				}
			}
		}
	}()
	return nil
}

// queueWants reports whether a message belongs on queue. SYS messages
// are never published, an MQTT error would otherwise feed itself.
func queueWants(queue lnurl.MQTTQueueConfig, msg lnurl.Message) bool {
	if msg.EventType == nil || msg.EventType.Type() == "SYS" {
		return false
	}
	for _, t := range queue.Types {
		if t == "ALL" || t == msg.EventType.Type() {
			return true
		}
	}
	return false
}

func SetupMQTTs(cond *conductor.Conductor, bus lnurl.MessageBus, conf lnurl.Config) {
	if conf.MQTT.Address != "" {
		s := NewMQTTSender(conf.MQTT, bus)
		cond.Service("MQTT sender", s)
		// Sub to 'ALL' because we're filtering on our side
		bus.Register(s, lnurl.EVENT_ALL("ALL"))
	}
}
