package receivers

import (
	"context"
	"fmt"
	"io"
	"log"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/cashubtc/cashu-lnurl/pkg/conductor"
	logrus "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type MessageLogger struct {
	// MessageLogger receives lnurl.Message via Rec
	Rec chan lnurl.Message
	// and logs them via Log
	Log *log.Logger
}

// Implements lnurl.MessageSubscriber
func (l MessageLogger) GetChan() chan lnurl.Message {
	return l.Rec
}

// Implements conductor.Service
func (l MessageLogger) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		for {
			select {
			// handle stopping the service
			case <-stop:
				close(stopped)
				return
			case msg := <-l.Rec:
				l.Log.Printf("%s (%s): %s\n",
					msg.Type,
					msg.ID,
					msg.Message)
			}
		}
	}()
	return nil
}

func NewMessageLogger(path string) MessageLogger {
	return newMessageLogger(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		Compress:   true,
	})
}

func newMessageLogger(w io.Writer) MessageLogger {
	return MessageLogger{
		make(chan lnurl.Message, 1000),
		log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
}

// Reads config and sets up any configured loggers
func SetupLoggers(cond *conductor.Conductor, bus lnurl.MessageBus, conf lnurl.Config) {
	for name, c := range conf.Loggers {
		l := NewMessageLogger(c.Path)
		cond.Service(fmt.Sprintf("Logger %s", c.Path), l)

		types, invalid := lnurl.LookupEventTypes(c.Types)
		for _, t := range invalid {
			logrus.Warnf("Logger %s: ignoring invalid message type: %s", name, t)
		}
		bus.Register(l, types...)
	}
}
