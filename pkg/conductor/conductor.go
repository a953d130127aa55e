package conductor

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	startupTimeout  time.Duration = time.Duration(5 * time.Second)
	shutdownTimeout time.Duration = time.Duration(5 * time.Second)
)

// Service is a long-running unit of work. Run must not block: it starts
// the service (usually a goroutine), sends on started once ready, and
// sends on (or closes) stopped when it ends, either because a context
// arrived on stop or because it finished by itself.
type Service interface {
	Run(started chan bool, stopped chan bool, stop chan context.Context) error
}

type serviceState struct {
	name     string
	service  Service
	ready    chan bool
	stopped  chan bool
	shutdown chan context.Context
	done     chan struct{} // closed once stopped has fired
	running  bool
}

// Conductor runs a set of services and terminates all of them as soon as
// any one stops, fails to start, or a shutdown is requested.
type Conductor struct {
	mu           sync.Mutex
	started      bool          // Have we been started yet?
	stopping     bool          // Has Stop been called?
	noisy        bool          // Should we log?
	startTimeout time.Duration // How long should we wait for each service to start before we die?
	stopTimeout  time.Duration // How long should we wait for each service to stop before we kill it?
	shutdown     chan bool     // channel to block on, indicates everything has stopped, returned from Start()
	stopOnce     sync.Once
	services     []*serviceState
}

/* Create a new conductor instance, accepts Option funcs for changing
default behaviours */
func NewConductor(opts ...func(*Conductor)) *Conductor {
	c := Conductor{
		started:      false,
		noisy:        false,
		startTimeout: startupTimeout,
		stopTimeout:  shutdownTimeout,
		shutdown:     make(chan bool),
		services:     []*serviceState{},
	}

	for _, optFn := range opts {
		optFn(&c)
	}
	return &c
}

/* Add a Service with a name to be started in order when Start is called */
func (c *Conductor) Service(name string, service Service) {
	if c.started {
		panic("Cannot call Conductor.Service after Conductor.Start")
	}
	c.services = append(c.services, &serviceState{
		name:     name,
		service:  service,
		ready:    make(chan bool, 1),
		stopped:  make(chan bool, 1),
		shutdown: make(chan context.Context, 1),
		done:     make(chan struct{}),
	})
}

/* Start the conductor, each service is started in turn. The returned
channel is closed once every service has stopped. */
func (c *Conductor) Start() chan bool {
	c.started = true

	// start each Service one at a time, this gives us service dependency order.
SRV_LOOP:
	for _, srv := range c.services {
		c.mu.Lock()
		if c.stopping {
			c.mu.Unlock()
			break
		}
		c.logf("🔧 Starting '%s'", srv.name)
		err := srv.service.Run(srv.ready, srv.stopped, srv.shutdown)
		srv.running = err == nil
		c.mu.Unlock()
		if err != nil {
			// Service has failed to start with an error, shutdown everything
			c.logf("⚠️  '%s' exited with: %s", srv.name, err)
			c.Stop()
			break
		}
		go c.watch(srv)
		select {
		case <-time.After(c.startTimeout):
			// Service has timed out, shutdown everything
			c.logf("⚠️  timed-out during startup %s", srv.name)
			c.Stop()
			break SRV_LOOP
		case <-srv.done:
			// watch() has already begun shutting everything down
			break SRV_LOOP
		case <-srv.ready:
			// Service started up ok!
			c.logf(".. '%s' ok", srv.name)
			continue
		}
	}
	return c.shutdown
}

// watch waits for a service to stop. The first service to stop without
// being asked to takes every other service down with it.
func (c *Conductor) watch(srv *serviceState) {
	<-srv.stopped
	close(srv.done)
	c.mu.Lock()
	stopping := c.stopping
	c.mu.Unlock()
	if !stopping {
		c.logf("⚠️  '%s' ended, shutting down", srv.name)
		c.Stop()
	}
}

// Stop the conductor, begin shutting down services. Safe to call more
// than once and from any goroutine.
func (c *Conductor) Stop() {
	c.stopOnce.Do(c.stop)
}

func (c *Conductor) stop() {
	c.mu.Lock()
	c.stopping = true
	running := []*serviceState{}
	for _, srv := range c.services {
		if srv.running {
			running = append(running, srv)
		}
	}
	c.mu.Unlock()

	// signal all services they should shutdown within timeout seconds
	ctx, cancel := context.WithTimeout(context.Background(), c.stopTimeout)
	defer cancel()

	wg := sync.WaitGroup{}
	// we're waiting for this many services to close..
	wg.Add(len(running))

	// create a done channel that gets closed when all services are shutdown
	done := make(chan bool)
	go func() {
		wg.Wait()
		close(done)
	}()

	// decrement our waitgroup when each service says it has stopped
	for _, state := range running {
		c.logf("Requesting shutdown: %s", state.name)
		select {
		case state.shutdown <- ctx:
		default: // already asked
		}
		go func(s *serviceState) {
			<-s.done
			c.logf("Shutdown complete: %s", s.name)
			wg.Done()
		}(state)
	}

	// Wait for either all services to close, or the timeout to occur then signal shutdown.
	select {
	case <-done:
		c.logf("👋 All services stopped, goodbye!")
	case <-time.After(c.stopTimeout + time.Second):
		c.logf("Timeout exeeded waiting for services to stop, shutting down")
	}
	close(c.shutdown)
}

func (c *Conductor) logf(s string, v ...interface{}) {
	if c.noisy {
		log.Infof(s, v...)
	}
}
