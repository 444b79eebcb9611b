package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionFailed  = errors.New("session failed")
	ErrPairingTimeout = errors.New("timed out waiting for pairing")
	ErrClosed         = errors.New("session closed")
)

type State int

const (
	StateStarting State = iota
	StateAwaitingPairing
	StateReady
	StateRunning
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateAwaitingPairing:
		return "awaiting-pairing"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Options struct {
	RunID string
	// PairingTimeout bounds AwaitReady. Zero waits indefinitely.
	PairingTimeout time.Duration
	Presenter      Presenter
	Clock          clockwork.Clock
}

// Controller owns a Channel for exactly one run:
//
//	starting -> awaiting-pairing -> ready -> running -> closed
//
// Failed is reachable from any state before closed, including a running
// session whose channel reports a fatal error.
type Controller struct {
	channel Channel
	opts    Options

	mu      sync.Mutex
	state   State
	err     error
	events  <-chan Event
	done    chan struct{}
	failed  chan struct{}
	drained chan struct{}
}

func NewController(channel Channel, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Presenter == nil {
		opts.Presenter = Presenters{}
	}
	return &Controller{
		channel: channel,
		opts:    opts,
		state:   StateStarting,
		done:    make(chan struct{}),
		failed:  make(chan struct{}),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that moved the controller to failed, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Failed is closed once the controller moves to failed.
func (c *Controller) Failed() <-chan struct{} {
	return c.failed
}

// Start initializes the channel session.
func (c *Controller) Start(ctx context.Context) error {
	if s := c.State(); s != StateStarting {
		return fmt.Errorf("start in state %s", s)
	}
	events, err := c.channel.Initialize(ctx)
	if err != nil {
		return c.fail(fmt.Errorf("%w: initialize: %v", ErrSessionFailed, err))
	}
	c.mu.Lock()
	c.events = events
	c.mu.Unlock()
	c.setState(StateAwaitingPairing)
	return nil
}

// AwaitReady blocks until the channel signals readiness, presenting every
// pairing code it emits on the way.
func (c *Controller) AwaitReady(ctx context.Context) error {
	c.mu.Lock()
	events, state := c.events, c.state
	c.mu.Unlock()
	switch state {
	case StateReady, StateRunning:
		return nil
	case StateAwaitingPairing:
	default:
		return fmt.Errorf("await ready in state %s", state)
	}

	var timeout <-chan time.Time
	if c.opts.PairingTimeout > 0 {
		timer := c.opts.Clock.NewTimer(c.opts.PairingTimeout)
		defer timer.Stop()
		timeout = timer.Chan()
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return c.fail(fmt.Errorf("%w: event stream closed before ready", ErrSessionFailed))
			}
			switch ev.Kind {
			case EventPairing:
				log.Info().Str("run_id", c.opts.RunID).Msg("Scan this QR code to activate WhatsApp session")
				c.opts.Presenter.PresentPairing(c.opts.RunID, ev.Code)
			case EventReady:
				drained := make(chan struct{})
				c.mu.Lock()
				c.drained = drained
				c.mu.Unlock()
				c.setState(StateReady)
				go c.drain(events, drained)
				return nil
			case EventFailure:
				return c.fail(fmt.Errorf("%w: %v", ErrSessionFailed, ev.Err))
			}
		case <-timeout:
			return c.fail(fmt.Errorf("%w after %s", ErrPairingTimeout, c.opts.PairingTimeout))
		case <-ctx.Done():
			return c.fail(fmt.Errorf("%w: %v", ErrSessionFailed, ctx.Err()))
		}
	}
}

// MarkRunning records that dispatch has begun.
func (c *Controller) MarkRunning() error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StateReady {
		return fmt.Errorf("dispatch cannot start in state %s", state)
	}
	c.setState(StateRunning)
	return nil
}

// Close destroys the channel session. It is safe to call more than once
// and after a failure. A failure the channel reported before Close is
// recorded and available from Err.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	select {
	case <-c.done:
		c.mu.Unlock()
		return nil
	default:
		close(c.done)
	}
	events, drained := c.events, c.drained
	c.mu.Unlock()

	if drained != nil {
		<-drained
		c.sweep(events)
	}

	err := c.channel.Destroy(ctx)
	if c.State() != StateFailed {
		c.setState(StateClosed)
	}
	if err != nil {
		return fmt.Errorf("%w: destroy: %v", ErrSessionFailed, err)
	}
	return nil
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.err = err
	select {
	case <-c.failed:
	default:
		close(c.failed)
	}
	c.mu.Unlock()
	c.setState(StateFailed)
	log.Error().Err(err).Str("run_id", c.opts.RunID).Msg("WhatsApp session failed")
	return err
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	log.Debug().Str("run_id", c.opts.RunID).Str("state", s.String()).Msg("session state")
	c.opts.Presenter.SessionStateChanged(c.opts.RunID, s)
}

// drain keeps consuming channel events once the session is ready so the
// emitter never stalls, and fails the controller on a fatal event.
func (c *Controller) drain(events <-chan Event, drained chan<- struct{}) {
	defer close(drained)
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-events:
			if !ok {
				select {
				case <-c.done:
				default:
					c.fail(fmt.Errorf("%w: event stream closed while running", ErrSessionFailed))
				}
				return
			}
			if ev.Kind == EventFailure && c.State() != StateFailed {
				c.fail(fmt.Errorf("%w: %v", ErrSessionFailed, ev.Err))
			}
		}
	}
}

// sweep picks up a failure that was queued but not yet drained when Close
// was called.
func (c *Controller) sweep(events <-chan Event) {
	if c.State() == StateFailed {
		return
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == EventFailure {
				c.fail(fmt.Errorf("%w: %v", ErrSessionFailed, ev.Err))
				return
			}
		default:
			return
		}
	}
}
