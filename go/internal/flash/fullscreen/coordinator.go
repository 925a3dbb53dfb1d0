package fullscreen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrFullscreenUnavailable means fullscreen could not be confirmed before a
// session start.
var ErrFullscreenUnavailable = errors.New("fullscreen unavailable")

// Window is the native windowing capability.
type Window interface {
	IsFullscreen(ctx context.Context) (bool, error)
	SetFullscreen(ctx context.Context, enabled bool) error
}

// Config bounds the confirmation poll.
type Config struct {
	PollInterval time.Duration
	Attempts     int
	CallTimeout  time.Duration // per native call in Ensure
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 50 * time.Millisecond,
		Attempts:     40,
		CallTimeout:  2 * time.Second,
	}
}

// Coordinator wraps a Window. Ensure and TrySet are best effort and never
// fail; EnterAndConfirm is the only strict operation.
type Coordinator struct {
	window Window
	clock  clockwork.Clock
	config Config

	// opMu serializes native calls
	opMu sync.Mutex

	mu      sync.Mutex
	seq     uint64
	pending *request
	wake    chan struct{}
}

type request struct {
	enabled bool
	seq     uint64
}

// New creates a coordinator; call Run to apply TrySet requests.
func New(window Window, clock clockwork.Clock, config Config) *Coordinator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.Attempts <= 0 {
		config.Attempts = 1
	}
	return &Coordinator{
		window: window,
		clock:  clock,
		config: config,
		wake:   make(chan struct{}, 1),
	}
}

// Ensure queries the window and sets the wanted state only if it differs.
// Errors are logged and swallowed.
func (c *Coordinator) Ensure(ctx context.Context, enabled bool) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.ensureLocked(ctx, enabled)
}

func (c *Coordinator) ensureLocked(ctx context.Context, enabled bool) {
	if c.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()
	}

	current, err := c.window.IsFullscreen(ctx)
	if err != nil {
		log.Debug().Err(err).Bool("enabled", enabled).Msg("fullscreen query failed, setting anyway")
	} else if current == enabled {
		return
	}

	if err := c.window.SetFullscreen(ctx, enabled); err != nil {
		log.Debug().Err(err).Bool("enabled", enabled).Msg("fullscreen change refused")
	}
}

// EnterAndConfirm enters fullscreen and polls until the window reports it.
// Queued TrySet requests issued before the call are dropped.
func (c *Coordinator) EnterAndConfirm(ctx context.Context) error {
	c.mu.Lock()
	c.seq++
	c.pending = nil
	c.mu.Unlock()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.window.SetFullscreen(ctx, true); err != nil {
		// some platforms refuse the call but still switch; the poll decides
		log.Debug().Err(err).Msg("enter fullscreen call failed")
	}

	for attempt := 1; ; attempt++ {
		ok, err := c.window.IsFullscreen(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFullscreenUnavailable, err)
		}
		if ok {
			log.Debug().Int("attempts", attempt).Msg("fullscreen confirmed")
			return nil
		}
		if attempt >= c.config.Attempts {
			return fmt.Errorf("%w: not confirmed after %d attempts", ErrFullscreenUnavailable, attempt)
		}

		timer := c.clock.NewTimer(c.config.PollInterval)
		select {
		case <-timer.Chan():
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrFullscreenUnavailable, ctx.Err())
		}
	}
}

// TrySet requests a fullscreen state without blocking. Only the latest
// request is kept.
func (c *Coordinator) TrySet(enabled bool) {
	c.mu.Lock()
	c.seq++
	c.pending = &request{enabled: enabled, seq: c.seq}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run applies TrySet requests until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
			c.mu.Lock()
			req := c.pending
			c.pending = nil
			c.mu.Unlock()

			if req != nil {
				c.apply(ctx, *req)
			}
		}
	}
}

func (c *Coordinator) apply(ctx context.Context, req request) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	stale := req.seq != c.seq
	c.mu.Unlock()
	if stale {
		return
	}
	c.ensureLocked(ctx, req.enabled)
}
