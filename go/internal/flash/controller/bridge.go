package controller

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// bridge counts down to the next auto-repeat start locally until the backend's
// own ticks take over.
type bridge struct {
	token    uint64
	anchor   uint64 // session the countdown belongs to
	deadline time.Time
	ticker   clockwork.Ticker
	done     chan struct{}
}

func (c *Controller) startBridge(anchor uint64, deadline time.Time) {
	c.stopBridge()
	c.bridgeToken++
	b := &bridge{
		token:    c.bridgeToken,
		anchor:   anchor,
		deadline: deadline,
		ticker:   c.clock.NewTicker(c.config.BridgeInterval),
		done:     make(chan struct{}),
	}
	c.bridge = b
	go c.forwardBridgeTicks(b)

	c.refreshBridge()
}

func (c *Controller) forwardBridgeTicks(b *bridge) {
	for {
		select {
		case <-b.done:
			return
		case <-b.ticker.Chan():
			select {
			case c.inbox <- bridgeTickMsg{token: b.token}:
			case <-b.done:
				return
			case <-c.done:
				return
			}
		}
	}
}

func (c *Controller) stopBridge() {
	if c.bridge == nil {
		return
	}
	c.bridge.ticker.Stop()
	close(c.bridge.done)
	c.bridge = nil
}

func (c *Controller) handleBridgeTick(m bridgeTickMsg) {
	if c.bridge == nil || c.bridge.token != m.token {
		return
	}
	c.refreshBridge()
}

func (c *Controller) refreshBridge() {
	b := c.bridge
	ar := &c.state.AutoRepeat
	if ar.FromTick || !ar.Enabled || c.state.SessionID != b.anchor {
		c.stopBridge()
		return
	}

	seconds := ceilSeconds(b.deadline.Sub(c.clock.Now()))
	ar.SecondsLeft = &seconds
	if seconds == 0 {
		c.stopBridge()
	}
}

func ceilSeconds(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64((d + time.Second - 1) / time.Second)
}

func msToTime(ms uint64) time.Time {
	return time.UnixMilli(int64(ms))
}
