package fullscreen

import (
	"context"
	"errors"
	"sync"
)

// ErrRefused is returned by a Virtual window configured to refuse changes.
var ErrRefused = errors.New("window refused fullscreen change")

// Virtual is an in-memory Window for headless runs and tests. A lag makes the
// window report the old state for that many queries after a change.
type Virtual struct {
	mu         sync.Mutex
	fullscreen bool
	target     bool
	lagLeft    int

	lag      int
	refuse   bool
	queryErr error
	sets     []bool
}

func NewVirtual() *Virtual {
	return &Virtual{}
}

// SetLag delays the effect of SetFullscreen by n queries.
func (v *Virtual) SetLag(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lag = n
}

// SetRefuse makes every SetFullscreen fail without effect.
func (v *Virtual) SetRefuse(refuse bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refuse = refuse
}

// SetQueryError makes IsFullscreen fail with err (nil clears it).
func (v *Virtual) SetQueryError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.queryErr = err
}

func (v *Virtual) IsFullscreen(ctx context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.queryErr != nil {
		return false, v.queryErr
	}
	if v.lagLeft > 0 {
		v.lagLeft--
		if v.lagLeft == 0 {
			v.fullscreen = v.target
		}
	}
	return v.fullscreen, nil
}

func (v *Virtual) SetFullscreen(ctx context.Context, enabled bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.sets = append(v.sets, enabled)
	if v.refuse {
		return ErrRefused
	}
	if v.lag > 0 {
		v.target = enabled
		v.lagLeft = v.lag
		return nil
	}
	v.fullscreen = enabled
	return nil
}

// Fullscreen reports the current state without consuming lag.
func (v *Virtual) Fullscreen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fullscreen
}

// Sets returns every SetFullscreen argument received so far.
func (v *Virtual) Sets() []bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]bool(nil), v.sets...)
}
