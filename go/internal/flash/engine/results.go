package engine

import "github.com/mcdev12/flashsum/go/internal/flash/events"

// maxRecentResults is how many completed sessions stay available for validation.
const maxRecentResults = 8

// recentResults is not safe for concurrent use; the engine guards it.
type recentResults struct {
	items []events.SessionComplete
}

func (r *recentResults) add(result events.SessionComplete) {
	r.items = append(r.items, result)
	if over := len(r.items) - maxRecentResults; over > 0 {
		r.items = append(r.items[:0], r.items[over:]...)
	}
}

func (r *recentResults) find(sessionID uint64) (events.SessionComplete, bool) {
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].SessionID == sessionID {
			return r.items[i], true
		}
	}
	return events.SessionComplete{}, false
}

func (r *recentResults) clear() {
	r.items = nil
}
