package engine

import "math/rand/v2"

// maxRedraws bounds the retries spent avoiding two identical consecutive values.
const maxRedraws = 256

// generator draws session values: fixed digit count, no leading zero, first
// value never negative, and negatives never drive the running sum below zero.
type generator struct {
	rng           *rand.Rand
	digits        int
	allowNegative bool

	last    int64
	hasLast bool
}

func newGenerator(rng *rand.Rand, digits int, allowNegative bool) *generator {
	return &generator{rng: rng, digits: digits, allowNegative: allowNegative}
}

func (g *generator) next(index int, runningSum int64) int64 {
	var v int64
	for attempt := 0; attempt < maxRedraws; attempt++ {
		v = g.candidate(index, runningSum)
		if !g.hasLast || v != g.last {
			break
		}
	}
	g.last, g.hasLast = v, true
	return v
}

func (g *generator) candidate(index int, runningSum int64) int64 {
	if g.allowNegative && index > 0 && runningSum > 0 && g.rng.IntN(2) == 0 {
		limit := min(runningSum, pow10(g.digits)-1)
		if mag, ok := g.magnitudeUpTo(limit); ok && runningSum-mag >= 0 {
			return -mag
		}
	}
	return g.magnitude()
}

func (g *generator) magnitude() int64 {
	if g.digits <= 1 {
		return 1 + g.rng.Int64N(9)
	}
	lo, hi := pow10(g.digits-1), pow10(g.digits)
	return lo + g.rng.Int64N(hi-lo)
}

func (g *generator) magnitudeUpTo(limit int64) (int64, bool) {
	if g.digits <= 1 {
		if limit < 1 {
			return 0, false
		}
		return 1 + g.rng.Int64N(min(limit, 9)), true
	}
	lo := pow10(g.digits - 1)
	if limit < lo {
		return 0, false
	}
	hi := min(limit+1, pow10(g.digits))
	return lo + g.rng.Int64N(hi-lo), true
}

func pow10(n int) int64 {
	v := int64(1)
	for range n {
		v *= 10
	}
	return v
}
