package crawler

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// Delay is a closed interval a randomized pause is drawn from.
type Delay struct {
	Min time.Duration
	Max time.Duration
}

// Draw returns a duration uniformly distributed in [Min, Max].
func (d Delay) Draw() time.Duration {
	if d.Max <= d.Min {
		if d.Min < 0 {
			return 0
		}
		return d.Min
	}
	span := int64(d.Max - d.Min)
	n, err := rand.Int(rand.Reader, big.NewInt(span+1))
	if err != nil {
		return d.Min + time.Duration(span/2)
	}
	return d.Min + time.Duration(n.Int64())
}

// TimerPauser sleeps on a timer and wakes early when the context ends.
type TimerPauser struct{}

// Pause blocks for delay or until ctx is done.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
