package binance

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	weightLimit          = 1200
	weightPauseThreshold = 1100
)

// rateLimitGovernor tracks the used-weight-per-minute header the exchange
// returns on every response, and blocks callers before the budget is
// breached. The counter is shared across all calls made by one client and
// mutated under a mutex.
type rateLimitGovernor struct {
	mu         sync.Mutex
	usedWeight int
	log        zerolog.Logger

	// injectable for tests
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func newRateLimitGovernor(log zerolog.Logger) *rateLimitGovernor {
	return &rateLimitGovernor{
		log:   log,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Update records the latest observed weight from a response header value.
func (g *rateLimitGovernor) Update(header string) {
	if header == "" {
		return
	}
	weight, err := strconv.Atoi(header)
	if err != nil {
		return
	}
	g.mu.Lock()
	g.usedWeight = weight
	g.mu.Unlock()
	g.log.Debug().Int("used", weight).Int("limit", weightLimit).Msg("Rate limit weight")
}

// Wait blocks until the next minute boundary (plus a 1s margin) when the
// latest observed weight exceeds the pause threshold, then resets the
// counter. Returns early with the context error on cancellation.
func (g *rateLimitGovernor) Wait(ctx context.Context) error {
	g.mu.Lock()
	used := g.usedWeight
	g.mu.Unlock()

	if used < weightPauseThreshold {
		return nil
	}

	now := g.now()
	secondsIntoMinute := float64(now.Second()) + float64(now.Nanosecond())/1e9
	wait := time.Duration((60.0 - secondsIntoMinute + 1.0) * float64(time.Second))

	g.log.Warn().
		Int("used_weight", used).
		Int("threshold", weightPauseThreshold).
		Dur("wait", wait).
		Msg("Rate limit pause until next minute")

	if err := g.sleep(ctx, wait); err != nil {
		return err
	}

	g.mu.Lock()
	g.usedWeight = 0
	g.mu.Unlock()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
