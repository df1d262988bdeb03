package scheduler

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/steamwatch/pkg/clock"
)

// pacer spaces inventory requests at least one delay apart. It is a token
// bucket of size one read through the injected clock.
type pacer struct {
	limiter *rate.Limiter
	clock   clock.Clock
}

func newPacer(delay time.Duration, c clock.Clock) *pacer {
	p := &pacer{clock: c}
	if delay > 0 {
		p.limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return p
}

// Wait blocks until the next request may be sent.
func (p *pacer) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return ctx.Err()
	}
	now := p.clock.Now()
	r := p.limiter.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("pacer: reservation exceeds burst")
	}
	if err := p.clock.Sleep(ctx, r.DelayFrom(now)); err != nil {
		r.CancelAt(now)
		return err
	}
	return nil
}
