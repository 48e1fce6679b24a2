package provider

import (
	"context"

	"golang.org/x/time/rate"

	"upstox-data/internal/model"
)

// RateLimited spaces out calls to the wrapped fetcher so the whole process
// stays under the vendor's request rate, however many workers share it.
type RateLimited struct {
	next    CandleFetcher
	limiter *rate.Limiter
}

// NewRateLimited allows rps requests per second with the given burst. A
// non-positive rps disables limiting.
func NewRateLimited(next CandleFetcher, rps float64, burst int) *RateLimited {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) FetchCandles(ctx context.Context, instrumentKey string, tf model.Timeframe, from, to model.Date) ([]model.RawCandleRow, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return r.next.FetchCandles(ctx, instrumentKey, tf, from, to)
}
