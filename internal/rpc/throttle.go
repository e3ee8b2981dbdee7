package rpc

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttle makes every call wait for a token from limiter. A nil limiter
// leaves next untouched.
func Throttle(next Requester, limiter *rate.Limiter) Requester {
	if limiter == nil {
		return next
	}
	return RequesterFunc(func(ctx context.Context, model, action string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("throttle %s/%s: %w", model, action, err)
		}
		return next.Execute(ctx, model, action, args, kwargs)
	})
}
