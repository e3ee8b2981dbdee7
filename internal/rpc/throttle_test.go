package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestThrottleWaitsForToken(t *testing.T) {
	calls := 0
	next := RequesterFunc(func(context.Context, string, string, []interface{}, map[string]interface{}) (interface{}, error) {
		calls++
		return []interface{}{}, nil
	})
	throttled := Throttle(next, rate.NewLimiter(rate.Every(time.Hour), 1))

	_, err := throttled.Execute(context.Background(), "event.event", ActionRead, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = throttled.Execute(ctx, "event.event", ActionRead, nil, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestThrottleNilLimiter(t *testing.T) {
	next := RequesterFunc(func(context.Context, string, string, []interface{}, map[string]interface{}) (interface{}, error) {
		return nil, nil
	})
	_, isFunc := Throttle(next, nil).(RequesterFunc)
	assert.True(t, isFunc)
}
