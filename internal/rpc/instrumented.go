package rpc

import (
	"context"
	"time"
)

// Observer records the outcome of remote calls.
type Observer interface {
	ObserveRPC(model, action string, err error, duration time.Duration)
}

type instrumented struct {
	next     Requester
	observer Observer
	now      func() time.Time
}

// Instrument wraps next so every call is reported to observer.
func Instrument(next Requester, observer Observer) Requester {
	if observer == nil {
		return next
	}
	return &instrumented{next: next, observer: observer, now: time.Now}
}

func (i *instrumented) Execute(ctx context.Context, model, action string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	start := i.now()
	reply, err := i.next.Execute(ctx, model, action, args, kwargs)
	i.observer.ObserveRPC(model, action, err, i.now().Sub(start))
	return reply, err
}
