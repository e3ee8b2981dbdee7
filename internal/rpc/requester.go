package rpc

import (
	"context"
	"fmt"

	appErrors "github.com/noah-isme/member-signups/pkg/errors"
)

// Actions understood by the member service object endpoint.
const (
	ActionFieldsGet  = "fields_get"
	ActionSearchRead = "search_read"
	ActionRead       = "read"
)

// FaultAccessDenied is the fault code the service returns for stale credentials.
const FaultAccessDenied = 3

// Requester executes a named remote procedure on a model.
type Requester interface {
	Execute(ctx context.Context, model, action string, args []interface{}, kwargs map[string]interface{}) (interface{}, error)
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(ctx context.Context, model, action string, args []interface{}, kwargs map[string]interface{}) (interface{}, error)

// Execute calls f.
func (f RequesterFunc) Execute(ctx context.Context, model, action string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	return f(ctx, model, action, args, kwargs)
}

// RemoteFault is a protocol level failure reported by the member service.
type RemoteFault struct {
	Code    int
	Message string
}

func (f *RemoteFault) Error() string {
	return fmt.Sprintf("remote fault %d: %s", f.Code, f.Message)
}

// Is makes errors.Is(fault, appErrors.ErrRemoteFault) hold.
func (f *RemoteFault) Is(target error) bool {
	t, ok := target.(*appErrors.Error)
	return ok && t.Code == appErrors.ErrRemoteFault.Code
}
