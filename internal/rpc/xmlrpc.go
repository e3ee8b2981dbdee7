package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/kolo/xmlrpc"
	"go.uber.org/zap"
)

// Credentials identifies the account used against the member service.
type Credentials struct {
	Database string
	Login    string
	Password string
}

// caller is the subset of *xmlrpc.Client the requester needs.
type caller interface {
	Call(serviceMethod string, args interface{}, reply interface{}) error
}

// XMLRPCRequester talks to the member service over XML-RPC. It logs in
// lazily and retries once with a fresh session when the service rejects the
// cached uid.
type XMLRPCRequester struct {
	common caller
	object caller
	db     caller
	creds  Credentials
	logger *zap.Logger

	mu  sync.Mutex
	uid int64
}

// NewXMLRPCRequester dials the common, object and db endpoints under baseURL,
// e.g. https://medlem.example.org.
func NewXMLRPCRequester(baseURL string, creds Credentials, transport http.RoundTripper, logger *zap.Logger) (*XMLRPCRequester, error) {
	common, err := xmlrpc.NewClient(baseURL+"/xmlrpc/2/common", transport)
	if err != nil {
		return nil, fmt.Errorf("dial common endpoint: %w", err)
	}
	object, err := xmlrpc.NewClient(baseURL+"/xmlrpc/2/object", transport)
	if err != nil {
		_ = common.Close()
		return nil, fmt.Errorf("dial object endpoint: %w", err)
	}
	db, err := xmlrpc.NewClient(baseURL+"/xmlrpc/2/db", transport)
	if err != nil {
		_ = common.Close()
		_ = object.Close()
		return nil, fmt.Errorf("dial db endpoint: %w", err)
	}
	return newXMLRPCRequester(common, object, db, creds, logger), nil
}

func newXMLRPCRequester(common, object, db caller, creds Credentials, logger *zap.Logger) *XMLRPCRequester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &XMLRPCRequester{common: common, object: object, db: db, creds: creds, logger: logger}
}

// Login authenticates unless a session uid is already held. force discards it.
func (r *XMLRPCRequester) Login(ctx context.Context, force bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uid != 0 && !force {
		return r.uid, nil
	}

	var reply interface{}
	args := []interface{}{r.creds.Database, r.creds.Login, r.creds.Password, map[string]interface{}{}}
	if err := callContext(ctx, r.common, "authenticate", args, &reply); err != nil {
		return 0, convertFault(err)
	}
	var uid int64
	switch v := reply.(type) {
	case int64:
		uid = v
	case int:
		uid = int64(v)
	}
	if uid == 0 {
		return 0, &RemoteFault{Code: FaultAccessDenied, Message: fmt.Sprintf("login rejected for %s@%s", r.creds.Login, r.creds.Database)}
	}
	r.uid = uid
	r.logger.Info("member service login", zap.String("db", r.creds.Database), zap.Int64("uid", uid))
	return uid, nil
}

// Execute runs execute_kw for model/action.
func (r *XMLRPCRequester) Execute(ctx context.Context, model, action string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	uid, err := r.Login(ctx, false)
	if err != nil {
		return nil, err
	}
	reply, err := r.executeKW(ctx, uid, model, action, args, kwargs)
	if err == nil {
		return reply, nil
	}

	var fault *RemoteFault
	if !errors.As(err, &fault) || fault.Code != FaultAccessDenied {
		return nil, err
	}
	r.logger.Warn("member service credentials rejected, logging in again",
		zap.String("model", model), zap.String("action", action))
	if uid, err = r.Login(ctx, true); err != nil {
		return nil, err
	}
	return r.executeKW(ctx, uid, model, action, args, kwargs)
}

func (r *XMLRPCRequester) executeKW(ctx context.Context, uid int64, model, action string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	params := []interface{}{r.creds.Database, uid, r.creds.Password, model, action, args, kwargs}
	var reply interface{}
	if err := callContext(ctx, r.object, "execute_kw", params, &reply); err != nil {
		return nil, convertFault(err)
	}
	return reply, nil
}

// ListDatabases returns the database names served at the endpoint.
func (r *XMLRPCRequester) ListDatabases(ctx context.Context) ([]string, error) {
	var reply []string
	if err := callContext(ctx, r.db, "list", nil, &reply); err != nil {
		return nil, convertFault(err)
	}
	return reply, nil
}

// Close releases the underlying HTTP clients.
func (r *XMLRPCRequester) Close() error {
	var errs []error
	for _, c := range []caller{r.common, r.object, r.db} {
		if closer, ok := c.(interface{ Close() error }); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

// callContext runs a blocking call and returns early when ctx ends. The call
// itself keeps running until the transport gives up.
func callContext(ctx context.Context, c caller, method string, args interface{}, reply interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- c.Call(method, args, reply)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func convertFault(err error) error {
	var fault xmlrpc.FaultError
	if errors.As(err, &fault) {
		return &RemoteFault{Code: fault.Code, Message: fault.String}
	}
	var ptr *xmlrpc.FaultError
	if errors.As(err, &ptr) && ptr != nil {
		return &RemoteFault{Code: ptr.Code, Message: ptr.String}
	}
	return err
}
