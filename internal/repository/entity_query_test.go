package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/member-signups/internal/filter"
	"github.com/noah-isme/member-signups/internal/models"
	"github.com/noah-isme/member-signups/internal/rpc"
	appErrors "github.com/noah-isme/member-signups/pkg/errors"
)

type rpcCall struct {
	model  string
	action string
	args   []interface{}
	kwargs map[string]interface{}
}

type stubRequester struct {
	calls  []rpcCall
	reply  interface{}
	err    error
	failOn map[string]bool
}

func (s *stubRequester) Execute(_ context.Context, model, action string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	s.calls = append(s.calls, rpcCall{model: model, action: action, args: args, kwargs: kwargs})
	if fields, ok := kwargs["fields"].([]string); ok && len(fields) == 1 && s.failOn[fields[0]] {
		return nil, &rpc.RemoteFault{Code: 2, Message: "Invalid field " + fields[0]}
	}
	return s.reply, s.err
}

func newQuery(name models.EntityName, req rpc.Requester) *EntityQuery {
	return NewEntityQuery(models.MustEntity(name), req, zap.NewNop())
}

func TestEntityQueryEntriesRequiresSelector(t *testing.T) {
	req := &stubRequester{}
	q := newQuery(models.EntityEvent, req)

	_, err := q.Entries(context.Background(), models.EntryRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = q.Entries(context.Background(), models.EntryRequest{IDs: []int64{1}, Filter: filter.Field("id").Eq(1)})
	require.Error(t, err)
	assert.Empty(t, req.calls)
}

func TestEntityQueryEntriesByIDsUsesRead(t *testing.T) {
	req := &stubRequester{reply: []interface{}{
		map[string]interface{}{"id": int64(3), "state": "open"},
		map[string]interface{}{"id": int64(1), "state": "draft"},
	}}
	q := newQuery(models.EntityRegistration, req)

	records, err := q.Entries(context.Background(), models.EntryRequest{IDs: []int64{3, 1}, Fields: []string{"state"}})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(3), records[0].ID())

	require.Len(t, req.calls, 1)
	call := req.calls[0]
	assert.Equal(t, "event.registration", call.model)
	assert.Equal(t, rpc.ActionRead, call.action)
	assert.Equal(t, []interface{}{[]int64{3, 1}}, call.args)
	assert.Equal(t, []string{"state"}, call.kwargs["fields"])
}

func TestEntityQueryEntriesByFilterUsesSearchRead(t *testing.T) {
	req := &stubRequester{reply: []interface{}{}}
	q := newQuery(models.EntityEvent, req)

	_, err := q.Entries(context.Background(), models.EntryRequest{
		Filter:  filter.Field("event_code").Eq("14605"),
		Options: map[string]interface{}{"limit": 5, "fields": []string{"ignored"}},
	})
	require.NoError(t, err)

	call := req.calls[0]
	assert.Equal(t, rpc.ActionSearchRead, call.action)
	assert.Equal(t, []interface{}{[]interface{}{[]interface{}{"event_code", "=", "14605"}}}, call.args)
	assert.Equal(t, models.MustEntity(models.EntityEvent).DefaultFields, call.kwargs["fields"])
	assert.Equal(t, 5, call.kwargs["limit"])
}

func TestEntityQueryAllFieldsUsesPermittedProjection(t *testing.T) {
	req := &stubRequester{reply: []interface{}{}}
	q := newQuery(models.EntityProfile, req)

	_, err := q.Entries(context.Background(), models.EntryRequest{IDs: []int64{1}, AllFields: true})
	require.NoError(t, err)
	assert.Equal(t, models.MustEntity(models.EntityProfile).PermittedFields, req.calls[0].kwargs["fields"])
}

func TestEntityQueryFilterConstructionErrorSurfaces(t *testing.T) {
	req := &stubRequester{}
	q := newQuery(models.EntityEvent, req)

	_, err := q.Entries(context.Background(), models.EntryRequest{Filter: filter.Field("id").Eq(1).Eq(2)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, req.calls)
}

func TestEntityQueryRemoteFaultPropagatesTyped(t *testing.T) {
	req := &stubRequester{err: &rpc.RemoteFault{Code: 1, Message: "AccessError"}}
	q := newQuery(models.EntityAnswer, req)

	_, err := q.Entries(context.Background(), models.EntryRequest{IDs: []int64{1}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRemoteFault.Code, appErrors.FromError(err).Code)
	var fault *rpc.RemoteFault
	assert.True(t, errors.As(err, &fault))
}

func TestEntityQueryFieldsSortedByName(t *testing.T) {
	req := &stubRequester{reply: map[string]interface{}{
		"state":      map[string]interface{}{"string": "Status", "type": "selection", "help": false},
		"event_code": map[string]interface{}{"string": "Code", "type": "char", "help": "Course number"},
	}}
	q := newQuery(models.EntityEvent, req)

	fields, err := q.Fields(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, models.FieldInfo{Name: "event_code", Label: "Code", Help: "Course number", Type: "char"}, fields[0])
	assert.Equal(t, "state", fields[1].Name)
	assert.Equal(t, "", fields[1].Help)
	assert.Equal(t, rpc.ActionFieldsGet, req.calls[0].action)
	assert.Equal(t, []string{"string", "help", "type"}, req.calls[0].kwargs["attributes"])
}

func TestEntityQueryProbeFieldsTreatsFaultAsUnsupported(t *testing.T) {
	req := &stubRequester{reply: []interface{}{}, failOn: map[string]bool{"x_legacy": true}}
	q := newQuery(models.EntityProfile, req)

	supported, err := q.ProbeFields(context.Background(), []string{"email", "x_legacy", "mobile"})
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "mobile"}, supported)
	assert.Len(t, req.calls, 3)
}

func TestEntityQueryProbeFieldsAbortsOnTransportError(t *testing.T) {
	req := &stubRequester{err: errors.New("connection reset")}
	q := newQuery(models.EntityProfile, req)

	_, err := q.ProbeFields(context.Background(), []string{"email"})
	require.Error(t, err)
}
