package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/member-signups/internal/filter"
	"github.com/noah-isme/member-signups/internal/models"
	"github.com/noah-isme/member-signups/internal/rpc"
	appErrors "github.com/noah-isme/member-signups/pkg/errors"
)

var fieldAttributes = []string{"string", "help", "type"}

// EntityQuery reads one remote entity through a Requester.
type EntityQuery struct {
	spec   models.EntitySpec
	req    rpc.Requester
	logger *zap.Logger
}

// NewEntityQuery binds spec to the requester.
func NewEntityQuery(spec models.EntitySpec, req rpc.Requester, logger *zap.Logger) *EntityQuery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityQuery{spec: spec, req: req, logger: logger}
}

// Spec returns the bound entity spec.
func (q *EntityQuery) Spec() models.EntitySpec {
	return q.spec
}

// Fields describes every remote field of the entity, sorted by name.
func (q *EntityQuery) Fields(ctx context.Context) ([]models.FieldInfo, error) {
	reply, err := q.execute(ctx, rpc.ActionFieldsGet, []interface{}{}, map[string]interface{}{"attributes": fieldAttributes})
	if err != nil {
		return nil, err
	}
	raw, ok := reply.(map[string]interface{})
	if !ok {
		return nil, q.unexpected(rpc.ActionFieldsGet, reply)
	}

	fields := make([]models.FieldInfo, 0, len(raw))
	for name, attrs := range raw {
		info := models.FieldInfo{Name: name}
		if m, ok := attrs.(map[string]interface{}); ok {
			info.Label = models.Record(m).String("string")
			info.Help = models.Record(m).String("help")
			info.Type = models.Record(m).String("type")
		}
		fields = append(fields, info)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields, nil
}

// Entries fetches records either by id list (read) or by filter (search_read).
func (q *EntityQuery) Entries(ctx context.Context, req models.EntryRequest) ([]models.Record, error) {
	hasIDs := len(req.IDs) > 0
	hasFilter := !req.Filter.Empty() || (req.Filter != nil && req.Filter.Err() != nil)
	switch {
	case !hasIDs && !hasFilter:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s: ids or filter required", q.spec.Name))
	case hasIDs && hasFilter:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s: ids and filter are mutually exclusive", q.spec.Name))
	}

	kwargs := make(map[string]interface{}, len(req.Options)+1)
	for k, v := range req.Options {
		kwargs[k] = v
	}
	kwargs["fields"] = q.projection(req)

	var (
		action string
		args   []interface{}
	)
	if hasIDs {
		action = rpc.ActionRead
		args = []interface{}{req.IDs}
	} else {
		domain, err := req.Filter.Domain()
		if err != nil {
			return nil, err
		}
		action = rpc.ActionSearchRead
		args = []interface{}{domain}
	}

	reply, err := q.execute(ctx, action, args, kwargs)
	if err != nil {
		return nil, err
	}
	return q.decodeRecords(action, reply)
}

// ProbeFields reports which candidate fields the remote entity accepts. A
// remote fault for a candidate marks it unsupported; other errors abort.
func (q *EntityQuery) ProbeFields(ctx context.Context, candidates []string) ([]string, error) {
	supported := make([]string, 0, len(candidates))
	probe := filter.Field("id").Gt(0)
	for _, field := range candidates {
		_, err := q.Entries(ctx, models.EntryRequest{
			Fields:  []string{field},
			Filter:  probe,
			Options: map[string]interface{}{"limit": 1},
		})
		if err != nil {
			var fault *rpc.RemoteFault
			if errors.As(err, &fault) {
				q.logger.Debug("field unsupported", zap.String("model", q.spec.RemoteName), zap.String("field", field))
				continue
			}
			return nil, err
		}
		supported = append(supported, field)
	}
	return supported, nil
}

func (q *EntityQuery) projection(req models.EntryRequest) []string {
	var fields []string
	switch {
	case req.AllFields:
		fields = q.spec.PermittedFields
	case len(req.Fields) == 0:
		fields = q.spec.DefaultFields
	default:
		fields = req.Fields
	}
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

func (q *EntityQuery) execute(ctx context.Context, action string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	reply, err := q.req.Execute(ctx, q.spec.RemoteName, action, args, kwargs)
	if err == nil {
		return reply, nil
	}
	var fault *rpc.RemoteFault
	if errors.As(err, &fault) {
		q.logger.Error("member service fault",
			zap.String("model", q.spec.RemoteName),
			zap.String("action", action),
			zap.Int("fault_code", fault.Code),
			zap.String("fault", fault.Message),
		)
		return nil, appErrors.Wrap(fault, appErrors.ErrRemoteFault.Code, appErrors.ErrRemoteFault.Status,
			fmt.Sprintf("%s %s failed", q.spec.RemoteName, action))
	}
	return nil, fmt.Errorf("%s %s: %w", q.spec.RemoteName, action, err)
}

func (q *EntityQuery) decodeRecords(action string, reply interface{}) ([]models.Record, error) {
	switch rows := reply.(type) {
	case nil:
		return []models.Record{}, nil
	case []models.Record:
		return rows, nil
	case []map[string]interface{}:
		out := make([]models.Record, 0, len(rows))
		for _, row := range rows {
			out = append(out, models.Record(row))
		}
		return out, nil
	case []interface{}:
		out := make([]models.Record, 0, len(rows))
		for _, row := range rows {
			m, ok := row.(map[string]interface{})
			if !ok {
				return nil, q.unexpected(action, row)
			}
			out = append(out, models.Record(m))
		}
		return out, nil
	default:
		return nil, q.unexpected(action, reply)
	}
}

func (q *EntityQuery) unexpected(action string, reply interface{}) error {
	return appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("%s %s: unexpected reply %T", q.spec.RemoteName, action, reply))
}
