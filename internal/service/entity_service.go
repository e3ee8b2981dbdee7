package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/member-signups/internal/filter"
	"github.com/noah-isme/member-signups/internal/models"
	"github.com/noah-isme/member-signups/internal/repository"
	"github.com/noah-isme/member-signups/internal/rpc"
	appErrors "github.com/noah-isme/member-signups/pkg/errors"
)

// EntitySearch is an ad-hoc search_read over one entity. Filters use the
// keyword syntax, e.g. {"state": "in open,draft", "id": "> int(10)"}.
type EntitySearch struct {
	Filters   map[string]string
	Fields    []string
	AllFields bool
	Limit     int
	Order     string
}

// EntityService exposes schema discovery for the registered entities.
type EntityService struct {
	requester rpc.Requester
	logger    *zap.Logger
}

// NewEntityService constructs an EntityService.
func NewEntityService(requester rpc.Requester, logger *zap.Logger) *EntityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityService{requester: requester, logger: logger}
}

// Entities lists the registered entity specs.
func (s *EntityService) Entities() []models.EntitySpec {
	return models.Entities()
}

// Fields describes the remote fields of entity name.
func (s *EntityService) Fields(ctx context.Context, name string) ([]models.FieldInfo, error) {
	query, err := s.query(name)
	if err != nil {
		return nil, err
	}
	return query.Fields(ctx)
}

// Probe reports which candidate fields the remote model accepts.
func (s *EntityService) Probe(ctx context.Context, name string, candidates []string) ([]string, error) {
	query, err := s.query(name)
	if err != nil {
		return nil, err
	}
	return query.ProbeFields(ctx, candidates)
}

// Search runs a keyword-filtered search_read. Requested fields must be
// permitted for the entity.
func (s *EntityService) Search(ctx context.Context, name string, search EntitySearch) ([]models.Record, error) {
	query, err := s.query(name)
	if err != nil {
		return nil, err
	}
	clauses, err := filter.ParseKeywordFilters(nil, search.Filters, filter.DefaultJoiner)
	if err != nil {
		return nil, err
	}
	if len(clauses) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one filter is required")
	}
	spec := query.Spec()
	for _, field := range search.Fields {
		if !spec.Permits(field) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s: field %q not permitted", spec.Name, field))
		}
	}

	options := map[string]interface{}{}
	if search.Limit > 0 {
		options["limit"] = search.Limit
	}
	if search.Order != "" {
		options["order"] = search.Order
	}
	return query.Entries(ctx, models.EntryRequest{
		Fields:    search.Fields,
		AllFields: search.AllFields,
		Filter:    filter.FromClauses(clauses),
		Options:   options,
	})
}

func (s *EntityService) query(name string) (*repository.EntityQuery, error) {
	spec, err := models.LookupEntity(models.EntityName(name))
	if err != nil {
		return nil, err
	}
	return repository.NewEntityQuery(spec, s.requester, s.logger), nil
}
