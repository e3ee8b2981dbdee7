package service

import (
	"context"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/member-signups/internal/filter"
	"github.com/noah-isme/member-signups/internal/models"
	"github.com/noah-isme/member-signups/internal/repository"
	"github.com/noah-isme/member-signups/internal/rpc"
	appErrors "github.com/noah-isme/member-signups/pkg/errors"
)

// Dedup rules for several registrations of one member on the main event.
const (
	DedupRecency    = "recency"
	DedupPrecedence = "precedence"
)

type entryReader interface {
	Entries(ctx context.Context, req models.EntryRequest) ([]models.Record, error)
}

// SignupQuery describes one aggregation run.
type SignupQuery struct {
	MainEventCode   string                 `json:"main_event_code" validate:"required"`
	OtherEventCodes []string               `json:"other_event_codes" validate:"dive,required"`
	Questions       map[string]interface{} `json:"questions"`
	Limit           *int                   `json:"limit" validate:"omitempty,min=0"`
}

// SignupServiceConfig tunes aggregation behaviour.
type SignupServiceConfig struct {
	MatchThreshold float64
	DedupRule      string
}

// SignupServiceParams groups constructor dependencies.
type SignupServiceParams struct {
	Requester rpc.Requester
	Validator *validator.Validate
	Logger    *zap.Logger
	Config    SignupServiceConfig
}

// SignupService fetches a course event with its registrations, answers and
// member profiles and reduces them to one summary per member.
type SignupService struct {
	events        entryReader
	registrations entryReader
	profiles      entryReader
	questions     entryReader
	answers       entryReader
	validator     *validator.Validate
	logger        *zap.Logger
	cfg           SignupServiceConfig
}

// NewSignupService wires an EntityQuery per entity on top of the requester.
func NewSignupService(params SignupServiceParams) *SignupService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	cfg := params.Config
	if cfg.DedupRule == "" {
		cfg.DedupRule = DedupRecency
	}
	query := func(name models.EntityName) entryReader {
		return repository.NewEntityQuery(models.MustEntity(name), params.Requester, logger)
	}
	return &SignupService{
		events:        query(models.EntityEvent),
		registrations: query(models.EntityRegistration),
		profiles:      query(models.EntityProfile),
		questions:     query(models.EntityQuestion),
		answers:       query(models.EntityAnswer),
		validator:     validate,
		logger:        logger,
		cfg:           cfg,
	}
}

// Compute runs the aggregation for q.
func (s *SignupService) Compute(ctx context.Context, q SignupQuery) (*models.SignupResult, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signup query")
	}
	log := s.logger.With(zap.String("main_event_code", q.MainEventCode))

	log.Debug("fetching main event")
	main, err := s.mainEvent(ctx, q.MainEventCode)
	if err != nil {
		return nil, err
	}

	log.Debug("fetching events, questions and registrations")
	var otherEvents, questions, registrations []models.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if len(q.OtherEventCodes) == 0 {
			return nil
		}
		otherEvents, err = s.events.Entries(gctx, models.EntryRequest{
			Fields: []string{"registration_ids", "event_code"},
			Filter: filter.Field("event_code").In(stringsToAny(q.OtherEventCodes)...),
		})
		return err
	})
	g.Go(func() (err error) {
		ids := main.IDs("event_question_ids")
		if len(ids) == 0 {
			return nil
		}
		questions, err = s.questions.Entries(gctx, models.EntryRequest{
			Fields: []string{"event_question_option_ids", "name"},
			IDs:    ids,
		})
		return err
	})
	g.Go(func() (err error) {
		ids := truncate(main.IDs("registration_ids"), q.Limit)
		if len(ids) == 0 {
			return nil
		}
		registrations, err = s.registrations.Entries(gctx, models.EntryRequest{
			Fields: []string{"member_id", "state"},
			IDs:    ids,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	labels := matchQuestionLabels(questions, q.Questions, s.cfg.MatchThreshold)
	questionIDs := make([]interface{}, 0, len(labels))
	for _, question := range questions {
		if _, ok := labels[question.String("name")]; ok {
			questionIDs = append(questionIDs, question.ID())
		}
	}
	memberIDs := memberIDsOf(registrations)
	otherIDs := make([]interface{}, 0, len(otherEvents))
	for _, event := range otherEvents {
		otherIDs = append(otherIDs, event.ID())
	}

	log.Debug("fetching answers, profiles and previous courses",
		zap.Int("questions", len(questionIDs)), zap.Int("members", len(memberIDs)), zap.Int("other_events", len(otherIDs)))
	var answers, profiles, prevRegistrations []models.Record
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if len(questionIDs) == 0 {
			return nil
		}
		answers, err = s.answers.Entries(gctx, models.EntryRequest{
			Filter: filter.And(
				filter.Field("event_question_id").In(questionIDs...),
				filter.Field("event_id").Eq(main.ID()),
			),
		})
		return err
	})
	g.Go(func() (err error) {
		if len(memberIDs) == 0 {
			return nil
		}
		profiles, err = s.profiles.Entries(gctx, models.EntryRequest{
			Filter: filter.And(
				filter.Field("active").Eq(true),
				filter.Field("member_id").In(memberIDs...),
			),
		})
		return err
	})
	g.Go(func() (err error) {
		if len(memberIDs) == 0 || len(otherIDs) == 0 {
			return nil
		}
		states := make([]interface{}, 0, len(models.TerminalStates()))
		for _, state := range models.TerminalStates() {
			states = append(states, string(state))
		}
		prevRegistrations, err = s.registrations.Entries(gctx, models.EntryRequest{
			Fields: []string{"event_id", "member_id", "state"},
			Filter: filter.And(
				filter.Field("event_id").In(otherIDs...),
				filter.Field("member_id").In(memberIDs...),
				filter.Field("state").In(states...),
			),
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	history := reconcileHistory(prevRegistrations, otherEvents, main.IDs("event_moveto_ids"))
	result := &models.SignupResult{
		Signups: s.assemble(profiles, s.dedupRegistrations(registrations), joinAnswers(answers, labels), history, q.Questions),
		Meta:    models.SignupMeta{MainEventID: main.ID(), MainEventCode: q.MainEventCode},
	}
	log.Info("signups computed", zap.Int64("main_event_id", main.ID()), zap.Int("signups", len(result.Signups)))
	return result, nil
}

func (s *SignupService) mainEvent(ctx context.Context, code string) (models.Record, error) {
	events, err := s.events.Entries(ctx, models.EntryRequest{
		Fields: []string{"registration_ids", "name", "event_question_ids", "event_moveto_ids"},
		Filter: filter.Field("event_code").Eq(code),
	})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("event %s not found", code))
	}
	if len(events) > 1 {
		s.logger.Warn("event code matches several events, using first",
			zap.String("event_code", code), zap.Int("matches", len(events)))
	}
	return events[0], nil
}

// dedupRegistrations keeps one registration per member.
func (s *SignupService) dedupRegistrations(registrations []models.Record) map[int64]models.Record {
	mid2reg := make(map[int64]models.Record, len(registrations))
	for _, reg := range models.SortByIDDesc(registrations) {
		mid, _, ok := reg.Relation("member_id")
		if !ok {
			continue
		}
		current, seen := mid2reg[mid]
		if !seen {
			mid2reg[mid] = reg
			continue
		}
		if s.cfg.DedupRule != DedupPrecedence {
			continue
		}
		// newer ids come first, so only a strictly better state replaces
		if models.RegistrationState(reg.String("state")).Precedence() < models.RegistrationState(current.String("state")).Precedence() {
			mid2reg[mid] = reg
		}
	}
	return mid2reg
}

type memberHistory struct {
	prevCourses   map[int64][]string
	prevWaitlists map[int64][]string
	assigned      map[int64][]string
	assignedState map[int64]models.RegistrationState
}

func reconcileHistory(prev, otherEvents []models.Record, assignableIDs []int64) memberHistory {
	h := memberHistory{
		prevCourses:   map[int64][]string{},
		prevWaitlists: map[int64][]string{},
		assigned:      map[int64][]string{},
		assignedState: map[int64]models.RegistrationState{},
	}
	eid2code := make(map[int64]string, len(otherEvents))
	for _, event := range otherEvents {
		eid2code[event.ID()] = event.String("event_code")
	}
	assignable := make(map[int64]struct{}, len(assignableIDs))
	for _, id := range assignableIDs {
		assignable[id] = struct{}{}
	}

	type pair struct{ member, event int64 }
	seen := map[pair]struct{}{}
	for _, reg := range models.SortByIDDesc(prev) {
		mid, _, okMember := reg.Relation("member_id")
		eid, _, okEvent := reg.Relation("event_id")
		if !okMember || !okEvent {
			continue
		}
		key := pair{member: mid, event: eid}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		state := models.RegistrationState(reg.String("state"))
		code := eid2code[eid]
		if _, ok := assignable[eid]; ok {
			if _, done := h.assignedState[mid]; !done {
				h.assignedState[mid] = state
				if state.Completed() {
					h.assigned[mid] = append(h.assigned[mid], code)
				}
			}
			continue
		}
		switch {
		case state == models.StateWaitlist:
			h.prevWaitlists[mid] = append(h.prevWaitlists[mid], code)
		case state.Completed():
			h.prevCourses[mid] = append(h.prevCourses[mid], code)
		}
	}
	return h
}

// joinAnswers groups answers by registration id and question label. Option
// answers accumulate, free text overwrites.
func joinAnswers(answers []models.Record, labels map[string]string) map[int64]map[string]interface{} {
	rid2answers := map[int64]map[string]interface{}{}
	for _, answer := range answers {
		rid, _, ok := answer.Relation("event_registration_id")
		if !ok {
			continue
		}
		_, subject, ok := answer.Relation("event_question_id")
		if !ok {
			continue
		}
		if key, mapped := labels[subject]; mapped {
			subject = key
		}
		byQuestion, ok := rid2answers[rid]
		if !ok {
			byQuestion = map[string]interface{}{}
			rid2answers[rid] = byQuestion
		}
		if _, option, isOption := answer.Relation("event_question_option_id"); isOption {
			list, _ := byQuestion[subject].([]string)
			byQuestion[subject] = append(list, option)
			continue
		}
		byQuestion[subject] = answer["response"]
	}
	return rid2answers
}

func (s *SignupService) assemble(
	profiles []models.Record,
	mid2reg map[int64]models.Record,
	rid2answers map[int64]map[string]interface{},
	history memberHistory,
	questions map[string]interface{},
) map[string]models.SignupSummary {
	signups := make(map[string]models.SignupSummary, len(profiles))
	for _, profile := range profiles {
		mid, _, ok := profile.Relation("member_id")
		if !ok {
			continue
		}
		reg, ok := mid2reg[mid]
		if !ok {
			continue
		}

		state := reg.String("state")
		if assigned, ok := history.assignedState[mid]; ok && models.RegistrationState(state) == models.StateMoved {
			state = fmt.Sprintf("%s_%s", models.StateMoved, assigned)
		}

		answered := rid2answers[reg.ID()]
		values := make(map[string]interface{}, len(questions))
		for name, fallback := range questions {
			response, found := answered[name]
			if !found {
				response = fallback
			}
			values[name] = resolveAnswer(fallback, response)
		}

		summary := models.SignupSummary{
			MemberNumber:    profile.String("member_number"),
			Name:            profile.String("name"),
			Gender:          profile.String("gender"),
			Birthdate:       profile.String("birthdate"),
			Group:           profile.RelationLabel("primary_membership_organization_id"),
			Division:        profile.RelationLabel("organization_structure_parent_id"),
			State:           state,
			Answers:         values,
			PrevCourses:     nonNil(history.prevCourses[mid]),
			PrevWaitlists:   nonNil(history.prevWaitlists[mid]),
			AssignedCourses: nonNil(history.assigned[mid]),
		}
		if _, dup := signups[summary.MemberNumber]; dup {
			s.logger.Warn("duplicate member number among profiles, keeping last",
				zap.String("member_number", summary.MemberNumber), zap.Int64("member_id", mid))
		}
		signups[summary.MemberNumber] = summary
	}
	return signups
}

// resolveAnswer keeps list answers for list-shaped defaults and reduces them
// to their first element otherwise.
func resolveAnswer(fallback, response interface{}) interface{} {
	if isList(fallback) {
		return response
	}
	if isList(response) {
		v := reflect.ValueOf(response)
		if v.Len() == 0 {
			return nil
		}
		return v.Index(0).Interface()
	}
	return response
}

func isList(v interface{}) bool {
	if v == nil {
		return false
	}
	kind := reflect.TypeOf(v).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

func memberIDsOf(registrations []models.Record) []interface{} {
	seen := make(map[int64]struct{}, len(registrations))
	ids := make([]interface{}, 0, len(registrations))
	for _, reg := range registrations {
		mid, _, ok := reg.Relation("member_id")
		if !ok {
			continue
		}
		if _, dup := seen[mid]; dup {
			continue
		}
		seen[mid] = struct{}{}
		ids = append(ids, mid)
	}
	return ids
}

func truncate(ids []int64, limit *int) []int64 {
	if limit == nil || *limit >= len(ids) {
		return ids
	}
	return ids[:*limit]
}

func stringsToAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
