package models

import (
	"fmt"
	"sort"

	appErrors "github.com/noah-isme/member-signups/pkg/errors"
)

// EntityName is the logical name of a remote collection.
type EntityName string

const (
	EntityEvent          EntityName = "Event"
	EntityRegistration   EntityName = "Registration"
	EntityProfile        EntityName = "Profile"
	EntityQuestion       EntityName = "Question"
	EntityAnswer         EntityName = "Answer"
	EntityMemberOverview EntityName = "MemberOverview"
	EntityModelOverview  EntityName = "ModelOverview"
)

// EntitySpec binds a logical entity to its remote model and field projections.
type EntitySpec struct {
	Name            EntityName `json:"name"`
	RemoteName      string     `json:"remote_name"`
	DefaultFields   []string   `json:"default_fields"`
	PermittedFields []string   `json:"permitted_fields"`
}

var entities = map[EntityName]EntitySpec{
	EntityEvent: {
		Name:          EntityEvent,
		RemoteName:    "event.event",
		DefaultFields: []string{"id", "name", "event_code", "registration_ids", "event_question_ids", "event_moveto_ids"},
		PermittedFields: []string{"id", "name", "event_code", "registration_ids", "event_question_ids", "event_moveto_ids",
			"display_name", "date_begin", "date_end", "state", "seats_max"},
	},
	EntityRegistration: {
		Name:            EntityRegistration,
		RemoteName:      "event.registration",
		DefaultFields:   []string{"id", "member_id", "state", "event_id"},
		PermittedFields: []string{"id", "member_id", "state", "event_id", "name", "display_name", "create_date", "partner_id"},
	},
	EntityProfile: {
		Name:       EntityProfile,
		RemoteName: "member.profile",
		DefaultFields: []string{"id", "member_id", "member_number", "name", "gender", "birthdate",
			"primary_membership_organization_id", "organization_structure_parent_id"},
		PermittedFields: []string{"id", "member_id", "member_number", "name", "gender", "birthdate",
			"primary_membership_organization_id", "organization_structure_parent_id",
			"active", "display_name", "email", "mobile", "age"},
	},
	EntityQuestion: {
		Name:            EntityQuestion,
		RemoteName:      "event.question",
		DefaultFields:   []string{"id", "name", "event_question_option_ids"},
		PermittedFields: []string{"id", "name", "event_question_option_ids", "event_id", "sequence", "is_individual"},
	},
	EntityAnswer: {
		Name:          EntityAnswer,
		RemoteName:    "event.registration.answer",
		DefaultFields: []string{"id", "event_registration_id", "event_question_id", "event_question_option_id", "response", "event_id"},
		PermittedFields: []string{"id", "event_registration_id", "event_question_id", "event_question_option_id", "response", "event_id",
			"display_name"},
	},
	EntityMemberOverview: {
		Name:            EntityMemberOverview,
		RemoteName:      "member.member",
		DefaultFields:   []string{"id", "name", "member_number"},
		PermittedFields: []string{"id", "name", "member_number", "display_name", "active"},
	},
	EntityModelOverview: {
		Name:            EntityModelOverview,
		RemoteName:      "ir.model",
		DefaultFields:   []string{"display_name", "model", "info"},
		PermittedFields: []string{"id", "display_name", "model", "info", "name"},
	},
}

// LookupEntity returns the spec registered under name.
func LookupEntity(name EntityName) (EntitySpec, error) {
	spec, ok := entities[name]
	if !ok {
		return EntitySpec{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown entity %q", name))
	}
	return spec, nil
}

// MustEntity is LookupEntity for the built-in names.
func MustEntity(name EntityName) EntitySpec {
	spec, err := LookupEntity(name)
	if err != nil {
		panic(err)
	}
	return spec
}

// Entities lists every registered spec ordered by name.
func Entities() []EntitySpec {
	out := make([]EntitySpec, 0, len(entities))
	for _, spec := range entities {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Permits reports whether field is part of the permitted projection.
func (s EntitySpec) Permits(field string) bool {
	for _, f := range s.PermittedFields {
		if f == field {
			return true
		}
	}
	return false
}
