package models

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/member-signups/internal/filter"
)

// RegistrationState mirrors the remote registration state codes.
type RegistrationState string

const (
	StateConfirmed RegistrationState = "open"
	StateMoved     RegistrationState = "moved"
	StateCancelled RegistrationState = "cancel"
	StateAwaiting  RegistrationState = "manual"
	StateWaitlist  RegistrationState = "waitinglist"
	StateRejected  RegistrationState = "annul"
	StateDrafted   RegistrationState = "draft"
	StateDNF       RegistrationState = "dnf"
	StateDNA       RegistrationState = "dna"
)

var statePrecedence = map[RegistrationState]int{
	StateConfirmed: 0,
	StateMoved:     1,
	StateCancelled: 2,
	StateAwaiting:  3,
	StateWaitlist:  4,
	StateRejected:  5,
	StateDrafted:   6,
}

// Precedence ranks a state; lower is more authoritative. Unknown states rank last.
func (s RegistrationState) Precedence() int {
	if p, ok := statePrecedence[s]; ok {
		return p
	}
	return len(statePrecedence)
}

// Terminal reports whether the state is a final outcome.
func (s RegistrationState) Terminal() bool {
	switch s {
	case StateConfirmed, StateWaitlist, StateCancelled, StateDNF, StateRejected, StateDNA:
		return true
	default:
		return false
	}
}

// Completed reports whether the member attended (fully or partially).
func (s RegistrationState) Completed() bool {
	return s == StateConfirmed || s == StateDNF
}

// TerminalStates lists the terminal states in filter order.
func TerminalStates() []RegistrationState {
	return []RegistrationState{StateConfirmed, StateWaitlist, StateCancelled, StateDNF, StateRejected, StateDNA}
}

// EntryRequest selects what EntityQuery.Entries fetches. Exactly one of IDs
// and Filter must be set.
type EntryRequest struct {
	Fields    []string
	AllFields bool
	IDs       []int64
	Filter    *filter.Expression
	Options   map[string]interface{}
}

// SignupSummary is the per-member result of an aggregation run.
type SignupSummary struct {
	MemberNumber    string                 `json:"member_number"`
	Name            string                 `json:"name"`
	Gender          string                 `json:"gender"`
	Birthdate       string                 `json:"birthdate"`
	Group           *string                `json:"gruppe"`
	Division        *string                `json:"division"`
	State           string                 `json:"state"`
	Answers         map[string]interface{} `json:"answers"`
	PrevCourses     []string               `json:"prev_courses"`
	PrevWaitlists   []string               `json:"prev_waitlists"`
	AssignedCourses []string               `json:"assigned_courses"`
}

// SignupMeta carries run metadata.
type SignupMeta struct {
	MainEventID   int64  `json:"main_event_id"`
	MainEventCode string `json:"main_event_code"`
}

// SignupResult is the output of one aggregation run keyed by member number.
type SignupResult struct {
	Signups map[string]SignupSummary `json:"signups"`
	Meta    SignupMeta               `json:"meta"`
}

// SignupSnapshot is a persisted aggregation result.
type SignupSnapshot struct {
	ID          string          `db:"id" json:"id"`
	EventCode   string          `db:"event_code" json:"event_code"`
	MainEventID int64           `db:"main_event_id" json:"main_event_id"`
	MemberCount int             `db:"member_count" json:"member_count"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// SnapshotFilter narrows snapshot listings.
type SnapshotFilter struct {
	EventCode string
	Limit     int
	Offset    int
}
