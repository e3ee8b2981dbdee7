package dto

import (
	"time"

	"github.com/noah-isme/member-signups/internal/models"
)

// SignupRequest captures POST /signups payload.
type SignupRequest struct {
	MainEventCode   string                 `json:"main_event_code" binding:"required"`
	OtherEventCodes []string               `json:"other_event_codes"`
	Questions       map[string]interface{} `json:"questions"`
	Limit           *int                   `json:"limit,omitempty"`
	// Persist stores the result as a snapshot.
	Persist bool `json:"persist"`
	// Publish replaces the published list for the event.
	Publish bool `json:"publish"`
}

// SignupResponse wraps a computed list and what happened to it.
type SignupResponse struct {
	Signups    map[string]models.SignupSummary `json:"signups"`
	Meta       models.SignupMeta               `json:"meta"`
	SnapshotID string                          `json:"snapshot_id,omitempty"`
	Published  bool                            `json:"published"`
}

// SearchRequest is a keyword-filtered entity search.
type SearchRequest struct {
	Filters   map[string]string `json:"filters" binding:"required,min=1"`
	Fields    []string          `json:"fields" binding:"omitempty,dive,required"`
	AllFields bool              `json:"all_fields"`
	Limit     int               `json:"limit" binding:"omitempty,min=1,max=1000"`
	Order     string            `json:"order" binding:"omitempty,max=64"`
}

// ProbeRequest lists candidate field names to test against an entity.
type ProbeRequest struct {
	Fields []string `json:"fields" binding:"required,min=1,dive,required"`
}

// ProbeResponse reports which candidates the remote service accepted.
type ProbeResponse struct {
	Entity    string   `json:"entity"`
	Supported []string `json:"supported"`
	Rejected  []string `json:"rejected"`
}

// SnapshotListQuery binds GET /snapshots query parameters.
type SnapshotListQuery struct {
	EventCode string `form:"event_code"`
	Limit     int    `form:"limit" binding:"omitempty,min=0,max=200"`
	Offset    int    `form:"offset" binding:"omitempty,min=0"`
}

// SnapshotSummary is a snapshot without its payload.
type SnapshotSummary struct {
	ID          string    `json:"id"`
	EventCode   string    `json:"event_code"`
	MainEventID int64     `json:"main_event_id"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewSnapshotSummary drops the payload.
func NewSnapshotSummary(s models.SignupSnapshot) SnapshotSummary {
	return SnapshotSummary{
		ID:          s.ID,
		EventCode:   s.EventCode,
		MainEventID: s.MainEventID,
		MemberCount: s.MemberCount,
		CreatedAt:   s.CreatedAt,
	}
}
