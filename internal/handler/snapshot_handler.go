package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/member-signups/internal/dto"
	"github.com/noah-isme/member-signups/internal/models"
	appErrors "github.com/noah-isme/member-signups/pkg/errors"
	"github.com/noah-isme/member-signups/pkg/response"
)

type snapshotReader interface {
	CanPersist() bool
	CanPublish() bool
	Get(ctx context.Context, id string) (*models.SignupSnapshot, error)
	List(ctx context.Context, filter models.SnapshotFilter) ([]models.SignupSnapshot, error)
	Published(ctx context.Context, eventCode string) (*models.SignupResult, error)
}

// SnapshotHandler serves stored and published signup lists.
type SnapshotHandler struct {
	snapshots snapshotReader
}

// NewSnapshotHandler constructs a snapshot handler.
func NewSnapshotHandler(snapshots snapshotReader) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots}
}

// Stored reports whether the snapshot history routes can be served.
func (h *SnapshotHandler) Stored() bool {
	return h.snapshots.CanPersist()
}

// Publishing reports whether the published list route can be served.
func (h *SnapshotHandler) Publishing() bool {
	return h.snapshots.CanPublish()
}

// List godoc
// @Summary List stored snapshots
// @Tags Snapshots
// @Produce json
// @Security BearerAuth
// @Param event_code query string false "Filter by event code"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /snapshots [get]
func (h *SnapshotHandler) List(c *gin.Context) {
	var query dto.SnapshotListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	items, err := h.snapshots.List(c.Request.Context(), models.SnapshotFilter{
		EventCode: query.EventCode,
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]dto.SnapshotSummary, 0, len(items))
	for _, item := range items {
		out = append(out, dto.NewSnapshotSummary(item))
	}
	response.JSON(c, http.StatusOK, out, &response.Pagination{Limit: query.Limit, Offset: query.Offset, Count: len(out)})
}

// Get godoc
// @Summary Fetch a stored snapshot payload
// @Tags Snapshots
// @Produce json
// @Security BearerAuth
// @Param id path string true "Snapshot ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /snapshots/{id} [get]
func (h *SnapshotHandler) Get(c *gin.Context) {
	snapshot, err := h.snapshots.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot.Payload, nil, map[string]interface{}{
		"snapshot": dto.NewSnapshotSummary(*snapshot),
	})
}

// Published godoc
// @Summary Fetch the latest published list of an event
// @Tags Snapshots
// @Produce json
// @Security BearerAuth
// @Param event_code path string true "Event code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /published/{event_code} [get]
func (h *SnapshotHandler) Published(c *gin.Context) {
	result, err := h.snapshots.Published(c.Request.Context(), c.Param("event_code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
