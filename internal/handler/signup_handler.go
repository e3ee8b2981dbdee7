package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/member-signups/internal/dto"
	"github.com/noah-isme/member-signups/internal/models"
	"github.com/noah-isme/member-signups/internal/service"
	appErrors "github.com/noah-isme/member-signups/pkg/errors"
	"github.com/noah-isme/member-signups/pkg/response"
)

type signupComputer interface {
	Compute(ctx context.Context, q service.SignupQuery) (*models.SignupResult, error)
}

type snapshotWriter interface {
	CanPersist() bool
	CanPublish() bool
	Save(ctx context.Context, result *models.SignupResult) (*models.SignupSnapshot, error)
	Publish(ctx context.Context, result *models.SignupResult) error
}

type refreshQueue interface {
	Enqueue(q service.SignupQuery) (string, error)
}

type signupExporter interface {
	Render(result *models.SignupResult, format string) (*service.ExportFile, error)
}

// SignupHandler computes signup lists on demand.
type SignupHandler struct {
	signups   signupComputer
	snapshots snapshotWriter
	exports   signupExporter
	refresh   refreshQueue
	metrics   *service.MetricsService
	logger    *zap.Logger
}

// NewSignupHandler constructs the handler. snapshots and metrics may be nil.
func NewSignupHandler(signups signupComputer, snapshots snapshotWriter, exports signupExporter, metrics *service.MetricsService, logger *zap.Logger) *SignupHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignupHandler{signups: signups, snapshots: snapshots, exports: exports, metrics: metrics, logger: logger}
}

// WithSnapshots enables the persist and publish options of POST /signups.
func (h *SignupHandler) WithSnapshots(snapshots snapshotWriter) *SignupHandler {
	h.snapshots = snapshots
	return h
}

// WithRefresh enables POST /signups/refresh.
func (h *SignupHandler) WithRefresh(refresh refreshQueue) *SignupHandler {
	h.refresh = refresh
	return h
}

// Compute godoc
// @Summary Compute the signup list for an event
// @Tags Signups
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.SignupRequest true "Signup query"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /signups [post]
func (h *SignupHandler) Compute(c *gin.Context) {
	req, ok := bindSignupRequest(c)
	if !ok {
		return
	}
	if req.Persist && (h.snapshots == nil || !h.snapshots.CanPersist()) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "snapshots are not enabled"))
		return
	}
	if req.Publish && (h.snapshots == nil || !h.snapshots.CanPublish()) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "publishing is not enabled"))
		return
	}
	result, err := h.compute(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("signups computed",
		zap.String("client", clientFromContext(c)),
		zap.String("event_code", result.Meta.MainEventCode),
		zap.Int("members", len(result.Signups)),
	)

	resp := dto.SignupResponse{Signups: result.Signups, Meta: result.Meta}
	if req.Persist {
		snapshot, err := h.snapshots.Save(c.Request.Context(), result)
		if err != nil {
			response.Error(c, err)
			return
		}
		resp.SnapshotID = snapshot.ID
	}
	if req.Publish {
		if err := h.snapshots.Publish(c.Request.Context(), result); err != nil {
			response.Error(c, err)
			return
		}
		resp.Published = true
	}

	response.JSON(c, http.StatusOK, resp, nil, map[string]interface{}{"member_count": len(result.Signups)})
}

// Export godoc
// @Summary Export the signup list as a file
// @Tags Signups
// @Accept json
// @Produce text/csv,application/pdf,application/json
// @Security BearerAuth
// @Param format query string false "csv, pdf or json"
// @Param payload body dto.SignupRequest true "Signup query"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /signups/export [post]
func (h *SignupHandler) Export(c *gin.Context) {
	req, ok := bindSignupRequest(c)
	if !ok {
		return
	}
	result, err := h.compute(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.Render(result, c.DefaultQuery("format", service.FormatCSV))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// Refresh godoc
// @Summary Recompute and publish the signup list in the background
// @Tags Signups
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.SignupRequest true "Signup query"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /signups/refresh [post]
func (h *SignupHandler) Refresh(c *gin.Context) {
	if h.refresh == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "background refresh is not enabled"))
		return
	}
	req, ok := bindSignupRequest(c)
	if !ok {
		return
	}
	jobID, err := h.refresh.Enqueue(toQuery(req))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusServiceUnavailable, "refresh queue unavailable"))
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"job_id": jobID}, nil)
}

func (h *SignupHandler) compute(ctx context.Context, req dto.SignupRequest) (*models.SignupResult, error) {
	result, err := h.signups.Compute(ctx, toQuery(req))
	if err != nil {
		h.logger.Warn("signup computation failed", zap.String("event_code", req.MainEventCode), zap.Error(err))
		return nil, err
	}
	h.metrics.ObserveSignupRun(len(result.Signups))
	return result, nil
}

func bindSignupRequest(c *gin.Context) (dto.SignupRequest, bool) {
	var req dto.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return req, false
	}
	return req, true
}

func toQuery(req dto.SignupRequest) service.SignupQuery {
	return service.SignupQuery{
		MainEventCode:   req.MainEventCode,
		OtherEventCodes: req.OtherEventCodes,
		Questions:       req.Questions,
		Limit:           req.Limit,
	}
}
