package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/member-signups/internal/dto"
	"github.com/noah-isme/member-signups/internal/models"
	"github.com/noah-isme/member-signups/internal/service"
	appErrors "github.com/noah-isme/member-signups/pkg/errors"
	"github.com/noah-isme/member-signups/pkg/response"
)

type entityInspector interface {
	Entities() []models.EntitySpec
	Fields(ctx context.Context, name string) ([]models.FieldInfo, error)
	Probe(ctx context.Context, name string, candidates []string) ([]string, error)
	Search(ctx context.Context, name string, search service.EntitySearch) ([]models.Record, error)
}

// EntityHandler exposes the entity registry and remote schema discovery.
type EntityHandler struct {
	entities entityInspector
}

// NewEntityHandler constructs an entity handler.
func NewEntityHandler(entities entityInspector) *EntityHandler {
	return &EntityHandler{entities: entities}
}

// List godoc
// @Summary List registered remote entities
// @Tags Entities
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /entities [get]
func (h *EntityHandler) List(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.entities.Entities(), nil)
}

// Fields godoc
// @Summary Describe the fields of a remote entity
// @Tags Entities
// @Produce json
// @Security BearerAuth
// @Param name path string true "Entity name"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /entities/{name}/fields [get]
func (h *EntityHandler) Fields(c *gin.Context) {
	fields, err := h.entities.Fields(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fields, nil)
}

// Probe godoc
// @Summary Check which fields a remote entity accepts
// @Tags Entities
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param name path string true "Entity name"
// @Param payload body dto.ProbeRequest true "Fields to probe"
// @Success 200 {object} response.Envelope
// @Router /entities/{name}/probe [post]
func (h *EntityHandler) Probe(c *gin.Context) {
	var req dto.ProbeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	name := c.Param("name")
	supported, err := h.entities.Probe(c.Request.Context(), name, req.Fields)
	if err != nil {
		response.Error(c, err)
		return
	}
	accepted := make(map[string]struct{}, len(supported))
	for _, field := range supported {
		accepted[field] = struct{}{}
	}
	rejected := make([]string, 0)
	for _, field := range req.Fields {
		if _, ok := accepted[field]; !ok {
			rejected = append(rejected, field)
		}
	}
	response.JSON(c, http.StatusOK, dto.ProbeResponse{Entity: name, Supported: supported, Rejected: rejected}, nil)
}

// Search godoc
// @Summary Search records of a remote entity
// @Tags Entities
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param name path string true "Entity name"
// @Param payload body dto.SearchRequest true "Filters"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /entities/{name}/search [post]
func (h *EntityHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	records, err := h.entities.Search(c.Request.Context(), c.Param("name"), service.EntitySearch{
		Filters:   req.Filters,
		Fields:    req.Fields,
		AllFields: req.AllFields,
		Limit:     req.Limit,
		Order:     req.Order,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil, map[string]interface{}{"count": len(records)})
}
