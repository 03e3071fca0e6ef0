package entity

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/labstack/echo/v4"
)

type EntityReader interface {
	Get(ctx context.Context, id string) (*models.ResolvedEntity, error)
	ListLinks(ctx context.Context, resolvedEntityID string) ([]models.EntityLink, error)
}

type AuditReader interface {
	ListByEntity(ctx context.Context, resolvedEntityID string, limit int) ([]*models.ResolutionAudit, error)
	ListConflicts(ctx context.Context, limit int) ([]*models.ResolutionAudit, error)
}

type Handler struct {
	entities EntityReader
	audits   AuditReader
}

func NewHandler(entities EntityReader, audits AuditReader) *Handler {
	return &Handler{entities: entities, audits: audits}
}

// Register registers golden record routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/entities/:id", h.GetEntity)
	g.GET("/entities/:id/lineage", h.GetLineage)
	g.GET("/entities/:id/lineage/:field", h.GetFieldLineage)
	g.GET("/entities/:id/sources", h.GetSources)
	g.GET("/entities/:id/audits", h.GetAudits)
	g.GET("/conflicts", h.ListConflicts)
}

// GetEntity returns a golden record
func (h *Handler) GetEntity(c echo.Context) error {
	entity, err := h.entities.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entity)
}

// GetLineage returns the provenance of every field of a golden record
func (h *Handler) GetLineage(c echo.Context) error {
	entity, err := h.entities.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	lineage := entity.Lineage
	if lineage == nil {
		lineage = models.Lineage{}
	}
	return c.JSON(http.StatusOK, lineage)
}

// GetFieldLineage returns the provenance of one field. A field with no value
// yet returns an empty object.
func (h *Handler) GetFieldLineage(c echo.Context) error {
	field := c.Param("field")
	if !models.IsMergeable(field) {
		return httperror.NewHTTPError(http.StatusBadRequest, "unknown field "+field)
	}

	entity, err := h.entities.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	entry, ok := entity.Lineage[field]
	if !ok {
		return c.JSON(http.StatusOK, map[string]any{})
	}
	return c.JSON(http.StatusOK, entry)
}

// GetSources lists the payloads resolved into a golden record
func (h *Handler) GetSources(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if _, err := h.entities.Get(ctx, id); err != nil {
		return err
	}
	links, err := h.entities.ListLinks(ctx, id)
	if err != nil {
		return err
	}
	if links == nil {
		links = []models.EntityLink{}
	}
	return c.JSON(http.StatusOK, links)
}

// GetAudits lists the most recent resolution passes for a golden record
func (h *Handler) GetAudits(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}
	audits, err := h.audits.ListByEntity(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return err
	}
	if audits == nil {
		audits = []*models.ResolutionAudit{}
	}
	return c.JSON(http.StatusOK, audits)
}

// ListConflicts lists resolution passes that left equal-weight conflicts for review
func (h *Handler) ListConflicts(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}
	audits, err := h.audits.ListConflicts(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if audits == nil {
		audits = []*models.ResolutionAudit{}
	}
	return c.JSON(http.StatusOK, audits)
}

func parseLimit(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
	}
	return limit, nil
}
