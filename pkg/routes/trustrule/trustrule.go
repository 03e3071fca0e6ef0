package trustrule

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/utils"
	"github.com/labstack/echo/v4"
)

type Repository interface {
	List(ctx context.Context, source string) ([]models.TrustRule, error)
	Upsert(ctx context.Context, rule *models.TrustRule) (*models.TrustRule, error)
	Delete(ctx context.Context, id string) error
}

// Invalidator drops cached rules so changes apply to the next resolution
type Invalidator interface {
	Invalidate(sources ...string)
}

type Handler struct {
	repo   Repository
	cache  Invalidator
	logger ectologger.Logger
}

// NewHandler creates trust rule routes. cache may be nil.
func NewHandler(repo Repository, cache Invalidator, logger ectologger.Logger) *Handler {
	return &Handler{repo: repo, cache: cache, logger: logger}
}

// Register registers trust rule routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/trust-rules", h.ListRules)
	g.POST("/trust-rules", h.UpsertRule)
	g.DELETE("/trust-rules/:id", h.DeleteRule)
}

// ListRules lists trust rules, optionally filtered by ?source=
func (h *Handler) ListRules(c echo.Context) error {
	rules, err := h.repo.List(c.Request().Context(), c.QueryParam("source"))
	if err != nil {
		return err
	}
	if rules == nil {
		rules = []models.TrustRule{}
	}
	return c.JSON(http.StatusOK, rules)
}

// UpsertRule creates a rule or replaces the one with the same source, field and start
func (h *Handler) UpsertRule(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.UpsertTrustRuleRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := utils.Validate(req); err != nil {
		return err
	}
	if req.Field != models.WildcardField && !models.IsMergeable(req.Field) {
		return httperror.NewHTTPError(http.StatusBadRequest, "unknown field "+req.Field)
	}

	rule := &models.TrustRule{
		Source:        req.Source,
		Field:         req.Field,
		Weight:        req.Weight,
		EffectiveFrom: time.Unix(0, 0).UTC(),
		EffectiveTo:   req.EffectiveTo,
	}
	if req.EffectiveFrom != nil {
		rule.EffectiveFrom = req.EffectiveFrom.UTC()
	}
	if rule.EffectiveTo != nil && rule.EffectiveTo.Before(rule.EffectiveFrom) {
		return httperror.NewHTTPError(http.StatusBadRequest, "effective_to must not be before effective_from")
	}

	stored, err := h.repo.Upsert(ctx, rule)
	if err != nil {
		return err
	}
	if h.cache != nil {
		h.cache.Invalidate(stored.Source)
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"source": stored.Source,
		"field":  stored.Field,
		"weight": stored.Weight,
	}).Info("Trust rule saved")
	return c.JSON(http.StatusOK, stored)
}

// DeleteRule removes a trust rule
func (h *Handler) DeleteRule(c echo.Context) error {
	if err := h.repo.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	if h.cache != nil {
		h.cache.Invalidate()
	}
	return c.NoContent(http.StatusNoContent)
}
