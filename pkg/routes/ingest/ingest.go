package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pipeline"
	"github.com/Ramsey-B/fern/pkg/utils"
	"github.com/labstack/echo/v4"
)

// HeaderSourceID carries the provider-native key of a raw document
const HeaderSourceID = "X-Source-Id"

// MaxDocumentBytes bounds the size of a raw document
const MaxDocumentBytes = 10 << 20

type Pipeline interface {
	Ingest(ctx context.Context, source, sourceID string, payload json.RawMessage) (*models.IngestResult, error)
	Canonicalize(ctx context.Context, payloadID string) (*models.CanonicalEntity, error)
	Resolve(ctx context.Context, canonicalID string) (*pipeline.ResolveResult, error)
	Process(ctx context.Context, source, sourceID string, payload json.RawMessage) (*pipeline.ProcessResult, error)
}

type PayloadReader interface {
	Get(ctx context.Context, id string) (*models.SourcePayload, error)
}

type CanonicalReader interface {
	Get(ctx context.Context, id string) (*models.CanonicalEntity, error)
	ListByPayload(ctx context.Context, payloadID string) ([]*models.CanonicalEntity, error)
}

type Handler struct {
	pipeline  Pipeline
	payloads  PayloadReader
	canonical CanonicalReader
}

func NewHandler(p Pipeline, payloads PayloadReader, canonical CanonicalReader) *Handler {
	return &Handler{pipeline: p, payloads: payloads, canonical: canonical}
}

// Register registers ingest, payload and canonical routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/ingest/:source", h.IngestDocument)
	g.POST("/payloads", h.StorePayload)
	g.GET("/payloads/:id", h.GetPayload)
	g.POST("/payloads/:id/canonicalize", h.Canonicalize)
	g.GET("/payloads/:id/canonical", h.ListCanonical)
	g.GET("/canonical/:id", h.GetCanonical)
	g.POST("/canonical/:id/resolve", h.Resolve)
}

// IngestDocument runs a raw document for :source through the whole pipeline.
// The source ID comes from the X-Source-Id header or is extracted from the document.
func (h *Handler) IngestDocument(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, MaxDocumentBytes+1))
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if len(body) > MaxDocumentBytes {
		return httperror.NewHTTPError(http.StatusRequestEntityTooLarge, "document is too large")
	}
	if len(body) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "document is required")
	}

	result, err := h.pipeline.Process(ctx, c.Param("source"), c.Request().Header.Get(HeaderSourceID), json.RawMessage(body))
	if err != nil {
		return err
	}

	status := http.StatusOK
	if result.Resolution.IsNew {
		status = http.StatusCreated
	}
	return c.JSON(status, result)
}

// StorePayload stores a raw payload without canonicalizing it
func (h *Handler) StorePayload(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.IngestPayloadRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := utils.Validate(req); err != nil {
		return err
	}

	result, err := h.pipeline.Ingest(ctx, req.Source, req.SourceID, req.Payload)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if result.IsNew {
		status = http.StatusCreated
	}
	return c.JSON(status, result)
}

// GetPayload returns a stored payload
func (h *Handler) GetPayload(c echo.Context) error {
	payload, err := h.payloads.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payload)
}

// Canonicalize converts a stored payload into a new canonical entity
func (h *Handler) Canonicalize(c echo.Context) error {
	canonical, err := h.pipeline.Canonicalize(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, canonical)
}

// ListCanonical lists the canonical entities produced from a payload, newest first
func (h *Handler) ListCanonical(c echo.Context) error {
	entities, err := h.canonical.ListByPayload(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if entities == nil {
		entities = []*models.CanonicalEntity{}
	}
	return c.JSON(http.StatusOK, entities)
}

// GetCanonical returns a canonical entity
func (h *Handler) GetCanonical(c echo.Context) error {
	canonical, err := h.canonical.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, canonical)
}

// Resolve merges a canonical entity into its golden record
func (h *Handler) Resolve(c echo.Context) error {
	result, err := h.pipeline.Resolve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
