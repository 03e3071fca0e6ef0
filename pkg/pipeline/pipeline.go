// Package pipeline runs a raw payload through storage, canonicalization and
// resolution, then hands the persisted golden record to projectors.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/linkage"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolution"
)

type PayloadStore interface {
	Upsert(ctx context.Context, source, sourceID string, payload json.RawMessage, fingerprint string) (*models.IngestResult, error)
	Get(ctx context.Context, id string) (*models.SourcePayload, error)
}

type CanonicalReader interface {
	Get(ctx context.Context, id string) (*models.CanonicalEntity, error)
}

type Canonicalizer interface {
	CanonicalizePayload(ctx context.Context, payload *models.SourcePayload) (*models.CanonicalEntity, error)
}

// SourceRegistry extracts the native key of a document whose source ID was not supplied
type SourceRegistry interface {
	IdentifierFor(source string, payload json.RawMessage) (string, error)
}

// GoldenRecordStore persists golden records with version checks
type GoldenRecordStore interface {
	Create(ctx context.Context, entity *models.ResolvedEntity) (*models.ResolvedEntity, error)
	Update(ctx context.Context, entity *models.ResolvedEntity) (*models.ResolvedEntity, error)
	Link(ctx context.Context, link *models.EntityLink) error
}

type AuditRecorder interface {
	Record(ctx context.Context, audit *models.ResolutionAudit) error
}

type Resolver interface {
	Resolve(ctx context.Context, canonical *models.CanonicalEntity, existing *models.ResolvedEntity) (*resolution.Result, error)
	Policy() resolution.TieBreakPolicy
}

// Projector receives every persisted golden record. Its errors are logged
// and never affect resolution.
type Projector interface {
	Name() string
	Project(ctx context.Context, update models.GoldenRecordUpdate) error
}

// Transactor runs fn in one storage transaction
type Transactor func(ctx context.Context, fn func(ctx context.Context) error) error

// Deps are the collaborators of a Pipeline
type Deps struct {
	Payloads   PayloadStore
	Canonical  CanonicalReader
	Canonicals Canonicalizer
	Sources    SourceRegistry
	Matcher    linkage.Matcher
	Engine     Resolver
	Entities   GoldenRecordStore
	Audits     AuditRecorder
	Locker     lock.Locker
	Transactor Transactor
	Projectors []Projector
}

// Options tune retry behaviour
type Options struct {
	// ResolveMaxAttempts bounds how often a resolution is re-run after a concurrent update
	ResolveMaxAttempts int
	// RetryBackoff is the wait before the first retry; it doubles per attempt
	RetryBackoff time.Duration
}

func DefaultOptions() Options {
	return Options{ResolveMaxAttempts: 5, RetryBackoff: 10 * time.Millisecond}
}

type Pipeline struct {
	deps   Deps
	opts   Options
	logger ectologger.Logger
	now    func() time.Time
}

func New(logger ectologger.Logger, deps Deps, opts Options) *Pipeline {
	if opts.ResolveMaxAttempts <= 0 {
		opts.ResolveMaxAttempts = 1
	}
	if deps.Transactor == nil {
		deps.Transactor = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewMemoryLocker(lock.DefaultOptions().WaitTimeout)
	}
	return &Pipeline{
		deps:   deps,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for audit and link timestamps
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// ResolveResult is the outcome of resolving one canonical entity
type ResolveResult struct {
	Entity        *models.ResolvedEntity `json:"entity"`
	IsNew         bool                   `json:"is_new"`
	Changed       bool                   `json:"changed"`
	ChangedFields []models.Field         `json:"changed_fields"`
	Conflicts     []models.FieldConflict `json:"conflicts,omitempty"`
	Attempts      int                    `json:"attempts"`
}

// ProcessResult is the outcome of running a payload through every stage
type ProcessResult struct {
	Ingest     *models.IngestResult    `json:"ingest"`
	Canonical  *models.CanonicalEntity `json:"canonical"`
	Resolution *ResolveResult          `json:"resolution"`
}

// Ingest stores a raw payload. An empty sourceID is extracted from the
// document by the source's adapter, which requires a registered source.
// With a sourceID the document is stored whatever its source or content;
// an unsupported source surfaces later, from Canonicalize.
func (p *Pipeline) Ingest(ctx context.Context, source, sourceID string, payload json.RawMessage) (*models.IngestResult, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Pipeline.Ingest")
	defer span.End()

	if sourceID == "" {
		id, err := p.deps.Sources.IdentifierFor(source, payload)
		if err != nil {
			return nil, err
		}
		sourceID = id
	}

	fp, err := fingerprint.FromJSON(payload)
	if err != nil {
		// stored as-is; an empty fingerprint always counts as changed
		p.logger.WithContext(ctx).WithError(err).WithField("source", source).Debug("Payload is not JSON, skipping fingerprint")
		fp = ""
	}

	result, err := p.deps.Payloads.Upsert(ctx, source, sourceID, payload, fp)
	if err != nil {
		metrics.RecordIngestError(source)
		return nil, err
	}
	metrics.RecordIngest(source, result.IsNew, result.Unchanged)

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"payload_id": result.Payload.ID,
		"source":     source,
		"source_id":  sourceID,
		"is_new":     result.IsNew,
		"unchanged":  result.Unchanged,
	}).Info("Ingested payload")
	return result, nil
}

// Canonicalize converts a stored payload into a new canonical entity
func (p *Pipeline) Canonicalize(ctx context.Context, payloadID string) (*models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Pipeline.Canonicalize")
	defer span.End()

	payload, err := p.deps.Payloads.Get(ctx, payloadID)
	if err != nil {
		return nil, err
	}
	return p.canonicalize(ctx, payload)
}

func (p *Pipeline) canonicalize(ctx context.Context, payload *models.SourcePayload) (*models.CanonicalEntity, error) {
	canonical, err := p.deps.Canonicals.CanonicalizePayload(ctx, payload)
	metrics.RecordCanonicalization(payload.Source, err)
	return canonical, err
}

// Resolve merges a stored canonical entity into its golden record
func (p *Pipeline) Resolve(ctx context.Context, canonicalID string) (*ResolveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Pipeline.Resolve")
	defer span.End()

	canonical, err := p.deps.Canonical.Get(ctx, canonicalID)
	if err != nil {
		return nil, err
	}
	return p.ResolveCanonical(ctx, canonical)
}

// Process ingests, canonicalizes and resolves a payload
func (p *Pipeline) Process(ctx context.Context, source, sourceID string, payload json.RawMessage) (*ProcessResult, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Pipeline.Process")
	defer span.End()

	ingest, err := p.Ingest(ctx, source, sourceID, payload)
	if err != nil {
		return nil, err
	}

	canonical, err := p.canonicalize(ctx, ingest.Payload)
	if err != nil {
		return &ProcessResult{Ingest: ingest}, err
	}

	resolved, err := p.ResolveCanonical(ctx, canonical)
	if err != nil {
		return &ProcessResult{Ingest: ingest, Canonical: canonical}, err
	}

	return &ProcessResult{Ingest: ingest, Canonical: canonical, Resolution: resolved}, nil
}
