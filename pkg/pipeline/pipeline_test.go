package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/repositories/canonicalentity"
	"github.com/Ramsey-B/fern/internal/repositories/resolutionaudit"
	"github.com/Ramsey-B/fern/internal/repositories/resolvedentity"
	"github.com/Ramsey-B/fern/internal/repositories/sourcepayload"
	"github.com/Ramsey-B/fern/pkg/canonicalizer"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/linkage"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolution"
	"github.com/Ramsey-B/fern/pkg/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(0, 0).UTC()

const dnbDocument = `{
	"organization": {
		"duns": "123456789",
		"primaryName": "Test Corp",
		"registeredName": "Test Corp Inc.",
		"registrationNumbers": [{"registrationNumber": "REG123", "isPreferredRegistrationNumber": true}],
		"financials": [{"yearlyRevenue": [{"value": 1000000, "currency": "USD"}]}],
		"numberOfEmployees": [{"value": 100}]
	}
}`

const companiesHouseDocument = `{
	"company_name": "Test Corp",
	"company_number": "REG123",
	"jurisdiction": "england-wales"
}`

type harness struct {
	pipeline  *Pipeline
	payloads  *sourcepayload.MemoryRepository
	canonical *canonicalentity.MemoryRepository
	entities  *resolvedentity.MemoryRepository
	audits    *resolutionaudit.MemoryRepository
}

type option func(*Deps, *Options)

func withEntities(store GoldenRecordStore) option {
	return func(d *Deps, _ *Options) { d.Entities = store }
}

func withProjectors(projectors ...Projector) option {
	return func(d *Deps, _ *Options) { d.Projectors = projectors }
}

func withMaxAttempts(n int) option {
	return func(_ *Deps, o *Options) { o.ResolveMaxAttempts = n }
}

func withPolicy(policy resolution.TieBreakPolicy, rules *trust.StaticProvider) option {
	return func(d *Deps, _ *Options) {
		d.Engine = resolution.NewEngine(testLogger(), trust.NewRuleSet(rules), resolution.WithTieBreakPolicy(policy))
	}
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func scenarioRuleList() []models.TrustRule {
	return []models.TrustRule{
		{Source: canonicalizer.SourceDNB, Field: "revenue_usd", Weight: 10, EffectiveFrom: epoch},
		{Source: canonicalizer.SourceDNB, Field: "*", Weight: 5, EffectiveFrom: epoch},
		{Source: canonicalizer.SourceCompaniesHouse, Field: "legal_name", Weight: 10, EffectiveFrom: epoch},
		{Source: canonicalizer.SourceCompaniesHouse, Field: "*", Weight: 5, EffectiveFrom: epoch},
	}
}

func scenarioRules() *trust.StaticProvider {
	return trust.NewStaticProvider(scenarioRuleList()...)
}

func newHarness(opts ...option) *harness {
	logger := testLogger()
	h := &harness{
		payloads:  sourcepayload.NewMemoryRepository(),
		canonical: canonicalentity.NewMemoryRepository(),
		entities:  resolvedentity.NewMemoryRepository(),
		audits:    resolutionaudit.NewMemoryRepository(),
	}
	registry := canonicalizer.NewDefaultRegistry()

	deps := Deps{
		Payloads:   h.payloads,
		Canonical:  h.canonical,
		Canonicals: canonicalizer.NewService(logger, registry, h.payloads, h.canonical),
		Sources:    registry,
		Matcher: linkage.NewChainMatcher(
			linkage.NewRegistrationNumberMatcher(h.entities),
			linkage.NewPayloadLinkMatcher(h.entities),
		),
		Engine:   resolution.NewEngine(logger, trust.NewRuleSet(scenarioRules())),
		Entities: h.entities,
		Audits:   h.audits,
		Locker:   lock.NewMemoryLocker(5 * time.Second),
	}
	options := Options{ResolveMaxAttempts: 3}
	for _, opt := range opts {
		opt(&deps, &options)
	}

	h.pipeline = New(logger, deps, options)
	return h
}

func TestProcess_DNBThenCompaniesHouse(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first, err := h.pipeline.Process(ctx, canonicalizer.SourceDNB, "", json.RawMessage(dnbDocument))
	require.NoError(t, err)
	assert.True(t, first.Ingest.IsNew)
	assert.Equal(t, "123456789", first.Ingest.Payload.SourceID)
	assert.True(t, first.Resolution.IsNew)
	assert.Equal(t, 1, first.Resolution.Entity.Version)

	second, err := h.pipeline.Process(ctx, canonicalizer.SourceCompaniesHouse, "REG123", json.RawMessage(companiesHouseDocument))
	require.NoError(t, err)
	assert.False(t, second.Resolution.IsNew)
	assert.Equal(t, first.Resolution.Entity.ID, second.Resolution.Entity.ID)

	golden, err := h.entities.Get(ctx, first.Resolution.Entity.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, golden.Version)
	assert.Equal(t, 1000000.0, *golden.RevenueUSD)
	assert.Equal(t, canonicalizer.SourceDNB, golden.Lineage["revenue_usd"].Source)
	assert.Equal(t, "Test Corp", *golden.LegalName, "companies house legal name comes from company_name")
	assert.Equal(t, canonicalizer.SourceCompaniesHouse, golden.Lineage["legal_name"].Source)
	assert.Equal(t, 10, golden.Lineage["legal_name"].Confidence)
	assert.Equal(t, "GB", *golden.JurisdictionCode)
	assert.Equal(t, int64(100), *golden.EmployeeCount)

	links, err := h.entities.ListLinks(ctx, golden.ID)
	require.NoError(t, err)
	assert.Len(t, links, 2)

	audits, err := h.audits.ListByEntity(ctx, golden.ID, 0)
	require.NoError(t, err)
	assert.Len(t, audits, 2)
}

func TestProcess_ReprocessingIsIdempotent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first, err := h.pipeline.Process(ctx, canonicalizer.SourceDNB, "", json.RawMessage(dnbDocument))
	require.NoError(t, err)

	again, err := h.pipeline.Process(ctx, canonicalizer.SourceDNB, "", json.RawMessage(dnbDocument))
	require.NoError(t, err)
	assert.True(t, again.Ingest.Unchanged)
	assert.Equal(t, first.Ingest.Payload.ID, again.Ingest.Payload.ID)
	assert.False(t, again.Resolution.Changed)
	assert.Empty(t, again.Resolution.ChangedFields)

	golden, err := h.entities.Get(ctx, first.Resolution.Entity.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, golden.Version)
	assert.Equal(t, first.Resolution.Entity.Lineage, golden.Lineage)
}

func TestIngest_Errors(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.pipeline.Ingest(ctx, "unknown", "", json.RawMessage(`{}`))
	var unsupported *errors.UnsupportedSourceError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "unknown", unsupported.Source)

	_, err = h.pipeline.Ingest(ctx, canonicalizer.SourceDNB, "", json.RawMessage(`{"organization":{}}`))
	assert.ErrorIs(t, err, errors.ErrMissingIdentifier)

	_, err = h.payloads.GetBySourceID(ctx, canonicalizer.SourceDNB, "")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestIngest_StoresNonJSONDocumentUnvalidated(t *testing.T) {
	h := newHarness()

	result, err := h.pipeline.Ingest(context.Background(), canonicalizer.SourceDNB, "123", json.RawMessage(`not json`))
	require.NoError(t, err)
	assert.Empty(t, result.Payload.Fingerprint)
	assert.Equal(t, "not json", string(result.Payload.Payload))
}

func TestStages_RunSeparately(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	ingest, err := h.pipeline.Ingest(ctx, canonicalizer.SourceDNB, "", json.RawMessage(dnbDocument))
	require.NoError(t, err)

	canonical, err := h.pipeline.Canonicalize(ctx, ingest.Payload.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.Payload.ID, canonical.PayloadID)

	resolved, err := h.pipeline.Resolve(ctx, canonical.ID)
	require.NoError(t, err)
	assert.True(t, resolved.IsNew)
	assert.Equal(t, 1, resolved.Attempts)

	_, err = h.pipeline.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = h.pipeline.Canonicalize(ctx, "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestResolve_PayloadWithoutRegistrationNumberReusesItsRecord(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	doc := json.RawMessage(`{"company_name": "No Number Ltd", "company_number": ""}`)

	first, err := h.pipeline.Process(ctx, canonicalizer.SourceCompaniesHouse, "X1", doc)
	require.NoError(t, err)
	second, err := h.pipeline.Process(ctx, canonicalizer.SourceCompaniesHouse, "X1", doc)
	require.NoError(t, err)

	assert.Equal(t, first.Resolution.Entity.ID, second.Resolution.Entity.ID)
	assert.False(t, second.Resolution.IsNew)
}

type conflictingStore struct {
	*resolvedentity.MemoryRepository
	failures int32
}

func (s *conflictingStore) Update(ctx context.Context, entity *models.ResolvedEntity) (*models.ResolvedEntity, error) {
	if atomic.AddInt32(&s.failures, -1) >= 0 {
		return nil, errors.NewConflictError(entity.ID, entity.Version, "version changed")
	}
	return s.MemoryRepository.Update(ctx, entity)
}

func TestResolve_RetriesOnConflict(t *testing.T) {
	tests := []struct {
		name        string
		failures    int32
		maxAttempts int
		wantErr     bool
		attempts    int
	}{
		{name: "succeeds after retry", failures: 1, maxAttempts: 3, attempts: 2},
		{name: "gives up after max attempts", failures: 5, maxAttempts: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &conflictingStore{MemoryRepository: resolvedentity.NewMemoryRepository()}
			h := newHarness(withEntities(store), withMaxAttempts(tt.maxAttempts))
			h.pipeline.deps.Matcher = linkage.NewRegistrationNumberMatcher(store)
			ctx := context.Background()

			_, err := h.pipeline.Process(ctx, canonicalizer.SourceDNB, "", json.RawMessage(dnbDocument))
			require.NoError(t, err)

			store.failures = tt.failures
			result, err := h.pipeline.Process(ctx, canonicalizer.SourceCompaniesHouse, "REG123", json.RawMessage(companiesHouseDocument))
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrConflict)
				assert.True(t, errors.IsRetryable(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.attempts, result.Resolution.Attempts)
			assert.Equal(t, 2, result.Resolution.Entity.Version)
		})
	}
}

func TestResolve_ConcurrentSameIdentityCreatesOneRecord(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := fmt.Sprintf(`{"company_name": "Worker %d", "company_number": "REG123"}`, i)
			_, err := h.pipeline.Process(ctx, canonicalizer.SourceCompaniesHouse, fmt.Sprintf("W%d", i), json.RawMessage(doc))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	golden, err := h.entities.FindByRegistrationNumber(ctx, "REG123")
	require.NoError(t, err)
	assert.Equal(t, workers, golden.Version, "first write creates, later equal-weight writes update")

	links, err := h.entities.ListLinks(ctx, golden.ID)
	require.NoError(t, err)
	assert.Len(t, links, workers)
}

func TestResolve_RejectPolicyRecordsConflict(t *testing.T) {
	rules := trust.NewStaticProvider(
		models.TrustRule{Source: canonicalizer.SourceDNB, Field: "*", Weight: 5, EffectiveFrom: epoch},
		models.TrustRule{Source: canonicalizer.SourceCompaniesHouse, Field: "*", Weight: 5, EffectiveFrom: epoch},
	)
	h := newHarness(withPolicy(resolution.TieBreakReject, rules))
	ctx := context.Background()

	first, err := h.pipeline.Process(ctx, canonicalizer.SourceDNB, "", json.RawMessage(dnbDocument))
	require.NoError(t, err)

	second, err := h.pipeline.Process(ctx, canonicalizer.SourceCompaniesHouse, "REG123", json.RawMessage(companiesHouseDocument))
	require.NoError(t, err)
	require.NotEmpty(t, second.Resolution.Conflicts)
	assert.Equal(t, "legal_name", second.Resolution.Conflicts[0].Field)

	golden, err := h.entities.Get(ctx, first.Resolution.Entity.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test Corp Inc.", *golden.LegalName)

	conflicts, err := h.audits.ListConflicts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, string(resolution.TieBreakReject), conflicts[0].TieBreakPolicy)
}

type recordingProjector struct {
	mu      sync.Mutex
	name    string
	updates []models.GoldenRecordUpdate
	err     error
}

func (p *recordingProjector) Name() string { return p.name }

func (p *recordingProjector) Project(_ context.Context, update models.GoldenRecordUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, update)
	update.Entity.Lineage["name"] = models.LineageEntry{Source: "tampered"}
	return p.err
}

func TestProjectors_ReceiveCopiesAndFailuresAreIgnored(t *testing.T) {
	failing := &recordingProjector{name: "failing", err: assert.AnError}
	ok := &recordingProjector{name: "ok"}
	h := newHarness(withProjectors(failing, ok))
	ctx := context.Background()

	result, err := h.pipeline.Process(ctx, canonicalizer.SourceDNB, "", json.RawMessage(dnbDocument))
	require.NoError(t, err)

	require.Len(t, failing.updates, 1)
	require.Len(t, ok.updates, 1)
	assert.True(t, ok.updates[0].IsNew)
	assert.Equal(t, result.Resolution.Entity.ID, ok.updates[0].Entity.ID)
	assert.Equal(t, canonicalizer.SourceDNB, ok.updates[0].Source)

	golden, err := h.entities.Get(ctx, result.Resolution.Entity.ID)
	require.NoError(t, err)
	assert.Equal(t, canonicalizer.SourceDNB, golden.Lineage["name"].Source)
	assert.Equal(t, canonicalizer.SourceDNB, result.Resolution.Entity.Lineage["name"].Source)
}

type blockingLocker struct{}

func (blockingLocker) Acquire(context.Context, string) (lock.Lock, error) {
	return nil, lock.ErrNotAcquired
}

func TestResolve_LockTimeoutIsRetryableConflict(t *testing.T) {
	h := newHarness(withMaxAttempts(2))
	h.pipeline.deps.Locker = blockingLocker{}

	_, err := h.pipeline.Process(context.Background(), canonicalizer.SourceDNB, "", json.RawMessage(dnbDocument))
	assert.ErrorIs(t, err, errors.ErrConflict)
}

func TestHandleMessage(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	err := h.pipeline.HandleMessage(ctx, &kafka.IncomingMessage{
		Key:     "",
		Value:   []byte(dnbDocument),
		Headers: map[string]string{kafka.HeaderSource: canonicalizer.SourceDNB},
	})
	require.NoError(t, err)

	stored, err := h.payloads.GetBySourceID(ctx, canonicalizer.SourceDNB, "123456789")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)

	err = h.pipeline.HandleMessage(ctx, &kafka.IncomingMessage{Key: "1", Value: []byte(`{}`), Headers: map[string]string{}})
	assert.True(t, errors.IsPermanent(err))
}

func TestIngest_StoresUnsupportedSourceWithSourceID(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	result, err := h.pipeline.Ingest(ctx, "orbis", "X1", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.True(t, result.IsNew)

	stored, err := h.payloads.GetBySourceID(ctx, "orbis", "X1")
	require.NoError(t, err)
	assert.Equal(t, result.Payload.ID, stored.ID)
}

func TestProcess_UnsupportedSourceKeepsPayload(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	result, err := h.pipeline.Process(ctx, "orbis", "X1", json.RawMessage(`{"a":1}`))
	assert.ErrorIs(t, err, errors.ErrUnsupportedSource)
	assert.True(t, errors.IsPermanent(err))
	require.NotNil(t, result)
	require.NotNil(t, result.Ingest)
	assert.Nil(t, result.Canonical)

	_, err = h.payloads.Get(ctx, result.Ingest.Payload.ID)
	assert.NoError(t, err)
}

func TestProcess_MalformedDocuments(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name: "non-numeric employee count resolves without it",
			doc:  `{"organization": {"duns": "1", "primaryName": "Test Corp", "numberOfEmployees": [{"value": "approx 50"}]}}`,
		},
		{
			name: "object primary name resolves without it",
			doc:  `{"organization": {"duns": "1", "primaryName": {"en": "Test Corp"}, "registrationNumbers": [{"registrationNumber": "REG1"}]}}`,
		},
		{
			name:    "document that is not JSON fails permanently",
			doc:     `not json at all`,
			wantErr: errors.ErrInvalidDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()

			result, err := h.pipeline.Process(context.Background(), canonicalizer.SourceDNB, "1", json.RawMessage(tt.doc))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, errors.IsPermanent(err))
				require.NotNil(t, result)
				assert.NotNil(t, result.Ingest, "payload is stored before canonicalization")
				return
			}
			require.NoError(t, err)
			assert.Nil(t, result.Canonical.EmployeeCount)
			assert.NotNil(t, result.Resolution.Entity)
		})
	}
}

func TestHandleMessage_InvalidDocumentIsPermanent(t *testing.T) {
	h := newHarness()

	err := h.pipeline.HandleMessage(context.Background(), &kafka.IncomingMessage{
		Key:     "123456789",
		Value:   []byte(`not json at all`),
		Headers: map[string]string{kafka.HeaderSource: canonicalizer.SourceDNB},
	})
	assert.ErrorIs(t, err, errors.ErrInvalidDocument)
	assert.True(t, errors.IsPermanent(err))
}
