// Package canonicalizer turns raw provider documents into canonical entities.
// Each source registers exactly one canonicalizer. A document from a source
// with no registered canonicalizer is rejected, never guessed at.
package canonicalizer

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Func converts one stored payload into its canonical form. Implementations
// must tolerate missing sub-structures by leaving the field nil.
type Func func(payload *models.SourcePayload) (*models.CanonicalEntity, error)

// IdentifierFunc extracts the provider-native key from a raw document
type IdentifierFunc func(payload json.RawMessage) (string, error)

type Registry struct {
	mu          sync.RWMutex
	logger      ectologger.Logger
	funcs       map[string]Func
	identifiers map[string]IdentifierFunc
}

func NewRegistry() *Registry {
	return &Registry{
		logger:      ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}),
		funcs:       make(map[string]Func),
		identifiers: make(map[string]IdentifierFunc),
	}
}

// WithLogger sets the logger mapping canonicalizers report malformed fields to
func (r *Registry) WithLogger(logger ectologger.Logger) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
	return r
}

func (r *Registry) currentLogger() ectologger.Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// NewDefaultRegistry returns a registry with the built-in D&B and Companies House adapters
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for source, mapping := range BuiltinMappings() {
		// built-in mappings are compiled in tests, a failure here is a programming error
		if err := r.RegisterMapping(source, mapping); err != nil {
			panic(err)
		}
	}
	return r
}

// Register installs fn for source, replacing any previous canonicalizer
func (r *Registry) Register(source string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[source] = fn
}

// RegisterIdentifier installs the identifier extractor used by ingest when no source id is supplied
func (r *Registry) RegisterIdentifier(source string, fn IdentifierFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identifiers[source] = fn
}

// RegisterMapping registers a JMESPath mapping as both canonicalizer and identifier extractor
func (r *Registry) RegisterMapping(source string, mapping Mapping) error {
	c, err := newMappingCanonicalizer(source, mapping)
	if err != nil {
		return err
	}
	r.Register(source, func(payload *models.SourcePayload) (*models.CanonicalEntity, error) {
		return c.canonicalize(r.currentLogger(), payload)
	})
	r.RegisterIdentifier(source, c.identifier)
	return nil
}

// Supports reports whether a canonicalizer is registered for source
func (r *Registry) Supports(source string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[source]
	return ok
}

// Sources returns the registered sources in sorted order
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sources := make([]string, 0, len(r.funcs))
	for source := range r.funcs {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}

// Canonicalize dispatches payload to the canonicalizer registered for its source.
// The returned entity always carries the payload's ID and source.
func (r *Registry) Canonicalize(payload *models.SourcePayload) (*models.CanonicalEntity, error) {
	r.mu.RLock()
	fn, ok := r.funcs[payload.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewUnsupportedSourceError(payload.Source)
	}

	entity, err := fn(payload)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("canonicalizer for %s returned no entity", payload.Source)
	}
	entity.PayloadID = payload.ID
	entity.Source = payload.Source
	return entity, nil
}

// IdentifierFor extracts the provider-native key of a raw document
func (r *Registry) IdentifierFor(source string, payload json.RawMessage) (string, error) {
	r.mu.RLock()
	fn, ok := r.identifiers[source]
	_, supported := r.funcs[source]
	r.mu.RUnlock()
	if !supported {
		return "", errors.NewUnsupportedSourceError(source)
	}
	if !ok {
		return "", errors.NewMissingIdentifierError(source, "")
	}
	return fn(payload)
}
