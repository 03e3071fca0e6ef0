package canonicalizer

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// FieldMapping extracts one canonical field from a raw document
type FieldMapping struct {
	// Expression is a JMESPath expression evaluated against the raw document
	Expression string `yaml:"expression" json:"expression"`
	// Normalizers are applied in order to string fields, see package normalizers
	Normalizers []string `yaml:"normalizers,omitempty" json:"normalizers,omitempty"`
}

// Mapping is a declarative canonicalizer for one source document format.
// Fields whose expression yields null are left nil on the canonical entity.
type Mapping struct {
	// Identifier extracts the provider-native key, e.g. the DUNS number
	Identifier     string                        `yaml:"identifier" json:"identifier"`
	IdentifierName string                        `yaml:"identifier_name" json:"identifier_name"`
	Fields         map[models.Field]FieldMapping `yaml:"fields" json:"fields"`
}

// Validate compiles every expression so broken mappings fail at registration
func (m Mapping) Validate() error {
	ev := newEvaluator()
	if m.Identifier != "" {
		if _, err := ev.compile(m.Identifier); err != nil {
			return err
		}
	}
	for field, fm := range m.Fields {
		if !models.IsMergeable(string(field)) {
			return fmt.Errorf("unknown canonical field %q", field)
		}
		if _, err := ev.compile(fm.Expression); err != nil {
			return err
		}
	}
	return nil
}

type mappingCanonicalizer struct {
	source  string
	mapping Mapping
	ev      *evaluator
}

func newMappingCanonicalizer(source string, mapping Mapping) (*mappingCanonicalizer, error) {
	if err := mapping.Validate(); err != nil {
		return nil, fmt.Errorf("mapping for source %s: %w", source, err)
	}
	return &mappingCanonicalizer{source: source, mapping: mapping, ev: newEvaluator()}, nil
}

// canonicalize never fails on content: a field whose value has the wrong shape
// is left nil and logged. Only a document that is not JSON is refused.
func (c *mappingCanonicalizer) canonicalize(logger ectologger.Logger, payload *models.SourcePayload) (*models.CanonicalEntity, error) {
	doc, err := decode(payload.Payload)
	if err != nil {
		return nil, errors.NewInvalidDocumentError(c.source, payload.ID, err)
	}

	entity := &models.CanonicalEntity{
		PayloadID: payload.ID,
		Source:    payload.Source,
	}

	for _, field := range models.MergeableFields {
		fm, ok := c.mapping.Fields[field]
		if !ok {
			continue
		}
		if err := c.extract(entity, field, fm, doc); err != nil {
			logger.WithFields(map[string]any{
				"source":     c.source,
				"payload_id": payload.ID,
				"field":      string(field),
			}).WithError(err).Warn("Ignoring malformed field")
		}
	}
	return entity, nil
}

// extract sets one field. On error the field is left untouched.
func (c *mappingCanonicalizer) extract(entity *models.CanonicalEntity, field models.Field, fm FieldMapping, doc any) error {
	switch field {
	case models.FieldRevenueUSD:
		n, ok, err := c.ev.evaluateNumber(fm.Expression, doc)
		if err != nil || !ok {
			return err
		}
		entity.RevenueUSD = &n
	case models.FieldEmployeeCount:
		n, ok, err := c.ev.evaluateNumber(fm.Expression, doc)
		if err != nil || !ok {
			return err
		}
		count := int64(math.Round(n))
		entity.EmployeeCount = &count
	default:
		s, err := c.ev.evaluateString(fm.Expression, doc)
		if err != nil {
			return err
		}
		value := normalizers.StringPtr(s, append([]string{"trim"}, fm.Normalizers...)...)
		switch field {
		case models.FieldName:
			entity.Name = value
		case models.FieldLegalName:
			entity.LegalName = value
		case models.FieldRegistrationNumber:
			entity.RegistrationNumber = value
		case models.FieldJurisdictionCode:
			entity.JurisdictionCode = value
		}
	}
	return nil
}

// identifier treats a key of the wrong shape like an absent one
func (c *mappingCanonicalizer) identifier(payload json.RawMessage) (string, error) {
	if c.mapping.Identifier == "" {
		return "", errors.NewMissingIdentifierError(c.source, c.mapping.IdentifierName)
	}
	doc, err := decode(payload)
	if err != nil {
		return "", errors.NewInvalidDocumentError(c.source, "", err)
	}
	id, err := c.ev.evaluateString(c.mapping.Identifier, doc)
	if err != nil {
		return "", errors.NewMissingIdentifierError(c.source, c.mapping.IdentifierName)
	}
	id = normalizers.Trim(id)
	if id == "" {
		return "", errors.NewMissingIdentifierError(c.source, c.mapping.IdentifierName)
	}
	return id, nil
}
