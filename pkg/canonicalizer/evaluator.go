package canonicalizer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// evaluator compiles JMESPath expressions once and caches them
type evaluator struct {
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

func newEvaluator() *evaluator {
	return &evaluator{cache: make(map[string]*jmespath.JMESPath)}
}

func (e *evaluator) compile(expression string) (*jmespath.JMESPath, error) {
	e.mu.RLock()
	compiled, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	e.mu.Lock()
	e.cache[expression] = compiled
	e.mu.Unlock()
	return compiled, nil
}

func (e *evaluator) evaluate(expression string, doc any) (any, error) {
	compiled, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	result, err := compiled.Search(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

// evaluateString returns "" for null, and formats numbers without exponent so
// numeric identifiers such as DUNS survive.
func (e *evaluator) evaluateString(expression string, doc any) (string, error) {
	result, err := e.evaluate(expression, doc)
	if err != nil {
		return "", err
	}
	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("expression %q returned %T, expected a scalar", expression, result)
	}
}

// evaluateNumber returns ok=false for null. Numeric strings such as "1,000" are accepted.
func (e *evaluator) evaluateNumber(expression string, doc any) (float64, bool, error) {
	result, err := e.evaluate(expression, doc)
	if err != nil {
		return 0, false, err
	}
	switch v := result.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return v, true, nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("expression %q returned non-numeric %q", expression, v)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("expression %q returned %T, expected a number", expression, result)
	}
}

// decode unmarshals a raw document into the generic shape JMESPath searches.
func decode(payload json.RawMessage) (any, error) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
