// Package fingerprint hashes raw source documents so re-ingesting an identical
// document can be recognised without diffing it.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// FromJSON returns the SHA256 of the canonical form of a JSON document.
// Key order and insignificant whitespace do not affect the result.
func FromJSON(data json.RawMessage) (string, error) {
	return FromJSONWithExclusions(data, nil)
}

// FromJSONWithExclusions is FromJSON ignoring the given dot-notation paths,
// e.g. "transactionDetail" or "links.self". Excluding a path excludes everything below it.
func FromJSONWithExclusions(data json.RawMessage, exclude map[string]bool) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return "", err
	}

	var sb strings.Builder
	canonicalize(&sb, doc, exclude, "")
	hash := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(hash[:]), nil
}

// HasChanged compares two fingerprints. An empty previous fingerprint always counts as changed.
func HasChanged(previous, current string) bool {
	return previous == "" || previous != current
}

func canonicalize(sb *strings.Builder, value any, exclude map[string]bool, path string) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('{')
		first := true
		for _, k := range keys {
			fieldPath := k
			if path != "" {
				fieldPath = path + "." + k
			}
			if excluded(fieldPath, exclude) {
				continue
			}
			if !first {
				sb.WriteByte(',')
			}
			first = false
			key, _ := json.Marshal(k)
			sb.Write(key)
			sb.WriteByte(':')
			canonicalize(sb, v[k], exclude, fieldPath)
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				sb.WriteByte(',')
			}
			// array elements share the parent path
			canonicalize(sb, item, exclude, path)
		}
		sb.WriteByte(']')
	default:
		b, _ := json.Marshal(v)
		sb.Write(b)
	}
}

func excluded(path string, exclude map[string]bool) bool {
	if len(exclude) == 0 {
		return false
	}
	if exclude[path] {
		return true
	}
	for prefix := range exclude {
		if strings.HasPrefix(path, prefix+".") {
			return true
		}
	}
	return false
}
