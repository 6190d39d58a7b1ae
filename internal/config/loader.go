package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a scenario file (YAML or JSON; the format is
// inferred from content, not extension, since YAML is a superset of JSON)
// into a Document, accepting camelCase and snake_case key spellings
// interchangeably (spec §6's "Scenario YAML" requirement).
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw YAML/JSON bytes into a Document.
func Parse(data []byte) (*Document, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parsing scenario document: %w", err)
	}

	normalized := normalizeKeys(raw)

	jsonBytes, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("config: re-encoding normalized document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, fmt.Errorf("config: decoding scenario document: %w", err)
	}
	return &doc, nil
}

// normalizeKeys walks a YAML-decoded value tree (maps keyed by
// interface{}, per yaml.v3's generic decode) and rewrites every
// snake_case map key to its camelCase equivalent, recursively.
func normalizeKeys(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[snakeToCamel(k)] = normalizeKeys(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprintf("%v", k)
			}
			out[snakeToCamel(key)] = normalizeKeys(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalizeKeys(val)
		}
		return out
	default:
		return v
	}
}

// snakeToCamel converts "start_vus" to "startVus"-style camelCase (the JSON
// decode that follows matches keys case-insensitively, so that still fills
// startVUs). Keys already in camelCase pass through unchanged since they
// contain no underscore.
func snakeToCamel(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	parts := strings.Split(s, "_")
	var sb strings.Builder
	sb.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(p[:1]))
		sb.WriteString(p[1:])
	}
	return sb.String()
}

// Export re-encodes a Document back to YAML in canonical camelCase form,
// used for the parse(export(options)) round-trip invariant (spec §8.6).
func Export(doc *Document) ([]byte, error) {
	return yaml.Marshal(doc)
}
