package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a manifest from the given file path.
//
// The file format is determined by extension: .yaml/.yml for YAML,
// .json for JSON. If the extension is unrecognized, YAML is attempted
// first, then JSON.
//
// After loading, the manifest is validated against the JSON schema and
// defaults are applied to optional fields.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes parses and validates a manifest from raw bytes.
//
// The path parameter is used for error messages and format detection.
// Validation runs on the raw document before struct parsing, so
// unknown fields are rejected rather than silently ignored.
func LoadFromBytes(data []byte, path string) (*Manifest, error) {
	if len(data) == 0 {
		return nil, errors.New("manifest file is empty")
	}

	doc, err := toDocument(data, path)
	if err != nil {
		return nil, err
	}
	if err := ValidateRaw(doc); err != nil {
		return nil, err
	}

	m, err := parseManifest(data, path)
	if err != nil {
		return nil, err
	}
	m.ApplyDefaults()
	return m, nil
}

// LoadFromReader reads and validates a manifest from an io.Reader.
func LoadFromReader(r io.Reader, path string) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return LoadFromBytes(data, path)
}

func parseManifest(data []byte, path string) (*Manifest, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return parseJSON(data)
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		// Unknown extension: YAML is a superset of JSON, try it first.
		m, yamlErr := parseYAML(data)
		if yamlErr == nil {
			return m, nil
		}
		if m, jsonErr := parseJSON(data); jsonErr == nil {
			return m, nil
		}
		return nil, fmt.Errorf("failed to parse manifest (tried YAML and JSON): %w", yamlErr)
	}
}

func parseJSON(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid JSON in manifest: %w", err)
	}
	return &m, nil
}

func parseYAML(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML in manifest: %w", err)
	}
	return &m, nil
}

// toDocument decodes the raw bytes into a generic document for schema
// validation, normalizing YAML maps to string-keyed JSON shapes.
func toDocument(data []byte, path string) (any, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON in manifest: %w", err)
		}
		return doc, nil
	default:
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			var jsonDoc any
			if jsonErr := json.Unmarshal(data, &jsonDoc); jsonErr == nil {
				return jsonDoc, nil
			}
			return nil, fmt.Errorf("invalid YAML in manifest: %w", err)
		}
		// Round-trip through JSON so the validator sees the exact value
		// shapes json.Unmarshal would produce.
		raw, err := json.Marshal(normalizeDocument(doc))
		if err != nil {
			return nil, fmt.Errorf("convert manifest to JSON: %w", err)
		}
		var jsonDoc any
		if err := json.Unmarshal(raw, &jsonDoc); err != nil {
			return nil, fmt.Errorf("convert manifest to JSON: %w", err)
		}
		return jsonDoc, nil
	}
}

// normalizeDocument rewrites YAML-decoded values into JSON-compatible
// shapes so the schema validator sees the same document a JSON
// round-trip would produce.
func normalizeDocument(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeDocument(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeDocument(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeDocument(item)
		}
		return out
	default:
		return v
	}
}
