package config

import (
	"encoding/json"
	"fmt"

	yaml "go.yaml.in/yaml/v3"
)

// yamlToJSON re-encodes YAML as JSON so Parse can run one strict JSON
// decoder (DisallowUnknownFields) over both config formats.
func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	j, err := json.Marshal(jsonSafe(v))
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// jsonSafe rewrites decoded YAML into string-keyed maps; yaml/v3 can yield
// map[any]any, which json.Marshal rejects.
func jsonSafe(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = jsonSafe(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = jsonSafe(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = jsonSafe(x[i])
		}
		return x
	default:
		return in
	}
}
