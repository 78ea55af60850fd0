package postgres

import (
	"encoding/json"
	"fmt"
)

// toJSONB encodes v for a JSONB parameter. A nil map is stored as {}.
func toJSONB(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode jsonb: %w", err)
	}
	if string(data) == "null" {
		return "{}", nil
	}
	return string(data), nil
}

// fromJSONB decodes a scanned JSONB column. Empty input leaves v untouched.
func fromJSONB(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode jsonb: %w", err)
	}
	return nil
}
