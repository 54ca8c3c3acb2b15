package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalJSON converts v to JSON TEXT for storage.
// Uses json.Encoder with HTML escaping disabled; map keys come out sorted,
// so the same value always stores the same bytes.
func marshalJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	// Encoder adds a trailing newline.
	return strings.TrimSpace(buf.String()), nil
}

// marshalStates stores step states at full float precision.
func marshalStates(states map[string]float64) (string, error) {
	if len(states) == 0 {
		return "{}", nil
	}
	data, err := marshalJSON(states)
	if err != nil {
		return "", fmt.Errorf("marshal states: %w", err)
	}
	return data, nil
}

// unmarshalStates parses stored step states. Empty objects read back as nil
// so round trips preserve "no probe".
func unmarshalStates(data string) (map[string]float64, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var states map[string]float64
	if err := json.Unmarshal([]byte(data), &states); err != nil {
		return nil, fmt.Errorf("unmarshal states: %w", err)
	}
	return states, nil
}
