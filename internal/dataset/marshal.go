package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// MarshalProperties serializes a property map with sorted keys and no
// HTML escaping. Stored action payloads must be byte-stable so that two
// runs over identical input produce identical action-log rows.
func MarshalProperties(props map[string]string) ([]byte, error) {
	if props == nil {
		return []byte("{}"), nil
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONString(&buf, k); err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := writeJSONString(&buf, props[k]); err != nil {
			return nil, fmt.Errorf("marshal value for %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalProperties is the inverse of MarshalProperties.
func UnmarshalProperties(data []byte) (map[string]string, error) {
	props := map[string]string{}
	if len(data) == 0 {
		return props, nil
	}
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	return props, nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// json.Encoder appends a newline; strip it to keep output compact.
	b := buf.Bytes()
	if len(b) > 0 && b[len(b)-1] == '\n' {
		buf.Truncate(len(b) - 1)
	}
	return nil
}
