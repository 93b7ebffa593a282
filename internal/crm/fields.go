package crm

import (
	"fmt"
	"strconv"
)

// Shared Down/Up helpers for adapter field tables. Nullable fields use
// nil for "unset"; the remote side uses the empty string.

func downNullableString(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	return raw, nil
}

func upNullableString(v any) string {
	if v == nil {
		return ""
	}
	return v.(string)
}

func downString(raw string) (any, error) { return raw, nil }

func upString(v any) string {
	if v == nil {
		return ""
	}
	return v.(string)
}

func downNullableInt(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("parse integer %q: %w", raw, err)
	}
	return n, nil
}

func upNullableInt(v any) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(v.(int))
}

func downNullableFloat(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("parse number %q: %w", raw, err)
	}
	return f, nil
}

// downNullableDate truncates datetime strings to their date part.
func downNullableDate(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	if len(raw) > 10 {
		raw = raw[:10]
	}
	return raw, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
