package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad config", nil)))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("plain error")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "inner", nil))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

func TestExitErrorMessage(t *testing.T) {
	err := WrapExitError(ExitFailure, "upload", fmt.Errorf("rate limited"))
	assert.Equal(t, "upload: rate limited", err.Error())
	assert.Equal(t, "just this", (&ExitError{Code: 1, Message: "just this"}).Error())
}

func TestOutputFormatterJSON(t *testing.T) {
	var buf bytes.Buffer
	out := &OutputFormatter{Format: "json", Writer: &buf}

	out.Textf("should not appear\n")
	require.NoError(t, out.Success(map[string]any{"deals": 3}))

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &envelope))
	assert.Equal(t, "ok", envelope["status"])
	assert.Equal(t, map[string]any{"deals": float64(3)}, envelope["data"])
	assert.NotContains(t, buf.String(), "should not appear")
}

func TestOutputFormatterText(t *testing.T) {
	var buf bytes.Buffer
	out := &OutputFormatter{Format: "text", Writer: &buf}

	out.Textf("deleted %d snapshots\n", 2)
	require.NoError(t, out.Success(map[string]any{"deleted": 2}))

	assert.Equal(t, "deleted 2 snapshots\n", buf.String())
}

func TestRootCommandRejectsBadFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"validate", "--format", "xml"})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	err := cmd.Execute()
	assert.ErrorContains(t, err, "invalid format")
}
