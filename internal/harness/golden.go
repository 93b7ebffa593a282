package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// RunWithGolden loads the scenario at path, runs it, and compares the
// trace against testdata/golden/<name>.golden. Regenerate goldens with
// `go test ./internal/harness -update`.
func RunWithGolden(t *testing.T, path string) {
	t.Helper()

	s, err := LoadScenario(path)
	require.NoError(t, err)

	trace, err := Run(s)
	require.NoError(t, err)

	AssertGolden(t, s.Name, trace)
}

// AssertGolden serializes a trace and asserts it against its golden
// file. Map keys marshal sorted, so the output is deterministic.
func AssertGolden(t *testing.T, name string, trace *Trace) {
	t.Helper()

	data, err := json.MarshalIndent(trace, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"))
	g.Assert(t, name, append(data, '\n'))
}
