package crm

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SoftComply/marketing-automation/internal/dataset"
)

func newTestCRM(t *testing.T, cfg Config) *CRM {
	t.Helper()
	c, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func dealRecord(id string, overrides map[string]string) dataset.RawRecord {
	props := map[string]string{
		"pipeline_id": "MPAC",
		"stage_id":    "Eval",
		"title":       "Risk Register - Initech - Cloud",
		"company":     "Initech",
	}
	for k, v := range overrides {
		props[k] = v
	}
	return dataset.RawRecord{ID: id, Properties: props}
}

func contactRecord(id, email string, overrides map[string]string) dataset.RawRecord {
	props := map[string]string{
		"primary_email": email,
	}
	for k, v := range overrides {
		props[k] = v
	}
	return dataset.RawRecord{ID: id, Properties: props}
}

func importAll(t *testing.T, c *CRM, ds *dataset.DataSet) {
	t.Helper()
	require.NoError(t, c.ImportData(ds))
}
