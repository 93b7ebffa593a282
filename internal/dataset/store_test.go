package dataset

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleDataSet() *DataSet {
	return &DataSet{
		Deals: []RawRecord{
			{ID: "1", Properties: map[string]string{"pipeline_id": "MPAC", "stage_id": "Eval"}},
		},
		Events: []EventRecord{
			{Type: "eval", LicenseIDs: []string{"L1"}},
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, "snap-1", time.Now(), sampleDataSet()))

	ds, err := s.LoadSnapshot(ctx, "snap-1")
	require.NoError(t, err)
	require.Len(t, ds.Deals, 1)
	assert.Equal(t, "1", ds.Deals[0].ID)
	require.Len(t, ds.Events, 1)
	assert.Equal(t, []string{"L1"}, ds.Events[0].LicenseIDs)
}

func TestLoadLatestPicksNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveSnapshot(ctx, "snap-1", base, sampleDataSet()))
	require.NoError(t, s.SaveSnapshot(ctx, "snap-2", base.Add(time.Hour), sampleDataSet()))

	id, _, err := s.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snap-2", id)
}

func TestLoadLatestEmptyStore(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.LoadLatest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSaveSnapshotIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, "snap-1", time.Now(), sampleDataSet()))
	require.NoError(t, s.SaveSnapshot(ctx, "snap-1", time.Now(), &DataSet{}))

	infos, err := s.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 1)

	// first write wins
	ds, err := s.LoadSnapshot(ctx, "snap-1")
	require.NoError(t, err)
	assert.Len(t, ds.Deals, 1)
}

func TestPruneSnapshots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"snap-1", "snap-2", "snap-3", "snap-4"} {
		require.NoError(t, s.SaveSnapshot(ctx, id, base.Add(time.Duration(i)*time.Hour), sampleDataSet()))
	}

	deleted, err := s.PruneSnapshots(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	infos, err := s.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "snap-3", infos[0].ID)
	assert.Equal(t, "snap-4", infos[1].ID)
}

func TestActionLogRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	recs := []ActionRecord{
		{RunID: "run-1", Seq: 0, Type: "update", DealID: "250", Properties: map[string]string{"stage_id": "ClosedWon"}},
		{RunID: "run-1", Seq: 1, Type: "noop", DealID: "300", Reason: "properties-up-to-date"},
		{RunID: "run-2", Seq: 0, Type: "create", DealID: "fake-2", Properties: map[string]string{"title": "x"}},
	}
	for _, rec := range recs {
		require.NoError(t, s.WriteAction(ctx, rec))
	}

	got, err := s.ReadActions(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "update", got[0].Type)
	assert.Equal(t, map[string]string{"stage_id": "ClosedWon"}, got[0].Properties)
	assert.Equal(t, "noop", got[1].Type)
	assert.Equal(t, "properties-up-to-date", got[1].Reason)
}

func TestWriteActionIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := ActionRecord{RunID: "run-1", Seq: 0, Type: "update", DealID: "250"}
	require.NoError(t, s.WriteAction(ctx, rec))
	rec.Type = "create"
	require.NoError(t, s.WriteAction(ctx, rec))

	got, err := s.ReadActions(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "update", got[0].Type, "retried writes never overwrite")
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.SaveSnapshot(context.Background(), "snap-1", time.Now(), sampleDataSet()))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	infos, err := s2.ListSnapshots(context.Background())
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}
