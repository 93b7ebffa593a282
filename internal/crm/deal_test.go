package crm

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoftComply/marketing-automation/internal/dataset"
)

func TestMpacIDsSaltedWithTransaction(t *testing.T) {
	c := newTestCRM(t, Config{})
	importAll(t, c, &dataset.DataSet{Deals: []dataset.RawRecord{
		dealRecord("1", map[string]string{
			"addonLicenseId":   "L1",
			"appEntitlementId": "E1",
			"transactionId":    "AT-1",
		}),
		dealRecord("2", map[string]string{
			"addonLicenseId": "L1",
		}),
	}})

	withTx := c.Deals.DealByID("1")
	assert.Equal(t, []string{"AT-1[L1]", "AT-1[E1]"}, withTx.MpacIDs())

	withoutTx := c.Deals.DealByID("2")
	assert.Equal(t, []string{"L1"}, withoutTx.MpacIDs())
}

func TestHasActivity(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]string
		want  bool
	}{
		{"no signals", nil, false},
		{"zero counters", map[string]string{"num_notes": "0", "num_contacted_notes": "0"}, false},
		{"note counter", map[string]string{"num_notes": "2"}, true},
		{"timestamp signal", map[string]string{"notes_last_updated": "2024-01-05T10:00:00Z"}, true},
		{"owner assigned", map[string]string{"hs_user_ids_of_all_owners": "512"}, true},
		{"unparseable counter", map[string]string{"num_notes": "lots"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCRM(t, Config{})
			importAll(t, c, &dataset.DataSet{Deals: []dataset.RawRecord{
				dealRecord("1", tt.props),
			}})
			assert.Equal(t, tt.want, c.Deals.DealByID("1").HasActivity())
		})
	}
}

func TestConflictingStageIDsRejected(t *testing.T) {
	cfg := Config{Deal: DealConfig{StageEval: "same", StageClosedWon: "same"}}
	_, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "stage id")
}

func TestImportRejectsForeignPipelinesAndTombstones(t *testing.T) {
	c := newTestCRM(t, Config{})
	importAll(t, c, &dataset.DataSet{Deals: []dataset.RawRecord{
		dealRecord("1", nil),
		dealRecord("2", map[string]string{"pipeline_id": "Sales"}),
		dealRecord("3", map[string]string{"duplicateOf": "1"}),
	}})

	assert.Len(t, c.Deals.Deals(), 1)
	assert.NotNil(t, c.Deals.DealByID("1"))
	assert.Nil(t, c.Deals.DealByID("2"))
	assert.Nil(t, c.Deals.DealByID("3"))
}

func TestUnknownStageAbortsImport(t *testing.T) {
	c := newTestCRM(t, Config{})
	err := c.ImportData(&dataset.DataSet{Deals: []dataset.RawRecord{
		dealRecord("1", map[string]string{"stage_id": "Negotiation"}),
	}})
	assert.ErrorContains(t, err, "Negotiation")
}

func TestCustomStageAndAttrConfig(t *testing.T) {
	cfg := Config{Deal: DealConfig{
		StageEval:       "11",
		StageClosedWon:  "12",
		StageClosedLost: "13",
		Attrs:           map[string]string{"addonLicenseId": "cf_addon_license"},
	}}
	c := newTestCRM(t, cfg)
	importAll(t, c, &dataset.DataSet{Deals: []dataset.RawRecord{
		dealRecord("1", map[string]string{
			"stage_id":         "12",
			"cf_addon_license": "L1",
		}),
	}})

	deal := c.Deals.DealByID("1")
	require.NotNil(t, deal)
	assert.True(t, deal.IsWon())
	assert.Equal(t, "L1", deal.AddonLicenseID())

	deal.SetStage(DealStageClosedLost)
	assert.Equal(t, map[string]string{"stage_id": "13"}, deal.Entity().PropertyChanges())
}

func TestSetDuplicateOf(t *testing.T) {
	c := newTestCRM(t, Config{})
	importAll(t, c, &dataset.DataSet{Deals: []dataset.RawRecord{dealRecord("1", nil)}})

	deal := c.Deals.DealByID("1")
	deal.SetDuplicateOf("100")
	assert.Equal(t, "100", deal.DuplicateOf())

	deal.SetDuplicateOf("")
	assert.Equal(t, "", deal.DuplicateOf())
	assert.Empty(t, deal.Entity().PropertyChanges())
}

func TestDealValueAndTierAccessors(t *testing.T) {
	c := newTestCRM(t, Config{})
	importAll(t, c, &dataset.DataSet{Deals: []dataset.RawRecord{
		dealRecord("1", map[string]string{"value": "1234.5", "licenseTier": "50"}),
		dealRecord("2", nil),
	}})

	deal := c.Deals.DealByID("1")
	v, ok := deal.Value()
	require.True(t, ok)
	assert.Equal(t, 1234.5, v)
	tier, ok := deal.LicenseTier()
	require.True(t, ok)
	assert.Equal(t, 50, tier)

	bare := c.Deals.DealByID("2")
	_, ok = bare.Value()
	assert.False(t, ok)
	_, ok = bare.LicenseTier()
	assert.False(t, ok)
}

func TestCreateDealDiffsAsFullPayload(t *testing.T) {
	c := newTestCRM(t, Config{})
	tier := 50
	value := 1000.0
	deal := c.Deals.Create(&DealProps{
		DealName:    "Risk Register - Initech - Cloud",
		Company:     "Initech",
		Pipeline:    PipelineMPAC,
		DealStage:   DealStageClosedWon,
		LicenseTier: &tier,
		Value:       &value,
	})

	changes := deal.Entity().PropertyChanges()
	assert.Equal(t, "Risk Register - Initech - Cloud", changes["title"])
	assert.Equal(t, "MPAC", changes["pipeline_id"])
	assert.Equal(t, "ClosedWon", changes["stage_id"])
	assert.Equal(t, "50", changes["licenseTier"])
	assert.Equal(t, "1000", changes["value"])
	assert.Equal(t, "", deal.ID())
}
