package dealgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoftComply/marketing-automation/internal/crm"
	"github.com/SoftComply/marketing-automation/internal/mpac"
)

func TestResolveDealSingleMatch(t *testing.T) {
	deals := newTestDeals(t, dealRecord("100", map[string]string{"addonLicenseId": "L1"}))
	g := newTestGenerator(deals, nil)

	deal, err := g.resolveDeal(g.dealsForRecords([]mpac.Record{evalLicense(nil)}))
	require.NoError(t, err)
	require.NotNil(t, deal)
	assert.Equal(t, "100", deal.ID())
	assert.Empty(t, deals.DuplicateGroups())
}

func TestResolveDealNoActivityPicksLowestID(t *testing.T) {
	deals := newTestDeals(t,
		dealRecord("102", map[string]string{"addonLicenseId": "L1"}),
		dealRecord("100", map[string]string{"addonLicenseId": "L1"}),
		dealRecord("101", map[string]string{"addonLicenseId": "L1"}),
	)
	g := newTestGenerator(deals, nil)

	deal, err := g.resolveDeal(g.dealsForRecords([]mpac.Record{evalLicense(nil)}))
	require.NoError(t, err)
	assert.Equal(t, "100", deal.ID())

	assert.Equal(t, "100", deals.DealByID("101").DuplicateOf())
	assert.Equal(t, "100", deals.DealByID("102").DuplicateOf())
	assert.Equal(t, "", deal.DuplicateOf())

	groups := deals.DuplicateGroups()
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Duplicates, 2)
}

func TestResolveDealPrefersActivity(t *testing.T) {
	deals := newTestDeals(t,
		dealRecord("100", map[string]string{"addonLicenseId": "L1"}),
		dealRecord("101", map[string]string{
			"addonLicenseId": "L1",
			"num_notes":      "3",
		}),
	)
	g := newTestGenerator(deals, nil)

	deal, err := g.resolveDeal(g.dealsForRecords([]mpac.Record{evalLicense(nil)}))
	require.NoError(t, err)
	assert.Equal(t, "101", deal.ID(), "a deal a human touched wins over an untouched one")
	assert.Equal(t, "101", deals.DealByID("100").DuplicateOf())
}

func TestResolveDealMultipleActiveKeepsAll(t *testing.T) {
	deals := newTestDeals(t,
		dealRecord("100", map[string]string{"addonLicenseId": "L1", "num_notes": "1"}),
		dealRecord("101", map[string]string{"addonLicenseId": "L1", "num_notes": "2"}),
		dealRecord("102", map[string]string{"addonLicenseId": "L1"}),
	)
	g := newTestGenerator(deals, nil)

	deal, err := g.resolveDeal(g.dealsForRecords([]mpac.Record{evalLicense(nil)}))
	require.NoError(t, err)
	assert.Equal(t, "100", deal.ID())

	// both active deals survive; only the untouched one is tombstoned
	assert.Equal(t, "", deals.DealByID("101").DuplicateOf())
	assert.Equal(t, "100", deals.DealByID("102").DuplicateOf())
}

func TestResolveDealSecondEventOverSameGroupIsFatal(t *testing.T) {
	deals := newTestDeals(t,
		dealRecord("100", map[string]string{"addonLicenseId": "L1"}),
		dealRecord("101", map[string]string{"addonLicenseId": "L1"}),
	)
	g := newTestGenerator(deals, nil)

	_, err := g.resolveDeal(g.dealsForRecords([]mpac.Record{evalLicense(nil)}))
	require.NoError(t, err)

	// a second event resolving the same group would re-register the
	// canonical; the registry accounts for each canonical once
	_, err = g.resolveDeal(g.dealsForRecords([]mpac.Record{evalLicense(nil)}))
	assert.Error(t, err)
}

func TestResolveDealContradictionIsFatal(t *testing.T) {
	deals := newTestDeals(t,
		dealRecord("100", map[string]string{"addonLicenseId": "L1"}),
		dealRecord("101", map[string]string{"addonLicenseId": "L1"}),
	)
	g := newTestGenerator(deals, nil)

	_, err := g.resolveDeal(g.dealsForRecords([]mpac.Record{evalLicense(nil)}))
	require.NoError(t, err)

	// a later group trying to make the tombstoned deal canonical must fail
	_, err = g.resolveDeal([]*crm.Deal{deals.DealByID("101"), deals.DealByID("100")})
	assert.Error(t, err)
}

func TestSortDealsPutsIDLessLast(t *testing.T) {
	deals := newTestDeals(t, dealRecord("2", nil), dealRecord("1", nil))
	created := deals.Create(&crm.DealProps{DealName: "x", Company: "y"})

	all := []*crm.Deal{created, deals.DealByID("2"), deals.DealByID("1")}
	sortDeals(all)

	assert.Equal(t, "1", all[0].ID())
	assert.Equal(t, "2", all[1].ID())
	assert.Same(t, created, all[2])
}
