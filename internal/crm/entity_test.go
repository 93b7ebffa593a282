package crm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoftComply/marketing-automation/internal/dataset"
)

func TestImportedEntityHasNoPendingChanges(t *testing.T) {
	c := newTestCRM(t, Config{})
	importAll(t, c, &dataset.DataSet{Deals: []dataset.RawRecord{
		dealRecord("1", map[string]string{"country": "DE", "value": "500"}),
	}})

	deal := c.Deals.DealByID("1")
	require.NotNil(t, deal)
	assert.Empty(t, deal.Entity().PropertyChanges())
	assert.False(t, deal.Entity().HasPropertyChanges())
}

func TestSetFieldProducesDiff(t *testing.T) {
	c := newTestCRM(t, Config{})
	importAll(t, c, &dataset.DataSet{Deals: []dataset.RawRecord{
		dealRecord("1", map[string]string{"country": "DE"}),
	}})

	e := c.Deals.DealByID("1").Entity()
	e.SetField("country", "FR")

	assert.Equal(t, map[string]string{"country": "FR"}, e.PropertyChanges())
}

func TestSetFieldBackToBaselineClearsDiff(t *testing.T) {
	c := newTestCRM(t, Config{})
	importAll(t, c, &dataset.DataSet{Deals: []dataset.RawRecord{
		dealRecord("1", map[string]string{"country": "DE"}),
	}})

	e := c.Deals.DealByID("1").Entity()
	e.SetField("country", "FR")
	e.SetField("country", "DE")

	assert.Empty(t, e.PropertyChanges())
}

func TestManagedFieldWritesDropped(t *testing.T) {
	cfg := Config{Deal: DealConfig{ManagedFields: []string{"country"}}}
	c := newTestCRM(t, cfg)
	importAll(t, c, &dataset.DataSet{Deals: []dataset.RawRecord{
		dealRecord("1", map[string]string{"country": "DE"}),
		dealRecord("2", nil),
	}})

	// baseline present: the remote side owns the field now
	owned := c.Deals.DealByID("1").Entity()
	owned.SetField("country", "FR")
	assert.Equal(t, "DE", owned.Get("country"))
	assert.Empty(t, owned.PropertyChanges())

	// empty baseline: the field may still be seeded once
	fresh := c.Deals.DealByID("2").Entity()
	fresh.SetField("country", "FR")
	assert.Equal(t, "FR", fresh.Get("country"))
}

func TestZeroValueOnUnsetBaselineIsNotAChange(t *testing.T) {
	c := newTestCRM(t, Config{})
	importAll(t, c, &dataset.DataSet{Deals: []dataset.RawRecord{
		dealRecord("1", nil),
	}})

	e := c.Deals.DealByID("1").Entity()
	e.SetField("value", 0.0)
	assert.Empty(t, e.PropertyChanges(), "null and zero mean the same to the remote API")

	e.SetField("value", 10.0)
	assert.Equal(t, map[string]string{"value": "10"}, e.PropertyChanges())
}

func TestSetFieldUnknownFieldPanics(t *testing.T) {
	c := newTestCRM(t, Config{})
	importAll(t, c, &dataset.DataSet{Deals: []dataset.RawRecord{dealRecord("1", nil)}})

	e := c.Deals.DealByID("1").Entity()
	assert.Panics(t, func() { e.SetField("nope", "x") })
}

func TestAssociationDiff(t *testing.T) {
	c := newTestCRM(t, Config{})
	importAll(t, c, &dataset.DataSet{
		Deals:    []dataset.RawRecord{dealRecord("1", nil)},
		Contacts: []dataset.RawRecord{contactRecord("77", "amy@initech.example", nil)},
	})

	deal := c.Deals.DealByID("1").Entity()
	contact := c.Contacts.GetByID("77")

	deal.AddAssociation(contact, AssocMeta{FirstSide: true, Initial: true})
	assert.False(t, deal.HasAssociationChanges(), "imported associations are baseline")
	assert.False(t, contact.HasAssociationChanges())

	deal.ClearAssociations(KindContact)
	changes := deal.AssociationChanges()
	require.Len(t, changes, 1)
	assert.Equal(t, AssocDel, changes[0].Op)
	assert.Same(t, contact, changes[0].Other)
}

func TestAssociationAddIsSymmetric(t *testing.T) {
	c := newTestCRM(t, Config{})
	importAll(t, c, &dataset.DataSet{
		Deals:    []dataset.RawRecord{dealRecord("1", nil)},
		Contacts: []dataset.RawRecord{contactRecord("77", "amy@initech.example", nil)},
	})

	deal := c.Deals.DealByID("1").Entity()
	contact := c.Contacts.GetByID("77")

	deal.AddAssociation(contact, AssocMeta{FirstSide: true})

	require.True(t, deal.HasAssociationChanges())
	require.True(t, contact.HasAssociationChanges())
	assert.Equal(t, []*Entity{deal}, contact.Associations(KindDeal))
	assert.Equal(t, []*Entity{contact}, deal.Associations(KindContact))
}

func TestExportReimportRoundTrip(t *testing.T) {
	c := newTestCRM(t, Config{})
	importAll(t, c, &dataset.DataSet{Deals: []dataset.RawRecord{
		dealRecord("1", map[string]string{
			"country":        "DE",
			"addonLicenseId": "1100000",
			"licenseTier":    "-1",
			"value":          "500",
			"closeDate":      "2024-03-01",
		}),
	}})

	var out dataset.DataSet
	c.ExportData(&out)
	require.Len(t, out.Deals, 1)

	again := newTestCRM(t, Config{})
	importAll(t, again, &out)

	deal := again.Deals.DealByID("1")
	require.NotNil(t, deal)
	assert.Empty(t, deal.Entity().PropertyChanges())
	assert.Equal(t, "1100000", deal.AddonLicenseID())
}

func TestMustIDPanicsWithoutID(t *testing.T) {
	c := newTestCRM(t, Config{})
	deal := c.Deals.Create(&DealProps{DealName: "x", Company: "y"})

	assert.Panics(t, func() { deal.Entity().MustID() })

	deal.Entity().SetID("42")
	assert.Equal(t, "42", deal.Entity().MustID())
}

func TestStringSet(t *testing.T) {
	s := NewStringSet("b", "a", "b", "")

	assert.Equal(t, []string{"a", "b"}, s.Sorted())
	assert.Equal(t, "a;b", s.Join(";"))
	assert.Equal(t, "", NewStringSet().Join(";"))
}
