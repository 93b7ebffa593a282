package crm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoftComply/marketing-automation/internal/dataset"
)

// fakeAPI records uploader calls and answers creates by echoing the
// submitted properties back with a generated id, the way the remote CRM
// responds.
type fakeAPI struct {
	nextID  int
	created map[Kind][]NewEntityInput
	updated map[Kind][]ExistingEntityInput

	assocAdds []AssociationInput
	assocDels []AssociationInput

	failCreate error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		nextID:  900,
		created: make(map[Kind][]NewEntityInput),
		updated: make(map[Kind][]ExistingEntityInput),
	}
}

func (f *fakeAPI) CreateEntities(_ context.Context, kind Kind, inputs []NewEntityInput) ([]CreatedEntity, error) {
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	f.created[kind] = append(f.created[kind], inputs...)
	out := make([]CreatedEntity, len(inputs))
	for i, in := range inputs {
		f.nextID++
		out[i] = CreatedEntity{ID: fmt.Sprint(f.nextID), Properties: in.Properties}
	}
	return out, nil
}

func (f *fakeAPI) UpdateEntities(_ context.Context, kind Kind, inputs []ExistingEntityInput) error {
	f.updated[kind] = append(f.updated[kind], inputs...)
	return nil
}

func (f *fakeAPI) CreateAssociations(_ context.Context, _, _ Kind, inputs []AssociationInput) error {
	f.assocAdds = append(f.assocAdds, inputs...)
	return nil
}

func (f *fakeAPI) DeleteAssociations(_ context.Context, _, _ Kind, inputs []AssociationInput) error {
	f.assocDels = append(f.assocDels, inputs...)
	return nil
}

func TestSyncUpCreatesAndReconcilesIDs(t *testing.T) {
	c := newTestCRM(t, Config{})
	api := newFakeAPI()

	lic := "L1"
	first := c.Deals.Create(&DealProps{DealName: "a", Company: "x", AddonLicenseID: &lic})
	tx := "AT-9"
	second := c.Deals.Create(&DealProps{DealName: "b", Company: "y", TransactionID: &tx})

	u := NewUploader(api, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, u.SyncUp(context.Background(), c))

	require.Len(t, api.created[KindDeal], 2)
	assert.Equal(t, "901", first.ID())
	assert.Equal(t, "902", second.ID())
	assert.Same(t, first.Entity(), c.Deals.GetByID("901"))
	assert.Empty(t, api.updated[KindDeal])
}

func TestSyncUpSendsOnlyDiffs(t *testing.T) {
	c := newTestCRM(t, Config{})
	importAll(t, c, &dataset.DataSet{Deals: []dataset.RawRecord{
		dealRecord("250", map[string]string{"country": "DE"}),
		dealRecord("251", nil),
	}})
	c.Deals.DealByID("250").Entity().SetField("country", "FR")

	api := newFakeAPI()
	u := NewUploader(api, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, u.SyncUp(context.Background(), c))

	require.Len(t, api.updated[KindDeal], 1)
	assert.Equal(t, "250", api.updated[KindDeal][0].ID)
	assert.Equal(t, map[string]string{"country": "FR"}, api.updated[KindDeal][0].Properties)
	assert.Empty(t, api.created[KindDeal])
}

func TestSyncUpAssociations(t *testing.T) {
	c := newTestCRM(t, Config{})
	importAll(t, c, &dataset.DataSet{
		Deals: []dataset.RawRecord{
			{
				ID:           "1",
				Properties:   dealRecord("1", nil).Properties,
				Associations: []dataset.RelativeAssociation{"person:77"},
			},
		},
		Contacts: []dataset.RawRecord{
			contactRecord("77", "amy@initech.example", nil),
			contactRecord("78", "bob@initech.example", nil),
		},
	})

	deal := c.Deals.DealByID("1").Entity()
	deal.ClearAssociations(KindContact)
	deal.AddAssociation(c.Contacts.GetByID("78"), AssocMeta{FirstSide: true})

	api := newFakeAPI()
	u := NewUploader(api, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, u.SyncUp(context.Background(), c))

	require.Len(t, api.assocAdds, 1)
	assert.Equal(t, AssociationInput{FromID: "1", ToID: "78", ToKind: KindContact}, api.assocAdds[0])
	require.Len(t, api.assocDels, 1)
	assert.Equal(t, AssociationInput{FromID: "1", ToID: "77", ToKind: KindContact}, api.assocDels[0])
}

func TestSyncUpPropagatesCreateFailure(t *testing.T) {
	c := newTestCRM(t, Config{})
	c.Deals.Create(&DealProps{DealName: "a", Company: "x"})

	api := newFakeAPI()
	api.failCreate = fmt.Errorf("rate limited")
	u := NewUploader(api, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := u.SyncUp(context.Background(), c)
	assert.ErrorContains(t, err, "rate limited")
}
