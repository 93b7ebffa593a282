package mpac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"Unlimited Users", UnlimitedTier},
		{"unlimited users", UnlimitedTier},
		{"50 Users", 50},
		{" 50 Users ", 50},
		{"Per Unit Pricing (500 users)", 500},
		{"Per Unit Pricing (500)", 500},
		{"Subscription", 0},
		{"", 0},
		{"abc Users", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseTier(tt.name), "tier %q", tt.name)
	}
}

func TestMaxTier(t *testing.T) {
	assert.Equal(t, 100, MaxTier(50, 100))
	assert.Equal(t, 100, MaxTier(100, 50))
	assert.Equal(t, UnlimitedTier, MaxTier(UnlimitedTier, 10000))
	assert.Equal(t, UnlimitedTier, MaxTier(10, UnlimitedTier))
	assert.Equal(t, 0, MaxTier(0, 0))
}

func TestUniqueTransactionID(t *testing.T) {
	assert.Equal(t, "AT-1[L1]", UniqueTransactionID("AT-1", "L1"))
}

func TestLicensePredicates(t *testing.T) {
	l := &License{Status: "active", LicenseType: "EVALUATION"}
	assert.True(t, l.Active())
	assert.True(t, l.Evaluation())

	l = &License{Status: "inactive", LicenseType: "COMMERCIAL"}
	assert.False(t, l.Active())
	assert.False(t, l.Evaluation())
}

func TestTransactionChangeInTier(t *testing.T) {
	tx := &Transaction{SaleType: SaleUpgrade, TierName: "100 Users", OldTierName: "50 Users"}
	assert.Equal(t, "50 Users -> 100 Users", tx.ChangeInTier())
	assert.Equal(t, 50, tx.OldTier())

	noOld := &Transaction{SaleType: SaleUpgrade, TierName: "100 Users"}
	assert.Equal(t, "", noOld.ChangeInTier())
	assert.Equal(t, 0, noOld.OldTier())

	renewal := &Transaction{SaleType: SaleRenewal, TierName: "100 Users", OldTierName: "50 Users"}
	assert.Equal(t, "", renewal.ChangeInTier())
}

func TestRecordIDs(t *testing.T) {
	l := &License{AddonLicenseID: "L1", AppEntitlementNumber: "E9"}
	assert.Equal(t, [3]string{"L1", "", "E9"}, l.IDs())

	tx := &Transaction{AppEntitlementID: "E1"}
	assert.Equal(t, [3]string{"", "E1", ""}, tx.IDs())
}
