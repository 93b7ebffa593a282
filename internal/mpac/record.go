// Package mpac models marketplace (MPAC) license and transaction records.
//
// Records are external input: the engine reads them but never mutates them.
// All identifier derivation used by the deal cross-reference lives here so
// that deals and records agree on the exact key format.
package mpac

import (
	"fmt"
	"strconv"
	"strings"
)

// Hosting is the product deployment variant reported by the marketplace.
type Hosting string

const (
	HostingServer     Hosting = "Server"
	HostingCloud      Hosting = "Cloud"
	HostingDataCenter Hosting = "Data Center"
)

// SaleType classifies a transaction.
type SaleType string

const (
	SaleNew     SaleType = "New"
	SaleRenewal SaleType = "Renewal"
	SaleUpgrade SaleType = "Upgrade"
	SaleRefund  SaleType = "Refund"
)

// License is one marketplace license grant (evaluation or paid).
type License struct {
	AddonLicenseID       string `json:"addonLicenseId,omitempty"`
	AppEntitlementID     string `json:"appEntitlementId,omitempty"`
	AppEntitlementNumber string `json:"appEntitlementNumber,omitempty"`

	AddonName   string  `json:"addonName"`
	AddonKey    string  `json:"addonKey"`
	Hosting     Hosting `json:"hosting"`
	LicenseType string  `json:"licenseType"` // "EVALUATION", "COMMERCIAL", "ACADEMIC", ...
	Status      string  `json:"status"`      // "active" or "inactive"

	Company           string `json:"company,omitempty"`
	Country           string `json:"country,omitempty"`
	Region            string `json:"region,omitempty"`
	TechContactEmail  string `json:"techContactEmail,omitempty"`
	PartnerDomain     string `json:"partnerDomain,omitempty"`
	CloudSiteHostname string `json:"cloudSiteHostname,omitempty"`

	TierName string `json:"tier,omitempty"` // e.g. "Unlimited Users", "50 Users", "Per Unit Pricing (500 users)"

	MaintenanceStartDate string `json:"maintenanceStartDate"` // YYYY-MM-DD
	MaintenanceEndDate   string `json:"maintenanceEndDate,omitempty"`
}

// Transaction is one marketplace sale, renewal, upgrade or refund row.
type Transaction struct {
	TransactionID        string `json:"transactionId"`
	AddonLicenseID       string `json:"addonLicenseId,omitempty"`
	AppEntitlementID     string `json:"appEntitlementId,omitempty"`
	AppEntitlementNumber string `json:"appEntitlementNumber,omitempty"`

	AddonName   string  `json:"addonName"`
	AddonKey    string  `json:"addonKey"`
	Hosting     Hosting `json:"hosting"`
	LicenseType string  `json:"licenseType"`

	Company       string `json:"company,omitempty"`
	Country       string `json:"country,omitempty"`
	Region        string `json:"region,omitempty"`
	PartnerDomain string `json:"partnerDomain,omitempty"`

	SaleDate      string   `json:"saleDate"` // YYYY-MM-DD
	SaleType      SaleType `json:"saleType"`
	BillingPeriod string   `json:"billingPeriod,omitempty"`
	VendorAmount  float64  `json:"vendorAmount"`

	TierName    string `json:"tier,omitempty"`
	OldTierName string `json:"oldTier,omitempty"` // tier before an upgrade, empty otherwise

	MaintenanceStartDate string `json:"maintenanceStartDate"`
	MaintenanceEndDate   string `json:"maintenanceEndDate,omitempty"`
}

// Record is implemented by License and Transaction. It exposes the fields
// the deal generator needs without caring which record kind it holds.
type Record interface {
	// IDs returns the record's raw marketplace identifiers in a fixed
	// order: addon license id, app entitlement id, app entitlement number.
	// Entries may be empty.
	IDs() [3]string

	// Tier returns the parsed user tier (-1 for unlimited).
	Tier() int

	// Partner returns the associated partner domain, if any.
	Partner() string
}

func (l *License) IDs() [3]string {
	return [3]string{l.AddonLicenseID, l.AppEntitlementID, l.AppEntitlementNumber}
}

func (t *Transaction) IDs() [3]string {
	return [3]string{t.AddonLicenseID, t.AppEntitlementID, t.AppEntitlementNumber}
}

// Active reports whether the license is currently active.
func (l *License) Active() bool {
	return l.Status == "active"
}

// Evaluation reports whether this is an eval license.
func (l *License) Evaluation() bool {
	return strings.EqualFold(l.LicenseType, "EVALUATION")
}

func (l *License) Tier() int       { return ParseTier(l.TierName) }
func (l *License) Partner() string { return l.PartnerDomain }

func (t *Transaction) Tier() int       { return ParseTier(t.TierName) }
func (t *Transaction) Partner() string { return t.PartnerDomain }

// Refunded reports whether the transaction is a refund row.
func (t *Transaction) Refunded() bool {
	return t.SaleType == SaleRefund
}

// OldTier returns the parsed pre-upgrade tier, or 0 when unknown.
func (t *Transaction) OldTier() int {
	if t.OldTierName == "" {
		return 0
	}
	return ParseTier(t.OldTierName)
}

// ChangeInTier renders the tier transition of an upgrade, e.g.
// "50 Users -> 100 Users". Empty for non-upgrades.
func (t *Transaction) ChangeInTier() string {
	if t.SaleType != SaleUpgrade || t.OldTierName == "" {
		return ""
	}
	return t.OldTierName + " -> " + t.TierName
}

// UnlimitedTier is the sentinel returned by ParseTier for unlimited-user
// tiers. It sorts above every concrete tier.
const UnlimitedTier = -1

// ParseTier extracts the user count from a marketplace tier name.
//
// Accepted forms: "Unlimited Users", "<n> Users", "Per Unit Pricing (<n>
// users)". Anything unparseable yields 0, which any concrete tier
// supersedes via MaxTier.
func ParseTier(name string) int {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "Unlimited Users") {
		return UnlimitedTier
	}
	if n, ok := strings.CutSuffix(name, " Users"); ok {
		if users, err := strconv.Atoi(n); err == nil {
			return users
		}
		return 0
	}
	if rest, ok := strings.CutPrefix(name, "Per Unit Pricing ("); ok {
		rest = strings.TrimSuffix(rest, ")")
		rest = strings.TrimSuffix(rest, " users")
		if users, err := strconv.Atoi(rest); err == nil {
			return users
		}
	}
	return 0
}

// MaxTier returns the larger of two tiers, treating UnlimitedTier as the
// maximum. Tiers only ever increase on a deal.
func MaxTier(a, b int) int {
	if a == UnlimitedTier || b == UnlimitedTier {
		return UnlimitedTier
	}
	if a > b {
		return a
	}
	return b
}

// UniqueTransactionID combines a transaction id with one of the record's
// raw marketplace ids. Several transactions can repeat the same license
// identifier; salting with the transaction id keeps the cross-reference
// keys distinct per sale.
func UniqueTransactionID(transactionID, rawID string) string {
	return fmt.Sprintf("%s[%s]", transactionID, rawID)
}
