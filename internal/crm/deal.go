package crm

import (
	"fmt"
	"strconv"

	"github.com/SoftComply/marketing-automation/internal/mpac"
)

// DealStage is the stage of a deal within the marketplace pipeline.
type DealStage int

const (
	DealStageEval DealStage = iota
	DealStageClosedWon
	DealStageClosedLost
)

func (s DealStage) String() string {
	switch s {
	case DealStageEval:
		return "eval"
	case DealStageClosedWon:
		return "closed-won"
	case DealStageClosedLost:
		return "closed-lost"
	default:
		return fmt.Sprintf("DealStage(%d)", int(s))
	}
}

// Pipeline identifies a CRM pipeline. Only the marketplace pipeline is
// synced; deals in any other pipeline are rejected on import.
type Pipeline int

const PipelineMPAC Pipeline = 0

// DealConfig maps the deal model onto the remote CRM's pipeline, stage
// ids and custom property names. Everything has a default; deployments
// override only what their CRM instance renamed.
type DealConfig struct {
	PipelineMPAC string `yaml:"pipelineMpac"`

	StageEval       string `yaml:"stageEval"`
	StageClosedWon  string `yaml:"stageClosedWon"`
	StageClosedLost string `yaml:"stageClosedLost"`

	// Attrs overrides remote property names per field.
	Attrs map[string]string `yaml:"attrs"`

	// ManagedFields lists remote property names the CRM side is
	// authoritative for.
	ManagedFields []string `yaml:"managedFields"`
}

func (c *DealConfig) applyDefaults() {
	if c.PipelineMPAC == "" {
		c.PipelineMPAC = "MPAC"
	}
	if c.StageEval == "" {
		c.StageEval = "Eval"
	}
	if c.StageClosedWon == "" {
		c.StageClosedWon = "ClosedWon"
	}
	if c.StageClosedLost == "" {
		c.StageClosedLost = "ClosedLost"
	}
}

// attr returns the remote property name for a deal field, defaulting to
// the field name itself.
func (c *DealConfig) attr(field string) string {
	if v, ok := c.Attrs[field]; ok && v != "" {
		return v
	}
	return field
}

// stageTable is the bidirectional stage-id mapping, validated at
// configuration time so an unknown remote stage fails the import with a
// configuration error instead of surfacing mid-transform.
type stageTable struct {
	toRemote   map[DealStage]string
	fromRemote map[string]DealStage
}

func newStageTable(cfg *DealConfig) (*stageTable, error) {
	t := &stageTable{
		toRemote:   make(map[DealStage]string, 3),
		fromRemote: make(map[string]DealStage, 3),
	}
	for stage, remote := range map[DealStage]string{
		DealStageEval:       cfg.StageEval,
		DealStageClosedWon:  cfg.StageClosedWon,
		DealStageClosedLost: cfg.StageClosedLost,
	} {
		if prior, ok := t.fromRemote[remote]; ok {
			return nil, fmt.Errorf("stage id %q configured for both %s and %s", remote, prior, stage)
		}
		t.toRemote[stage] = remote
		t.fromRemote[remote] = stage
	}
	return t, nil
}

func (t *stageTable) stageOf(remote string) (DealStage, error) {
	stage, ok := t.fromRemote[remote]
	if !ok {
		return 0, fmt.Errorf("no configured mapping for remote deal stage %q", remote)
	}
	return stage, nil
}

// newDealAdapter builds the deal field table. Property names follow the
// config; dealName, pipeline, stage and value map onto the CRM's fixed
// built-in properties.
func newDealAdapter(cfg DealConfig) (*Adapter, *stageTable, error) {
	cfg.applyDefaults()
	stages, err := newStageTable(&cfg)
	if err != nil {
		return nil, nil, err
	}

	fields := map[string]FieldSpec{
		"relatedProducts": {
			Property: cfg.attr("relatedProducts"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
		"app": {
			Property: cfg.attr("app"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
		"addonLicenseId": {
			Property:   cfg.attr("addonLicenseId"),
			Identifier: true,
			Down:       downNullableString,
			Up:         upNullableString,
		},
		"transactionId": {
			Property:   cfg.attr("transactionId"),
			Identifier: true,
			Down:       downNullableString,
			Up:         upNullableString,
		},
		"closeDate": {
			Property: cfg.attr("closeDate"),
			Down:     downNullableDate,
			Up:       upNullableString,
		},
		"country": {
			Property: cfg.attr("country"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
		"dealName": {
			Property: "title",
			Down:     downString,
			Up:       upString,
		},
		"company": {
			Property: cfg.attr("company"),
			Down:     downString,
			Up:       upString,
		},
		"origin": {
			Property: cfg.attr("origin"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
		"deployment": {
			Property: cfg.attr("deployment"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
		"cloudSiteHostname": {
			Property: cfg.attr("cloudSiteHostname"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
		"saleType": {
			Property: cfg.attr("saleType"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
		"licenseTier": {
			Property: cfg.attr("licenseTier"),
			Down:     downNullableInt,
			Up:       upNullableInt,
		},
		"licenseType": {
			Property: cfg.attr("licenseType"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
		"pipeline": {
			Property: "pipeline_id",
			Down: func(string) (any, error) {
				// shouldReject already dropped foreign pipelines
				return PipelineMPAC, nil
			},
			Up: func(any) string { return cfg.PipelineMPAC },
		},
		"dealStage": {
			Property: "stage_id",
			Down: func(raw string) (any, error) {
				stage, err := stages.stageOf(raw)
				if err != nil {
					return nil, err
				}
				return stage, nil
			},
			Up: func(v any) string { return stages.toRemote[v.(DealStage)] },
		},
		"value": {
			Property:    "value",
			ZeroIsUnset: true,
			Down:        downNullableFloat,
			Up: func(v any) string {
				if v == nil {
					return "0"
				}
				return formatFloat(v.(float64))
			},
		},
		"associatedPartner": {
			Property: cfg.attr("associatedPartner"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
		"appEntitlementId": {
			Property:   cfg.attr("appEntitlementId"),
			Identifier: true,
			Down:       downNullableString,
			Up:         upNullableString,
		},
		"appEntitlementNumber": {
			Property:   cfg.attr("appEntitlementNumber"),
			Identifier: true,
			Down:       downNullableString,
			Up:         upNullableString,
		},
		"duplicateOf": {
			Property: cfg.attr("duplicateOf"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
		"maintenanceEndDate": {
			Property: cfg.attr("maintenanceEndDate"),
			Down:     downNullableDate,
			Up:       upNullableString,
		},
		"changeInTier": {
			Property: cfg.attr("changeInTier"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
		"oldTier": {
			Property: cfg.attr("oldTier"),
			Down:     downNullableInt,
			Up:       upNullableInt,
		},
		"billingPeriod": {
			Property: cfg.attr("billingPeriod"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
	}

	managed := make(map[string]bool, len(cfg.ManagedFields))
	for _, prop := range cfg.ManagedFields {
		managed[prop] = true
	}

	duplicateOfProp := cfg.attr("duplicateOf")
	adapter := &Adapter{
		Kind:   KindDeal,
		Fields: fields,
		Associations: map[Kind]AssocDirection{
			KindContact: AssocDownUp,
			KindCompany: AssocDownUp,
		},
		ManagedFields: managed,
		ShouldReject: func(props map[string]string) bool {
			if props["pipeline_id"] != cfg.PipelineMPAC {
				return true
			}
			// deals already tombstoned as duplicates stay out of the run
			return props[duplicateOfProp] != ""
		},
	}
	return adapter, stages, nil
}

// Deal is a change-tracked CRM deal. It is a view over Entity; casting
// preserves pointer identity, so a Deal and its Entity interchange
// freely in maps and association sets.
type Deal Entity

func (d *Deal) ent() *Entity { return (*Entity)(d) }

// Entity returns the underlying change-tracked entity.
func (d *Deal) Entity() *Entity { return d.ent() }

// ID returns the remote identity, empty until created.
func (d *Deal) ID() string { return d.ent().ID() }

func (d *Deal) nullableString(field string) string {
	if v := d.ent().Get(field); v != nil {
		return v.(string)
	}
	return ""
}

func (d *Deal) DealName() string          { return d.ent().Get("dealName").(string) }
func (d *Deal) AddonLicenseID() string    { return d.nullableString("addonLicenseId") }
func (d *Deal) TransactionID() string     { return d.nullableString("transactionId") }
func (d *Deal) AppEntitlementID() string  { return d.nullableString("appEntitlementId") }
func (d *Deal) AppEntitlementNum() string { return d.nullableString("appEntitlementNumber") }
func (d *Deal) DuplicateOf() string       { return d.nullableString("duplicateOf") }
func (d *Deal) AssociatedPartner() string { return d.nullableString("associatedPartner") }

// Stage returns the working deal stage.
func (d *Deal) Stage() DealStage {
	return d.ent().Get("dealStage").(DealStage)
}

// SetStage moves the deal to a stage.
func (d *Deal) SetStage(s DealStage) { d.ent().SetField("dealStage", s) }

// SetDuplicateOf tombstones the deal as a duplicate of canonical. An
// empty id (canonical not yet created remotely) clears the field.
func (d *Deal) SetDuplicateOf(canonicalID string) {
	if canonicalID == "" {
		d.ent().SetField("duplicateOf", nil)
		return
	}
	d.ent().SetField("duplicateOf", canonicalID)
}

// Value returns the monetary value and whether one is set.
func (d *Deal) Value() (float64, bool) {
	if v := d.ent().Get("value"); v != nil {
		return v.(float64), true
	}
	return 0, false
}

// LicenseTier returns the user tier and whether one is set.
func (d *Deal) LicenseTier() (int, bool) {
	if v := d.ent().Get("licenseTier"); v != nil {
		return v.(int), true
	}
	return 0, false
}

func (d *Deal) IsEval() bool   { return d.Stage() == DealStageEval }
func (d *Deal) IsWon() bool    { return d.Stage() == DealStageClosedWon }
func (d *Deal) IsLost() bool   { return d.Stage() == DealStageClosedLost }
func (d *Deal) IsClosed() bool { return d.IsWon() || d.IsLost() }

// MpacIDs derives the deal's business-identifier set: each non-empty
// marketplace id, salted with the deal's transaction id when present.
// Order is stable (license id, entitlement id, entitlement number).
func (d *Deal) MpacIDs() []string {
	raw := []string{
		d.AddonLicenseID(),
		d.AppEntitlementID(),
		d.AppEntitlementNum(),
	}
	tx := d.TransactionID()

	var ids []string
	for _, id := range raw {
		if id == "" {
			continue
		}
		if tx != "" {
			id = mpac.UniqueTransactionID(tx, id)
		}
		ids = append(ids, id)
	}
	return ids
}

// activityProperties are the downloaded signals that a human has touched
// the deal. They are never tracked as fields, only inspected.
var activityProperties = []string{
	"hs_user_ids_of_all_owners",
	"engagements_last_meeting_booked",
	"hs_latest_meeting_activity",
	"notes_last_contacted",
	"notes_last_updated",
	"notes_next_activity_date",
	"hs_sales_email_last_replied",
}

var activityCounters = []string{
	"num_contacted_notes",
	"num_notes",
}

// HasActivity reports whether any human-touch signal is present on the
// downloaded record. Drives canonical selection in duplicate resolution.
func (d *Deal) HasActivity() bool {
	for _, prop := range activityProperties {
		if d.ent().DownloadedProperty(prop) != "" {
			return true
		}
	}
	for _, prop := range activityCounters {
		if n, err := strconv.ParseFloat(d.ent().DownloadedProperty(prop), 64); err == nil && n > 0 {
			return true
		}
	}
	return false
}

// DealProps is the full property payload for creating or updating a
// deal. Pointer fields distinguish "unset" (nil) from an empty value.
type DealProps struct {
	RelatedProducts    *string
	App                *string
	AddonLicenseID     *string
	TransactionID      *string
	CloseDate          *string
	Country            *string
	DealName           string
	Company            string
	Origin             *string
	Deployment         *string
	SaleType           *string
	LicenseTier        *int
	Pipeline           Pipeline
	LicenseType        *string
	DealStage          DealStage
	Value              *float64
	AssociatedPartner  *string
	CloudSiteHostname  *string
	AppEntitlementID   *string
	AppEntitlementNum  *string
	DuplicateOf        *string
	MaintenanceEndDate *string
	ChangeInTier       *string
	OldTier            *int
	BillingPeriod      *string
}

func (p *DealProps) fieldData() map[string]any {
	return map[string]any{
		"relatedProducts":      nullable(p.RelatedProducts),
		"app":                  nullable(p.App),
		"addonLicenseId":       nullable(p.AddonLicenseID),
		"transactionId":        nullable(p.TransactionID),
		"closeDate":            nullable(p.CloseDate),
		"country":              nullable(p.Country),
		"dealName":             p.DealName,
		"company":              p.Company,
		"origin":               nullable(p.Origin),
		"deployment":           nullable(p.Deployment),
		"saleType":             nullable(p.SaleType),
		"licenseTier":          nullable(p.LicenseTier),
		"pipeline":             p.Pipeline,
		"licenseType":          nullable(p.LicenseType),
		"dealStage":            p.DealStage,
		"value":                nullable(p.Value),
		"associatedPartner":    nullable(p.AssociatedPartner),
		"cloudSiteHostname":    nullable(p.CloudSiteHostname),
		"appEntitlementId":     nullable(p.AppEntitlementID),
		"appEntitlementNumber": nullable(p.AppEntitlementNum),
		"duplicateOf":          nullable(p.DuplicateOf),
		"maintenanceEndDate":   nullable(p.MaintenanceEndDate),
		"changeInTier":         nullable(p.ChangeInTier),
		"oldTier":              nullable(p.OldTier),
		"billingPeriod":        nullable(p.BillingPeriod),
	}
}

// ApplyTo writes every property onto an existing deal through SetField,
// so managed-field suppression and index maintenance stay in force.
func (p *DealProps) ApplyTo(d *Deal) {
	for field, v := range p.fieldData() {
		d.ent().SetField(field, v)
	}
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// DealManager owns the deal collection.
type DealManager struct {
	*Manager
	stages *stageTable
}

// Deals returns every deal in collection order.
func (m *DealManager) Deals() []*Deal {
	deals := make([]*Deal, 0, len(m.entities))
	for _, e := range m.entities {
		deals = append(deals, (*Deal)(e))
	}
	return deals
}

// DealByID returns the deal with the given remote id, or nil.
func (m *DealManager) DealByID(id string) *Deal {
	if e := m.GetByID(id); e != nil {
		return (*Deal)(e)
	}
	return nil
}

// Create adds a new local deal from a property payload. It has no id
// until the uploader round-trips it.
func (m *DealManager) Create(props *DealProps) *Deal {
	return (*Deal)(m.Manager.Create(props.fieldData()))
}
