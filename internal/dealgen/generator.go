package dealgen

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/SoftComply/marketing-automation/internal/crm"
	"github.com/SoftComply/marketing-automation/internal/mpac"
)

// vendorPrefix is stripped from marketplace addon names when deriving
// the product name used in deal titles.
const vendorPrefix = "SoftComply "

// ErrUnknownEventType reports an event whose type has no generation
// rule. A configuration or caller defect, not a data anomaly.
var ErrUnknownEventType = errors.New("unknown event type")

// ActionType classifies a generated action.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionNoop   ActionType = "noop"
)

// NoopReason explains why an event produced no change.
type NoopReason string

const (
	ReasonArchivedApp  NoopReason = "archived-app"
	ReasonMassProvider NoopReason = "mass-provider-only"
	ReasonUpToDate     NoopReason = "properties-up-to-date"
)

// Action is one generated deal action. Which fields are set depends on
// Type: creates carry the full property payload, updates carry the deal
// and its serialized diff, noops carry an optional deal and a reason.
type Action struct {
	Type ActionType

	Deal       *crm.Deal
	Properties *crm.DealProps
	Changes    map[string]string
	Reason     NoopReason
}

// Config carries the fixed property values stamped onto every generated
// deal.
type Config struct {
	DealOrigin          string `yaml:"dealOrigin"`
	DealRelatedProducts string `yaml:"dealRelatedProducts"`
}

// IgnoreFunc accumulates the monetary amount of events that were
// deliberately not acted on, so reconciliation totals still add up.
type IgnoreFunc func(reason string, amount float64)

// Generator consumes ordered business events and emits actions. Build
// one per run: the business-identifier cross-reference is computed once
// from the deal collection at construction.
type Generator struct {
	deals  *crm.DealManager
	cfg    Config
	ignore IgnoreFunc
	logger *slog.Logger

	// mpacIndex maps each business identifier to the deals carrying it.
	mpacIndex map[string][]*crm.Deal

	// handled records which event first claimed each deal; a second
	// claim in the same run is an anomaly worth logging.
	handled map[*crm.Deal]*Event
}

// NewGenerator builds a generator and its cross-reference index.
func NewGenerator(deals *crm.DealManager, cfg Config, ignore IgnoreFunc, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if ignore == nil {
		ignore = func(string, float64) {}
	}

	g := &Generator{
		deals:     deals,
		cfg:       cfg,
		ignore:    ignore,
		logger:    logger,
		mpacIndex: make(map[string][]*crm.Deal),
		handled:   make(map[*crm.Deal]*Event),
	}
	for _, deal := range deals.Deals() {
		for _, id := range deal.MpacIDs() {
			g.mpacIndex[id] = append(g.mpacIndex[id], deal)
		}
	}
	return g
}

// Generate maps every event to its actions, in event order. The records
// slice is the event group's full record history, oldest first; it
// feeds property synthesis (partner domain, latest license).
//
// Generation errors on the fatal duplicate-registration invariant and
// on an event type with no rule (ErrUnknownEventType); all other
// irregularities are logged and processing continues.
func (g *Generator) Generate(records []mpac.Record, events []*Event) ([]Action, error) {
	var actions []Action
	for _, event := range events {
		acts, err := g.actionsFor(records, event)
		if err != nil {
			return nil, err
		}
		actions = append(actions, acts...)
	}
	return actions, nil
}

func (g *Generator) actionsFor(records []mpac.Record, event *Event) ([]Action, error) {
	switch event.Type {
	case EventEval:
		return g.single(g.actionForEval(records, event))
	case EventPurchase:
		return g.single(g.actionForPurchase(records, event))
	case EventRenewal, EventUpgrade:
		return g.single(g.actionForRenewal(records, event))
	case EventRefund:
		return g.actionsForRefund(records, event)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEventType, event.Type)
	}
}

func (g *Generator) single(a Action, err error) ([]Action, error) {
	if err != nil {
		return nil, err
	}
	return []Action{a}, nil
}

func (g *Generator) actionForEval(records []mpac.Record, event *Event) (Action, error) {
	deal, err := g.dealFor(event, licenseRecords(event.Licenses))
	if err != nil {
		return Action{}, err
	}

	if meta, ok := g.maybeMetaAction(event, deal, 0); ok {
		return meta, nil
	}

	latest := event.Licenses[len(event.Licenses)-1]
	switch {
	case deal == nil:
		stage := crm.DealStageClosedLost
		for _, l := range event.Licenses {
			if l.Active() {
				stage = crm.DealStageEval
				break
			}
		}
		return g.makeCreateAction(records, latest, stage), nil
	case deal.IsEval():
		stage := crm.DealStageClosedLost
		if latest.Active() {
			stage = crm.DealStageEval
		}
		return g.makeUpdateAction(records, deal, latest, &stage, nil), nil
	default:
		return g.makeUpdateAction(records, deal, latest, nil, nil), nil
	}
}

func (g *Generator) actionForPurchase(records []mpac.Record, event *Event) (Action, error) {
	search := licenseRecords(event.Licenses)
	if event.Transaction != nil {
		search = append([]mpac.Record{event.Transaction}, search...)
	}
	deal, err := g.dealFor(event, search)
	if err != nil {
		return Action{}, err
	}

	amount := 0.0
	if event.Transaction != nil {
		amount = event.Transaction.VendorAmount
	}
	if meta, ok := g.maybeMetaAction(event, deal, amount); ok {
		return meta, nil
	}

	switch {
	case deal != nil && event.Transaction == nil:
		license := latestLicense(event.Licenses)
		stage := crm.DealStageClosedLost
		if license.Active() {
			stage = crm.DealStageClosedWon
		}
		return g.makeUpdateAction(records, deal, license, &stage, nil), nil
	case deal != nil:
		stage := crm.DealStageClosedWon
		if event.Transaction.Refunded() {
			stage = crm.DealStageClosedLost
		}
		return g.makeUpdateAction(records, deal, event.Transaction, &stage, nil), nil
	case event.Transaction != nil:
		return g.makeCreateAction(records, event.Transaction, crm.DealStageClosedWon), nil
	default:
		return g.makeCreateAction(records, latestLicense(event.Licenses), crm.DealStageClosedWon), nil
	}
}

func (g *Generator) actionForRenewal(records []mpac.Record, event *Event) (Action, error) {
	deal, err := g.dealFor(event, []mpac.Record{event.Transaction})
	if err != nil {
		return Action{}, err
	}

	if meta, ok := g.maybeMetaAction(event, deal, event.Transaction.VendorAmount); ok {
		return meta, nil
	}

	if deal != nil {
		return g.makeUpdateAction(records, deal, event.Transaction, nil, nil), nil
	}
	return g.makeCreateAction(records, event.Transaction, crm.DealStageClosedWon), nil
}

func (g *Generator) actionsForRefund(records []mpac.Record, event *Event) ([]Action, error) {
	deals := g.dealsForRecords(transactionRecords(event.RefundedTxs))
	for _, deal := range deals {
		g.recordSeen(deal, event)
	}

	stage := crm.DealStageClosedLost
	zero := 0.0
	actions := make([]Action, 0, len(deals))
	for _, deal := range deals {
		actions = append(actions, g.makeUpdateAction(records, deal, nil, &stage, &zero))
	}
	return actions, nil
}

// dealFor resolves the single deal an event acts on: cross-reference
// lookup, duplicate collapse, seen bookkeeping.
func (g *Generator) dealFor(event *Event, search []mpac.Record) (*crm.Deal, error) {
	deal, err := g.resolveDeal(g.dealsForRecords(search))
	if err != nil {
		return nil, err
	}
	if deal != nil {
		g.recordSeen(deal, event)
	}
	return deal, nil
}

// dealsForRecords derives each record's identifier set and unions the
// matched deals, in deterministic order. Transactions contribute
// compound keys salted by their transaction id; licenses contribute raw
// keys.
func (g *Generator) dealsForRecords(records []mpac.Record) []*crm.Deal {
	ids := make(map[string]bool)
	for _, rec := range records {
		tx, isTx := rec.(*mpac.Transaction)
		for _, id := range rec.IDs() {
			if id == "" {
				continue
			}
			if isTx {
				id = mpac.UniqueTransactionID(tx.TransactionID, id)
			}
			ids[id] = true
		}
	}

	seen := make(map[*crm.Deal]bool)
	var deals []*crm.Deal
	for id := range ids {
		for _, deal := range g.mpacIndex[id] {
			if !seen[deal] {
				seen[deal] = true
				deals = append(deals, deal)
			}
		}
	}
	sortDeals(deals)
	return deals
}

// recordSeen notes that an event claimed a deal. Two events claiming
// the same deal in one run is an anomaly: logged, not fatal, and the
// second action is still computed.
func (g *Generator) recordSeen(deal *crm.Deal, event *Event) {
	if first, ok := g.handled[deal]; ok {
		g.logger.Error("deal updated by two events in one run",
			"deal", deal.ID(),
			"firstEvent", first.Abbrev(),
			"currentEvent", event.Abbrev())
		return
	}
	g.handled[deal] = event
}

// maybeMetaAction short-circuits tagged events into a no-op. When no
// deal matched, the event's amount is routed to the ignored-amount
// accumulator so reconciliation totals still balance.
func (g *Generator) maybeMetaAction(event *Event, deal *crm.Deal, amount float64) (Action, bool) {
	var reason NoopReason
	var ignoreReason string
	switch event.Meta {
	case MetaArchivedApp:
		reason, ignoreReason = ReasonArchivedApp, "Archived-app transaction"
	case MetaMassProviderOnly:
		reason, ignoreReason = ReasonMassProvider, "Free-email-provider transaction"
	default:
		return Action{}, false
	}

	if deal == nil {
		g.ignore(ignoreReason, amount)
	}
	return Action{Type: ActionNoop, Deal: deal, Reason: reason}, true
}

func (g *Generator) makeCreateAction(records []mpac.Record, rec mpac.Record, stage crm.DealStage) Action {
	return Action{
		Type:       ActionCreate,
		Properties: g.dealCreationProperties(records, rec, stage),
	}
}

// makeUpdateAction mutates the deal's working copy and reads the diff
// back. Stage moves first, then the synthesized properties, then any
// forced value. A deal whose diff comes out empty yields a no-op.
func (g *Generator) makeUpdateAction(records []mpac.Record, deal *crm.Deal, rec mpac.Record, stage *crm.DealStage, forceValue *float64) Action {
	if stage != nil {
		deal.SetStage(*stage)
	}
	if rec != nil {
		existingTier, hasTier := deal.LicenseTier()
		props := g.dealCreationProperties(records, rec, deal.Stage())
		props.ApplyTo(deal)

		// tiers only increase
		tier := rec.Tier()
		if hasTier {
			tier = mpac.MaxTier(existingTier, tier)
		}
		deal.Entity().SetField("licenseTier", tier)
	}
	if forceValue != nil {
		deal.Entity().SetField("value", *forceValue)
	}

	if !deal.Entity().HasPropertyChanges() {
		return Action{Type: ActionNoop, Deal: deal, Reason: ReasonUpToDate}
	}
	return Action{
		Type:    ActionUpdate,
		Deal:    deal,
		Changes: deal.Entity().PropertyChanges(),
	}
}

// dealCreationProperties synthesizes the full property payload for a
// deal from one marketplace record plus the event group's history.
func (g *Generator) dealCreationProperties(records []mpac.Record, rec mpac.Record, stage crm.DealStage) *crm.DealProps {
	// Most recent record with a partner domain wins; the history is
	// ordered oldest first, so scan in reverse.
	var partner *string
	for i := len(records) - 1; i >= 0; i-- {
		if domain := records[i].Partner(); domain != "" {
			partner = &domain
			break
		}
	}

	lic, _ := rec.(*mpac.License)
	tx, _ := rec.(*mpac.Transaction)

	var (
		addonName string
		hosting   string
		company   string
		country   string
		licType   string
		maintEnd  string
	)
	if tx != nil {
		addonName, hosting, company = tx.AddonName, string(tx.Hosting), tx.Company
		country, licType, maintEnd = tx.Country, tx.LicenseType, tx.MaintenanceEndDate
	} else {
		addonName, hosting, company = lic.AddonName, string(lic.Hosting), lic.Company
		country, licType, maintEnd = lic.Country, lic.LicenseType, lic.MaintenanceEndDate
	}

	app := productName(addonName)
	tier := rec.Tier()

	props := &crm.DealProps{
		App:                optional(app),
		Company:            company,
		Country:            optional(country),
		Deployment:         optional(hosting),
		LicenseTier:        &tier,
		LicenseType:        optional(licType),
		Origin:             optional(g.cfg.DealOrigin),
		RelatedProducts:    optional(g.cfg.DealRelatedProducts),
		DealName:           fmt.Sprintf("%s - %s - %s", app, company, hosting),
		Pipeline:           crm.PipelineMPAC,
		AssociatedPartner:  partner,
		DealStage:          stage,
		MaintenanceEndDate: optional(maintEnd),
	}

	ids := rec.IDs()
	props.AddonLicenseID = optional(ids[0])
	props.AppEntitlementID = optional(ids[1])
	props.AppEntitlementNum = optional(ids[2])

	if tx != nil {
		props.CloseDate = optional(tx.SaleDate)
		props.TransactionID = optional(tx.TransactionID)
		props.ChangeInTier = optional(tx.ChangeInTier())
		props.BillingPeriod = optional(tx.BillingPeriod)
		if tx.OldTierName != "" {
			oldTier := tx.OldTier()
			props.OldTier = &oldTier
		}
		if !tx.Refunded() {
			props.SaleType = optional(string(tx.SaleType))
		}
	} else {
		props.CloseDate = optional(lic.MaintenanceStartDate)
		props.CloudSiteHostname = optional(lic.CloudSiteHostname)
	}

	// Monetary value: evals have none, license-driven stages get an
	// explicit zero, transactions carry the vendor amount.
	switch {
	case stage == crm.DealStageEval:
		props.Value = nil
	case lic != nil:
		zero := 0.0
		props.Value = &zero
	default:
		props.Value = &tx.VendorAmount
	}

	return props
}

// productName derives the deal-title product name from a marketplace
// addon name: vendor prefix stripped, truncated at the first " - ".
func productName(addonName string) string {
	name := strings.Replace(addonName, vendorPrefix, "", 1)
	name, _, _ = strings.Cut(name, " - ")
	return name
}

// latestLicense picks the license with the newest maintenance start.
func latestLicense(licenses []*mpac.License) *mpac.License {
	sorted := append([]*mpac.License(nil), licenses...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MaintenanceStartDate > sorted[j].MaintenanceStartDate
	})
	return sorted[0]
}

func licenseRecords(licenses []*mpac.License) []mpac.Record {
	records := make([]mpac.Record, len(licenses))
	for i, l := range licenses {
		records[i] = l
	}
	return records
}

func transactionRecords(txs []*mpac.Transaction) []mpac.Record {
	records := make([]mpac.Record, len(txs))
	for i, tx := range txs {
		records[i] = tx
	}
	return records
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
