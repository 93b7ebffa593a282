package crm

import (
	"fmt"
	"log/slog"

	"github.com/SoftComply/marketing-automation/internal/dataset"
)

// Config configures the per-kind adapters. Companies have no custom
// properties and need none.
type Config struct {
	Deal    DealConfig    `yaml:"deal"`
	Contact ContactConfig `yaml:"contact"`
}

// CRM is the full in-memory model of the remote CRM: one manager per
// entity kind plus cross-kind resolution. Build one per run; the entity
// set is discarded at process exit.
type CRM struct {
	Deals     *DealManager
	Contacts  *ContactManager
	Companies *CompanyManager

	logger *slog.Logger
}

// New builds the managers from configuration. Fails on configuration
// defects (conflicting stage ids); never on data.
func New(cfg Config, logger *slog.Logger) (*CRM, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dealAdapter, stages, err := newDealAdapter(cfg.Deal)
	if err != nil {
		return nil, fmt.Errorf("deal config: %w", err)
	}

	contacts := &ContactManager{Manager: newManager(newContactAdapter(cfg.Contact), logger)}
	contacts.byEmail = contacts.MakeIndex([]string{"email"}, func(e *Entity) []string {
		return (*Contact)(e).AllEmails()
	})

	return &CRM{
		Deals:     &DealManager{Manager: newManager(dealAdapter, logger), stages: stages},
		Contacts:  contacts,
		Companies: &CompanyManager{Manager: newManager(newCompanyAdapter(), logger)},
		logger:    logger,
	}, nil
}

// EntityByID resolves a relative association reference across kinds.
func (c *CRM) EntityByID(kind Kind, id string) *Entity {
	switch kind {
	case KindDeal:
		return c.Deals.GetByID(id)
	case KindContact:
		return c.Contacts.GetByID(id)
	case KindCompany:
		return c.Companies.GetByID(id)
	default:
		return nil
	}
}

// ImportData loads a downloaded data set: every kind is imported first,
// then associations are linked in a second pass so cross-kind references
// resolve regardless of record order.
func (c *CRM) ImportData(ds *dataset.DataSet) error {
	dealLinks, err := c.Deals.ImportRecords(ds.Deals)
	if err != nil {
		return err
	}
	contactLinks, err := c.Contacts.ImportRecords(ds.Contacts)
	if err != nil {
		return err
	}
	companyLinks, err := c.Companies.ImportRecords(ds.Companies)
	if err != nil {
		return err
	}

	c.Deals.LinkRecords(dealLinks, c)
	c.Contacts.LinkRecords(contactLinks, c)
	c.Companies.LinkRecords(companyLinks, c)
	return nil
}

// ExportData serializes the working state of every collection back into
// the data set, so a snapshot round-trips without re-downloading.
func (c *CRM) ExportData(ds *dataset.DataSet) {
	ds.Deals = c.Deals.ExportRecords()
	ds.Contacts = c.Contacts.ExportRecords()
	ds.Companies = c.Companies.ExportRecords()
}

// IDGenerator mints entity identities. Production uses UUIDv7; tests
// use a fixed sequence.
type IDGenerator interface {
	Generate() string
}

// PopulateFakeIDs assigns generated identities to every entity still
// missing one. Used by offline runs so that exports and association
// references stay well-formed without a remote round-trip.
func (c *CRM) PopulateFakeIDs(gen IDGenerator) {
	for _, m := range c.managers() {
		for _, e := range m.All() {
			if e.ID() != "" {
				continue
			}
			e.SetID(gen.Generate())
			m.RecordID(e)
		}
	}
}

func (c *CRM) managers() []*Manager {
	return []*Manager{c.Deals.Manager, c.Contacts.Manager, c.Companies.Manager}
}
