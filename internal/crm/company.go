package crm

// CompanyTypePartner is the only company classification the sync cares
// about; everything else imports as unclassified.
const CompanyTypePartner = "Partner"

func newCompanyAdapter() *Adapter {
	return &Adapter{
		Kind: KindCompany,
		Fields: map[string]FieldSpec{
			"name": {
				Property: "name",
				Down:     downString,
				Up:       upString,
			},
			"type": {
				Property: "type",
				Down: func(raw string) (any, error) {
					if raw == "PARTNER" {
						return CompanyTypePartner, nil
					}
					return nil, nil
				},
				Up: func(v any) string {
					if v == CompanyTypePartner {
						return "PARTNER"
					}
					return ""
				},
			},
		},
		Associations:  map[Kind]AssocDirection{},
		ManagedFields: map[string]bool{},
	}
}

// Company is a change-tracked CRM organization record.
type Company Entity

func (c *Company) ent() *Entity { return (*Entity)(c) }

// Entity returns the underlying change-tracked entity.
func (c *Company) Entity() *Entity { return c.ent() }

// ID returns the remote identity, empty until created.
func (c *Company) ID() string { return c.ent().ID() }

// Name returns the organization name.
func (c *Company) Name() string { return c.ent().Get("name").(string) }

// IsPartner reports whether the company is classified as a partner.
func (c *Company) IsPartner() bool {
	return c.ent().Get("type") == CompanyTypePartner
}

// CompanyManager owns the company collection.
type CompanyManager struct {
	*Manager
}

// Companies returns every company in collection order.
func (m *CompanyManager) Companies() []*Company {
	companies := make([]*Company, 0, len(m.entities))
	for _, e := range m.entities {
		companies = append(companies, (*Company)(e))
	}
	return companies
}
