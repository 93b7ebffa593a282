package crm

import "strings"

// ContactType distinguishes partner contacts from customers.
const (
	ContactTypePartner  = "Partner"
	ContactTypeCustomer = "Customer"
)

// ContactConfig maps the contact model onto the remote CRM's custom
// property names.
type ContactConfig struct {
	Attrs         map[string]string `yaml:"attrs"`
	ManagedFields []string          `yaml:"managedFields"`
}

func (c *ContactConfig) attr(field string) string {
	if v, ok := c.Attrs[field]; ok && v != "" {
		return v
	}
	return field
}

// setToComparable canonicalizes a set for change comparison: sorted,
// comma-joined. Element order must never cause a spurious diff.
func setToComparable(v any) string {
	if v == nil {
		return ""
	}
	return v.(StringSet).Join(",")
}

func downStringSet(raw string) (any, error) {
	if raw == "" {
		return NewStringSet(), nil
	}
	return NewStringSet(strings.Split(raw, ";")...), nil
}

func upStringSet(v any) string {
	if v == nil {
		return ""
	}
	return v.(StringSet).Join(";")
}

func newContactAdapter(cfg ContactConfig) *Adapter {
	fields := map[string]FieldSpec{
		"email": {
			Property:   "primary_email",
			Identifier: true,
			Down:       downString,
			Up:         upString,
		},
		"firstName": {
			Property: "first_name",
			Down: func(raw string) (any, error) {
				return downNullableString(strings.TrimSpace(raw))
			},
			Up: upNullableString,
		},
		"lastName": {
			Property: "last_name",
			Down: func(raw string) (any, error) {
				return downNullableString(strings.TrimSpace(raw))
			},
			Up: upNullableString,
		},
		"contactType": {
			Property: cfg.attr("contactType"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
		"country": {
			Property: cfg.attr("country"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
		"region": {
			Property: cfg.attr("region"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
		"products": {
			Property:   cfg.attr("products"),
			Down:       downStringSet,
			Up:         upStringSet,
			Comparable: setToComparable,
		},
		"deployment": {
			Property:   cfg.attr("deployment"),
			Down:       downStringSet,
			Up:         upStringSet,
			Comparable: setToComparable,
		},
		"relatedProducts": {
			Property:   cfg.attr("relatedProducts"),
			Down:       downStringSet,
			Up:         upStringSet,
			Comparable: setToComparable,
		},
		"licenseTier": {
			Property: cfg.attr("licenseTier"),
			Down: func(raw string) (any, error) {
				return downNullableInt(strings.TrimSpace(raw))
			},
			Up: upNullableInt,
		},
		"lastMpacEvent": {
			Property: cfg.attr("lastMpacEvent"),
			Down:     downString,
			Up:       upString,
		},
		"lastAssociatedPartner": {
			Property: cfg.attr("lastAssociatedPartner"),
			Down:     downNullableString,
			Up:       upNullableString,
		},
	}

	managed := make(map[string]bool, len(cfg.ManagedFields))
	for _, prop := range cfg.ManagedFields {
		managed[prop] = true
	}

	return &Adapter{
		Kind:   KindContact,
		Fields: fields,
		Associations: map[Kind]AssocDirection{
			KindCompany: AssocDownUp,
		},
		AdditionalProperties: []string{"hs_additional_emails"},
		ManagedFields:        managed,
	}
}

// Contact is a change-tracked CRM person record.
type Contact Entity

func (c *Contact) ent() *Entity { return (*Entity)(c) }

// Entity returns the underlying change-tracked entity.
func (c *Contact) Entity() *Entity { return c.ent() }

// ID returns the remote identity, empty until created.
func (c *Contact) ID() string { return c.ent().ID() }

func (c *Contact) nullableString(field string) string {
	if v := c.ent().Get(field); v != nil {
		return v.(string)
	}
	return ""
}

// Email returns the primary email address.
func (c *Contact) Email() string { return c.ent().Get("email").(string) }

// OtherEmails returns the alias addresses the CRM attached to this
// contact, from the untracked additional-emails property.
func (c *Contact) OtherEmails() []string {
	raw := c.ent().DownloadedProperty("hs_additional_emails")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ";")
}

// AllEmails returns the primary email plus aliases. Keys of the email
// index.
func (c *Contact) AllEmails() []string {
	return append([]string{c.Email()}, c.OtherEmails()...)
}

func (c *Contact) ContactType() string { return c.nullableString("contactType") }
func (c *Contact) IsPartner() bool     { return c.ContactType() == ContactTypePartner }
func (c *Contact) IsCustomer() bool    { return c.ContactType() == ContactTypeCustomer }

// IsExternal reports whether this contact is outside the marketplace
// world (no email or never classified).
func (c *Contact) IsExternal() bool {
	return c.Email() == "" || c.ContactType() == ""
}

// ContactManager owns the contact collection and its email index.
type ContactManager struct {
	*Manager
	byEmail *Index
}

// Contacts returns every contact in collection order.
func (m *ContactManager) Contacts() []*Contact {
	contacts := make([]*Contact, 0, len(m.entities))
	for _, e := range m.entities {
		contacts = append(contacts, (*Contact)(e))
	}
	return contacts
}

// GetByEmail looks up a contact by any of its email aliases.
func (m *ContactManager) GetByEmail(email string) *Contact {
	if e, ok := m.byEmail.Get(email); ok {
		return (*Contact)(e)
	}
	return nil
}

// DomainFor extracts the domain part of an email address.
func DomainFor(email string) string {
	_, domain, _ := strings.Cut(email, "@")
	return domain
}
