package crm

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/SoftComply/marketing-automation/internal/dataset"
)

// EntityResolver resolves a relative association reference to a live
// entity. Implemented by the CRM aggregate, which can see across kinds.
type EntityResolver interface {
	EntityByID(kind Kind, id string) *Entity
}

// PendingLink pairs a freshly imported entity with the association
// references it arrived with. Links are resolved in a second pass, after
// every kind has been imported, so cross-kind references always land.
type PendingLink struct {
	Entity *Entity
	Refs   []dataset.RelativeAssociation
}

// Index is a derived lookup over a collection, maintained incrementally
// as fields change. Keys map to a single entity; a later write to the
// same key wins, which is only reachable with genuinely duplicate remote
// data.
type Index struct {
	fields  map[string]bool
	keysOf  func(*Entity) []string
	entries map[string]*Entity
}

// Get looks up the entity indexed under key.
func (ix *Index) Get(key string) (*Entity, bool) {
	e, ok := ix.entries[key]
	return e, ok
}

// Manager owns every entity of one kind: the backing slice, the id
// lookup, derived indexes and the duplicate registry.
type Manager struct {
	adapter *Adapter
	logger  *slog.Logger

	entities []*Entity
	byID     map[string]*Entity
	indexes  []*Index

	// duplicate bookkeeping, populated by the resolver
	dupOf       map[*Entity]*Entity
	byCanonical map[*Entity][]*Entity
}

func newManager(adapter *Adapter, logger *slog.Logger) *Manager {
	return &Manager{
		adapter:     adapter,
		logger:      logger,
		byID:        make(map[string]*Entity),
		dupOf:       make(map[*Entity]*Entity),
		byCanonical: make(map[*Entity][]*Entity),
	}
}

// Adapter returns the kind's field table.
func (m *Manager) Adapter() *Adapter { return m.adapter }

// Kind returns the managed entity kind.
func (m *Manager) Kind() Kind { return m.adapter.Kind }

// All returns the entities in import/creation order.
func (m *Manager) All() []*Entity { return m.entities }

// GetByID returns the entity with the given remote id, or nil.
func (m *Manager) GetByID(id string) *Entity { return m.byID[id] }

// ImportRecords parses raw records into entities. Rejected records
// (wrong pipeline, tombstoned duplicates) are skipped; a Down parse
// failure is a configuration defect and aborts the whole import.
//
// Associations are returned as pending links rather than resolved here;
// the caller links them once all kinds are loaded.
func (m *Manager) ImportRecords(records []dataset.RawRecord) ([]PendingLink, error) {
	links := make([]PendingLink, 0, len(records))
	for _, rec := range records {
		if m.adapter.ShouldReject != nil && m.adapter.ShouldReject(rec.Properties) {
			continue
		}

		data := make(map[string]any, len(m.adapter.Fields))
		for field, spec := range m.adapter.Fields {
			if spec.Down == nil {
				continue
			}
			v, err := spec.Down(rec.Properties[spec.Property])
			if err != nil {
				return nil, fmt.Errorf("import %s %q: field %q: %w", m.adapter.Kind, rec.ID, field, err)
			}
			data[field] = v
		}

		e := newEntity(rec.ID, m.adapter, rec.Properties, data, m)
		m.add(e)
		links = append(links, PendingLink{Entity: e, Refs: rec.Associations})
	}
	return links, nil
}

// LinkRecords resolves pending association references. A malformed or
// dangling reference is logged and skipped; one bad row must not abort
// the run.
func (m *Manager) LinkRecords(links []PendingLink, resolver EntityResolver) {
	for _, link := range links {
		for _, ref := range link.Refs {
			kind, id, err := ref.Parts()
			if err != nil {
				m.logger.Warn("skipping malformed association",
					"kind", m.adapter.Kind,
					"entity", link.Entity.ID(),
					"ref", string(ref))
				continue
			}
			other := resolver.EntityByID(Kind(kind), id)
			if other == nil {
				m.logger.Warn("skipping dangling association",
					"kind", m.adapter.Kind,
					"entity", link.Entity.ID(),
					"ref", string(ref))
				continue
			}
			link.Entity.AddAssociation(other, AssocMeta{FirstSide: true, Initial: true})
		}
	}
}

// Create adds a new local entity with the given working data. It has no
// id until the uploader round-trips it, and no baseline, so everything
// diffs as a create payload.
func (m *Manager) Create(data map[string]any) *Entity {
	e := newEntity("", m.adapter, map[string]string{}, data, m)
	m.add(e)
	return e
}

func (m *Manager) add(e *Entity) {
	m.entities = append(m.entities, e)
	if e.id != "" {
		m.byID[e.id] = e
	}
	for _, ix := range m.indexes {
		indexAdd(ix, e)
	}
}

// RecordID registers an id assigned after creation so GetByID and
// association exports see it. Called by the uploader and by
// PopulateFakeIDs.
func (m *Manager) RecordID(e *Entity) {
	if e.id != "" {
		m.byID[e.id] = e
	}
}

// MakeIndex registers a derived index keyed by keysOf and kept current
// whenever one of fields changes on any entity. Existing entities are
// indexed immediately.
func (m *Manager) MakeIndex(fields []string, keysOf func(*Entity) []string) *Index {
	ix := &Index{
		fields:  make(map[string]bool, len(fields)),
		keysOf:  keysOf,
		entries: make(map[string]*Entity),
	}
	for _, f := range fields {
		ix.fields[f] = true
	}
	m.indexes = append(m.indexes, ix)
	for _, e := range m.entities {
		indexAdd(ix, e)
	}
	return ix
}

// removeIndexesFor and addIndexesFor bracket a SetField write; see
// Entity.SetField for the ordering contract.

func (m *Manager) removeIndexesFor(field string, e *Entity) {
	for _, ix := range m.indexes {
		if ix.fields[field] {
			for _, key := range ix.keysOf(e) {
				delete(ix.entries, key)
			}
		}
	}
}

func (m *Manager) addIndexesFor(field string, e *Entity) {
	for _, ix := range m.indexes {
		if ix.fields[field] {
			for _, key := range ix.keysOf(e) {
				ix.entries[key] = e
			}
		}
	}
}

func indexAdd(ix *Index, e *Entity) {
	for _, key := range ix.keysOf(e) {
		ix.entries[key] = e
	}
}

// RegisterDuplicates records that dups are duplicates of canonical.
//
// INVARIANT: an entity may be a duplicate of exactly one canonical, a
// canonical must not itself be registered as a duplicate, and a
// canonical is registered at most once per run. Violations mean the
// resolver produced contradictory groups; continuing would let the
// uploader tombstone live deals, so this returns an error the engine
// treats as fatal.
func (m *Manager) RegisterDuplicates(canonical *Entity, dups []*Entity) error {
	if _, ok := m.byCanonical[canonical]; ok {
		return fmt.Errorf("entity %q already accounted for as a duplicate-group canonical",
			canonical.ID())
	}
	if prior, ok := m.dupOf[canonical]; ok {
		return fmt.Errorf("entity %q already registered as duplicate of %q, cannot be canonical",
			canonical.ID(), prior.ID())
	}
	for _, dup := range dups {
		if prior, ok := m.dupOf[dup]; ok && prior != canonical {
			return fmt.Errorf("entity %q already registered as duplicate of %q, cannot also duplicate %q",
				dup.ID(), prior.ID(), canonical.ID())
		}
		if _, ok := m.byCanonical[dup]; ok {
			return fmt.Errorf("entity %q already registered as canonical, cannot become a duplicate of %q",
				dup.ID(), canonical.ID())
		}
		if m.dupOf[dup] == nil {
			m.byCanonical[canonical] = append(m.byCanonical[canonical], dup)
		}
		m.dupOf[dup] = canonical
	}
	return nil
}

// DuplicateGroup is one canonical entity and its registered duplicates.
type DuplicateGroup struct {
	Canonical  *Entity
	Duplicates []*Entity
}

// DuplicateGroups returns the registered groups ordered by canonical
// identity for deterministic reporting.
func (m *Manager) DuplicateGroups() []DuplicateGroup {
	groups := make([]DuplicateGroup, 0, len(m.byCanonical))
	for canonical, dups := range m.byCanonical {
		sorted := append([]*Entity(nil), dups...)
		sortEntities(sorted)
		groups = append(groups, DuplicateGroup{Canonical: canonical, Duplicates: sorted})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Canonical.ID() < groups[j].Canonical.ID()
	})
	return groups
}

// ExportRecords serializes every entity back to the raw record shape in
// collection order.
func (m *Manager) ExportRecords() []dataset.RawRecord {
	records := make([]dataset.RawRecord, 0, len(m.entities))
	for _, e := range m.entities {
		records = append(records, e.ToRawRecord())
	}
	return records
}
