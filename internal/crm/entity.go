// Package crm holds the in-memory CRM model: change-tracked entities,
// per-kind adapter tables, entity collections with derived indexes, and
// the diff-driven uploader.
//
// An Entity wraps one remote record. It keeps the last-synced snapshot
// (baseline) separate from the mutable working copy and computes property
// and association diffs on demand. Business logic only ever talks to the
// working copy through SetField / typed accessors; the uploader reads the
// diffs.
package crm

import (
	"fmt"
	"sort"

	"github.com/SoftComply/marketing-automation/internal/dataset"
)

// Kind identifies an entity kind. The values double as the kind segment
// of relative association references ("organization:15").
type Kind string

const (
	KindDeal    Kind = "deal"
	KindContact Kind = "person"
	KindCompany Kind = "organization"
)

// AssocDirection declares how associations to a kind are synced.
type AssocDirection string

const (
	AssocDown   AssocDirection = "down"    // imported only
	AssocDownUp AssocDirection = "down/up" // imported and uploaded
)

// FieldSpec declares how one tracked field maps onto a remote property.
//
// Property may be empty for local-only fields (tracked and diffed but
// never uploaded). Down parses the raw remote string (empty string when
// the property is absent); a Down error is a configuration defect and
// aborts the import. Comparable, when set, canonicalizes a value for
// change comparison — required for set-valued fields whose element order
// must not cause spurious diffs.
type FieldSpec struct {
	Property   string
	Down       func(raw string) (any, error)
	Up         func(v any) string
	Comparable func(v any) string
	Identifier bool

	// ZeroIsUnset marks a monetary field where a transition from a nil
	// baseline to a working value of numeric zero counts as no change.
	// The remote API treats null and "0" alike; writing the zero back
	// would dirty deals that never had a value.
	ZeroIsUnset bool
}

// Adapter is the per-kind field table. It is configuration, not logic:
// the entity machinery interprets it but never special-cases a kind.
type Adapter struct {
	Kind Kind

	Fields       map[string]FieldSpec
	Associations map[Kind]AssocDirection

	// AdditionalProperties are remote property names the model does not
	// track but must round-trip on export (e.g. additional emails).
	AdditionalProperties []string

	// ManagedFields holds remote property names the remote system is
	// authoritative for. A managed field may be set once, before a
	// baseline value exists; later writes are dropped.
	ManagedFields map[string]bool

	// ShouldReject filters downloaded records out of the import
	// (wrong pipeline, already tombstoned as a duplicate, ...).
	ShouldReject func(props map[string]string) bool
}

func (a *Adapter) fieldManaged(field string) bool {
	prop := a.Fields[field].Property
	return prop != "" && a.ManagedFields[prop]
}

// identifierFields returns the field names flagged as identifiers, in
// stable order. Used for post-create reconciliation.
func (a *Adapter) identifierFields() []string {
	var fields []string
	for name, spec := range a.Fields {
		if spec.Identifier {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	return fields
}

// indexer is implemented by the owning Manager. SetField notifies it
// around every write so derived indexes never observe a stale key.
type indexer interface {
	removeIndexesFor(field string, e *Entity)
	addIndexesFor(field string, e *Entity)
}

// AssocMeta qualifies an AddAssociation call.
type AssocMeta struct {
	// FirstSide is true on the side the caller invoked; the mirrored
	// call on the other entity runs with FirstSide false.
	FirstSide bool
	// Initial seeds the baseline as well as the working set. Only the
	// importer may set this; business logic never does.
	Initial bool
}

// AssocOp is the direction of one association change.
type AssocOp string

const (
	AssocAdd AssocOp = "add"
	AssocDel AssocOp = "del"
)

// AssocChange is one entry of an association diff.
type AssocChange struct {
	Op    AssocOp
	Other *Entity
}

// Entity is one change-tracked record. Entities are owned by their
// Manager and referenced (never owned) by associated entities; they are
// not destroyed individually during a run.
type Entity struct {
	id      string // empty until the remote create round-trip assigns one
	adapter *Adapter

	// downloaded is the raw property bag as received, kept for
	// passthrough fields and activity signals.
	downloaded map[string]string

	baseline map[string]any
	working  map[string]any

	oldAssocs map[*Entity]bool
	newAssocs map[*Entity]bool

	indexer indexer
}

// newEntity wires up an entity. A non-empty id means the record exists
// remotely, so the parsed data seeds the baseline; locally created
// entities start with an empty baseline and diff as a full payload.
func newEntity(id string, adapter *Adapter, downloaded map[string]string, data map[string]any, ix indexer) *Entity {
	e := &Entity{
		id:         id,
		adapter:    adapter,
		downloaded: downloaded,
		baseline:   make(map[string]any, len(data)),
		working:    make(map[string]any, len(data)),
		oldAssocs:  make(map[*Entity]bool),
		newAssocs:  make(map[*Entity]bool),
		indexer:    ix,
	}
	if id != "" {
		for k, v := range data {
			e.baseline[k] = v
		}
	}
	for k, v := range data {
		e.working[k] = v
	}
	return e
}

// Kind returns the entity kind.
func (e *Entity) Kind() Kind { return e.adapter.Kind }

// ID returns the remote identity, or "" when the entity has not been
// created remotely yet.
func (e *Entity) ID() string { return e.id }

// SetID records the identity assigned by the remote system. Called by
// the uploader after a successful create, and by PopulateFakeIDs for
// offline runs.
func (e *Entity) SetID(id string) { e.id = id }

// MustID returns the identity and panics if the entity has none. Only
// call on paths where a created entity is guaranteed (mirrors the
// original guaranteedId).
func (e *Entity) MustID() string {
	if e.id == "" {
		panic(fmt.Sprintf("entity of kind %q has no id yet", e.adapter.Kind))
	}
	return e.id
}

// Get returns the working value of a field (nil if unset).
func (e *Entity) Get(field string) any {
	return e.working[field]
}

// DownloadedProperty returns a raw downloaded property by remote name.
// Used for passthrough signals the model does not track as fields.
func (e *Entity) DownloadedProperty(name string) string {
	return e.downloaded[name]
}

// SetField writes into the working copy.
//
// Managed-field rule: once a managed field carries a non-empty baseline
// value the remote system owns it, and the write is dropped silently —
// local code may seed it at creation but must not fight the remote
// source afterwards.
//
// Index rule: the owning collection's indexes are updated around the
// write as one sequence, so a lookup never sees the old key mapped to
// the new value or vice versa.
func (e *Entity) SetField(field string, v any) {
	if _, ok := e.adapter.Fields[field]; !ok {
		panic(fmt.Sprintf("unknown field %q on kind %q", field, e.adapter.Kind))
	}
	if old, ok := e.baseline[field]; ok && !emptyValue(old) && e.adapter.fieldManaged(field) {
		return
	}
	if e.indexer != nil {
		e.indexer.removeIndexesFor(field, e)
	}
	e.working[field] = v
	if e.indexer != nil {
		e.indexer.addIndexesFor(field, e)
	}
}

// PropertyChanges returns the upload payload: remote property name to
// serialized value for every field whose comparable form differs between
// baseline and working.
func (e *Entity) PropertyChanges() map[string]string {
	changes := make(map[string]string)
	for field, v := range e.working {
		spec, ok := e.adapter.Fields[field]
		if !ok || spec.Property == "" {
			continue
		}
		old, oldPresent := e.baseline[field]
		if !fieldChanged(spec, old, oldPresent, v) {
			continue
		}
		if spec.ZeroIsUnset && oldPresent && old == nil && zeroNumber(v) {
			continue
		}
		changes[spec.Property] = spec.Up(v)
	}
	return changes
}

// HasPropertyChanges reports whether PropertyChanges would be non-empty.
func (e *Entity) HasPropertyChanges() bool {
	return len(e.PropertyChanges()) > 0
}

// AddAssociation relates this entity to another. The relation is
// symmetric: adding on one side mirrors it on the other. With
// meta.Initial the baseline is seeded too, so an imported association
// does not read as a pending change.
func (e *Entity) AddAssociation(other *Entity, meta AssocMeta) {
	if meta.Initial {
		e.oldAssocs[other] = true
	}
	e.newAssocs[other] = true
	if meta.FirstSide {
		other.AddAssociation(e, AssocMeta{FirstSide: false, Initial: meta.Initial})
	}
}

// Associations returns the working associations of one kind, ordered by
// identity for deterministic iteration.
func (e *Entity) Associations(kind Kind) []*Entity {
	var out []*Entity
	for other := range e.newAssocs {
		if other.Kind() == kind {
			out = append(out, other)
		}
	}
	sortEntities(out)
	return out
}

// ClearAssociations drops all working associations of one kind.
func (e *Entity) ClearAssociations(kind Kind) {
	for other := range e.newAssocs {
		if other.Kind() == kind {
			delete(e.newAssocs, other)
		}
	}
}

// AssociationChanges returns the association diff: additions first, then
// removals, each ordered by (kind, id).
func (e *Entity) AssociationChanges() []AssocChange {
	var added, removed []*Entity
	for other := range e.newAssocs {
		if !e.oldAssocs[other] {
			added = append(added, other)
		}
	}
	for other := range e.oldAssocs {
		if !e.newAssocs[other] {
			removed = append(removed, other)
		}
	}
	sortEntities(added)
	sortEntities(removed)

	changes := make([]AssocChange, 0, len(added)+len(removed))
	for _, other := range added {
		changes = append(changes, AssocChange{Op: AssocAdd, Other: other})
	}
	for _, other := range removed {
		changes = append(changes, AssocChange{Op: AssocDel, Other: other})
	}
	return changes
}

// HasAssociationChanges reports whether any association was added or
// removed since the baseline.
func (e *Entity) HasAssociationChanges() bool {
	for other := range e.newAssocs {
		if !e.oldAssocs[other] {
			return true
		}
	}
	for other := range e.oldAssocs {
		if !e.newAssocs[other] {
			return true
		}
	}
	return false
}

// ToRawRecord serializes the working state back to the raw record shape:
// every tracked field serialized over the passthrough properties, plus
// the upload-direction working associations. Round-tripping a data set
// through this must reproduce the entity on re-import.
func (e *Entity) ToRawRecord() dataset.RawRecord {
	props := make(map[string]string, len(e.downloaded)+len(e.working))
	for k, v := range e.downloaded {
		props[k] = v
	}
	for field, v := range e.working {
		spec := e.adapter.Fields[field]
		if spec.Property == "" {
			continue
		}
		props[spec.Property] = spec.Up(v)
	}

	var assocs []dataset.RelativeAssociation
	for other := range e.newAssocs {
		if dir, ok := e.adapter.Associations[other.Kind()]; ok && dir == AssocDownUp {
			assocs = append(assocs, dataset.NewRelativeAssociation(string(other.Kind()), other.id))
		}
	}
	sort.Slice(assocs, func(i, j int) bool { return assocs[i] < assocs[j] })

	return dataset.RawRecord{ID: e.id, Properties: props, Associations: assocs}
}

// fieldChanged compares the comparable forms of baseline and working
// values. An absent baseline compares as the empty string, matching a
// freshly downloaded record where unset fields parse to empty values.
func fieldChanged(spec FieldSpec, old any, oldPresent bool, v any) bool {
	if spec.Comparable != nil {
		oldC := ""
		if oldPresent {
			oldC = spec.Comparable(old)
		}
		return oldC != spec.Comparable(v)
	}
	if !oldPresent {
		old = ""
	}
	return old != v
}

// emptyValue mirrors the original's falsiness check for managed-field
// suppression: an empty baseline does not yet belong to the remote side.
func emptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case int:
		return val == 0
	case float64:
		return val == 0
	case bool:
		return !val
	case StringSet:
		return len(val) == 0
	default:
		return false
	}
}

func zeroNumber(v any) bool {
	switch val := v.(type) {
	case int:
		return val == 0
	case float64:
		return val == 0
	default:
		return false
	}
}

// sortEntities orders by kind, then id, keeping id-less (locally
// created) entities after all persisted ones.
func sortEntities(entities []*Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		a, b := entities[i], entities[j]
		if a.Kind() != b.Kind() {
			return a.Kind() < b.Kind()
		}
		if (a.id == "") != (b.id == "") {
			return b.id == ""
		}
		return a.id < b.id
	})
}

// StringSet is a set-valued field. Always compare through a Comparable
// canonicalizer; element order must never cause a spurious diff.
type StringSet map[string]bool

// NewStringSet builds a set from elements, dropping empties.
func NewStringSet(elems ...string) StringSet {
	s := make(StringSet, len(elems))
	for _, e := range elems {
		if e != "" {
			s[e] = true
		}
	}
	return s
}

// Sorted returns the elements in ascending order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Join renders the set as a separator-joined sorted string, the upload
// form used by the CRM for multi-valued properties.
func (s StringSet) Join(sep string) string {
	out := ""
	for i, e := range s.Sorted() {
		if i > 0 {
			out += sep
		}
		out += e
	}
	return out
}
