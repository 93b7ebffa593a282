package dealgen

import (
	"sort"

	"github.com/SoftComply/marketing-automation/internal/crm"
)

// resolveDeal collapses a set of matched deals into the one canonical
// deal an event should act on.
//
// Rules, in order: a single match is used as-is. With multiple matches
// and no deal showing human activity, the first by deterministic order
// (lowest id) becomes canonical and the rest are tombstoned. With one or
// more active deals, the first active one is canonical; additional
// active deals cannot be auto-deleted and are reported for manual
// attention, while the inactive rest are tombstoned.
//
// Registering a canonical that is already part of another duplicate
// group is a consistency violation and returns an error the caller must
// treat as fatal.
func (g *Generator) resolveDeal(matches []*crm.Deal) (*crm.Deal, error) {
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	}

	var active []*crm.Deal
	for _, d := range matches {
		if d.HasActivity() {
			active = append(active, d)
		}
	}

	var canonical *crm.Deal
	var toDelete []*crm.Deal
	if len(active) == 0 {
		canonical = matches[0]
		toDelete = matches[1:]
	} else {
		canonical = active[0]
		if len(active) > 1 {
			g.logger.Warn("found duplicate deals that cannot be auto-deleted",
				"count", len(active),
				"ids", dealIDs(active))
		}
		for _, d := range matches {
			if !d.HasActivity() {
				toDelete = append(toDelete, d)
			}
		}
	}

	g.logger.Info("resolved duplicate deals",
		"canonical", canonical.ID(),
		"toDelete", dealIDs(toDelete))

	if len(toDelete) > 0 {
		entities := make([]*crm.Entity, len(toDelete))
		for i, d := range toDelete {
			entities[i] = d.Entity()
		}
		if err := g.deals.RegisterDuplicates(canonical.Entity(), entities); err != nil {
			return nil, err
		}
		for _, dup := range toDelete {
			dup.SetDuplicateOf(canonical.ID())
		}
	}

	return canonical, nil
}

// sortDeals orders matched deals deterministically: ascending by id,
// id-less deals last. The canonical pick must not depend on map
// iteration order.
func sortDeals(deals []*crm.Deal) {
	sort.SliceStable(deals, func(i, j int) bool {
		a, b := deals[i].ID(), deals[j].ID()
		if (a == "") != (b == "") {
			return b == ""
		}
		return a < b
	})
}

func dealIDs(deals []*crm.Deal) []string {
	ids := make([]string, len(deals))
	for i, d := range deals {
		ids[i] = d.ID()
	}
	return ids
}
