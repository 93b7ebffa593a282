package crm

import (
	"context"
	"fmt"
	"log/slog"
)

// Uploader pushes pending entity diffs to the remote CRM through an
// EntityAPI. It re-reads per-entity diffs at upload time, so anything
// business logic changed since import goes out exactly once.
type Uploader struct {
	api    EntityAPI
	logger *slog.Logger
}

// NewUploader builds an uploader.
func NewUploader(api EntityAPI, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{api: api, logger: logger}
}

// SyncUp uploads all pending changes: properties for every kind first
// (so created entities have ids), then association edges.
func (u *Uploader) SyncUp(ctx context.Context, c *CRM) error {
	for _, m := range c.managers() {
		if err := u.syncProperties(ctx, m); err != nil {
			return err
		}
	}
	for _, m := range c.managers() {
		if err := u.syncAssociations(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (u *Uploader) syncProperties(ctx context.Context, m *Manager) error {
	type pending struct {
		entity  *Entity
		changes map[string]string
	}

	var toCreate, toUpdate []pending
	for _, e := range m.All() {
		changes := e.PropertyChanges()
		if len(changes) == 0 {
			continue
		}
		if e.ID() == "" {
			toCreate = append(toCreate, pending{e, changes})
		} else {
			toUpdate = append(toUpdate, pending{e, changes})
		}
	}

	if len(toCreate) > 0 {
		inputs := make([]NewEntityInput, len(toCreate))
		for i, p := range toCreate {
			inputs[i] = NewEntityInput{Properties: p.changes}
		}
		created, err := u.api.CreateEntities(ctx, m.Kind(), inputs)
		if err != nil {
			return fmt.Errorf("create %s entities: %w", m.Kind(), err)
		}
		locals := make([]*Entity, len(toCreate))
		for i, p := range toCreate {
			locals[i] = p.entity
		}
		u.reconcileCreated(m, locals, created)
	}

	if len(toUpdate) > 0 {
		inputs := make([]ExistingEntityInput, len(toUpdate))
		for i, p := range toUpdate {
			inputs[i] = ExistingEntityInput{ID: p.entity.MustID(), Properties: p.changes}
		}
		if err := u.api.UpdateEntities(ctx, m.Kind(), inputs); err != nil {
			return fmt.Errorf("update %s entities: %w", m.Kind(), err)
		}
	}
	return nil
}

// reconcileCreated matches created remote records back to local entities
// by comparing every identifier field's serialized value. A local entity
// with no match is logged and left id-less; it stays pending for the
// next run.
func (u *Uploader) reconcileCreated(m *Manager, locals []*Entity, created []CreatedEntity) {
	identifiers := m.Adapter().identifierFields()

	for _, local := range locals {
		var found *CreatedEntity
		for i := range created {
			remote := &created[i]
			if identifiersMatch(m.Adapter(), local, remote, identifiers) {
				found = remote
				break
			}
		}
		if found == nil {
			u.logger.Error("created entity not found in create response",
				"kind", m.Kind(),
				"identifiers", identifiers)
			continue
		}
		local.SetID(found.ID)
		m.RecordID(local)
	}
}

func identifiersMatch(adapter *Adapter, local *Entity, remote *CreatedEntity, identifiers []string) bool {
	for _, field := range identifiers {
		spec := adapter.Fields[field]
		if spec.Up(local.Get(field)) != remote.Properties[spec.Property] {
			return false
		}
	}
	return true
}

func (u *Uploader) syncAssociations(ctx context.Context, m *Manager) error {
	type edge struct {
		op   AssocOp
		from *Entity
		to   *Entity
	}

	var changes []edge
	for _, e := range m.All() {
		for _, ch := range e.AssociationChanges() {
			changes = append(changes, edge{op: ch.Op, from: e, to: ch.Other})
		}
	}

	for otherKind, dir := range m.Adapter().Associations {
		if dir != AssocDownUp {
			continue
		}

		var toAdd, toDel []AssociationInput
		for _, ch := range changes {
			if ch.to.Kind() != otherKind {
				continue
			}
			if ch.from.ID() == "" || ch.to.ID() == "" {
				u.logger.Error("skipping association with missing id",
					"fromKind", m.Kind(),
					"fromId", ch.from.ID(),
					"toKind", otherKind,
					"toId", ch.to.ID())
				continue
			}
			input := AssociationInput{FromID: ch.from.ID(), ToID: ch.to.ID(), ToKind: otherKind}
			if ch.op == AssocAdd {
				toAdd = append(toAdd, input)
			} else {
				toDel = append(toDel, input)
			}
		}

		if len(toAdd) > 0 {
			if err := u.api.CreateAssociations(ctx, m.Kind(), otherKind, toAdd); err != nil {
				return fmt.Errorf("create %s-%s associations: %w", m.Kind(), otherKind, err)
			}
		}
		if len(toDel) > 0 {
			if err := u.api.DeleteAssociations(ctx, m.Kind(), otherKind, toDel); err != nil {
				return fmt.Errorf("delete %s-%s associations: %w", m.Kind(), otherKind, err)
			}
		}
	}
	return nil
}
