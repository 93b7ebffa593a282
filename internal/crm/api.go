package crm

import "context"

// NewEntityInput is a create request: the serialized property payload of
// an entity that does not exist remotely yet.
type NewEntityInput struct {
	Properties map[string]string
}

// ExistingEntityInput is an update request against a known remote id.
type ExistingEntityInput struct {
	ID         string
	Properties map[string]string
}

// CreatedEntity is one record returned by a create call: the assigned id
// plus the properties as the remote stored them, used to reconcile
// created records back to their local entities.
type CreatedEntity struct {
	ID         string
	Properties map[string]string
}

// AssociationInput is one edge of an associate or disassociate call.
type AssociationInput struct {
	FromID string
	ToID   string
	ToKind Kind
}

// EntityAPI is the remote write surface the uploader drives. Wire
// formats, auth and batching limits live behind this interface; the
// model never sees them.
type EntityAPI interface {
	CreateEntities(ctx context.Context, kind Kind, inputs []NewEntityInput) ([]CreatedEntity, error)
	UpdateEntities(ctx context.Context, kind Kind, inputs []ExistingEntityInput) error
	CreateAssociations(ctx context.Context, fromKind, toKind Kind, inputs []AssociationInput) error
	DeleteAssociations(ctx context.Context, fromKind, toKind Kind, inputs []AssociationInput) error
}
