package resource

import (
	"context"
	"fmt"

	"docprov/internal/docdb"
)

// CollectionManager implements ResourceManager for collections. Collections
// are scoped by their database.
type CollectionManager struct {
	client   docdb.Client
	pageSize int
	mutator  *RetryingMutator
}

// NewCollectionManager creates a new CollectionManager. Indexing policy
// replacements run through mutator.
func NewCollectionManager(client docdb.Client, pageSize int, mutator *RetryingMutator) *CollectionManager {
	if pageSize <= 0 {
		pageSize = docdb.DefaultPageSize
	}
	return &CollectionManager{
		client:   client,
		pageSize: pageSize,
		mutator:  mutator,
	}
}

// GetResourceType returns the resource type this manager handles
func (cm *CollectionManager) GetResourceType() ResourceType {
	return ResourceTypeCollection
}

// List returns every collection of the scope's database
func (cm *CollectionManager) List(ctx context.Context, scope Scope) ([]Handle, error) {
	databaseID := scope.DatabaseID()
	if databaseID == "" {
		return nil, fmt.Errorf("collections require a database scope")
	}

	collections, err := docdb.ListAllCollections(ctx, cm.client, databaseID, cm.pageSize)
	if err != nil {
		return nil, fmt.Errorf("unable to list collections of %s: %w", databaseID, err)
	}

	handles := make([]Handle, 0, len(collections))
	for i := range collections {
		handles = append(handles, collectionHandle(scope, &collections[i]))
	}
	return handles, nil
}

// Create creates the described collection in the scope's database
func (cm *CollectionManager) Create(ctx context.Context, scope Scope, desc Descriptor) (*Handle, error) {
	databaseID := scope.DatabaseID()
	if databaseID == "" {
		return nil, fmt.Errorf("collections require a database scope")
	}

	spec := docdb.CollectionSpec{}
	switch cfg := desc.Config.(type) {
	case nil:
	case docdb.CollectionSpec:
		spec = cfg
	default:
		return nil, fmt.Errorf("expected docdb.CollectionSpec, got %T", desc.Config)
	}
	spec.ID = desc.ID

	info, err := cm.client.CreateCollection(ctx, databaseID, spec)
	if err != nil {
		return nil, err
	}
	handle := collectionHandle(scope, info)
	return &handle, nil
}

// Read returns the current state of one collection
func (cm *CollectionManager) Read(ctx context.Context, databaseID, id string) (*docdb.CollectionInfo, error) {
	return cm.client.ReadCollection(ctx, databaseID, id)
}

// Delete deletes a collection with its documents
func (cm *CollectionManager) Delete(ctx context.Context, ref ResourceReference) error {
	databaseID := ref.Scope.DatabaseID()
	if err := cm.client.DeleteCollection(ctx, databaseID, ref.Name); err != nil {
		return fmt.Errorf("unable to delete collection %s/%s: %w", databaseID, ref.Name, err)
	}
	return nil
}

// ReplaceIndexingPolicy replaces a collection's indexing policy, retrying
// while the service reports that a previous index transformation is pending.
// Each attempt re-reads the collection so other settings are preserved.
func (cm *CollectionManager) ReplaceIndexingPolicy(ctx context.Context, databaseID, id string, policy *docdb.IndexingPolicy) (*docdb.CollectionInfo, error) {
	if cm.mutator == nil {
		return nil, fmt.Errorf("collection manager has no retrying mutator")
	}

	return Mutate(ctx, cm.mutator, func(ctx context.Context) (*docdb.CollectionInfo, error) {
		current, err := cm.client.ReadCollection(ctx, databaseID, id)
		if err != nil {
			return nil, err
		}
		return cm.client.ReplaceCollection(ctx, databaseID, docdb.CollectionSpec{
			ID:             current.ID,
			IndexingPolicy: policy.Clone(),
			PartitionKey:   current.PartitionKey,
			DefaultTTL:     current.DefaultTTL,
		})
	})
}

func collectionHandle(scope Scope, info *docdb.CollectionInfo) Handle {
	return Handle{
		Type:     ResourceTypeCollection,
		Scope:    scope,
		ID:       info.ID,
		RID:      info.RID,
		SelfLink: info.SelfLink,
		ETag:     info.ETag,
		Metadata: info,
	}
}
