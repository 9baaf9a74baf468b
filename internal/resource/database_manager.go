package resource

import (
	"context"
	"fmt"

	"docprov/internal/docdb"
)

// DatabaseManager implements ResourceManager for databases
type DatabaseManager struct {
	client   docdb.Client
	pageSize int
}

// NewDatabaseManager creates a new DatabaseManager. A non-positive page size
// selects docdb.DefaultPageSize.
func NewDatabaseManager(client docdb.Client, pageSize int) *DatabaseManager {
	if pageSize <= 0 {
		pageSize = docdb.DefaultPageSize
	}
	return &DatabaseManager{
		client:   client,
		pageSize: pageSize,
	}
}

// GetResourceType returns the resource type this manager handles
func (dm *DatabaseManager) GetResourceType() ResourceType {
	return ResourceTypeDatabase
}

// List returns every database of the account
func (dm *DatabaseManager) List(ctx context.Context, scope Scope) ([]Handle, error) {
	if scope != RootScope {
		return nil, fmt.Errorf("databases live in the root scope, got %q", scope)
	}

	databases, err := docdb.ListAllDatabases(ctx, dm.client, dm.pageSize)
	if err != nil {
		return nil, fmt.Errorf("unable to list databases: %w", err)
	}

	handles := make([]Handle, 0, len(databases))
	for i := range databases {
		handles = append(handles, databaseHandle(&databases[i]))
	}
	return handles, nil
}

// Create creates the described database
func (dm *DatabaseManager) Create(ctx context.Context, scope Scope, desc Descriptor) (*Handle, error) {
	if scope != RootScope {
		return nil, fmt.Errorf("databases live in the root scope, got %q", scope)
	}

	spec := docdb.DatabaseSpec{}
	switch cfg := desc.Config.(type) {
	case nil:
	case docdb.DatabaseSpec:
		spec = cfg
	default:
		return nil, fmt.Errorf("expected docdb.DatabaseSpec, got %T", desc.Config)
	}
	spec.ID = desc.ID

	info, err := dm.client.CreateDatabase(ctx, spec)
	if err != nil {
		return nil, err
	}
	handle := databaseHandle(info)
	return &handle, nil
}

// Read returns the handle of one database
func (dm *DatabaseManager) Read(ctx context.Context, id string) (*Handle, error) {
	info, err := dm.client.ReadDatabase(ctx, id)
	if err != nil {
		return nil, err
	}
	handle := databaseHandle(info)
	return &handle, nil
}

// Delete deletes a database and everything in it
func (dm *DatabaseManager) Delete(ctx context.Context, ref ResourceReference) error {
	if err := dm.client.DeleteDatabase(ctx, ref.Name); err != nil {
		return fmt.Errorf("unable to delete database %s: %w", ref.Name, err)
	}
	return nil
}

func databaseHandle(info *docdb.DatabaseInfo) Handle {
	out := *info
	return Handle{
		Type:     ResourceTypeDatabase,
		Scope:    RootScope,
		ID:       info.ID,
		RID:      info.RID,
		SelfLink: info.SelfLink,
		ETag:     info.ETag,
		Metadata: &out,
	}
}
