package resource

import "docprov/internal/docdb"

// DatabaseResource represents a database declared in a manifest
type DatabaseResource struct {
	BaseResource `json:",inline"`
	Spec         DatabaseSpec `json:"spec,omitempty"`
}

// DatabaseSpec defines the specification for a database
type DatabaseSpec struct {
	// Throughput provisions shared throughput on the database when positive
	Throughput int `json:"throughput,omitempty"`
}

// NewDatabaseResource creates a new DatabaseResource
func NewDatabaseResource() *DatabaseResource {
	return &DatabaseResource{
		BaseResource: BaseResource{
			ResourceType: ResourceTypeDatabase,
		},
	}
}

// GetScope returns the account root scope
func (d *DatabaseResource) GetScope() Scope {
	return RootScope
}

// Descriptor implements Resource interface
func (d *DatabaseResource) Descriptor() Descriptor {
	return Descriptor{
		Type:  ResourceTypeDatabase,
		Scope: RootScope,
		ID:    d.GetName(),
		Config: docdb.DatabaseSpec{
			ID:         d.GetName(),
			Throughput: d.Spec.Throughput,
		},
	}
}
