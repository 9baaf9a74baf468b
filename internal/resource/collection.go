package resource

import "docprov/internal/docdb"

// CollectionResource represents a collection declared in a manifest
type CollectionResource struct {
	BaseResource `json:",inline"`
	Spec         CollectionSpec `json:"spec"`
}

// CollectionSpec defines the specification for a collection
type CollectionSpec struct {
	// Database is the id of the database holding the collection
	Database string `json:"database"`

	// Throughput is the collection's offer; zero leaves the service default
	Throughput int `json:"throughput,omitempty"`

	// PartitionKey lists the partition key paths, e.g. /deviceId
	PartitionKey []string `json:"partitionKey,omitempty"`

	// DefaultTTL in seconds; -1 enables expiry without a default
	DefaultTTL *int `json:"defaultTtl,omitempty"`

	IndexingPolicy *docdb.IndexingPolicy `json:"indexingPolicy,omitempty"`
}

// NewCollectionResource creates a new CollectionResource
func NewCollectionResource() *CollectionResource {
	return &CollectionResource{
		BaseResource: BaseResource{
			ResourceType: ResourceTypeCollection,
		},
	}
}

// GetScope returns the scope of the owning database
func (c *CollectionResource) GetScope() Scope {
	return DatabaseScope(c.Spec.Database)
}

// GetDependencies returns the database the collection lives in
func (c *CollectionResource) GetDependencies() []ResourceReference {
	return []ResourceReference{
		{Type: ResourceTypeDatabase, Scope: RootScope, Name: c.Spec.Database},
	}
}

// CollectionSpec converts the manifest spec to the service's collection spec
func (c *CollectionResource) CollectionSpec() docdb.CollectionSpec {
	spec := docdb.CollectionSpec{
		ID:             c.GetName(),
		IndexingPolicy: c.Spec.IndexingPolicy.Clone(),
		Throughput:     c.Spec.Throughput,
	}
	if len(c.Spec.PartitionKey) > 0 {
		spec.PartitionKey = &docdb.PartitionKey{Paths: append([]string(nil), c.Spec.PartitionKey...)}
	}
	if c.Spec.DefaultTTL != nil {
		ttl := *c.Spec.DefaultTTL
		spec.DefaultTTL = &ttl
	}
	return spec
}

// Descriptor implements Resource interface
func (c *CollectionResource) Descriptor() Descriptor {
	return Descriptor{
		Type:   ResourceTypeCollection,
		Scope:  c.GetScope(),
		ID:     c.GetName(),
		Config: c.CollectionSpec(),
	}
}
