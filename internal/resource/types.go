package resource

import (
	"context"
	"strings"

	"docprov/internal/docdb"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ResourceType represents the type of a resource
type ResourceType string

const (
	ResourceTypeDatabase   ResourceType = "database"
	ResourceTypeCollection ResourceType = "collection"
)

// Scope is the parent container within which a resource id must be unique.
// Databases live in RootScope, collections in the scope of their database.
type Scope string

// RootScope is the account-level scope holding databases
const RootScope Scope = ""

// DatabaseScope returns the scope of the collections of a database
func DatabaseScope(databaseID string) Scope {
	return Scope(docdb.DatabaseLink(databaseID))
}

// DatabaseID returns the database id of a database scope
func (s Scope) DatabaseID() string {
	return strings.TrimPrefix(string(s), "dbs/")
}

// ResourceReference represents a reference to another resource
type ResourceReference struct {
	Type  ResourceType `json:"type"`
	Scope Scope        `json:"scope,omitempty"`
	Name  string       `json:"name"`
}

// String returns a key unique across types and scopes
func (r ResourceReference) String() string {
	if r.Scope == RootScope {
		return string(r.Type) + "/" + r.Name
	}
	return string(r.Type) + "/" + string(r.Scope) + "/" + r.Name
}

// Descriptor is the desired state of one resource: an id unique within its
// scope plus an opaque configuration payload that only the service interprets.
// Descriptors are not modified once handed to the Reconciler.
type Descriptor struct {
	Type   ResourceType
	Scope  Scope
	ID     string
	Config any
}

// Reference returns the reference of the described resource
func (d Descriptor) Reference() ResourceReference {
	return ResourceReference{Type: d.Type, Scope: d.Scope, Name: d.ID}
}

// Handle is the service's representation of an existing resource. The
// service owns it; callers only read and forward it.
type Handle struct {
	Type     ResourceType `json:"type"`
	Scope    Scope        `json:"scope,omitempty"`
	ID       string       `json:"id"`
	RID      string       `json:"rid,omitempty"`
	SelfLink string       `json:"selfLink"`
	ETag     string       `json:"etag,omitempty"`
	Metadata any          `json:"metadata,omitempty"`
}

// Lister enumerates every resource in a scope. Implementations page through
// the service internally and return the full sequence.
type Lister interface {
	List(ctx context.Context, scope Scope) ([]Handle, error)
}

// Creator creates a resource. It fails with a conflict error when a resource
// with the same id already exists in the scope.
type Creator interface {
	Create(ctx context.Context, scope Scope, desc Descriptor) (*Handle, error)
}

// Resource is the core interface that all manifest resources implement
type Resource interface {
	// GetType returns the resource type
	GetType() ResourceType

	// GetName returns the resource name, which is its id in the service
	GetName() string

	// GetScope returns the parent scope of the resource
	GetScope() Scope

	// GetDependencies returns the resources this resource depends on
	GetDependencies() []ResourceReference

	// Descriptor returns the desired state handed to the Reconciler
	Descriptor() Descriptor
}

// BaseResource provides common functionality for all resources
type BaseResource struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`
	ResourceType      ResourceType `json:"-"`
}

// GetType implements Resource interface
func (b *BaseResource) GetType() ResourceType {
	return b.ResourceType
}

// GetName implements Resource interface
func (b *BaseResource) GetName() string {
	return b.ObjectMeta.Name
}

// GetDependencies provides a default implementation that returns no dependencies
func (b *BaseResource) GetDependencies() []ResourceReference {
	return []ResourceReference{}
}

// ReferenceOf returns the reference of a manifest resource
func ReferenceOf(r Resource) ResourceReference {
	return ResourceReference{Type: r.GetType(), Scope: r.GetScope(), Name: r.GetName()}
}

// ResourceManager binds one resource type to the document service
type ResourceManager interface {
	Lister
	Creator

	// Delete deletes a resource
	Delete(ctx context.Context, ref ResourceReference) error

	// GetResourceType returns the type of resources this manager handles
	GetResourceType() ResourceType
}
