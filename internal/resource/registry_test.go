package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDatabase(name string) *DatabaseResource {
	db := NewDatabaseResource()
	db.ObjectMeta.Name = name
	return db
}

func newCollection(database, name string) *CollectionResource {
	coll := NewCollectionResource()
	coll.ObjectMeta.Name = name
	coll.Spec.Database = database
	return coll
}

// linkedResource lets tests declare arbitrary dependency edges
type linkedResource struct {
	BaseResource
	deps []ResourceReference
}

func newLinkedResource(name string, deps ...string) *linkedResource {
	r := &linkedResource{BaseResource: BaseResource{ResourceType: ResourceTypeDatabase}}
	r.ObjectMeta.Name = name
	for _, dep := range deps {
		r.deps = append(r.deps, ResourceReference{Type: ResourceTypeDatabase, Name: dep})
	}
	return r
}

func (r *linkedResource) GetScope() Scope                      { return RootScope }
func (r *linkedResource) GetDependencies() []ResourceReference { return r.deps }
func (r *linkedResource) Descriptor() Descriptor {
	return Descriptor{Type: r.ResourceType, Scope: RootScope, ID: r.GetName()}
}

func TestManifestRegistry_DependencyResolution(t *testing.T) {
	registry := NewManifestRegistry()

	require.NoError(t, registry.AddResource(newCollection("shop", "orders")))
	require.NoError(t, registry.AddResource(newDatabase("shop")))
	require.NoError(t, registry.AddResource(newCollection("shop", "carts")))
	require.NoError(t, registry.AddResource(newDatabase("audit")))

	require.NoError(t, registry.ValidateDependencies())

	creationOrder, err := registry.GetCreationOrder()
	require.NoError(t, err)
	require.Len(t, creationOrder, 2)

	level0 := creationOrder[0]
	require.Len(t, level0, 2)
	assert.Equal(t, "audit", level0[0].GetName())
	assert.Equal(t, "shop", level0[1].GetName())

	level1 := creationOrder[1]
	require.Len(t, level1, 2)
	assert.Equal(t, "carts", level1[0].GetName())
	assert.Equal(t, "orders", level1[1].GetName())

	deletionOrder, err := registry.GetDeletionOrder()
	require.NoError(t, err)
	require.Len(t, deletionOrder, 2)
	assert.Equal(t, ResourceTypeCollection, deletionOrder[0][0].GetType())
	assert.Equal(t, ResourceTypeDatabase, deletionOrder[1][0].GetType())
}

func TestManifestRegistry_SameNameInDifferentScopes(t *testing.T) {
	registry := NewManifestRegistry()

	require.NoError(t, registry.AddResource(newDatabase("shop")))
	require.NoError(t, registry.AddResource(newDatabase("audit")))
	require.NoError(t, registry.AddResource(newCollection("shop", "events")))
	require.NoError(t, registry.AddResource(newCollection("audit", "events")))

	assert.Len(t, registry.GetResourcesByType(ResourceTypeCollection), 2)

	resource, ok := registry.GetResource(ResourceReference{Type: ResourceTypeCollection, Scope: DatabaseScope("audit"), Name: "events"})
	require.True(t, ok)
	assert.Equal(t, "audit", resource.(*CollectionResource).Spec.Database)
}

func TestManifestRegistry_DuplicateResource(t *testing.T) {
	registry := NewManifestRegistry()

	require.NoError(t, registry.AddResource(newDatabase("shop")))
	err := registry.AddResource(newDatabase("shop"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

func TestManifestRegistry_EmptyName(t *testing.T) {
	registry := NewManifestRegistry()
	assert.Error(t, registry.AddResource(newDatabase("")))
}

func TestManifestRegistry_CircularDependency(t *testing.T) {
	registry := NewManifestRegistry()

	require.NoError(t, registry.AddResource(newLinkedResource("a", "b")))
	require.NoError(t, registry.AddResource(newLinkedResource("b", "c")))
	require.NoError(t, registry.AddResource(newLinkedResource("c", "a")))

	err := registry.ValidateDependencies()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular dependency")

	_, err = registry.GetCreationOrder()
	assert.Error(t, err)
}

func TestManifestRegistry_MissingDependency(t *testing.T) {
	registry := NewManifestRegistry()

	require.NoError(t, registry.AddResource(newCollection("missing-db", "orders")))

	err := registry.ValidateDependencies()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database/missing-db")
}

func TestManifestRegistry_ResolveReference(t *testing.T) {
	registry := NewManifestRegistry()
	require.NoError(t, registry.AddResource(newDatabase("shop")))

	resource, err := registry.ResolveReference(ResourceReference{Type: ResourceTypeDatabase, Name: "shop"})
	require.NoError(t, err)
	assert.Equal(t, "shop", resource.GetName())

	_, err = registry.ResolveReference(ResourceReference{Type: ResourceTypeCollection, Scope: DatabaseScope("shop"), Name: "shop"})
	assert.Error(t, err)
}
