package resource

import (
	"context"
	"testing"
	"time"

	"docprov/internal/docdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseManager(t *testing.T) {
	ctx := context.Background()
	client := docdb.NewMemoryClient()
	manager := NewDatabaseManager(client, 0)

	assert.Equal(t, ResourceTypeDatabase, manager.GetResourceType())

	handle, err := manager.Create(ctx, RootScope, Descriptor{
		Type:   ResourceTypeDatabase,
		ID:     "shop",
		Config: docdb.DatabaseSpec{Throughput: 1000},
	})
	require.NoError(t, err)
	assert.Equal(t, "dbs/shop", handle.SelfLink)
	assert.NotEmpty(t, handle.RID)

	offer, err := client.ReadOffer(ctx, "dbs/shop")
	require.NoError(t, err)
	assert.Equal(t, 1000, offer.Throughput)

	handles, err := manager.List(ctx, RootScope)
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, "shop", handles[0].ID)

	_, err = manager.List(ctx, DatabaseScope("shop"))
	assert.Error(t, err)

	_, err = manager.Create(ctx, RootScope, Descriptor{Type: ResourceTypeDatabase, ID: "shop"})
	assert.True(t, IsConflict(err))

	_, err = manager.Create(ctx, RootScope, Descriptor{Type: ResourceTypeDatabase, ID: "x", Config: "wrong"})
	assert.Error(t, err)

	require.NoError(t, manager.Delete(ctx, ResourceReference{Type: ResourceTypeDatabase, Name: "shop"}))
	err = manager.Delete(ctx, ResourceReference{Type: ResourceTypeDatabase, Name: "shop"})
	assert.True(t, IsNotFound(err))
}

func TestCollectionManager_CreateAndList(t *testing.T) {
	ctx := context.Background()
	client := docdb.NewMemoryClient()
	_, err := client.CreateDatabase(ctx, docdb.DatabaseSpec{ID: "shop"})
	require.NoError(t, err)

	manager := NewCollectionManager(client, 0, nil)
	ttl := -1
	handle, err := manager.Create(ctx, DatabaseScope("shop"), Descriptor{
		Type:  ResourceTypeCollection,
		Scope: DatabaseScope("shop"),
		ID:    "orders",
		Config: docdb.CollectionSpec{
			PartitionKey: &docdb.PartitionKey{Paths: []string{"/customerId"}},
			DefaultTTL:   &ttl,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "dbs/shop/colls/orders", handle.SelfLink)

	handles, err := manager.List(ctx, DatabaseScope("shop"))
	require.NoError(t, err)
	require.Len(t, handles, 1)
	info, ok := handles[0].Metadata.(*docdb.CollectionInfo)
	require.True(t, ok)
	assert.Equal(t, []string{"/customerId"}, info.PartitionKey.Paths)
	assert.Equal(t, -1, *info.DefaultTTL)

	_, err = manager.List(ctx, RootScope)
	assert.Error(t, err)

	_, err = manager.List(ctx, DatabaseScope("missing"))
	assert.True(t, IsNotFound(err))
}

func TestCollectionManager_ReplaceIndexingPolicy_RetriesConflicts(t *testing.T) {
	ctx := context.Background()
	client := docdb.NewMemoryClient()
	_, err := client.CreateDatabase(ctx, docdb.DatabaseSpec{ID: "shop"})
	require.NoError(t, err)
	ttl := 60
	_, err = client.CreateCollection(ctx, "shop", docdb.CollectionSpec{
		ID:           "orders",
		PartitionKey: &docdb.PartitionKey{Paths: []string{"/customerId"}},
		DefaultTTL:   &ttl,
	})
	require.NoError(t, err)

	client.ScriptReplaceConflicts("dbs/shop/colls/orders", 50*time.Millisecond, 0)

	sleeper := &recordingSleeper{}
	mutator := newTestMutator(t, DefaultRetryPolicy(), WithSleeper(sleeper))
	manager := NewCollectionManager(client, 0, mutator)

	desired := &docdb.IndexingPolicy{
		Mode:          docdb.IndexingModeLazy,
		ExcludedPaths: []docdb.ExcludedPath{{Path: "/payload/*"}},
	}
	updated, err := manager.ReplaceIndexingPolicy(ctx, "shop", "orders", desired)
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{50 * time.Millisecond, 15 * time.Second}, sleeper.waits)
	assert.Equal(t, 3, client.GetCallCount("ReplaceCollection"))
	assert.True(t, docdb.IndexingPolicyEqual(desired, updated.IndexingPolicy))
	assert.Equal(t, []string{"/customerId"}, updated.PartitionKey.Paths)
	require.NotNil(t, updated.DefaultTTL)
	assert.Equal(t, 60, *updated.DefaultTTL)
}

func TestCollectionManager_ReplaceIndexingPolicy_FatalStopsAtOnce(t *testing.T) {
	ctx := context.Background()
	client := docdb.NewMemoryClient()
	_, err := client.CreateDatabase(ctx, docdb.DatabaseSpec{ID: "shop"})
	require.NoError(t, err)
	_, err = client.CreateCollection(ctx, "shop", docdb.CollectionSpec{ID: "orders"})
	require.NoError(t, err)

	badRequest := docdb.NewBadRequest("ReplaceCollection", "invalid policy")
	client.SetOperationError("ReplaceCollection", badRequest)

	sleeper := &recordingSleeper{}
	manager := NewCollectionManager(client, 0, newTestMutator(t, DefaultRetryPolicy(), WithSleeper(sleeper)))

	_, err = manager.ReplaceIndexingPolicy(ctx, "shop", "orders", docdb.DefaultIndexingPolicy())
	assert.ErrorIs(t, err, badRequest)
	assert.Equal(t, 1, client.GetCallCount("ReplaceCollection"))
	assert.Empty(t, sleeper.waits)
}

func TestCollectionManager_ReplaceIndexingPolicy_RequiresMutator(t *testing.T) {
	manager := NewCollectionManager(docdb.NewMemoryClient(), 0, nil)
	_, err := manager.ReplaceIndexingPolicy(context.Background(), "shop", "orders", nil)
	assert.Error(t, err)
}

func TestOfferManager(t *testing.T) {
	ctx := context.Background()
	client := docdb.NewMemoryClient()
	_, err := client.CreateDatabase(ctx, docdb.DatabaseSpec{ID: "shop"})
	require.NoError(t, err)
	_, err = client.CreateCollection(ctx, "shop", docdb.CollectionSpec{ID: "orders"})
	require.NoError(t, err)

	sleeper := &recordingSleeper{}
	manager := NewOfferManager(client, newTestMutator(t, DefaultRetryPolicy(), WithSleeper(sleeper)))

	throughput, hasOffer, err := manager.Throughput(ctx, "dbs/shop/colls/orders")
	require.NoError(t, err)
	assert.True(t, hasOffer)
	assert.Equal(t, docdb.DefaultCollectionThroughput, throughput)

	_, hasOffer, err = manager.Throughput(ctx, "dbs/shop")
	require.NoError(t, err)
	assert.False(t, hasOffer)

	client.ScriptReplaceConflicts("dbs/shop/colls/orders", 0)
	offer, err := manager.SetThroughput(ctx, "dbs/shop/colls/orders", 1200)
	require.NoError(t, err)
	assert.Equal(t, 1200, offer.Throughput)
	assert.Equal(t, []time.Duration{DefaultConflictDelay}, sleeper.waits)

	_, err = manager.SetThroughput(ctx, "dbs/shop/colls/orders", 0)
	assert.Error(t, err)
}
