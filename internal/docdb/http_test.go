package docdb

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// newTestServer serves a MemoryClient through Handler and returns a client for it
func newTestServer(t *testing.T, key string) (*MemoryClient, *HTTPClient) {
	t.Helper()

	backend := NewMemoryClient()
	server := httptest.NewServer(NewHandler(backend, key))
	t.Cleanup(server.Close)

	client := NewHTTPClient(HTTPConfig{Endpoint: server.URL, Key: key, Timeout: 5 * time.Second})
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { client.Close() })

	return backend, client
}

func TestHTTPClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, client := newTestServer(t, "")

	db, err := client.CreateDatabase(ctx, DatabaseSpec{ID: "shop", Throughput: 1000})
	require.NoError(t, err)
	assert.Equal(t, "dbs/shop", db.SelfLink)

	offer, err := backend.ReadOffer(ctx, "dbs/shop")
	require.NoError(t, err)
	assert.Equal(t, 1000, offer.Throughput, "throughput travels in a header")

	ttl := -1
	coll, err := client.CreateCollection(ctx, "shop", CollectionSpec{
		ID:           "orders",
		Throughput:   800,
		PartitionKey: &PartitionKey{Paths: []string{"/customerId"}},
		DefaultTTL:   &ttl,
	})
	require.NoError(t, err)
	assert.Equal(t, "dbs/shop/colls/orders", coll.SelfLink)

	read, err := client.ReadCollection(ctx, "shop", "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"/customerId"}, read.PartitionKey.Paths)
	require.NotNil(t, read.DefaultTTL)
	assert.Equal(t, -1, *read.DefaultTTL)

	offer, err = client.ReadOffer(ctx, coll.SelfLink)
	require.NoError(t, err)
	assert.Equal(t, 800, offer.Throughput)

	offer, err = client.ReplaceOffer(ctx, coll.SelfLink, 1200)
	require.NoError(t, err)
	assert.Equal(t, 1200, offer.Throughput)

	policy := &IndexingPolicy{Mode: IndexingModeConsistent, ExcludedPaths: []ExcludedPath{{Path: "/blob/*"}}}
	replaced, err := client.ReplaceCollection(ctx, "shop", CollectionSpec{ID: "orders", IndexingPolicy: policy, PartitionKey: read.PartitionKey})
	require.NoError(t, err)
	assert.True(t, IndexingPolicyEqual(policy, replaced.IndexingPolicy))

	require.NoError(t, client.DeleteCollection(ctx, "shop", "orders"))
	require.NoError(t, client.DeleteDatabase(ctx, "shop"))

	_, err = client.ReadDatabase(ctx, "shop")
	assert.True(t, apierrors.IsNotFound(err))
}

func TestHTTPClient_Paging(t *testing.T) {
	ctx := context.Background()
	backend, client := newTestServer(t, "")

	_, err := backend.CreateDatabase(ctx, DatabaseSpec{ID: "shop"})
	require.NoError(t, err)
	for i := 0; i < 25; i++ {
		_, err := backend.CreateCollection(ctx, "shop", CollectionSpec{ID: fmt.Sprintf("c-%02d", i)})
		require.NoError(t, err)
	}

	page, err := client.ListCollections(ctx, "shop", ListOptions{PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, page.Items, 10)
	assert.NotEmpty(t, page.Continuation)

	all, err := ListAllCollections(ctx, client, "shop", 10)
	require.NoError(t, err)
	assert.Len(t, all, 25)
	assert.Equal(t, "c-24", all[24].ID)
}

func TestHTTPClient_ErrorClassification(t *testing.T) {
	ctx := context.Background()
	backend, client := newTestServer(t, "")

	_, err := client.ReadDatabase(ctx, "missing")
	require.Error(t, err)
	assert.True(t, apierrors.IsNotFound(err))

	_, err = client.CreateDatabase(ctx, DatabaseSpec{ID: "shop"})
	require.NoError(t, err)
	_, err = client.CreateDatabase(ctx, DatabaseSpec{ID: "shop"})
	assert.True(t, apierrors.IsAlreadyExists(err))
	assert.True(t, apierrors.IsConflict(err) || apierrors.IsAlreadyExists(err))

	backend.SetOperationError("ListDatabases", NewThrottled("ListDatabases", 0))
	_, err = client.ListDatabases(ctx, ListOptions{})
	assert.True(t, apierrors.IsTooManyRequests(err))

	backend.SetOperationError("ListDatabases", NewUnavailable("ListDatabases", "down"))
	_, err = client.ListDatabases(ctx, ListOptions{})
	assert.True(t, apierrors.IsServiceUnavailable(err))

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "ListDatabases", svcErr.Op)
	assert.Equal(t, http.StatusServiceUnavailable, svcErr.StatusCode)
	assert.Equal(t, "down", svcErr.Message)
}

func TestHTTPClient_RetryAfterHeader(t *testing.T) {
	ctx := context.Background()
	backend, client := newTestServer(t, "")

	_, err := backend.CreateDatabase(ctx, DatabaseSpec{ID: "shop"})
	require.NoError(t, err)
	_, err = backend.CreateCollection(ctx, "shop", CollectionSpec{ID: "orders"})
	require.NoError(t, err)
	backend.ScriptReplaceConflicts(CollectionLink("shop", "orders"), 1500*time.Millisecond)

	_, err = client.ReplaceCollection(ctx, "shop", CollectionSpec{ID: "orders"})
	require.Error(t, err)
	assert.True(t, apierrors.IsConflict(err))

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, 1500*time.Millisecond, svcErr.RetryAfter)

	seconds, ok := apierrors.SuggestsClientDelay(err)
	assert.True(t, ok)
	assert.Equal(t, 2, seconds)
}

func TestHTTPClient_Authorization(t *testing.T) {
	ctx := context.Background()
	_, client := newTestServer(t, "master-key")

	_, err := client.ListDatabases(ctx, ListOptions{})
	require.NoError(t, err)

	client.config.Key = "wrong"
	_, err = client.ListDatabases(ctx, ListOptions{})
	require.Error(t, err)
	assert.True(t, apierrors.IsUnauthorized(err))
}

func TestHTTPClient_Documents(t *testing.T) {
	ctx := context.Background()
	backend, client := newTestServer(t, "")
	_, err := backend.CreateDatabase(ctx, DatabaseSpec{ID: "blog"})
	require.NoError(t, err)
	_, err = backend.CreateCollection(ctx, "blog", CollectionSpec{ID: "posts"})
	require.NoError(t, err)
	link := CollectionLink("blog", "posts")

	_, err = client.CreateDocument(ctx, link, Document{ID: "hello", Body: map[string]any{"title": "Hello"}})
	require.NoError(t, err)

	doc, err := client.ReadDocument(ctx, link, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello", doc.Body["title"])

	_, err = client.ReplaceDocument(ctx, link, Document{ID: "hello", Body: map[string]any{"title": "Hi"}})
	require.NoError(t, err)

	page, err := client.ListDocuments(ctx, link, ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Hi", page.Items[0].Body["title"])

	require.NoError(t, client.DeleteDocument(ctx, link, "hello"))
	_, err = client.ReadDocument(ctx, link, "hello")
	assert.True(t, apierrors.IsNotFound(err))
}

func TestHTTPClient_Connect(t *testing.T) {
	client := NewHTTPClient(HTTPConfig{Endpoint: "ftp://example.com"})
	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme must be http or https")
}

func TestHandler_MalformedBody(t *testing.T) {
	server := httptest.NewServer(NewHandler(NewMemoryClient(), ""))
	defer server.Close()

	resp, err := http.Post(server.URL+"/dbs", "application/json", http.NoBody)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
