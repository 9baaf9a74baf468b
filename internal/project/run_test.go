package project

import (
	"context"
	"strings"
	"testing"
	"time"

	"docprov/internal/config"
	"docprov/internal/docdb"
	"docprov/internal/resource"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryRunOptions(t *testing.T, client docdb.Client, out *strings.Builder) RunOptions {
	t.Helper()

	cfg := config.Default()
	cfg.Backend = docdb.BackendMemory
	cfg.Retry.DefaultDelay = time.Millisecond

	return RunOptions{
		ProjectPath: writeShopProject(t),
		Config:      cfg,
		Client:      client,
		Out:         out,
	}
}

func TestRun_Apply(t *testing.T) {
	ctx := context.Background()
	client := docdb.NewMemoryClient()
	var out strings.Builder
	opts := memoryRunOptions(t, client, &out)

	result, err := Run(ctx, OperationApply, opts)
	require.NoError(t, err)
	assert.Len(t, result.CreatedResources, 3)
	assert.Empty(t, result.Errors)
	assert.Contains(t, out.String(), "Applying project: shop")
	assert.Contains(t, out.String(), "shop/orders")

	collections, err := docdb.ListAllCollections(ctx, client, "shop", 0)
	require.NoError(t, err)
	assert.Len(t, collections, 2)

	// A second apply finds everything and creates nothing
	creates := client.GetCallCount("CreateCollection")
	result, err = Run(ctx, OperationApply, opts)
	require.NoError(t, err)
	assert.Empty(t, result.CreatedResources)
	assert.Len(t, result.SkippedResources, 3)
	assert.Equal(t, creates, client.GetCallCount("CreateCollection"))
}

func TestRun_ApplyDryRun(t *testing.T) {
	client := docdb.NewMemoryClient()
	var out strings.Builder
	opts := memoryRunOptions(t, client, &out)
	opts.DryRun = true

	result, err := Run(context.Background(), OperationApply, opts)
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Len(t, result.CreatedResources, 3)
	assert.Equal(t, 0, client.GetCallCount("CreateDatabase"))
	assert.Equal(t, 0, client.GetCallCount("CreateCollection"))
	assert.Contains(t, out.String(), "Resources to be created:")
	assert.Contains(t, out.String(), "Run without --dry-run to apply")
}

func TestRun_Verbose(t *testing.T) {
	var out strings.Builder
	opts := memoryRunOptions(t, docdb.NewMemoryClient(), &out)
	opts.Verbose = true
	opts.DryRun = true

	_, err := Run(context.Background(), OperationApply, opts)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "# Source: ")
}

func TestRun_VerbosePrintsMetrics(t *testing.T) {
	var out strings.Builder
	opts := memoryRunOptions(t, docdb.NewMemoryClient(), &out)
	opts.Verbose = true

	_, err := Run(context.Background(), OperationApply, opts)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Metrics:")
	assert.Contains(t, out.String(), `docprov_ensure_total{action="created",type="collection"}`)
}

func TestRun_Throughput(t *testing.T) {
	ctx := context.Background()
	client := docdb.NewMemoryClient()
	var out strings.Builder
	opts := memoryRunOptions(t, client, &out)

	_, err := Run(ctx, OperationApply, opts)
	require.NoError(t, err)

	// Drift one offer away from the manifest
	_, err = client.ReplaceOffer(ctx, docdb.CollectionLink("shop", "orders"), 400)
	require.NoError(t, err)

	out.Reset()
	result, err := Run(ctx, OperationThroughput, opts)
	require.NoError(t, err)
	require.Len(t, result.UpdatedResources, 1)
	assert.Equal(t, "orders", result.UpdatedResources[0].Name)
	assert.Contains(t, out.String(), "Throughput Results")

	offer, err := client.ReadOffer(ctx, docdb.CollectionLink("shop", "orders"))
	require.NoError(t, err)
	assert.Equal(t, 800, offer.Throughput)
}

func TestRun_ThroughputRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	client := docdb.NewMemoryClient()
	var out strings.Builder
	opts := memoryRunOptions(t, client, &out)

	_, err := Run(ctx, OperationApply, opts)
	require.NoError(t, err)

	link := docdb.CollectionLink("shop", "carts")
	_, err = client.ReplaceOffer(ctx, link, 400)
	require.NoError(t, err)
	client.ScriptReplaceConflicts(link, time.Millisecond, 0)

	result, err := Run(ctx, OperationThroughput, opts)
	require.NoError(t, err)
	require.Len(t, result.UpdatedResources, 1)

	offer, err := client.ReadOffer(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, 800, offer.Throughput)
}

func TestRun_Teardown(t *testing.T) {
	ctx := context.Background()
	client := docdb.NewMemoryClient()
	var out strings.Builder
	opts := memoryRunOptions(t, client, &out)

	_, err := Run(ctx, OperationApply, opts)
	require.NoError(t, err)

	result, err := Run(ctx, OperationTeardown, opts)
	require.NoError(t, err)
	assert.Len(t, result.DeletedResources, 3)

	databases, err := docdb.ListAllDatabases(ctx, client, 0)
	require.NoError(t, err)
	assert.Empty(t, databases)

	// Nothing left to delete is not an error
	result, err = Run(ctx, OperationTeardown, opts)
	require.NoError(t, err)
	assert.Empty(t, result.DeletedResources)
}

func TestRun_ServiceErrors(t *testing.T) {
	client := docdb.NewMemoryClient()
	client.SetOperationError("CreateCollection", docdb.NewBadRequest("CreateCollection", "rejected"))
	var out strings.Builder
	opts := memoryRunOptions(t, client, &out)

	result, err := Run(context.Background(), OperationApply, opts)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Errors)
	assert.Contains(t, out.String(), "Errors:")
	assert.Contains(t, out.String(), "rejected")
}

func TestRun_UnknownOperation(t *testing.T) {
	var out strings.Builder
	opts := memoryRunOptions(t, docdb.NewMemoryClient(), &out)

	_, err := Run(context.Background(), Operation("upgrade"), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation")
}

func TestRun_ParseError(t *testing.T) {
	var out strings.Builder
	opts := memoryRunOptions(t, docdb.NewMemoryClient(), &out)
	opts.ProjectPath = t.TempDir()

	_, err := Run(context.Background(), OperationApply, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse error")
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	client := docdb.NewMemoryClient()
	var out strings.Builder
	opts := memoryRunOptions(t, client, &out)

	report, err := Status(ctx, opts)
	require.NoError(t, err)
	require.Len(t, report.Resources, 3)
	for _, status := range report.Resources {
		assert.False(t, status.Exists, status.Name)
	}
	assert.Contains(t, out.String(), "missing")

	_, err = Run(ctx, OperationApply, opts)
	require.NoError(t, err)

	out.Reset()
	report, err = Status(ctx, opts)
	require.NoError(t, err)
	for _, status := range report.Resources {
		assert.True(t, status.Exists, status.Name)
		if status.Type == resource.ResourceTypeCollection {
			assert.True(t, status.HasOffer)
			assert.Equal(t, 800, status.Throughput)
		}
	}
	assert.Contains(t, out.String(), "throughput=800")
}
