package e2e

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"docprov/internal/cli"
	"docprov/internal/docdb"
)

// runCLI executes one docprov command against endpoint and returns its output
func runCLI(t *testing.T, endpoint string, args ...string) (string, error) {
	t.Helper()

	cmd := cli.NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--endpoint", endpoint, "--key", "e2e-key", "--log-level", "debug"}, args...))

	err := cmd.Execute()
	if testing.Verbose() {
		t.Logf("docprov %s\n%s%s", strings.Join(args, " "), out.String(), errOut.String())
	}
	return out.String(), err
}

func TestDocprovE2E(t *testing.T) {
	ctx := context.Background()
	backend := docdb.NewMemoryClient()
	server := httptest.NewServer(docdb.NewHandler(backend, "e2e-key"))
	defer server.Close()

	project, err := filepath.Abs("testdata/shop")
	if err != nil {
		t.Fatalf("failed to resolve project path: %v", err)
	}

	t.Log("Linting project...")
	if _, err := runCLI(t, server.URL, "lint", project); err != nil {
		t.Fatalf("docprov lint failed: %v", err)
	}

	t.Log("Planning apply...")
	out, err := runCLI(t, server.URL, "apply", "--dry-run", project)
	if err != nil {
		t.Fatalf("docprov apply --dry-run failed: %v", err)
	}
	if !strings.Contains(out, "+ collection shop/orders") {
		t.Fatalf("dry run did not plan orders: %q", out)
	}
	if n := backend.GetCallCount("CreateDatabase"); n != 0 {
		t.Fatalf("dry run created %d databases", n)
	}

	t.Log("Applying project...")
	out, err = runCLI(t, server.URL, "apply", project)
	if err != nil {
		t.Fatalf("docprov apply failed: %v", err)
	}
	if !strings.Contains(out, "3 created") {
		t.Fatalf("unexpected apply output: %q", out)
	}

	carts, err := backend.ReadCollection(ctx, "shop", "carts")
	if err != nil {
		t.Fatalf("carts was not created: %v", err)
	}
	if carts.DefaultTTL == nil || *carts.DefaultTTL != 86400 {
		t.Fatalf("unexpected carts ttl: %v", carts.DefaultTTL)
	}

	t.Log("Applying again is a no-op...")
	out, err = runCLI(t, server.URL, "apply", project)
	if err != nil {
		t.Fatalf("second docprov apply failed: %v", err)
	}
	if !strings.Contains(out, "0 created") || !strings.Contains(out, "3 unchanged") {
		t.Fatalf("second apply changed something: %q", out)
	}

	t.Log("Correcting drift...")
	ordersLink := docdb.CollectionLink("shop", "orders")
	if _, err := backend.ReplaceOffer(ctx, ordersLink, 400); err != nil {
		t.Fatalf("failed to drift offer: %v", err)
	}
	if _, err := backend.ReplaceCollection(ctx, "shop", docdb.CollectionSpec{
		ID:             "orders",
		IndexingPolicy: docdb.DefaultIndexingPolicy(),
	}); err != nil {
		t.Fatalf("failed to drift indexing policy: %v", err)
	}
	backend.ScriptReplaceConflicts(ordersLink, 0, 0)

	if _, err := runCLI(t, server.URL, "--retry-default-delay", "10ms", "throughput", project); err != nil {
		t.Fatalf("docprov throughput failed: %v", err)
	}
	offer, err := backend.ReadOffer(ctx, ordersLink)
	if err != nil {
		t.Fatalf("failed to read offer: %v", err)
	}
	if offer.Throughput != 800 {
		t.Fatalf("expected throughput 800, got %d", offer.Throughput)
	}

	if _, err := runCLI(t, server.URL, "indexing", project); err != nil {
		t.Fatalf("docprov indexing failed: %v", err)
	}
	out, err = runCLI(t, server.URL, "status", project)
	if err != nil {
		t.Fatalf("docprov status failed: %v", err)
	}
	if strings.Contains(out, "drifted") || !strings.Contains(out, "indexing=in-sync") {
		t.Fatalf("indexing still drifted: %q", out)
	}

	t.Log("Tearing down...")
	if _, err := runCLI(t, server.URL, "teardown", project); err != nil {
		t.Fatalf("docprov teardown failed: %v", err)
	}
	if _, err := backend.ReadDatabase(ctx, "shop"); err == nil {
		t.Fatalf("database still exists after teardown")
	}
}
