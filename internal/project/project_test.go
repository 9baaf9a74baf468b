package project

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docprov/internal/labels"
	"docprov/internal/resource"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopProjectYAML = `name: shop
version: 1.2.0
description: Storefront data
`

const shopValuesYAML = `database: shop
throughput: 800
collections:
  - orders
  - carts
`

const shopDatabaseTemplate = `apiVersion: docprov/v1alpha1
kind: Database
metadata:
  name: {{ .Values.database }}
`

const shopCollectionsTemplate = `{{- range .Values.collections }}
---
apiVersion: docprov/v1alpha1
kind: Collection
metadata:
  name: {{ . }}
spec:
  database: {{ $.Values.database }}
  throughput: {{ $.Values.throughput }}
  partitionKey:
    - /{{ . | trimSuffix "s" }}Id
{{- end }}
`

// writeProject lays out a project directory and returns its path
func writeProject(t *testing.T, project, values string, templates map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	if project != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte(project), 0o644))
	}
	if values != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ValuesFile), []byte(values), 0o644))
	}

	require.NoError(t, os.MkdirAll(filepath.Join(dir, TemplatesDir), 0o755))
	for name, content := range templates {
		require.NoError(t, os.WriteFile(filepath.Join(dir, TemplatesDir, name), []byte(content), 0o644))
	}
	return dir
}

func writeShopProject(t *testing.T) string {
	return writeProject(t, shopProjectYAML, shopValuesYAML, map[string]string{
		"database.yaml":    shopDatabaseTemplate,
		"collections.yaml": shopCollectionsTemplate,
	})
}

func TestLoad(t *testing.T) {
	dir := writeShopProject(t)

	p, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "shop", p.Metadata.Name)
	assert.Equal(t, "1.2.0", p.Metadata.Version)
	assert.Equal(t, "Storefront data", p.Metadata.Description)
	assert.Equal(t, "shop", p.Values["database"])
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name        string
		project     string
		values      string
		errContains string
	}{
		{
			name:        "missing Project.yaml",
			errContains: "failed to read Project.yaml",
		},
		{
			name:        "project without name",
			project:     "version: 1.0.0\n",
			errContains: "name cannot be empty",
		},
		{
			name:        "invalid values",
			project:     shopProjectYAML,
			values:      "database: [shop\n",
			errContains: "failed to parse values.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeProject(t, tt.project, tt.values, nil)

			_, err := Load(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestLoad_WithoutValues(t *testing.T) {
	dir := writeProject(t, shopProjectYAML, "", nil)

	p, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, p.Values)
}

func TestParse(t *testing.T) {
	dir := writeShopProject(t)

	p, err := Parse(ParseOptions{ProjectPath: dir})
	require.NoError(t, err)

	resources := p.GetAllResources()
	require.Len(t, resources, 3)

	databases := p.Registry.GetResourcesByType(resource.ResourceTypeDatabase)
	require.Len(t, databases, 1)
	assert.Equal(t, "shop", databases[0].GetName())

	collections := p.Registry.GetResourcesByType(resource.ResourceTypeCollection)
	require.Len(t, collections, 2)
	for _, res := range collections {
		collection := res.(*resource.CollectionResource)
		assert.Equal(t, "shop", collection.Spec.Database)
		assert.Equal(t, 800, collection.Spec.Throughput)
		assert.Equal(t, resource.DatabaseScope("shop"), collection.GetScope())
	}

	orders, err := p.Registry.ResolveReference(resource.ResourceReference{
		Type:  resource.ResourceTypeCollection,
		Scope: resource.DatabaseScope("shop"),
		Name:  "orders",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/orderId"}, orders.(*resource.CollectionResource).Spec.PartitionKey)
}

func TestParse_AppliesStandardLabels(t *testing.T) {
	dir := writeShopProject(t)

	p, err := Parse(ParseOptions{ProjectPath: dir})
	require.NoError(t, err)

	for _, res := range p.GetAllResources() {
		meta := res.(interface{ GetLabels() map[string]string })
		assert.Equal(t, "shop", meta.GetLabels()[labels.LabelProject], res.GetName())
		assert.Equal(t, "1.2.0", meta.GetLabels()[labels.LabelVersion], res.GetName())
		assert.Equal(t, labels.ManagedByValue, meta.GetLabels()[labels.LabelManagedBy], res.GetName())
	}
}

func TestParse_ReservedLabelsOverrideDeclared(t *testing.T) {
	dir := writeProject(t, shopProjectYAML, "", map[string]string{
		"database.yaml": `apiVersion: docprov/v1alpha1
kind: Database
metadata:
  name: shop
  labels:
    team: checkout
    docprov.io/project: billing
`,
	})

	p, err := Parse(ParseOptions{ProjectPath: dir})
	require.NoError(t, err)

	resources := p.GetAllResources()
	require.Len(t, resources, 1)
	got := resources[0].(interface{ GetLabels() map[string]string }).GetLabels()
	assert.Equal(t, "checkout", got["team"])
	assert.Equal(t, "shop", got[labels.LabelProject])
}

func TestParse_RenderOutput(t *testing.T) {
	dir := writeShopProject(t)

	var out strings.Builder
	_, err := Parse(ParseOptions{ProjectPath: dir, RenderOutput: &out})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "# Source: ")
	assert.Contains(t, out.String(), "name: carts")
}

func TestParse_MissingDependency(t *testing.T) {
	dir := writeProject(t, shopProjectYAML, shopValuesYAML, map[string]string{
		"collections.yaml": shopCollectionsTemplate,
	})

	_, err := Parse(ParseOptions{ProjectPath: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency validation failed")
}

func TestRender_MissingValue(t *testing.T) {
	dir := writeProject(t, shopProjectYAML, "", map[string]string{
		"database.yaml": "name: {{ .Values.missing }}\n",
	})

	p, err := Load(dir)
	require.NoError(t, err)
	path := filepath.Join(dir, TemplatesDir, "database.yaml")

	rendered, err := p.Render(path)
	require.NoError(t, err)
	assert.Equal(t, "name: \n", string(rendered))

	p.Strict = true
	_, err = p.Render(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing value on rendered line(s) [1]")
}

func TestRender_ProjectContext(t *testing.T) {
	dir := writeProject(t, shopProjectYAML, "", map[string]string{
		"database.yaml": "name: {{ .Project.Name | upper }}-{{ .Project.Version }}\n",
	})

	p, err := Load(dir)
	require.NoError(t, err)

	rendered, err := p.Render(filepath.Join(dir, TemplatesDir, "database.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "name: SHOP-1.2.0\n", string(rendered))
}
