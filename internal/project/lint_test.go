package project

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLintProject(t *testing.T) {
	tests := []struct {
		name       string
		values     string
		templates  map[string]string
		wantIssues int
		contains   string
	}{
		{
			name:       "valid project",
			values:     shopValuesYAML,
			templates:  map[string]string{"database.yaml": shopDatabaseTemplate, "collections.yaml": shopCollectionsTemplate},
			wantIssues: 0,
		},
		{
			name:       "missing value",
			values:     "database: shop\n",
			templates:  map[string]string{"database.yaml": "kind: Database\nmetadata:\n  name: {{ .Values.name }}\n"},
			wantIssues: 1,
			contains:   "missing value on rendered line(s) [3]",
		},
		{
			name:   "guarded optional key",
			values: "database: shop\ncollections:\n  - name: orders\n  - name: carts\n    ttl: 60\n",
			templates: map[string]string{
				"database.yaml": shopDatabaseTemplate,
				"collections.yaml": `{{- range .Values.collections }}
---
apiVersion: docprov/v1alpha1
kind: Collection
metadata:
  name: {{ .name }}
spec:
  database: {{ $.Values.database }}
  {{- if .ttl }}
  defaultTtl: {{ .ttl }}
  {{- end }}
{{- end }}
`,
			},
			wantIssues: 0,
		},
		{
			name:   "defaulted optional key",
			values: "database: shop\n",
			templates: map[string]string{
				"database.yaml": "apiVersion: docprov/v1alpha1\nkind: Database\nmetadata:\n  name: {{ .Values.name | default .Values.database }}\n",
			},
			wantIssues: 0,
		},
		{
			name:   "invalid yaml after render",
			values: "database: shop\n",
			templates: map[string]string{
				"database.yaml": "kind: Database\nmetadata:\n  name: [{{ .Values.database }}\n",
			},
			wantIssues: 1,
		},
		{
			name:   "invalid manifest",
			values: "database: shop\n",
			templates: map[string]string{
				"database.yaml": "apiVersion: docprov/v1alpha1\nkind: Database\nmetadata:\n  name: {{ .Values.database }}\nspec:\n  throughput: -1\n",
			},
			wantIssues: 1,
		},
		{
			name:   "issues in several templates",
			values: "database: shop\n",
			templates: map[string]string{
				"a.yaml": "name: {{ .Values.a }}\n",
				"b.yaml": "name: {{ .Values.b }}\n",
			},
			wantIssues: 2,
		},
		{
			name:   "foreign project label",
			values: "database: shop\n",
			templates: map[string]string{
				"database.yaml": "apiVersion: docprov/v1alpha1\nkind: Database\nmetadata:\n  name: {{ .Values.database }}\n  labels:\n    docprov.io/project: billing\n    team: checkout\n",
			},
			wantIssues: 1,
			contains:   `database/shop: label docprov.io/project="billing" is reserved, expected "shop"`,
		},
		{
			name:       "missing database",
			values:     shopValuesYAML,
			templates:  map[string]string{"collections.yaml": shopCollectionsTemplate},
			wantIssues: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeProject(t, shopProjectYAML, tt.values, tt.templates)

			report, err := LintProject(dir)
			require.NoError(t, err)
			assert.Equal(t, "shop", report.Project)
			assert.Len(t, report.Issues, tt.wantIssues, "issues: %+v", report.Issues)
			assert.Equal(t, tt.wantIssues == 0, report.OK())

			if tt.contains != "" {
				require.NotEmpty(t, report.Issues)
				assert.Contains(t, report.Issues[0].Message, tt.contains)
			}
		})
	}
}

func TestLint_Output(t *testing.T) {
	valid := writeShopProject(t)

	var out strings.Builder
	err := Lint(LintOptions{ProjectPath: valid, Verbose: true, Out: &out})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "No issues found")
	assert.Contains(t, out.String(), "2 templates, 3 resources")

	broken := writeProject(t, shopProjectYAML, "", map[string]string{"a.yaml": "name: {{ .Values.a }}\n"})

	out.Reset()
	err = Lint(LintOptions{ProjectPath: broken, Out: &out})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 issue(s)")
	assert.Contains(t, out.String(), "a.yaml")
}

func TestLintProject_MissingProject(t *testing.T) {
	_, err := LintProject(t.TempDir())
	require.Error(t, err)
}
