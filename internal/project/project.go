package project

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"text/template"

	"docprov/internal/labels"
	"docprov/internal/resource"

	"github.com/Masterminds/sprig/v3"
	"github.com/goccy/go-yaml"
)

const (
	MetadataFile = "Project.yaml"
	ValuesFile   = "values.yaml"
	TemplatesDir = "templates"
)

// Project is a directory of manifest templates with their metadata and values
type Project struct {
	Path     string
	Metadata Metadata
	Values   map[string]interface{}
	Registry *resource.ManifestRegistry

	// Strict makes a missing value in the rendered output a render error
	// instead of rendering it empty
	Strict bool
}

// Metadata represents the Project.yaml file
type Metadata struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description,omitempty"`
}

// Load reads the metadata and values of the project at path
func Load(path string) (*Project, error) {
	p := &Project{
		Path:     path,
		Values:   map[string]interface{}{},
		Registry: resource.NewManifestRegistry(),
	}

	if err := p.loadMetadata(); err != nil {
		return nil, err
	}

	if err := p.loadValues(); err != nil {
		return nil, err
	}

	return p, nil
}

// loadMetadata loads the Project.yaml file
func (p *Project) loadMetadata() error {
	data, err := os.ReadFile(filepath.Join(p.Path, MetadataFile))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", MetadataFile, err)
	}

	if err := yaml.Unmarshal(data, &p.Metadata); err != nil {
		return fmt.Errorf("failed to parse %s: %w", MetadataFile, err)
	}

	if p.Metadata.Name == "" {
		return fmt.Errorf("%s: name cannot be empty", MetadataFile)
	}

	return nil
}

// loadValues loads values.yaml. A project without values renders with an empty map.
func (p *Project) loadValues() error {
	data, err := os.ReadFile(filepath.Join(p.Path, ValuesFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", ValuesFile, err)
	}

	if err := yaml.Unmarshal(data, &p.Values); err != nil {
		return fmt.Errorf("failed to parse %s: %w", ValuesFile, err)
	}
	if p.Values == nil {
		p.Values = map[string]interface{}{}
	}

	return nil
}

// templateContext is the data templates are executed with
func (p *Project) templateContext() map[string]interface{} {
	return map[string]interface{}{
		"Values": p.Values,
		"Project": map[string]interface{}{
			"Name":        p.Metadata.Name,
			"Version":     p.Metadata.Version,
			"Description": p.Metadata.Description,
		},
	}
}

// templateFiles lists the template files in lexical order
func (p *Project) templateFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(filepath.Join(p.Path, TemplatesDir), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml", ".tpl":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", TemplatesDir, err)
	}
	sort.Strings(files)
	return files, nil
}

// Render executes one template file
func (p *Project) Render(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}

	tmpl, err := template.New(filepath.Base(path)).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=default").
		Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p.templateContext()); err != nil {
		return nil, fmt.Errorf("failed to execute template %s: %w", path, err)
	}

	rendered := buf.Bytes()
	if p.Strict {
		if lines := missingValueLines(rendered); len(lines) > 0 {
			return nil, fmt.Errorf("template %s: missing value on rendered line(s) %v", path, lines)
		}
		return rendered, nil
	}
	return bytes.ReplaceAll(rendered, noValue, nil), nil
}

// noValue is what text/template prints for a missing map key
var noValue = []byte("<no value>")

// missingValueLines returns the 1-based lines of rendered that print a
// missing value. Keys that are only tested, as in {{ if .ttl }}, never print.
func missingValueLines(rendered []byte) []int {
	var lines []int
	for i, line := range bytes.Split(rendered, []byte("\n")) {
		if bytes.Contains(line, noValue) {
			lines = append(lines, i+1)
		}
	}
	return lines
}

// ParseTemplates renders every template and parses the result into the
// registry. Rendered manifests are echoed to out when it is not nil.
func (p *Project) ParseTemplates(out io.Writer) error {
	files, err := p.templateFiles()
	if err != nil {
		return err
	}

	parser := resource.NewManifestParser()
	for _, path := range files {
		rendered, err := p.Render(path)
		if err != nil {
			return err
		}

		if out != nil {
			fmt.Fprintf(out, "# Source: %s\n%s\n", path, rendered)
		}

		if err := parser.ParseManifest(rendered); err != nil {
			return fmt.Errorf("failed to parse rendered template %s: %w", path, err)
		}
	}

	p.Registry = parser.GetRegistry()
	p.applyLabels()

	if err := p.Registry.ValidateDependencies(); err != nil {
		return fmt.Errorf("dependency validation failed: %w", err)
	}

	return nil
}

// labelled is implemented by resources carrying metav1 labels
type labelled interface {
	GetLabels() map[string]string
	SetLabels(map[string]string)
}

// applyLabels stamps the reserved project labels on all resources
func (p *Project) applyLabels() {
	standard := labels.Standard(p.Metadata.Name, p.Metadata.Version)

	for _, res := range p.Registry.GetAllResources() {
		if meta, ok := res.(labelled); ok {
			meta.SetLabels(labels.Apply(meta.GetLabels(), standard))
		}
	}
}

// labelConflicts reports resources declaring reserved labels of another project
func (p *Project) labelConflicts(registry *resource.ManifestRegistry) []string {
	standard := labels.Standard(p.Metadata.Name, p.Metadata.Version)

	var issues []string
	for _, res := range registry.GetAllResources() {
		meta, ok := res.(labelled)
		if !ok {
			continue
		}
		for _, conflict := range labels.Conflicts(meta.GetLabels(), standard) {
			issues = append(issues, fmt.Sprintf("%s: %s", res.Descriptor().Reference(), conflict))
		}
	}
	return issues
}

// GetAllResources returns all resources in the registry
func (p *Project) GetAllResources() []resource.Resource {
	return p.Registry.GetAllResources()
}

// ParseOptions controls Parse
type ParseOptions struct {
	ProjectPath string

	// RenderOutput receives the rendered manifests when set
	RenderOutput io.Writer
}

// Parse loads a project and parses its templates
func Parse(opts ParseOptions) (*Project, error) {
	p, err := Load(opts.ProjectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	if err := p.ParseTemplates(opts.RenderOutput); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return p, nil
}
