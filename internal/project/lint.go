package project

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"docprov/internal/resource"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-yaml"
)

// LintOptions controls Lint
type LintOptions struct {
	ProjectPath string
	Verbose     bool
	Out         io.Writer
}

// LintIssue is one problem found in a template
type LintIssue struct {
	Template string `json:"template"`
	Message  string `json:"message"`
}

// LintReport is the result of LintProject
type LintReport struct {
	Project   string      `json:"project"`
	Templates int         `json:"templates"`
	Resources int         `json:"resources"`
	Issues    []LintIssue `json:"issues,omitempty"`
}

// OK reports whether no issue was found
func (r *LintReport) OK() bool {
	return len(r.Issues) == 0
}

// LintProject renders every template, checks that the output is valid YAML
// and valid manifests, and validates the dependencies between resources
// and the reserved labels they declare.
// A value that renders as missing is an error, a missing key that is only
// tested is not. Unlike Parse it keeps going after a broken
// template so every problem is reported.
func LintProject(projectPath string) (*LintReport, error) {
	p, err := Load(projectPath)
	if err != nil {
		return nil, err
	}
	p.Strict = true

	files, err := p.templateFiles()
	if err != nil {
		return nil, err
	}

	report := &LintReport{Project: p.Metadata.Name, Templates: len(files)}
	parser := resource.NewManifestParser()

	for _, path := range files {
		rendered, err := p.Render(path)
		if err != nil {
			report.Issues = append(report.Issues, LintIssue{Template: path, Message: err.Error()})
			continue
		}

		if err := checkYAML(rendered); err != nil {
			report.Issues = append(report.Issues, LintIssue{Template: path, Message: fmt.Sprintf("invalid YAML: %v", err)})
			continue
		}

		if err := parser.ParseManifest(rendered); err != nil {
			report.Issues = append(report.Issues, LintIssue{Template: path, Message: err.Error()})
		}
	}

	registry := parser.GetRegistry()
	report.Resources = len(registry.GetAllResources())

	for _, issue := range p.labelConflicts(registry) {
		report.Issues = append(report.Issues, LintIssue{Message: issue})
	}

	if err := registry.ValidateDependencies(); err != nil {
		report.Issues = append(report.Issues, LintIssue{Message: err.Error()})
	}

	return report, nil
}

// checkYAML decodes every document of a rendered template
func checkYAML(rendered []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(rendered))
	for {
		var doc interface{}
		if err := decoder.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// Lint runs LintProject and prints the report
func Lint(opts LintOptions) error {
	out := writerOrStdout(opts.Out)

	report, err := LintProject(opts.ProjectPath)
	if err != nil {
		fmt.Fprintln(out, failStyle.Render(fmt.Sprintf("✗ %v", err)))
		return err
	}

	displayLintReport(out, report, opts.Verbose)

	if !report.OK() {
		return fmt.Errorf("lint found %d issue(s)", len(report.Issues))
	}
	return nil
}

func displayLintReport(out io.Writer, report *LintReport, verbose bool) {
	fmt.Fprintln(out, lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("🔍 Linting project: %s", report.Project)))

	if verbose {
		fmt.Fprintf(out, "  %d templates, %d resources\n", report.Templates, report.Resources)
	}

	if report.OK() {
		fmt.Fprintln(out, doneStyle.Render("✓ No issues found"))
		return
	}

	for _, issue := range report.Issues {
		if issue.Template == "" {
			fmt.Fprintf(out, "  %s %s\n", failStyle.Render("✗"), issue.Message)
			continue
		}
		fmt.Fprintf(out, "  %s %s: %s\n", failStyle.Render("✗"), issue.Template, issue.Message)
	}
}
