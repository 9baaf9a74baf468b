package project

import (
	"context"
	"fmt"
	"io"
	"os"

	"docprov/internal/config"
	"docprov/internal/docdb"
	"docprov/internal/logging"
	"docprov/internal/resource"
)

// Operation selects the workflow Run executes
type Operation string

const (
	OperationApply      Operation = "apply"
	OperationIndexing   Operation = "indexing"
	OperationThroughput Operation = "throughput"
	OperationTeardown   Operation = "teardown"
)

// RunOptions controls Run and Status
type RunOptions struct {
	ProjectPath string
	DryRun      bool
	Config      config.Config

	// Verbose echoes the rendered manifests and prints the final metrics
	Verbose bool

	// Client replaces the client built from Config when set
	Client docdb.Client

	// Controller replaces the controller built from Config when set
	Controller resource.ReconciliationController

	Out io.Writer
}

func writerOrStdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

// controller returns the controller the workflow runs against
func (o RunOptions) controller() (resource.ReconciliationController, error) {
	if o.Controller != nil {
		return o.Controller, nil
	}

	client := o.Client
	if client == nil {
		var err error
		client, err = o.Config.NewClient()
		if err != nil {
			return nil, fmt.Errorf("failed to create document service client: %w", err)
		}
	}

	controller, err := o.Config.NewController(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciliation controller: %w", err)
	}
	return controller, nil
}

// parse loads the project, echoing rendered manifests in verbose mode
func (o RunOptions) parse() (*Project, error) {
	var render io.Writer
	if o.Verbose {
		render = writerOrStdout(o.Out)
	}

	p, err := Parse(ParseOptions{ProjectPath: o.ProjectPath, RenderOutput: render})
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return p, nil
}

// Run parses the project and executes one workflow against the document service
func Run(ctx context.Context, op Operation, opts RunOptions) (*resource.ReconciliationResult, error) {
	p, err := opts.parse()
	if err != nil {
		return nil, err
	}

	controller, err := opts.controller()
	if err != nil {
		return nil, err
	}

	out := writerOrStdout(opts.Out)
	manifests := p.GetAllResources()
	name := p.Metadata.Name

	logging.Info("Project", "Running %s for project %s with %d resources", op, name, len(manifests))

	var result *resource.ReconciliationResult
	switch op {
	case OperationApply:
		fmt.Fprintf(out, "Applying project: %s\n", name)
		result, err = controller.Apply(ctx, manifests, name, opts.DryRun)
	case OperationIndexing:
		fmt.Fprintf(out, "Updating indexing policies of project: %s\n", name)
		result, err = controller.ApplyIndexing(ctx, manifests, name)
	case OperationThroughput:
		fmt.Fprintf(out, "Updating throughput of project: %s\n", name)
		result, err = controller.ApplyThroughput(ctx, manifests, name)
	case OperationTeardown:
		fmt.Fprintf(out, "Tearing down project: %s\n", name)
		result, err = controller.Teardown(ctx, manifests, name)
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	displayResult(out, op, result)
	if opts.Verbose {
		displayMetrics(out)
	}

	for _, reconciliationError := range result.Errors {
		if !reconciliationError.Recoverable {
			return result, fmt.Errorf("%s failed with non-recoverable errors", op)
		}
	}
	if len(result.Errors) > 0 {
		return result, fmt.Errorf("%s completed with %d error(s)", op, len(result.Errors))
	}

	return result, nil
}

// Status parses the project and reports the observed state of its resources
func Status(ctx context.Context, opts RunOptions) (*resource.StatusReport, error) {
	p, err := opts.parse()
	if err != nil {
		return nil, err
	}

	controller, err := opts.controller()
	if err != nil {
		return nil, err
	}

	report, err := controller.Status(ctx, p.GetAllResources(), p.Metadata.Name)
	if err != nil {
		return nil, fmt.Errorf("status failed: %w", err)
	}

	displayStatus(writerOrStdout(opts.Out), report)

	if len(report.Errors) > 0 {
		return report, fmt.Errorf("status completed with %d error(s)", len(report.Errors))
	}
	return report, nil
}
