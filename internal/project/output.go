package project

import (
	"fmt"
	"io"
	"time"

	"docprov/internal/logging"
	"docprov/internal/metrics"
	"docprov/internal/resource"

	"github.com/charmbracelet/lipgloss"
)

var (
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("70"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	boldStyle  = lipgloss.NewStyle().Bold(true)
)

var headers = map[Operation]string{
	OperationApply:      "🚀 Apply Results",
	OperationIndexing:   "🗂 Indexing Results",
	OperationThroughput: "📈 Throughput Results",
	OperationTeardown:   "🧹 Teardown Results",
}

// displayResult prints the actions and errors of one workflow run
func displayResult(out io.Writer, op Operation, result *resource.ReconciliationResult) {
	if result.DryRun {
		displayDryRunResult(out, result)
		return
	}

	fmt.Fprintln(out, boldStyle.Render(headers[op]+"\n"))

	displayActions(out, "Created:", result.CreatedResources)
	displayActions(out, "Adopted:", result.AdoptedResources)
	displayActions(out, "Updated:", result.UpdatedResources)
	displayActions(out, "Deleted:", result.DeletedResources)

	if len(result.SkippedResources) > 0 {
		fmt.Fprintln(out, boldStyle.Render("Unchanged:"))
		for _, action := range result.SkippedResources {
			fmt.Fprintf(out, "  %s %s %s\n", mutedStyle.Render("="), action.Type, displayName(action))
		}
		fmt.Fprintln(out)
	}

	displayErrors(out, result.Errors)

	changed := len(result.CreatedResources) + len(result.AdoptedResources) +
		len(result.UpdatedResources) + len(result.DeletedResources)
	elapsed := result.Duration.Round(time.Millisecond)

	if len(result.Errors) == 0 {
		fmt.Fprintln(out, doneStyle.Bold(true).Render(fmt.Sprintf("🎉 Done: %d resources changed in %v", changed, elapsed)))
	} else {
		fmt.Fprintln(out, warnStyle.Bold(true).Render(fmt.Sprintf("⚠ Completed with issues: %d changed, %d errors in %v",
			changed, len(result.Errors), elapsed)))
	}

	fmt.Fprintln(out, result.Summary)
}

func displayDryRunResult(out io.Writer, result *resource.ReconciliationResult) {
	fmt.Fprintln(out, boldStyle.Render("🧪 Dry Run: Showing planned changes...\n"))

	if len(result.CreatedResources) > 0 {
		fmt.Fprintln(out, boldStyle.Render("Resources to be created:"))
		for _, action := range result.CreatedResources {
			fmt.Fprintf(out, "  + %s %s\n", action.Type, displayName(action))
		}
		fmt.Fprintln(out)
	}

	if len(result.SkippedResources) > 0 {
		fmt.Fprintln(out, boldStyle.Render("Already present:"))
		for _, action := range result.SkippedResources {
			fmt.Fprintf(out, "  = %s %s\n", action.Type, displayName(action))
		}
		fmt.Fprintln(out)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintln(out, failStyle.Bold(true).Render("Potential issues:"))
		for _, err := range result.Errors {
			fmt.Fprintf(out, "  ! %s: %s\n", err.Resource.Name, err.Message)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, boldStyle.Render("Run without --dry-run to apply"))
}

func displayActions(out io.Writer, title string, actions []resource.ResourceAction) {
	if len(actions) == 0 {
		return
	}

	fmt.Fprintln(out, boldStyle.Render(title))
	for _, action := range actions {
		if action.Message == "" {
			fmt.Fprintf(out, "  %s %s %s\n", doneStyle.Render("✓"), action.Type, displayName(action))
		} else {
			fmt.Fprintf(out, "  %s %s %s - %s\n", doneStyle.Render("✓"), action.Type, displayName(action), action.Message)
		}
	}
	fmt.Fprintln(out)
}

func displayErrors(out io.Writer, errs []*resource.ReconciliationError) {
	if len(errs) == 0 {
		return
	}

	fmt.Fprintln(out, failStyle.Bold(true).Render("Errors:"))
	for _, err := range errs {
		mark := failStyle.Render("✗")
		if err.Recoverable {
			mark = warnStyle.Render("⚠")
		}
		if err.Cause != nil {
			fmt.Fprintf(out, "  %s %s: %s: %v\n", mark, err.Resource.Name, err.Message, err.Cause)
		} else {
			fmt.Fprintf(out, "  %s %s: %s\n", mark, err.Resource.Name, err.Message)
		}
	}
	fmt.Fprintln(out)
}

// displayMetrics prints the docprov counters accumulated by this process
func displayMetrics(out io.Writer) {
	samples, err := metrics.Snapshot()
	if err != nil {
		logging.Warn("Project", "Metrics unavailable: %v", err)
		return
	}
	if len(samples) == 0 {
		return
	}

	fmt.Fprintln(out, boldStyle.Render("\nMetrics:"))
	for _, sample := range samples {
		fmt.Fprintf(out, "  %s\n", mutedStyle.Render(sample.String()))
	}
}

// displayName qualifies collections with their database
func displayName(action resource.ResourceAction) string {
	if action.Scope == resource.RootScope {
		return action.Name
	}
	return action.Scope.DatabaseID() + "/" + action.Name
}

// displayStatus prints one line per declared resource
func displayStatus(out io.Writer, report *resource.StatusReport) {
	fmt.Fprintln(out, boldStyle.Render(fmt.Sprintf("📋 Status of project: %s\n", report.ProjectName)))

	for _, status := range report.Resources {
		name := status.Name
		if status.Scope != resource.RootScope {
			name = status.Scope.DatabaseID() + "/" + status.Name
		}

		if !status.Exists {
			fmt.Fprintf(out, "  %s %s %s %s\n", failStyle.Render("✗"), status.Type, name, mutedStyle.Render("missing"))
			continue
		}

		line := fmt.Sprintf("  %s %s %s", doneStyle.Render("✓"), status.Type, name)
		if status.HasOffer {
			line += fmt.Sprintf(" throughput=%d", status.Throughput)
		}
		if status.IndexingInSync != nil {
			if *status.IndexingInSync {
				line += " indexing=in-sync"
			} else {
				line += " " + warnStyle.Render("indexing=drifted")
			}
		}
		fmt.Fprintln(out, line)
	}

	displayErrors(out, report.Errors)
}
