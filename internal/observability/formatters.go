// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/alexwday/report-designer/internal/precheck"
	"github.com/alexwday/report-designer/internal/schema"
	"github.com/alexwday/report-designer/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output for CLI commands
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len([]rune(line)) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRequirements outputs blocking errors, required run inputs and warnings
func (p *Printer) PrintRequirements(name string, req *precheck.Requirements) {
	if req == nil {
		return
	}

	var sb strings.Builder
	if name != "" {
		sb.WriteString(fmt.Sprintf("Template: %s\n\n", name))
	}

	if len(req.BlockingErrors) == 0 {
		sb.WriteString("Ready to run: no blocking errors\n")
	} else {
		sb.WriteString(fmt.Sprintf("Blocking errors (%d):\n", len(req.BlockingErrors)))
		count := min(len(req.BlockingErrors), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  ✗ %s\n", req.BlockingErrors[i].Error()))
		}
		if len(req.BlockingErrors) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(req.BlockingErrors)-maxItemsToShow))
		}
	}

	if len(req.Sections) > 0 {
		sb.WriteString("\nSections:\n")
		for _, sec := range req.Sections {
			mark := "✓"
			if !sec.Runnable {
				mark = "✗"
			}
			sb.WriteString(fmt.Sprintf("  %s %d. %s\n", mark, sec.Position, sec.Title))
			for _, issue := range sec.Issues {
				sb.WriteString(fmt.Sprintf("      %s\n", issue))
			}
		}
	}

	if len(req.RequiredInputs) > 0 {
		sb.WriteString("\nRun inputs:\n")
		for _, in := range req.RequiredInputs {
			sb.WriteString(fmt.Sprintf("  • %s", in.Name))
			if in.Type != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", in.Type))
			}
			if !in.Required {
				sb.WriteString(" [optional]")
			}
			if saved, ok := req.SavedRunInputs[in.Name]; ok {
				sb.WriteString(fmt.Sprintf(" = %v (saved)", saved))
			}
			sb.WriteString("\n")
			if len(in.Options) > 0 {
				sb.WriteString(fmt.Sprintf("      options: %s\n", strings.Join(in.Options, ", ")))
			}
			if in.AliasOf != "" {
				sb.WriteString(fmt.Sprintf("      defaults from: %s\n", in.AliasOf))
			}
		}
	}

	if len(req.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, w := range req.Warnings {
			sb.WriteString(fmt.Sprintf("  ! %s\n", w))
		}
	}

	p.printBox("RUN REQUIREMENTS", strings.TrimSuffix(sb.String(), "\n"))
}

var statusMarks = map[types.JobStatus]string{
	types.JobPending:    "·",
	types.JobInProgress: "…",
	types.JobCompleted:  "✓",
	types.JobFailed:     "✗",
}

// PrintJob outputs a job's status and each subsection record
func (p *Printer) PrintJob(job *types.JobView) {
	if job == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Job:      %s\n", job.ID))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("Period:   %s\n", job.Period))
	counts := job.Counts()
	sb.WriteString(fmt.Sprintf("Progress: %d/%d (%d completed, %d failed)\n\n",
		job.CurrentIndex, job.Total, counts[types.JobCompleted], counts[types.JobFailed]))

	for _, r := range job.Records {
		sb.WriteString(fmt.Sprintf("%s %s / %s", statusMarks[r.Status], r.SectionTitle, r.SubsectionTitle))
		if r.VersionNumber > 0 {
			sb.WriteString(fmt.Sprintf(" (v%d)", r.VersionNumber))
		}
		sb.WriteString("\n")
		if r.Error != "" {
			sb.WriteString(fmt.Sprintf("    %s\n", r.Error))
		}
	}

	p.printBox("GENERATION JOB", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSources outputs the data source catalog
func (p *Printer) PrintSources(sources []schema.DataSource) {
	if len(sources) == 0 {
		return
	}
	sorted := make([]schema.DataSource, len(sources))
	copy(sorted, sources)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var sb strings.Builder
	for i, src := range sorted {
		sb.WriteString(fmt.Sprintf("%s  %s\n", src.ID, src.Name))
		for _, m := range src.RetrievalMethods {
			sb.WriteString(fmt.Sprintf("  %s\n", m.ID))
			for _, param := range m.Parameters {
				mark := " "
				if param.Required {
					mark = "*"
				}
				sb.WriteString(fmt.Sprintf("   %s %s: %s\n", mark, param.Key, param.Type))
			}
		}
		if i < len(sorted)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("DATA SOURCES", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintVersion outputs a generated version
func (p *Printer) PrintVersion(title string, v *types.Version) {
	if v == nil {
		return
	}
	header := fmt.Sprintf("v%d  %s  %s\n\n", v.VersionNumber, v.ContentType, v.CreatedAt.Format("2006-01-02 15:04"))
	p.printBox(strings.ToUpper(title), header+v.Content)
}
