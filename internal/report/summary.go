package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minghe/poetry-annotator/internal/store"
)

// RunSummary represents the outcome of an annotation run
type RunSummary struct {
	GeneratedAt time.Time
	RunID       string
	Duration    time.Duration

	Dataset      string
	EventLogPath string

	Models []ModelSummary
}

// ModelSummary is one model's slice of a run
type ModelSummary struct {
	Model     string
	Pending   int
	Completed int
	Failed    int
	Skipped   int
	TopErrors []ErrorSummary
}

// ErrorSummary represents an error message with its count
type ErrorSummary struct {
	Error string
	Count int
}

// GatherTopErrors counts failure messages for a model from the
// annotation store, most frequent first
func GatherTopErrors(annotations *store.Store, model string, limit int) ([]ErrorSummary, error) {
	failed, err := annotations.ListAnnotations(model, store.StatusFailed)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, a := range failed {
		if a.ErrorMessage != "" {
			counts[a.ErrorMessage]++
		}
	}

	summaries := make([]ErrorSummary, 0, len(counts))
	for msg, count := range counts {
		summaries = append(summaries, ErrorSummary{Error: msg, Count: count})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Count > summaries[j].Count
	})
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// WriteMarkdownReport writes the run summary as Markdown
func WriteMarkdownReport(summary *RunSummary, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# Poetry Annotation - Run Summary\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", summary.GeneratedAt.Format("2006-01-02 15:04:05")))
	if summary.RunID != "" {
		md.WriteString(fmt.Sprintf("**Run ID:** `%s`\n\n", summary.RunID))
	}
	if summary.Dataset != "" {
		md.WriteString(fmt.Sprintf("**Dataset:** `%s`\n\n", summary.Dataset))
	}
	if summary.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", summary.EventLogPath))
	}
	if summary.Duration > 0 {
		md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", summary.Duration.Round(time.Second)))
	}

	md.WriteString("---\n\n")

	for _, m := range summary.Models {
		md.WriteString(fmt.Sprintf("## Model `%s`\n\n", m.Model))
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Pending at start | %d |\n", m.Pending))
		md.WriteString(fmt.Sprintf("| Completed | %d |\n", m.Completed))
		if m.Failed > 0 {
			md.WriteString(fmt.Sprintf("| Failed | %d |\n", m.Failed))
		}
		if m.Skipped > 0 {
			md.WriteString(fmt.Sprintf("| Skipped | %d |\n", m.Skipped))
		}
		md.WriteString("\n")

		if len(m.TopErrors) > 0 {
			md.WriteString("### Top Errors\n\n")
			md.WriteString("| Count | Error |\n")
			md.WriteString("|-------|-------|\n")
			for _, e := range m.TopErrors {
				md.WriteString(fmt.Sprintf("| %d | %s |\n", e.Count, truncate(e.Error, 120)))
			}
			md.WriteString("\n")
		}
	}

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
