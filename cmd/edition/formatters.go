package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/pevans/edition/build"
	"github.com/pevans/edition/datespec"
	"github.com/pevans/edition/history"
)

// maxErrorWidth caps a run's error text in the history table, in terminal
// cells. Paths are never cut.
const maxErrorWidth = 48

// printTable aligns rows under headers by display width, so CJK text lines
// up with ASCII.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i := range row {
			if width := runewidth.StringWidth(row[i]); width > widths[i] {
				widths[i] = width
			}
		}
	}

	writeRow := func(cells []string) {
		var sb strings.Builder
		for i, cell := range cells {
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(cell)
			if i < len(cells)-1 {
				sb.WriteString(strings.Repeat(" ", widths[i]-runewidth.StringWidth(cell)))
			}
		}
		fmt.Fprintln(w, sb.String())
	}

	writeRow(headers)
	total := 0
	for _, width := range widths {
		total += width
	}
	fmt.Fprintln(w, strings.Repeat("-", total+2*(len(widths)-1)))
	for _, row := range rows {
		writeRow(row)
	}
}

// printReport prints the summary of one build.
func printReport(w io.Writer, report *build.Report) {
	edition := datespec.Slug(report.Date) + " " + datespec.FormatChinese(report.Date)
	if report.FellBack {
		edition += " (requested " + datespec.Slug(report.RequestedDate) + ")"
	}

	rows := [][]string{
		{"Edition", edition},
		{"Layout", report.Layout.Generation.String()},
		{"Outcome", report.Outcome},
		{"Sections", strconv.Itoa(report.Sections)},
		{"Articles", strconv.Itoa(report.Articles)},
		{"Skipped", strconv.Itoa(report.Stats.Skipped())},
		{"Duplicates", strconv.Itoa(report.Stats.Duplicates)},
		{"Duration", report.Stats.Duration.Round(100 * time.Millisecond).String()},
	}
	if report.OutputPath != "" {
		rows = append(rows, []string{"Output", report.OutputPath})
	}

	printTable(w, []string{"FIELD", "VALUE"}, rows)
}

// printReportJSON prints report in JSON format
func printReportJSON(report *build.Report) error {
	output := map[string]any{
		"run_id":         report.RunID,
		"edition_date":   datespec.Slug(report.Date),
		"requested_date": datespec.Slug(report.RequestedDate),
		"fell_back":      report.FellBack,
		"layout":         report.Layout.Generation.String(),
		"outcome":        report.Outcome,
		"sections":       report.Sections,
		"articles":       report.Articles,
		"skipped":        report.Stats.Skipped(),
		"duplicates":     report.Stats.Duplicates,
		"output_path":    report.OutputPath,
	}
	return printJSON(output)
}

// printRunsTable prints runs in human-readable table format
func printRunsTable(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		outcome := run.Outcome
		if run.FellBack {
			outcome += "*"
		}
		rows = append(rows, []string{
			run.RunID.String()[:8],
			datespec.Slug(run.EditionDate),
			run.Layout,
			outcome,
			strconv.Itoa(run.Articles),
			strconv.Itoa(run.Skipped),
			run.CreatedAt.Local().Format("2006-01-02 15:04"),
			detail(run),
		})
	}

	printTable(w, []string{"RUN", "EDITION", "LAYOUT", "OUTCOME", "ARTICLES", "SKIPPED", "CREATED", "DETAIL"}, rows)
}

// detail is the output path of a run, or its shortened error when there is
// none.
func detail(run history.Run) string {
	if run.OutputPath != "" {
		return run.OutputPath
	}
	return runewidth.Truncate(run.Error, maxErrorWidth, "...")
}

// printRunsJSON prints runs in JSON format
func printRunsJSON(runs []history.Run) error {
	return printJSON(map[string]any{
		"runs":  runs,
		"total": len(runs),
	})
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	fmt.Println(string(data))
	return nil
}
