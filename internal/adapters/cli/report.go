package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/devbush/vdraft/internal/adapters/cli/tui"
	"github.com/devbush/vdraft/internal/domain"
)

// renderReport writes the end-of-batch summary: totals, then one row per
// failed item in input order. Successful items are only listed when
// verbose is set.
func renderReport(w io.Writer, report *domain.BatchReport, verbose bool) {
	total := len(report.Results)
	var bytes int64
	var seconds float64
	cached := 0
	for _, r := range report.Results {
		bytes += r.Bytes()
		seconds += r.MediaSeconds()
		if r.Cached {
			cached++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run %s finished in %s\n", shortID(report.RunID), tui.FormatDuration(report.Elapsed))
	fmt.Fprintf(w, "  %d/%d succeeded, %d failed, %d from cache\n", report.Succeeded, total, report.Failed, cached)
	if bytes > 0 || seconds > 0 {
		fmt.Fprintf(w, "  %s downloaded, %.1f min of media\n", tui.FormatSize(bytes), seconds/60)
	}

	if verbose {
		rows := resultRows(report.Results, func(r domain.ItemResult) bool { return r.Success })
		if len(rows) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, renderTable(
				[]string{"#", "URL", "Title", "Files", "Time"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
			))
		}
	}

	failed := report.FailedResults()
	if len(failed) == 0 {
		return
	}
	sort.SliceStable(failed, func(i, j int) bool { return failed[i].Item.Index < failed[j].Item.Index })

	rows := make([][]string, 0, len(failed))
	for _, r := range failed {
		stage, kind, msg := "", "", ""
		if r.Error != nil {
			stage, kind, msg = string(r.Error.Stage), string(r.Error.Kind), r.Error.Message
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Item.Index + 1),
			tui.Truncate(r.Item.URL, 50),
			stage,
			kind,
			strconv.Itoa(totalAttempts(r)),
			tui.Truncate(msg, 60),
		})
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Failed:")
	fmt.Fprintln(w, renderTable(
		[]string{"#", "URL", "Stage", "Kind", "Attempts", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func resultRows(results []domain.ItemResult, keep func(domain.ItemResult) bool) [][]string {
	sorted := append([]domain.ItemResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Item.Index < sorted[j].Item.Index })

	var rows [][]string
	for _, r := range sorted {
		if !keep(r) {
			continue
		}
		title, files := "", 0
		if r.Artifacts != nil {
			title = r.Artifacts.Title
			files = len(r.Artifacts.OutputFiles)
		}
		if r.Cached {
			title = strings.TrimSpace(title + " (cached)")
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Item.Index + 1),
			tui.Truncate(r.Item.URL, 50),
			tui.Truncate(title, 40),
			strconv.Itoa(files),
			tui.FormatDuration(r.Elapsed),
		})
	}
	return rows
}

func totalAttempts(r domain.ItemResult) int {
	n := 0
	for _, a := range r.Attempts {
		n += a
	}
	return n
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
