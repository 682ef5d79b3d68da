package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"go.trai.ch/stanza/internal/app"
	"go.trai.ch/stanza/internal/core/domain"
)

const maxErrorWidth = 60

func renderRunReport(w io.Writer, report *app.RunReport, showOutput bool) {
	table := tablewriter.NewWriter(w)
	table.Header("Job", "State", "Attempts", "Cached", "Error")

	for _, job := range report.Jobs {
		cached := "no"
		if job.Cached {
			cached = "yes"
		}
		var errText string
		if job.Err != nil {
			errText = truncate(job.Err.Error(), maxErrorWidth)
		}
		_ = table.Append(job.Name, stateText(job.State), strconv.Itoa(job.Attempts), cached, errText)
	}
	_ = table.Render()

	_, _ = fmt.Fprintf(w, "%d jobs, %d cached, %d failed\n", len(report.Jobs), report.Cached(), report.Failed())

	if !showOutput {
		return
	}
	for _, job := range report.Jobs {
		if job.State != domain.StateCompleted {
			continue
		}
		_, _ = fmt.Fprintln(w, color.New(color.Bold).Sprintf("==> %s", job.Name))
		_, _ = io.WriteString(w, job.Result.Stdout)
		if job.Result.Stdout != "" && !strings.HasSuffix(job.Result.Stdout, "\n") {
			_, _ = io.WriteString(w, "\n")
		}
	}
}

func stateText(state domain.TaskState) string {
	switch state {
	case domain.StateCompleted:
		return color.GreenString(string(state))
	case domain.StateFailed:
		return color.RedString(string(state))
	case domain.StateCancelled:
		return color.YellowString(string(state))
	default:
		return string(state)
	}
}

func renderCacheStats(w io.Writer, stats domain.CacheStats) {
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")
	_ = table.Append("entries", strconv.FormatInt(stats.Entries, 10))
	_ = table.Append("expired", strconv.FormatInt(stats.Expired, 10))
	_ = table.Append("payload bytes", strconv.FormatInt(stats.PayloadBytes, 10))
	_ = table.Append("oldest", formatTime(stats.Oldest))
	_ = table.Append("newest", formatTime(stats.Newest))
	_ = table.Render()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
