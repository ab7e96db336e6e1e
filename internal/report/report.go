package report

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/bookdepot/coverdl/internal/pipeline"
)

// Render formats a finished run as a terminal report: a counter table,
// followed by itemized errors and, with an allow-list, any identifiers
// missing from the table.
func Render(stats pipeline.Stats, errs []pipeline.ErrorRecord, missing []string) string {
	var b strings.Builder

	b.WriteString(statsTable(stats))
	b.WriteString("\n")

	if len(errs) > 0 {
		b.WriteString(fmt.Sprintf("\nErrors (%d):\n", len(errs)))
		for _, rec := range errs {
			b.WriteString(fmt.Sprintf("  %s: %s\n", rec.Identifier, rec.Message))
		}
	}

	if len(missing) > 0 {
		b.WriteString(fmt.Sprintf("\nNot found in table (%d):\n", len(missing)))
		for _, id := range missing {
			b.WriteString("  " + id + "\n")
		}
	}

	return b.String()
}

func statsTable(stats pipeline.Stats) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	tw.AppendHeader(table.Row{"Outcome", "Count"})
	for _, row := range []struct {
		label string
		count int
	}{
		{"Downloaded", stats.Succeeded},
		{"Failed", stats.Failed},
		{"Empty rows", stats.SkippedEmpty},
		{"Already in bundle", stats.SkippedExisting},
		{"Filtered out", stats.FilteredOut},
		{"PDF links skipped", stats.UnsupportedFormat},
		{"WebP converted", stats.Converted},
		{"White background added", stats.TransparencyFixed},
	} {
		tw.AppendRow(table.Row{row.label, row.count})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}
