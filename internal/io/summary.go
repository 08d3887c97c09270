package io

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/williampepple1/eudract-scraper/pkg/models"
)

// RenderSummary prints a table of run counts followed by the skipped trials.
func RenderSummary(w io.Writer, results ...*models.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Start", "End", "Listed", "Cards", "Protocols", "Results", "Skipped", "Duration"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})

	var listed, cards, protocols, res, skipped int
	var failures []models.Failure
	for _, r := range results {
		t.AppendRow(table.Row{
			r.StartDate.Format(dateLayout),
			r.EndDate.Format(dateLayout),
			r.Listed,
			len(r.Cards),
			len(r.Protocols),
			len(r.Results),
			r.Skipped,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
		})
		listed += r.Listed
		cards += len(r.Cards)
		protocols += len(r.Protocols)
		res += len(r.Results)
		skipped += r.Skipped
		failures = append(failures, r.Failures...)
	}
	if len(results) > 1 {
		t.AppendFooter(table.Row{"Total", "", listed, cards, protocols, res, skipped, ""})
	}
	t.Render()

	if len(failures) == 0 {
		return
	}
	f := table.NewWriter()
	f.SetOutputMirror(w)
	f.SetStyle(table.StyleLight)
	f.AppendHeader(table.Row{"Skipped trial", "Stage", "Error"})
	for _, fail := range failures {
		f.AppendRow(table.Row{fail.EudraCTNumber, fail.Stage, text.Trim(fail.Err, 120)})
	}
	f.Render()
}
