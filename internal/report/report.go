// Package report renders batch summaries and the stored history as
// terminal tables.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nhle/mailreply/internal/pipeline"
	"github.com/nhle/mailreply/internal/ratelimit"
	"github.com/nhle/mailreply/internal/store"
	"github.com/nhle/mailreply/internal/theme"
)

const (
	timeLayout    = "2006-01-02 15:04"
	maxSubjectLen = 40
	maxDetailLen  = 60
)

// Batch renders the per-message results of one batch followed by the
// count of each outcome kind.
func Batch(s pipeline.Summary) string {
	if s.Total() == 0 {
		return theme.HelpStyle.Render("No unseen messages.")
	}

	rows := make([][]string, 0, len(s.Results))
	kinds := make([]string, 0, len(s.Results))
	for _, r := range s.Results {
		rows = append(rows, []string{
			r.From,
			truncate(r.Subject, maxSubjectLen),
			r.Outcome.Kind.String(),
			truncate(r.Outcome.Detail(), maxDetailLen),
		})
		kinds = append(kinds, r.Outcome.Kind.String())
	}

	t := newTable(2, kinds).
		Headers("FROM", "SUBJECT", "OUTCOME", "DETAIL").
		Rows(rows...)

	return lipgloss.JoinVertical(lipgloss.Left,
		theme.HeaderStyle.Render("Batch"),
		t.Render(),
		totals(s),
	)
}

func totals(s pipeline.Summary) string {
	parts := make([]string, 0, len(pipeline.Kinds))
	for _, k := range pipeline.Kinds {
		if n := s.Count(k); n > 0 {
			parts = append(parts, theme.OutcomeStyle(k.String()).Render(fmt.Sprintf("%s: %d", k, n)))
		}
	}
	return fmt.Sprintf("%d processed  %s", s.Total(), strings.Join(parts, " "))
}

// Usage renders per-sender request counts in the current window.
func Usage(usage []ratelimit.Usage, limit int) string {
	if len(usage) == 0 {
		return theme.HelpStyle.Render("No requests in the current window.")
	}

	rows := make([][]string, 0, len(usage))
	for _, u := range usage {
		rows = append(rows, []string{
			u.Sender,
			fmt.Sprintf("%d/%d", u.Count, limit),
			u.Oldest.Local().Format(timeLayout),
			u.Newest.Local().Format(timeLayout),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers("SENDER", "REQUESTS", "FIRST", "LAST").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.TableHeaderStyle
			}
			if col == 1 && row >= 0 && row < len(usage) {
				return theme.UsageStyle(usage[row].Count, limit)
			}
			return theme.CellStyle
		})

	return lipgloss.JoinVertical(lipgloss.Left,
		theme.HeaderStyle.Render("Request usage"),
		t.Render(),
	)
}

// Outcomes renders stored outcome records, newest first.
func Outcomes(records []store.OutcomeRecord) string {
	if len(records) == 0 {
		return theme.HelpStyle.Render("No processed messages recorded.")
	}

	rows := make([][]string, 0, len(records))
	kinds := make([]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ProcessedAt.Local().Format(timeLayout),
			r.Sender,
			truncate(r.Subject, maxSubjectLen),
			r.Outcome,
			truncate(r.Detail, maxDetailLen),
		})
		kinds = append(kinds, r.Outcome)
	}

	t := newTable(3, kinds).
		Headers("TIME", "SENDER", "SUBJECT", "OUTCOME", "DETAIL").
		Rows(rows...)

	return lipgloss.JoinVertical(lipgloss.Left,
		theme.HeaderStyle.Render("Recent messages"),
		t.Render(),
	)
}

// newTable returns a bordered table whose outcomeCol is colored by the
// outcome name of each row.
func newTable(outcomeCol int, kinds []string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.TableHeaderStyle
			}
			if col == outcomeCol && row >= 0 && row < len(kinds) {
				return theme.OutcomeStyle(kinds[row])
			}
			return theme.CellStyle
		})
}

// truncate shortens s to n runes on one line.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
