package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
)

var (
	tableBorder = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	tableHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	tableCell   = lipgloss.NewStyle().Padding(0, 1)
)

// NewTable creates a rounded table with a bold header row.
func NewTable(headers ...string) *ltable.Table {
	return ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorder).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return tableHeader
			}
			return tableCell
		}).
		Headers(headers...)
}

// PrintTable renders rows under headers, or a muted placeholder when there
// are no rows.
func PrintTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, MutedStyle.Render("Nothing to show."))
		return
	}
	t := NewTable(headers...)
	for _, row := range rows {
		t.Row(row...)
	}
	fmt.Fprintln(w, t.Render())
}
