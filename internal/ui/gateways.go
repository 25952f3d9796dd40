package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lettin/lettin/internal/discovery"
)

// columnGap separates table columns
const columnGap = "  "

// Table is a plain column-aligned table
type Table struct {
	Columns []string
	Rows    [][]string
}

// AddRow appends a row; missing cells render empty
func (t *Table) AddRow(cells ...string) *Table {
	t.Rows = append(t.Rows, cells)
	return t
}

// Render returns the aligned table with a styled header row
func (t *Table) Render() string {
	widths := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		widths[i] = lipgloss.Width(c)
	}
	for _, row := range t.Rows {
		for i := 0; i < len(widths) && i < len(row); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	b.WriteString(renderRow(t.Columns, widths, true))
	for _, row := range t.Rows {
		b.WriteString("\n")
		b.WriteString(renderRow(row, widths, false))
	}
	return b.String()
}

// renderRow pads each cell to its column width; the first column of a
// body row is highlighted, the rest are muted.
func renderRow(cells []string, widths []int, header bool) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		style := TableMutedCellStyle
		switch {
		case header:
			style = TableHeaderStyle
		case i == 0:
			style = TableCellStyle
		}
		parts[i] = style.Render(cell) + strings.Repeat(" ", w-lipgloss.Width(cell))
	}
	return strings.TrimRight(strings.Join(parts, columnGap), " ")
}

// GatewayTable builds a table of one discovery result.
// nicknames maps lowercase MAC to a user-chosen label and may be nil.
func GatewayTable(gateways []*discovery.Gateway, nicknames map[string]string) *Table {
	t := &Table{Columns: []string{"NAME", "MAC", "ADDRESS", "SEEN"}}
	for _, g := range gateways {
		t.AddRow(gatewayLabel(g, nicknames), g.MAC, g.Addr, formatSeen(g.DiscoveredAt))
	}
	return t
}

// RenderGateways renders a discovery result as a table, or a warning box when empty
func RenderGateways(gateways []*discovery.Gateway, nicknames map[string]string) string {
	if len(gateways) == 0 {
		return NewWarningResult("No gateways answered", map[string]string{
			"Hint": "check the gateway is powered and on this subnet",
		}).Render()
	}
	return GatewayTable(gateways, nicknames).Render()
}

// Summary returns a one-line count such as "2 gateways found"
func Summary(count int) string {
	if count == 1 {
		return "1 gateway found"
	}
	return fmt.Sprintf("%d gateways found", count)
}

func gatewayLabel(g *discovery.Gateway, nicknames map[string]string) string {
	name := g.Name
	if name == "" {
		name = "(unnamed)"
	}
	if nick := nicknames[strings.ToLower(g.MAC)]; nick != "" && nick != g.Name {
		return fmt.Sprintf("%s (%s)", nick, name)
	}
	return name
}

func formatSeen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("15:04:05")
}
