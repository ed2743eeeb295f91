package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"orcamento/internal/budget"
	"orcamento/internal/core"
)

var (
	colorBorder = lipgloss.Color("#575653")
	colorText   = lipgloss.Color("#FFFCF0")
	colorAccent = lipgloss.Color("#3AA99F")
	colorGreen  = lipgloss.Color("#879A39")
	colorOrange = lipgloss.Color("#DA702C")
	colorRed    = lipgloss.Color("#D14D41")
	colorMuted  = lipgloss.Color("#6F6E69")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	valueStyle  = lipgloss.NewStyle().Foreground(colorText)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle   = lipgloss.NewStyle().Foreground(colorOrange)
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	dimStyle    = lipgloss.NewStyle().Foreground(colorBorder)
)

type table struct {
	Headers []string
	Rows    [][]string
}

func renderTitle(title string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Render(titleStyle.Render(title))
}

func renderError(msg string) string { return errStyle.Render("error: ") + msg }
func renderOK(msg string) string    { return okStyle.Render("✓ ") + msg }
func renderWarn(msg string) string  { return warnStyle.Render("! ") + msg }

// renderTable draws a bordered table. The first column is left aligned, the
// others right aligned.
func renderTable(t table) string {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	line := func(left, mid, right string) string {
		var b strings.Builder
		b.WriteString(left)
		for i, w := range widths {
			b.WriteString(strings.Repeat("─", w+2))
			if i < len(widths)-1 {
				b.WriteString(mid)
			}
		}
		b.WriteString(right)
		return dimStyle.Render(b.String()) + "\n"
	}
	row := func(cells []string, style lipgloss.Style) string {
		var b strings.Builder
		b.WriteString(dimStyle.Render("│"))
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			pad := strings.Repeat(" ", w-lipgloss.Width(cell))
			if i == 0 {
				b.WriteString(style.Render(" " + cell + pad + " "))
			} else {
				b.WriteString(style.Render(" " + pad + cell + " "))
			}
			b.WriteString(dimStyle.Render("│"))
		}
		return b.String() + "\n"
	}

	var b strings.Builder
	b.WriteString(line("╭", "┬", "╮"))
	b.WriteString(row(t.Headers, headerStyle))
	b.WriteString(line("├", "┼", "┤"))
	for _, r := range t.Rows {
		style := valueStyle
		if len(r) > 0 && strings.HasPrefix(r[0], "  ") {
			style = mutedStyle
		}
		b.WriteString(row(r, style))
	}
	b.WriteString(line("╰", "┴", "╯"))
	return b.String()
}

func formatPct(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}

// allocationTable lists every line with its subcategories underneath and a
// reconciliation status for lines that have subcategories.
func allocationTable(a core.Allocation) table {
	status := make(map[core.PrefixCode]budget.Reconciliation)
	for _, r := range budget.ReconcileAll(a) {
		status[r.Prefix] = r
	}

	t := table{Headers: []string{"Line", "Name", "Share", "Amount", "Status"}}
	for _, it := range a.Items {
		name := it.Name
		if it.IsEdited {
			name += " *"
		}
		st := ""
		if r, ok := status[it.Prefix]; ok {
			switch r.Status {
			case budget.StatusOK:
				st = "ok"
			case budget.StatusUnder:
				st = fmt.Sprintf("under %d", -r.Difference)
			case budget.StatusOver:
				st = fmt.Sprintf("over %d", r.Difference)
			}
		}
		t.Rows = append(t.Rows, []string{it.Prefix.String(), name, formatPct(it.Percentage), fmt.Sprint(it.Amount), st})
		for _, s := range it.Subcategories {
			t.Rows = append(t.Rows, []string{"  └", s.Name, formatPct(s.Percentage), fmt.Sprint(s.Amount), ""})
		}
	}
	t.Rows = append(t.Rows, []string{"Σ", "", formatPct(a.TotalPercentage()), fmt.Sprint(a.IncomeAnchor), ""})
	return t
}

func renderReport(rep budget.Report) string {
	var b strings.Builder
	for _, is := range rep.Errors {
		b.WriteString(renderError(fmt.Sprintf("%s: %s", is.Kind, is.Message)) + "\n")
	}
	for _, is := range rep.Warnings {
		b.WriteString(renderWarn(fmt.Sprintf("%s: %s", is.Kind, is.Message)) + "\n")
	}
	if rep.Valid {
		b.WriteString(renderOK("allocation passes validation") + "\n")
	}
	return b.String()
}

func renderProposalWarnings(ws []budget.Warning) string {
	var b strings.Builder
	for _, w := range ws {
		b.WriteString(renderWarn(fmt.Sprintf("%s: %s", w.Kind, w.Message)) + "\n")
	}
	return b.String()
}
