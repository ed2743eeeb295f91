package google

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"orcamento/internal/core"
)

// Sheet titles are capped at 100 characters and reject these.
const (
	maxTabName   = 100
	invalidChars = `[]*?/\:`
)

var rowHeader = []any{"Prefix", "Category", "Subcategory", "Percentage", "Amount", "Edited"}

// tabName returns "<base> <household>" made safe for a sheet title.
func tabName(base, householdID string) string {
	name := strings.TrimSpace(base + " " + householdID)
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidChars, r) {
			return '-'
		}
		return r
	}, name)
	if r := []rune(name); len(r) > maxTabName {
		name = string(r[:maxTabName])
	}
	return name
}

// allocationRows lays out a confirmed allocation: a two-line header, a blank
// line, the column header, one row per category followed by its
// subcategories, and a total row.
func allocationRows(rec core.ConfirmedAllocation) [][]any {
	rows := [][]any{
		{"Household", rec.HouseholdID, "Version", rec.Version, "Confirmed", rec.ConfirmedAt.UTC().Format(time.RFC3339)},
		{"Income", rec.Allocation.IncomeAnchor, "Outcome", string(rec.Outcome)},
		{},
		rowHeader,
	}
	var totalPct float64
	var totalAmount int64
	for _, it := range rec.Allocation.Items {
		edited := ""
		if it.IsEdited {
			edited = "yes"
		}
		rows = append(rows, []any{it.Prefix.String(), it.Name, "", formatPercent(it.Percentage), it.Amount, edited})
		for _, s := range it.Subcategories {
			rows = append(rows, []any{it.Prefix.String(), it.Name, s.Name, formatPercent(s.Percentage), s.Amount, ""})
		}
		totalPct += it.Percentage
		totalAmount += it.Amount
	}
	return append(rows, []any{"TOTAL", "", "", formatPercent(totalPct), totalAmount, ""})
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64) + "%"
}

type header struct {
	householdID string
	version     int64
}

// parseHeader reads the first row written by allocationRows.
func parseHeader(values [][]any) (header, error) {
	if len(values) == 0 || len(values[0]) < 4 {
		return header{}, errors.New("missing header row")
	}
	row := values[0]
	if strings.TrimSpace(fmt.Sprint(row[0])) != "Household" || strings.TrimSpace(fmt.Sprint(row[2])) != "Version" {
		return header{}, fmt.Errorf("unexpected header %v", row)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(row[3])), 10, 64)
	if err != nil {
		return header{}, fmt.Errorf("version: %w", err)
	}
	return header{householdID: strings.TrimSpace(fmt.Sprint(row[1])), version: v}, nil
}
