package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"orcamento/internal/core"
	ports "orcamento/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultSheetName = "Budget"

var _ ports.AllocationExporter = (*Client)(nil)

// Client exports confirmed allocations, one tab per household.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
}

type Options struct {
	SpreadsheetID string
	// SheetName is the tab name prefix; the household id is appended.
	SheetName string
	// ClientOptions replace the service account credentials read from the
	// environment when set.
	ClientOptions []goption.ClientOption
}

func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = defaultSheetName
	}

	clientOpts := opts.ClientOptions
	if len(clientOpts) == 0 {
		creds, err := serviceAccountJSON(ctx)
		if err != nil {
			return nil, err
		}
		clientOpts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: base}, nil
}

// serviceAccountJSON reads credentials from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func serviceAccountJSON(ctx context.Context) ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Read service account credentials", "path", file, "size", len(data))
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// ExportAllocation overwrites the household's tab with rec. A tab already
// holding the same or a newer version is left alone.
func (c *Client) ExportAllocation(ctx context.Context, rec core.ConfirmedAllocation) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}

	tab := tabName(c.sheetBase, rec.HouseholdID)
	created, err := c.ensureTab(ctx, tab)
	if err != nil {
		return "", err
	}

	if !created {
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quoted(tab)+"!A1:D1").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("read header of %s: %w", tab, err)
		}
		if h, err := parseHeader(resp.Values); err == nil && h.householdID == rec.HouseholdID && h.version >= rec.Version {
			slog.InfoContext(ctx, "Sheet already holds this allocation version",
				"household_id", rec.HouseholdID, "sheet_version", h.version, "version", rec.Version)
			return fmt.Sprintf("%s!A1", tab), nil
		}
	}

	rows := allocationRows(rec)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoted(tab)+"!A:F", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", tab, err)
	}

	rng := fmt.Sprintf("%s!A1:F%d", quoted(tab), len(rows))
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "Allocation exported to Google Sheets",
		"household_id", rec.HouseholdID,
		"version", rec.Version,
		"range", rng)
	return fmt.Sprintf("%s!A1:F%d", tab, len(rows)), nil
}

// ensureTab adds the tab when the spreadsheet lacks it and reports whether it did.
func (c *Client) ensureTab(ctx context.Context, tab string) (bool, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == tab {
			return false, nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return false, fmt.Errorf("add sheet %s: %w", tab, err)
	}
	slog.InfoContext(ctx, "Created budget sheet", "sheet", tab)
	return true, nil
}

// quoted wraps a tab name for A1 notation.
func quoted(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}
