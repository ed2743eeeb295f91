package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"orcamento/internal/core"

	goption "google.golang.org/api/option"
)

func testRecord(version int64) core.ConfirmedAllocation {
	return core.ConfirmedAllocation{
		HouseholdID: "h1",
		Version:     version,
		Outcome:     core.ManuallyAdjusted,
		ConfirmedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Allocation: core.Allocation{
			IncomeAnchor: 20000,
			Items: []core.BudgetCategoryItem{
				{Prefix: core.Housing, Name: "Housing", Percentage: 30, Amount: 6000, IsEdited: true, Subcategories: []core.SubcategoryBudget{
					{ID: "s1", Name: "Rent", Amount: 5000, Percentage: 83.33},
					{ID: "s2", Name: "Utilities", Amount: 1000, Percentage: 16.67},
				}},
				{Prefix: core.Food, Name: "Food", Percentage: 65, Amount: 13000},
				{Prefix: core.Buffer, Name: "Buffer", Percentage: 5, Amount: 1000},
			},
		},
	}
}

func TestTabName(t *testing.T) {
	tests := []struct {
		base, id, want string
	}{
		{"Budget", "h1", "Budget h1"},
		{"Budget", "a/b:c", "Budget a-b-c"},
		{"", "h1", "h1"},
		{"[x]*?", `\1`, "-x--- -1"},
	}
	for _, tt := range tests {
		if got := tabName(tt.base, tt.id); got != tt.want {
			t.Fatalf("tabName(%q, %q) = %q, want %q", tt.base, tt.id, got, tt.want)
		}
	}

	long := tabName("Budget", strings.Repeat("x", 200))
	if n := len([]rune(long)); n != maxTabName {
		t.Fatalf("long tab name has %d runes, want %d", n, maxTabName)
	}
}

func TestAllocationRows(t *testing.T) {
	rows := allocationRows(testRecord(3))
	// header, income line, blank, column header, 3 items, 2 subcategories, total
	if len(rows) != 10 {
		t.Fatalf("rows = %d, want 10", len(rows))
	}
	if rows[0][1] != "h1" || rows[0][3] != int64(3) || rows[0][5] != "2026-03-01T09:30:00Z" {
		t.Fatalf("unexpected header row %v", rows[0])
	}
	if rows[1][1] != int64(20000) || rows[1][3] != "manually_adjusted" {
		t.Fatalf("unexpected income row %v", rows[1])
	}
	housing := rows[4]
	if housing[0] != "C" || housing[3] != "30.00%" || housing[4] != int64(6000) || housing[5] != "yes" {
		t.Fatalf("unexpected housing row %v", housing)
	}
	if rows[5][2] != "Rent" || rows[6][2] != "Utilities" {
		t.Fatalf("subcategories not listed under their category: %v %v", rows[5], rows[6])
	}
	total := rows[len(rows)-1]
	if total[0] != "TOTAL" || total[3] != "100.00%" || total[4] != int64(20000) {
		t.Fatalf("unexpected total row %v", total)
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name    string
		values  [][]any
		want    header
		wantErr bool
	}{
		{"string version", [][]any{{"Household", "h1", "Version", "4"}}, header{"h1", 4}, false},
		{"numeric version", [][]any{{"Household", "h2", "Version", float64(7), "Confirmed"}}, header{"h2", 7}, false},
		{"empty", nil, header{}, true},
		{"short row", [][]any{{"Household", "h1"}}, header{}, true},
		{"foreign sheet", [][]any{{"Date", "h1", "Amount", "4"}}, header{}, true},
		{"bad version", [][]any{{"Household", "h1", "Version", "x"}}, header{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHeader(tt.values)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Options{SpreadsheetID: "  ", SheetName: "Budget"}); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Options{SpreadsheetID: "sheet-1"})
	if err == nil || !strings.Contains(err.Error(), "credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

// fakeSheets serves the subset of the Sheets v4 REST API the exporter uses.
type fakeSheets struct {
	mu      sync.Mutex
	tabs    []string
	header  []any
	calls   []string
	written [][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/v4/spreadsheets/sheet-1"):
		f.calls = append(f.calls, "get")
		sheets := make([]map[string]any, 0, len(f.tabs))
		for _, tab := range f.tabs {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": tab}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		f.calls = append(f.calls, "addSheet")
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			f.tabs = append(f.tabs, rq.AddSheet.Properties.Title)
		}
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		f.calls = append(f.calls, "clear")
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		f.calls = append(f.calls, "header")
		values := [][]any{}
		if f.header != nil {
			values = append(values, f.header)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"values": values})
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		f.calls = append(f.calls, "update")
		if got := r.URL.Query().Get("valueInputOption"); got != "USER_ENTERED" {
			http.Error(w, "bad valueInputOption "+got, http.StatusBadRequest)
			return
		}
		var body struct {
			Values [][]any `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.written = body.Values
		_, _ = w.Write([]byte(`{}`))
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Options{
		SpreadsheetID: "sheet-1",
		ClientOptions: []goption.ClientOption{
			goption.WithEndpoint(srv.URL + "/"),
			goption.WithHTTPClient(srv.Client()),
			goption.WithoutAuthentication(),
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func equalCalls(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestExportAllocation(t *testing.T) {
	tests := []struct {
		name      string
		tabs      []string
		header    []any
		version   int64
		wantCalls []string
		wantWrite bool
	}{
		{
			name:      "creates missing tab",
			version:   1,
			wantCalls: []string{"get", "addSheet", "clear", "update"},
			wantWrite: true,
		},
		{
			name:      "overwrites older version",
			tabs:      []string{"Budget h1"},
			header:    []any{"Household", "h1", "Version", "1"},
			version:   2,
			wantCalls: []string{"get", "header", "clear", "update"},
			wantWrite: true,
		},
		{
			name:      "skips same version",
			tabs:      []string{"Budget h1"},
			header:    []any{"Household", "h1", "Version", "2"},
			version:   2,
			wantCalls: []string{"get", "header"},
		},
		{
			name:      "skips newer version",
			tabs:      []string{"Budget h1"},
			header:    []any{"Household", "h1", "Version", "5"},
			version:   2,
			wantCalls: []string{"get", "header"},
		},
		{
			name:      "overwrites foreign content",
			tabs:      []string{"Budget h1"},
			header:    []any{"notes"},
			version:   1,
			wantCalls: []string{"get", "header", "clear", "update"},
			wantWrite: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSheets{tabs: tt.tabs, header: tt.header}
			c := newTestClient(t, fake)

			ref, err := c.ExportAllocation(context.Background(), testRecord(tt.version))
			if err != nil {
				t.Fatalf("ExportAllocation: %v", err)
			}
			if !strings.HasPrefix(ref, "Budget h1!A1") {
				t.Fatalf("unexpected ref %q", ref)
			}
			if !equalCalls(fake.calls, tt.wantCalls) {
				t.Fatalf("calls = %v, want %v", fake.calls, tt.wantCalls)
			}
			if !tt.wantWrite {
				if fake.written != nil {
					t.Fatalf("expected no write, got %v", fake.written)
				}
				return
			}
			if len(fake.written) != 10 {
				t.Fatalf("written rows = %d, want 10", len(fake.written))
			}
			if fake.written[0][0] != "Household" || fake.written[0][1] != "h1" {
				t.Fatalf("unexpected first row %v", fake.written[0])
			}
		})
	}
}

func TestExportAllocationRejectsInvalidRecord(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	rec := testRecord(1)
	rec.HouseholdID = " "
	if _, err := c.ExportAllocation(context.Background(), rec); err == nil {
		t.Fatal("expected validation error")
	}
	if len(fake.calls) != 0 {
		t.Fatalf("expected no API calls, got %v", fake.calls)
	}
}
