package viz

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/calebmoss/invoiceflow/core"
	"github.com/calebmoss/invoiceflow/session"
)

var sampleRecords = [][]string{
	{"Invoice No", "Product Name", "Qty", "Amount", "Date"},
	{"INV001", "Pipe A", "25", "3593.10", "01-01-25"},
	{"INV001", "Pipe B", "10", "1200.00", "01-01-25"},
	{"INV002", "Pipe A", "5", "718.62", "02-01-25"},
	{"INV003", "Valve", "2", "99.99", "08-01-25"},
}

func newService(t *testing.T) (*Service, *session.Store, string) {
	t.Helper()
	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	id, err := store.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, logger), store, id
}

func TestColumnsNoData(t *testing.T) {
	svc, _, id := newService(t)
	if _, err := svc.Columns(id); !core.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestColumns(t *testing.T) {
	svc, store, id := newService(t)
	if err := store.SaveCSV(id, sampleRecords); err != nil {
		t.Fatalf("save csv: %v", err)
	}
	cols, err := svc.Columns(id)
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	if len(cols) != 5 || cols[0] != "Invoice No" {
		t.Fatalf("unexpected columns: %v", cols)
	}
}

func TestGenerateAllRoles(t *testing.T) {
	svc, store, id := newService(t)
	if err := store.SaveCSV(id, sampleRecords); err != nil {
		t.Fatalf("save csv: %v", err)
	}
	charts, err := svc.Generate(id, []string{"Invoice No", "Product Name", "Qty", "Amount", "Date"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(charts) != 10 {
		t.Fatalf("expected the full 10-chart catalogue, got %d", len(charts))
	}
	names := map[string]bool{}
	for _, c := range charts {
		names[c.ChartName] = true
	}
	for _, want := range []string{
		"Amount Distribution", "Quantity Distribution", "Sales by Product",
		"Top 10 Products (Pareto)", "Quantity by Product", "Daily Sales Trend",
		"Monthly Revenue", "Sales by Weekday", "Daily Invoice Count",
		"Products per Invoice",
	} {
		if !names[want] {
			t.Fatalf("missing chart %q, got %v", want, names)
		}
	}
}

func TestGenerateSubsetOfRoles(t *testing.T) {
	svc, store, id := newService(t)
	if err := store.SaveCSV(id, sampleRecords); err != nil {
		t.Fatalf("save csv: %v", err)
	}
	charts, err := svc.Generate(id, []string{"Amount"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(charts) != 1 || charts[0].ChartName != "Amount Distribution" {
		t.Fatalf("expected only the amount boxplot, got %+v", charts)
	}
}

func TestGenerateNoMatchingRolesYieldsZeroCharts(t *testing.T) {
	svc, store, id := newService(t)
	records := [][]string{
		{"Product Name", "Warehouse"},
		{"Pipe A", "North"},
	}
	if err := store.SaveCSV(id, records); err != nil {
		t.Fatalf("save csv: %v", err)
	}
	// Product alone drives no chart; Warehouse matches no role.
	charts, err := svc.Generate(id, []string{"Product Name", "Warehouse"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(charts) != 0 {
		t.Fatalf("expected zero charts, got %d", len(charts))
	}
}

func TestGenerateRejectsUnknownColumns(t *testing.T) {
	svc, store, id := newService(t)
	if err := store.SaveCSV(id, sampleRecords); err != nil {
		t.Fatalf("save csv: %v", err)
	}
	_, err := svc.Generate(id, []string{"Amount", "Bogus", "Nope"})
	if !core.IsBadInput(err) {
		t.Fatalf("expected bad-input, got %v", err)
	}
	var app *core.AppError
	if !errors.As(err, &app) {
		t.Fatal("expected AppError")
	}
	invalid, _ := app.Details["invalid_columns"].([]string)
	if len(invalid) != 2 {
		t.Fatalf("expected both offenders listed, got %v", app.Details)
	}
}

func TestGeneratePrefersUploadedCSV(t *testing.T) {
	svc, store, id := newService(t)
	if err := store.SaveCSV(id, sampleRecords); err != nil {
		t.Fatalf("save csv: %v", err)
	}
	custom := "Order Value,Units\n100.5,3\n200.0,4\n"
	if _, err := store.SaveUpload(id, "custom.csv", []byte(custom)); err != nil {
		t.Fatalf("upload csv: %v", err)
	}
	cols, err := svc.Columns(id)
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	if len(cols) != 2 || cols[0] != "Order Value" {
		t.Fatalf("uploaded csv should win, got %v", cols)
	}
}

func TestGenerateExcludesShortRows(t *testing.T) {
	svc, store, id := newService(t)
	// Uploaded CSVs are read without a fixed field count, so a truncated
	// row must be skipped rather than crash chart generation.
	ragged := "Product Name,Amount,Date\nPipe A,100.50,01-01-25\nstray\nPipe B,200.00,02-01-25\n"
	if _, err := store.SaveUpload(id, "ragged.csv", []byte(ragged)); err != nil {
		t.Fatalf("upload csv: %v", err)
	}
	charts, err := svc.Generate(id, []string{"Product Name", "Amount", "Date"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(charts) == 0 {
		t.Fatal("expected charts from the well-formed rows")
	}
	found := false
	for i := range charts {
		if charts[i].ChartName != "Sales by Product" {
			continue
		}
		found = true
		data := charts[i].Data.(map[string]any)
		if products := data["y"].([]string); len(products) != 2 {
			t.Fatalf("short row should be excluded, got %v", products)
		}
	}
	if !found {
		t.Fatal("missing product sales chart")
	}
}

func TestGenerateSkipsUnparseableDates(t *testing.T) {
	svc, store, id := newService(t)
	records := [][]string{
		{"Amount", "Date"},
		{"10.00", "01-01-25"},
		{"20.00", "not a date"},
		{"30.00", "02-01-25"},
	}
	if err := store.SaveCSV(id, records); err != nil {
		t.Fatalf("save csv: %v", err)
	}
	charts, err := svc.Generate(id, []string{"Amount", "Date"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	var daily *ChartSpec
	for i := range charts {
		if charts[i].ChartName == "Daily Sales Trend" {
			daily = &charts[i]
		}
	}
	if daily == nil {
		t.Fatal("missing daily sales chart")
	}
	data := daily.Data.(map[string]any)
	if days := data["x"].([]string); len(days) != 2 {
		t.Fatalf("bad-date row should be excluded, got %v", days)
	}
}

func TestInferRolesRestrictedToSelection(t *testing.T) {
	columns := []string{"Invoice No", "Product Name", "Qty", "Amount", "Date"}
	roles := inferRoles(columns, []string{"Amount", "Date"})
	if roles[RoleAmount] != "Amount" || roles[RoleDate] != "Date" {
		t.Fatalf("unexpected roles: %v", roles)
	}
	if _, ok := roles[RoleProduct]; ok {
		t.Fatal("unselected column must not be assigned a role")
	}
}

func TestInferRolesSubstringMatch(t *testing.T) {
	columns := []string{"invoice_date", "TOTAL_AMOUNT", "product description"}
	roles := inferRoles(columns, columns)
	if roles[RoleDate] != "invoice_date" {
		t.Fatalf("date role: %v", roles)
	}
	if roles[RoleAmount] != "TOTAL_AMOUNT" {
		t.Fatalf("amount role: %v", roles)
	}
	if roles[RoleProduct] != "product description" {
		t.Fatalf("product role: %v", roles)
	}
}
