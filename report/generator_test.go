package report

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/calebmoss/invoiceflow/core"
	"github.com/calebmoss/invoiceflow/prompts"
	"github.com/calebmoss/invoiceflow/session"
)

type fakeProvider struct {
	lastReq core.Request
	reply   string
	err     error
}

func (f *fakeProvider) GenerateText(ctx context.Context, req core.Request) (*core.TextResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &core.TextResult{Text: f.reply}, nil
}

func (f *fakeProvider) Capabilities() core.Capabilities {
	return core.Capabilities{Images: true, Provider: "fake"}
}

func newGenerator(t *testing.T, provider core.Provider) (*Generator, *session.Store, string) {
	t.Helper()
	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	registry, err := prompts.Default()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	id, err := store.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGenerator(provider, store, registry, logger), store, id
}

func TestGenerateFromImages(t *testing.T) {
	provider := &fakeProvider{reply: "# Report\nSpending is up."}
	gen, store, id := newGenerator(t, provider)
	if _, err := store.SaveUpload(id, "a.png", []byte{1}); err != nil {
		t.Fatalf("upload: %v", err)
	}

	text, err := gen.Generate(context.Background(), id)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "# Report\nSpending is up." {
		t.Fatalf("unexpected report: %s", text)
	}

	var sawImage bool
	for _, part := range provider.lastReq.Messages[0].Parts {
		if _, ok := part.(core.Image); ok {
			sawImage = true
		}
	}
	if !sawImage {
		t.Fatal("request should carry the uploaded image")
	}
	if provider.lastReq.Temperature != 0.5 {
		t.Fatalf("temperature = %v, want 0.5", provider.lastReq.Temperature)
	}

	saved, err := gen.Saved(id)
	if err != nil || saved != text {
		t.Fatalf("saved report mismatch: %q %v", saved, err)
	}
}

func TestGenerateFallsBackToTable(t *testing.T) {
	provider := &fakeProvider{reply: "# Report"}
	gen, store, id := newGenerator(t, provider)
	if err := store.SaveCSV(id, [][]string{
		{"Invoice No", "Product Name", "Qty", "Amount", "Date"},
		{"INV001", "Pipe A", "25", "3593.10", "01-01-25"},
	}); err != nil {
		t.Fatalf("save csv: %v", err)
	}

	if _, err := gen.Generate(context.Background(), id); err != nil {
		t.Fatalf("generate: %v", err)
	}
	prompt := provider.lastReq.Messages[0].Parts[0].(core.Text).Text
	if !strings.Contains(prompt, "INV001") {
		t.Fatal("prompt should embed the CSV excerpt")
	}
}

func TestGeneratePrefersUploadedCSV(t *testing.T) {
	provider := &fakeProvider{reply: "# Report"}
	gen, store, id := newGenerator(t, provider)
	if err := store.SaveCSV(id, [][]string{
		{"Invoice No", "Product Name", "Qty", "Amount", "Date"},
		{"INV001", "Pipe A", "25", "3593.10", "01-01-25"},
	}); err != nil {
		t.Fatalf("save csv: %v", err)
	}
	if _, err := store.SaveUpload(id, "sales.csv", []byte("Order,Total\nORD-7,99.50\n")); err != nil {
		t.Fatalf("upload: %v", err)
	}

	if _, err := gen.Generate(context.Background(), id); err != nil {
		t.Fatalf("generate: %v", err)
	}
	prompt := provider.lastReq.Messages[0].Parts[0].(core.Text).Text
	if !strings.Contains(prompt, "ORD-7") {
		t.Fatal("prompt should embed the uploaded CSV")
	}
	if strings.Contains(prompt, "INV001") {
		t.Fatal("uploaded CSV should take precedence over the extracted table")
	}
}

func TestGenerateFromUploadedCSVOnly(t *testing.T) {
	provider := &fakeProvider{reply: "# Report"}
	gen, store, id := newGenerator(t, provider)
	if _, err := store.SaveUpload(id, "sales.csv", []byte("Order,Total\nORD-7,99.50\n")); err != nil {
		t.Fatalf("upload: %v", err)
	}

	if _, err := gen.Generate(context.Background(), id); err != nil {
		t.Fatalf("generate: %v", err)
	}
	prompt := provider.lastReq.Messages[0].Parts[0].(core.Text).Text
	if !strings.Contains(prompt, "ORD-7") {
		t.Fatal("prompt should embed the uploaded CSV")
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	s := strings.Repeat("a", 3) + "é"
	got := truncate(s, 4)
	if got != "aaa" {
		t.Fatalf("truncate = %q, want %q", got, "aaa")
	}
	if truncate("abc", 10) != "abc" {
		t.Fatal("short strings must pass through unchanged")
	}
}

func TestGenerateTruncatesLongTable(t *testing.T) {
	provider := &fakeProvider{reply: "# Report"}
	gen, store, id := newGenerator(t, provider)

	records := [][]string{{"Invoice No", "Product Name", "Qty", "Amount", "Date"}}
	row := []string{"INV001", strings.Repeat("x", 200), "1", "1.00", "01-01-25"}
	for i := 0; i < 1000; i++ {
		records = append(records, row)
	}
	if err := store.SaveCSV(id, records); err != nil {
		t.Fatalf("save csv: %v", err)
	}

	if _, err := gen.Generate(context.Background(), id); err != nil {
		t.Fatalf("generate: %v", err)
	}
	prompt := provider.lastReq.Messages[0].Parts[0].(core.Text).Text
	if len(prompt) > maxCSVExcerpt+2000 {
		t.Fatalf("excerpt not truncated, prompt length %d", len(prompt))
	}
}

func TestGenerateNoInput(t *testing.T) {
	gen, _, id := newGenerator(t, &fakeProvider{reply: "x"})
	if _, err := gen.Generate(context.Background(), id); !core.IsNoInput(err) {
		t.Fatalf("expected no-input error, got %v", err)
	}
}

func TestSavedNotFound(t *testing.T) {
	gen, _, id := newGenerator(t, &fakeProvider{})
	if _, err := gen.Saved(id); !core.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}
