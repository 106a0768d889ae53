package analyst

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calebmoss/invoiceflow/core"
	"github.com/calebmoss/invoiceflow/prompts"
	"github.com/calebmoss/invoiceflow/sandbox"
	"github.com/calebmoss/invoiceflow/session"
)

type fakeProvider struct {
	replies  []string
	requests []core.Request
	fail     bool
}

func (f *fakeProvider) GenerateText(ctx context.Context, req core.Request) (*core.TextResult, error) {
	f.requests = append(f.requests, req)
	if f.fail {
		return nil, core.NewError(core.ErrUpstreamExhausted, "gemini failed after 3 attempts")
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return &core.TextResult{Text: reply}, nil
}

func (f *fakeProvider) Capabilities() core.Capabilities {
	return core.Capabilities{Provider: "fake"}
}

// fakeInterpreter writes a stand-in for python3 so tests run without it. The
// script prints the result marker, a fixed answer, and optionally drops a
// chart file.
func fakeInterpreter(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakepy")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake interpreter: %v", err)
	}
	return path
}

func newService(t *testing.T, provider core.Provider, opts ...Option) (*Service, *session.Store, string) {
	t.Helper()
	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	registry, err := prompts.Default()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	boxes, err := sandbox.NewManager(sandbox.ManagerOptions{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("sandbox manager: %v", err)
	}
	t.Cleanup(func() { boxes.Close() })
	id, err := store.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(provider, store, registry, boxes, logger, opts...), store, id
}

func saveSampleTable(t *testing.T, store *session.Store, id string) {
	t.Helper()
	err := store.SaveCSV(id, [][]string{
		{"Invoice No", "Product Name", "Qty", "Amount", "Date"},
		{"INV001", "Pipe A", "25", "3593.10", "01-01-25"},
		{"INV002", "Pipe B", "10", "1200.00", "02-01-25"},
	})
	if err != nil {
		t.Fatalf("save csv: %v", err)
	}
}

func TestAskNoData(t *testing.T) {
	svc, _, id := newService(t, &fakeProvider{replies: []string{"x"}})
	_, err := svc.Ask(context.Background(), id, "total sales?")
	if !core.IsNoInput(err) {
		t.Fatalf("expected no-input, got %v", err)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	svc, store, id := newService(t, &fakeProvider{replies: []string{"x"}})
	saveSampleTable(t, store, id)
	if _, err := svc.Ask(context.Background(), id, "  "); !core.IsBadInput(err) {
		t.Fatalf("expected bad-input, got %v", err)
	}
}

func TestAskFullPipeline(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		"```python\nresult = df['Amount'].sum()\n```",
		"Total sales come to 4793.10 across two invoices.",
	}}
	interp := fakeInterpreter(t, `echo __RESULT__
echo 4793.10`)
	svc, store, id := newService(t, provider, WithInterpreter(interp))
	saveSampleTable(t, store, id)

	answer, err := svc.Ask(context.Background(), id, "total sales?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if answer.Answer != "Total sales come to 4793.10 across two invoices." {
		t.Fatalf("unexpected answer: %q", answer.Answer)
	}
	if answer.Code != "result = df['Amount'].sum()" {
		t.Fatalf("code fence not stripped: %q", answer.Code)
	}
	if answer.Data != "4793.10" {
		t.Fatalf("unexpected data: %q", answer.Data)
	}
	if answer.ChartGenerated {
		t.Fatal("no chart expected")
	}

	// Codegen call runs cold, explanation warm.
	if provider.requests[0].Temperature != 0.1 {
		t.Fatalf("codegen temperature = %v", provider.requests[0].Temperature)
	}
	if provider.requests[1].Temperature != 0.7 {
		t.Fatalf("explain temperature = %v", provider.requests[1].Temperature)
	}

	history, err := store.LoadChat(id)
	if err != nil {
		t.Fatalf("load chat: %v", err)
	}
	if len(history) != 2 || history[0].Role != "user" || history[1].Role != "assistant" {
		t.Fatalf("unexpected history: %+v", history)
	}
	if history[1].Code == "" || history[1].Data != "4793.10" {
		t.Fatalf("assistant turn missing detail: %+v", history[1])
	}
}

func TestAskCapturesChart(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		"fig = px.bar(df, x='Product Name', y='Amount')\nresult = 'chart ready'",
		"Here is your chart.",
	}}
	interp := fakeInterpreter(t, `echo "<html>chart</html>" > chart.html
echo __RESULT__
echo chart ready`)
	svc, store, id := newService(t, provider, WithInterpreter(interp))
	saveSampleTable(t, store, id)

	answer, err := svc.Ask(context.Background(), id, "plot sales by product")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !answer.ChartGenerated {
		t.Fatal("chart should be detected")
	}

	chart, err := svc.Chart(id)
	if err != nil {
		t.Fatalf("chart: %v", err)
	}
	if !strings.Contains(string(chart), "chart") {
		t.Fatalf("unexpected chart body: %s", chart)
	}
}

func TestAskExecutionFailure(t *testing.T) {
	provider := &fakeProvider{replies: []string{"result = nonsense"}}
	interp := fakeInterpreter(t, `echo "NameError: nonsense is not defined" >&2
exit 1`)
	svc, store, id := newService(t, provider, WithInterpreter(interp))
	saveSampleTable(t, store, id)

	_, err := svc.Ask(context.Background(), id, "break please")
	if !core.IsExecution(err) {
		t.Fatalf("expected execution error, got %v", err)
	}
	// Failed runs must not pollute the chat history.
	history, _ := store.LoadChat(id)
	if len(history) != 0 {
		t.Fatalf("history should be empty, got %+v", history)
	}
}

func TestAskExplanationFallback(t *testing.T) {
	calls := 0
	providerFn := func(ctx context.Context, req core.Request) (*core.TextResult, error) {
		calls++
		if calls == 1 {
			return &core.TextResult{Text: "result = 1"}, nil
		}
		return nil, core.NewError(core.ErrUpstreamExhausted, "gemini failed after 3 attempts")
	}

	interp := fakeInterpreter(t, `echo __RESULT__
echo 1`)
	svc, store, id := newService(t, providerFunc(providerFn), WithInterpreter(interp))
	saveSampleTable(t, store, id)

	answer, err := svc.Ask(context.Background(), id, "anything")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if answer.Answer != explainFallback {
		t.Fatalf("expected fallback explanation, got %q", answer.Answer)
	}
}

type providerFunc func(ctx context.Context, req core.Request) (*core.TextResult, error)

func (f providerFunc) GenerateText(ctx context.Context, req core.Request) (*core.TextResult, error) {
	return f(ctx, req)
}

func (f providerFunc) Capabilities() core.Capabilities { return core.Capabilities{} }

func TestInsights(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		"```json\n[{\"text\": \"Pipe A dominates revenue.\", \"category\": \"info\", \"priority\": \"high\"}]\n```",
	}}
	svc, store, id := newService(t, provider)
	saveSampleTable(t, store, id)

	res, err := svc.Insights(context.Background(), id)
	if err != nil {
		t.Fatalf("insights: %v", err)
	}
	if len(res.Insights) != 1 || res.Insights[0].Priority != "high" {
		t.Fatalf("unexpected insights: %+v", res.Insights)
	}
	if res.Summary["columns"] == nil {
		t.Fatalf("summary missing columns: %v", res.Summary)
	}
}

func TestInsightsFallbackOnProviderFailure(t *testing.T) {
	svc, store, id := newService(t, &fakeProvider{fail: true})
	saveSampleTable(t, store, id)

	res, err := svc.Insights(context.Background(), id)
	if err != nil {
		t.Fatalf("insights fallback should not error: %v", err)
	}
	if len(res.Insights) != 1 {
		t.Fatalf("expected single fallback insight, got %+v", res.Insights)
	}
	if !strings.Contains(res.Insights[0].Text, "2 rows and 5 columns") {
		t.Fatalf("fallback text should describe the dataset: %q", res.Insights[0].Text)
	}
}

func TestChartNotFound(t *testing.T) {
	svc, _, id := newService(t, &fakeProvider{replies: []string{"x"}})
	if _, err := svc.Chart(id); !core.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestTruncateAndTailKeepRuneBoundaries(t *testing.T) {
	s := "aaa" + "é" + "b"
	if got := truncate(s, 4); got != "aaa" {
		t.Fatalf("truncate = %q, want %q", got, "aaa")
	}
	if got := tail(s, 2); got != "b" {
		t.Fatalf("tail = %q, want %q", got, "b")
	}
	if truncate("abc", 10) != "abc" || tail("abc", 10) != "abc" {
		t.Fatal("short strings must pass through unchanged")
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"```python\nresult = 1\n```": "result = 1",
		"```\nresult = 2\n```":       "result = 2",
		"result = 3":                 "result = 3",
	}
	for in, want := range cases {
		if got := stripCodeFence(in); got != want {
			t.Fatalf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
