// Package analyst answers ad-hoc questions about a session's data by
// generating Python analysis code and executing it in a sandbox.
package analyst

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/calebmoss/invoiceflow/core"
	"github.com/calebmoss/invoiceflow/obs"
	"github.com/calebmoss/invoiceflow/prompts"
	"github.com/calebmoss/invoiceflow/sandbox"
	"github.com/calebmoss/invoiceflow/session"
)

const (
	dataFileName  = "data.csv"
	chartFileName = "chart.html"
	scriptName    = "analysis.py"
	resultMarker  = "__RESULT__"

	// explainFallback is returned when the explanation call fails; the
	// analysis itself already succeeded at that point.
	explainFallback = "Analysis complete. See results below."
)

// Answer is the outcome of one analyst question.
type Answer struct {
	Answer         string `json:"answer"`
	Code           string `json:"code"`
	Data           string `json:"data,omitempty"`
	ChartGenerated bool   `json:"chart_generated"`
}

// Insight is one automated observation about the dataset.
type Insight struct {
	Text     string `json:"text"`
	Category string `json:"category"`
	Priority string `json:"priority"`
}

// InsightsResult bundles generated insights with the summary they were
// derived from.
type InsightsResult struct {
	Insights []Insight      `json:"insights"`
	Summary  map[string]any `json:"summary"`
}

// Service wires the analyst pipeline together.
type Service struct {
	provider    core.Provider
	store       *session.Store
	registry    *prompts.Registry
	sandboxes   *sandbox.Manager
	logger      *slog.Logger
	interpreter []string
	execTimeout time.Duration
}

// Option adjusts service construction.
type Option func(*Service)

// WithInterpreter overrides the command used to run generated scripts.
func WithInterpreter(command ...string) Option {
	return func(s *Service) { s.interpreter = command }
}

// WithExecTimeout bounds script execution.
func WithExecTimeout(d time.Duration) Option {
	return func(s *Service) { s.execTimeout = d }
}

func NewService(provider core.Provider, store *session.Store, registry *prompts.Registry, sandboxes *sandbox.Manager, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		provider:    provider,
		store:       store,
		registry:    registry,
		sandboxes:   sandboxes,
		logger:      logger,
		interpreter: []string{"python3"},
		execTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask runs the full pipeline for one question: load the session's data,
// generate analysis code, execute it sandboxed, explain the outcome, and
// persist the exchange to the chat history.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (_ *Answer, err error) {
	ctx, stage := obs.StartStage(ctx, "analyst.Ask")
	stage.Session(sessionID)
	defer func() { stage.End(err) }()

	if strings.TrimSpace(question) == "" {
		return nil, core.NewError(core.ErrBadInput, "question required")
	}

	data, info, err := s.loadData(sessionID)
	if err != nil {
		return nil, err
	}

	code, err := s.generateCode(ctx, info, question)
	if err != nil {
		return nil, err
	}

	execution, err := s.execute(ctx, sessionID, data, code)
	if err != nil {
		return nil, err
	}

	answer := s.explain(ctx, question, code, execution.result)

	now := time.Now().UTC()
	if err := s.store.AppendChat(sessionID,
		session.ChatMessage{Role: "user", Text: question, Timestamp: now},
		session.ChatMessage{
			Role:          "assistant",
			Text:          answer,
			Code:          code,
			Visualization: execution.chart,
			Data:          execution.result,
			Timestamp:     now,
		},
	); err != nil {
		return nil, err
	}

	return &Answer{
		Answer:         answer,
		Code:           code,
		Data:           execution.result,
		ChartGenerated: execution.chart,
	}, nil
}

// History returns the persisted conversation for a session.
func (s *Service) History(sessionID string) ([]session.ChatMessage, error) {
	return s.store.LoadChat(sessionID)
}

// Chart returns the most recent chart artifact for a session.
func (s *Service) Chart(sessionID string) ([]byte, error) {
	if !s.store.Exists(sessionID) {
		return nil, core.NewError(core.ErrNotFound, fmt.Sprintf("session %s not found", sessionID))
	}
	data, err := os.ReadFile(s.store.ChartPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewError(core.ErrNotFound, "no chart for session")
		}
		return nil, core.WrapError(err, core.ErrStorage)
	}
	return data, nil
}

// Insights produces automated observations about the dataset. Summary
// statistics are computed locally; only the compact summary is sent to the
// model. A failed or unparseable model reply degrades to a single local
// insight rather than an error.
func (s *Service) Insights(ctx context.Context, sessionID string) (_ *InsightsResult, err error) {
	ctx, stage := obs.StartStage(ctx, "analyst.Insights")
	stage.Session(sessionID)
	defer func() { stage.End(err) }()

	_, info, err := s.loadData(sessionID)
	if err != nil {
		return nil, err
	}
	summary := summarize(info)

	insights, aiErr := s.askForInsights(ctx, summary)
	if aiErr != nil {
		s.logger.Warn("insight generation failed, using local fallback",
			"session_id", sessionID, "error", aiErr)
		return &InsightsResult{
			Insights: []Insight{{
				Text:     fmt.Sprintf("Dataset contains %d rows and %d columns.", info.rows, len(info.columns)),
				Category: "info",
				Priority: "low",
			}},
			Summary: map[string]any{},
		}, nil
	}
	return &InsightsResult{Insights: insights, Summary: summary}, nil
}

func (s *Service) generateCode(ctx context.Context, info dataInfo, question string) (string, error) {
	dtypes, _ := json.Marshal(info.dtypes)
	preview, _ := json.Marshal(info.preview)
	prompt, _, err := s.registry.Render(prompts.Codegen, "", map[string]any{
		"Columns":   info.columns,
		"Shape":     fmt.Sprintf("(%d, %d)", info.rows, len(info.columns)),
		"Dtypes":    string(dtypes),
		"Preview":   string(preview),
		"Question":  question,
		"ChartPath": chartFileName,
	})
	if err != nil {
		return "", core.WrapError(err, core.ErrInternal)
	}

	res, err := s.provider.GenerateText(ctx, core.Request{
		Messages:    []core.Message{core.UserMessage(core.TextPart(prompt))},
		Temperature: 0.1,
		MaxTokens:   8192,
	})
	if err != nil {
		return "", err
	}
	code := stripCodeFence(res.Text)
	if code == "" {
		return "", core.NewError(core.ErrParse, "model returned no code")
	}
	return code, nil
}

type executionOutcome struct {
	result string
	chart  bool
}

func (s *Service) execute(ctx context.Context, sessionID string, data []byte, code string) (executionOutcome, error) {
	box, err := s.sandboxes.CreateSession(ctx, sandbox.SessionSpec{
		Name: "analyst",
		Templates: []sandbox.FileTemplate{
			{Path: dataFileName, Contents: data},
			{Path: scriptName, Contents: []byte(buildScript(code))},
		},
		Limits: sandbox.ResourceLimits{Timeout: s.execTimeout},
	})
	if err != nil {
		return executionOutcome{}, core.WrapError(err, core.ErrInternal)
	}
	defer box.Close()

	res, err := box.Exec(ctx, sandbox.ExecOptions{
		Command: append(append([]string(nil), s.interpreter...), scriptName),
	})
	if err != nil {
		return executionOutcome{}, core.WrapError(fmt.Errorf("run analysis script: %w", err), core.ErrExecution)
	}
	if res.TimedOut {
		return executionOutcome{}, core.NewError(core.ErrExecution, "analysis script timed out")
	}
	if res.ExitCode != 0 {
		return executionOutcome{}, core.NewError(core.ErrExecution, "code execution failed",
			core.WithDetails(map[string]any{"stderr": tail(res.Stderr, 2000), "exit_code": res.ExitCode}))
	}

	outcome := executionOutcome{result: extractResult(res.Stdout)}
	if chart, err := box.ReadFile(chartFileName); err == nil && len(chart) > 0 {
		if err := atomicChartWrite(s.store.ChartPath(sessionID), chart); err != nil {
			s.logger.Warn("failed to persist chart", "session_id", sessionID, "error", err)
		} else {
			outcome.chart = true
		}
	}
	return outcome, nil
}

func (s *Service) explain(ctx context.Context, question, code, result string) string {
	prompt, _, err := s.registry.Render(prompts.Explain, "", map[string]any{
		"Question": question,
		"Code":     code,
		"Result":   result,
	})
	if err != nil {
		return explainFallback
	}
	res, err := s.provider.GenerateText(ctx, core.Request{
		Messages:    []core.Message{core.UserMessage(core.TextPart(prompt))},
		Temperature: 0.7,
		MaxTokens:   1024,
	})
	if err != nil {
		return explainFallback
	}
	return strings.TrimSpace(res.Text)
}

func (s *Service) askForInsights(ctx context.Context, summary map[string]any) ([]Insight, error) {
	encoded, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, err
	}
	prompt, _, err := s.registry.Render(prompts.Insights, "", map[string]any{"Summary": string(encoded)})
	if err != nil {
		return nil, err
	}
	res, err := s.provider.GenerateText(ctx, core.Request{
		Messages:    []core.Message{core.UserMessage(core.TextPart(prompt))},
		Temperature: 0.5,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, err
	}
	cleaned := stripCodeFence(res.Text)
	var insights []Insight
	if err := json.Unmarshal([]byte(cleaned), &insights); err != nil {
		return nil, fmt.Errorf("parse insights: %w", err)
	}
	return insights, nil
}

// dataInfo is the compact dataset description fed to code generation.
type dataInfo struct {
	columns []string
	rows    int
	dtypes  map[string]string
	preview []map[string]string
	numeric map[string][]float64
}

// loadData prefers a directly uploaded CSV over the extracted invoice table.
func (s *Service) loadData(sessionID string) ([]byte, dataInfo, error) {
	var raw []byte
	if uploads, err := s.store.UploadsByExt(sessionID, "csv"); err == nil && len(uploads) > 0 {
		if data, err := os.ReadFile(uploads[0]); err == nil {
			raw = data
		}
	} else if err != nil {
		return nil, dataInfo{}, err
	}
	if raw == nil {
		data, err := os.ReadFile(s.store.DataPath(sessionID))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, dataInfo{}, core.NewError(core.ErrNoInput,
					"no data found, upload a CSV or process invoices first")
			}
			return nil, dataInfo{}, core.WrapError(err, core.ErrStorage)
		}
		raw = data
	}

	reader := csv.NewReader(strings.NewReader(string(raw)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil || len(records) == 0 {
		return nil, dataInfo{}, core.NewError(core.ErrNoInput, "session data is empty or unreadable")
	}
	return raw, describe(records), nil
}

func describe(records [][]string) dataInfo {
	info := dataInfo{
		columns: records[0],
		rows:    len(records) - 1,
		dtypes:  map[string]string{},
		numeric: map[string][]float64{},
	}
	for i, col := range info.columns {
		info.dtypes[col] = inferDtype(records[1:], i)
		if info.dtypes[col] != "object" {
			for _, row := range records[1:] {
				if i < len(row) {
					if v, ok := parseFloat(row[i]); ok {
						info.numeric[col] = append(info.numeric[col], v)
					}
				}
			}
		}
	}
	limit := 5
	if len(records)-1 < limit {
		limit = len(records) - 1
	}
	for _, row := range records[1 : 1+limit] {
		entry := map[string]string{}
		for i, col := range info.columns {
			if i < len(row) {
				entry[col] = row[i]
			}
		}
		info.preview = append(info.preview, entry)
	}
	return info
}

// summarize computes the local statistics sent to the insights prompt.
func summarize(info dataInfo) map[string]any {
	stats := map[string]any{}
	for col, values := range info.numeric {
		if len(values) == 0 {
			continue
		}
		min, max, sum := values[0], values[0], 0.0
		for _, v := range values {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			sum += v
		}
		stats[col] = map[string]any{
			"min":  min,
			"max":  max,
			"mean": sum / float64(len(values)),
			"sum":  sum,
		}
	}
	description, _ := json.Marshal(stats)
	desc := truncate(string(description), 1000)
	return map[string]any{
		"shape":       []int{info.rows, len(info.columns)},
		"columns":     info.columns,
		"description": desc,
	}
}

func inferDtype(rows [][]string, idx int) string {
	sawFloat := false
	sawValue := false
	for _, row := range rows {
		if idx >= len(row) || strings.TrimSpace(row[idx]) == "" {
			continue
		}
		sawValue = true
		v, ok := parseFloat(row[idx])
		if !ok {
			return "object"
		}
		if v != float64(int64(v)) {
			sawFloat = true
		}
	}
	if !sawValue {
		return "object"
	}
	if sawFloat {
		return "float64"
	}
	return "int64"
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// stripCodeFence removes a surrounding markdown code block, if any.
func stripCodeFence(text string) string {
	cleaned := strings.TrimSpace(text)
	for _, prefix := range []string{"```python", "```json", "```"} {
		if strings.HasPrefix(cleaned, prefix) {
			cleaned = cleaned[len(prefix):]
			break
		}
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

func extractResult(stdout string) string {
	idx := strings.LastIndex(stdout, resultMarker)
	if idx == -1 {
		return strings.TrimSpace(stdout)
	}
	return strings.TrimSpace(stdout[idx+len(resultMarker):])
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := len(s) - n
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}

// truncate cuts s at limit bytes without splitting a multi-byte rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func atomicChartWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
