// Package report generates the markdown analytics report for a session.
package report

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/calebmoss/invoiceflow/core"
	"github.com/calebmoss/invoiceflow/obs"
	"github.com/calebmoss/invoiceflow/prompts"
	"github.com/calebmoss/invoiceflow/session"
)

// maxCSVExcerpt bounds how much table text goes into the prompt.
const maxCSVExcerpt = 100_000

var imageExtensions = []string{"jpg", "jpeg", "png"}

// Generator produces and persists session reports.
type Generator struct {
	provider core.Provider
	store    *session.Store
	registry *prompts.Registry
	logger   *slog.Logger
}

func NewGenerator(provider core.Provider, store *session.Store, registry *prompts.Registry, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{provider: provider, store: store, registry: registry, logger: logger}
}

// Generate builds the report from the session's invoice images. When no
// images are present it falls back to tabular data, preferring a directly
// uploaded CSV over the extracted table; with neither it fails with a
// no-input error. The report is persisted before returning.
func (g *Generator) Generate(ctx context.Context, sessionID string) (_ string, err error) {
	ctx, stage := obs.StartStage(ctx, "report.Generate")
	stage.Session(sessionID)
	defer func() { stage.End(err) }()

	images, err := g.store.UploadsByExt(sessionID, imageExtensions...)
	if err != nil {
		return "", err
	}

	var req core.Request
	if len(images) > 0 {
		req, err = g.imageRequest(images)
	} else {
		path, ok := g.tablePath(sessionID)
		if !ok {
			return "", core.NewError(core.ErrNoInput, "no invoice images or tabular data for report generation")
		}
		req, err = g.tableRequest(path)
	}
	if err != nil {
		return "", err
	}
	req.Temperature = 0.5
	req.MaxTokens = 4096

	res, err := g.provider.GenerateText(ctx, req)
	if err != nil {
		return "", err
	}
	if err := g.store.SaveReport(sessionID, res.Text); err != nil {
		return "", err
	}
	if err := g.store.SaveMetadata(sessionID, map[string]any{"has_report": true}); err != nil {
		return "", err
	}
	g.logger.Info("generated report", "session_id", sessionID, "images", len(images))
	return res.Text, nil
}

// Saved returns the previously generated report.
func (g *Generator) Saved(sessionID string) (string, error) {
	return g.store.LoadReport(sessionID)
}

func (g *Generator) imageRequest(images []string) (core.Request, error) {
	prompt, _, err := g.registry.Render(prompts.Report, "", nil)
	if err != nil {
		return core.Request{}, core.WrapError(err, core.ErrInternal)
	}
	parts := make([]core.Part, 0, len(images)+1)
	for _, path := range images {
		parts = append(parts, core.ImagePathPart(path, mimeForPath(path)))
	}
	parts = append(parts, core.TextPart(prompt))
	return core.Request{Messages: []core.Message{core.UserMessage(parts...)}}, nil
}

// tablePath prefers a directly uploaded CSV over the extracted table, the
// same precedence the visualization and analyst services apply.
func (g *Generator) tablePath(sessionID string) (string, bool) {
	if csvs, err := g.store.UploadsByExt(sessionID, "csv"); err == nil && len(csvs) > 0 {
		return csvs[0], true
	}
	if g.store.HasData(sessionID) {
		return g.store.DataPath(sessionID), true
	}
	return "", false
}

func (g *Generator) tableRequest(path string) (core.Request, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return core.Request{}, core.WrapError(err, core.ErrStorage)
	}
	excerpt := truncate(string(raw), maxCSVExcerpt)
	prompt, _, err := g.registry.Render(prompts.Report, "", map[string]any{"CSVExcerpt": excerpt})
	if err != nil {
		return core.Request{}, core.WrapError(err, core.ErrInternal)
	}
	return core.Request{Messages: []core.Message{core.UserMessage(core.TextPart(prompt))}}, nil
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

func mimeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}
