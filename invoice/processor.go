package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/calebmoss/invoiceflow/core"
	"github.com/calebmoss/invoiceflow/obs"
	"github.com/calebmoss/invoiceflow/prompts"
	"github.com/calebmoss/invoiceflow/session"
)

// batchSize is how many images share one extraction request.
const batchSize = 5

var imageExtensions = []string{"jpg", "jpeg", "png"}

// Processor runs the extraction pipeline for a session.
type Processor struct {
	provider core.Provider
	store    *session.Store
	registry *prompts.Registry
	logger   *slog.Logger
}

// NewProcessor wires the pipeline dependencies.
func NewProcessor(provider core.Provider, store *session.Store, registry *prompts.Registry, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{provider: provider, store: store, registry: registry, logger: logger}
}

// Process extracts line items from every uploaded image in the session and
// replaces the stored table with the result. Images are split into batches
// of five which run concurrently; a batch that fails or returns an
// unparseable reply contributes zero rows. Aggregation preserves batch
// order.
func (p *Processor) Process(ctx context.Context, sessionID string) (_ []LineItem, err error) {
	ctx, stage := obs.StartStage(ctx, "invoice.Process")
	stage.Session(sessionID)
	defer func() { stage.End(err) }()

	images, err := p.store.UploadsByExt(sessionID, imageExtensions...)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, core.NewError(core.ErrNoInput, "no invoice images found to process")
	}

	prompt, _, err := p.registry.Render(prompts.Extraction, "", nil)
	if err != nil {
		return nil, core.WrapError(err, core.ErrInternal)
	}

	batches := partition(images, batchSize)
	p.logger.Info("processing invoices",
		"session_id", sessionID, "images", len(images), "batches", len(batches))

	results := make([][]LineItem, len(batches))
	g, ctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			items, batchErr := p.processBatch(ctx, prompt, batch)
			if batchErr != nil {
				p.logger.Warn("invoice batch failed",
					"session_id", sessionID, "batch", i, "error", batchErr)
				return nil
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var items []LineItem
	for _, batch := range results {
		items = append(items, batch...)
	}
	if len(items) == 0 {
		p.logger.Warn("no data extracted from any invoice batch", "session_id", sessionID)
	}

	if err := p.store.SaveCSV(sessionID, ToRecords(items)); err != nil {
		return nil, err
	}
	if err := p.store.SaveMetadata(sessionID, map[string]any{
		"status":        "processed",
		"invoice_count": len(items),
	}); err != nil {
		return nil, err
	}
	return items, nil
}

// Processed returns the previously extracted table for the session.
func (p *Processor) Processed(sessionID string) ([]LineItem, error) {
	records, err := p.store.LoadCSV(sessionID)
	if err != nil {
		return nil, err
	}
	return FromRecords(records)
}

func (p *Processor) processBatch(ctx context.Context, prompt string, paths []string) ([]LineItem, error) {
	parts := make([]core.Part, 0, len(paths)+1)
	for _, path := range paths {
		parts = append(parts, core.ImagePathPart(path, mimeForPath(path)))
	}
	parts = append(parts, core.TextPart(prompt))

	res, err := p.provider.GenerateText(ctx, core.Request{
		Messages:    []core.Message{core.UserMessage(parts...)},
		Temperature: 0.3,
		MaxTokens:   8192,
	})
	if err != nil {
		return nil, err
	}
	items, err := ParseItems(res.Text)
	if err != nil {
		return nil, fmt.Errorf("parse batch reply: %w", err)
	}
	return items, nil
}

func partition(paths []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(paths); start += size {
		end := start + size
		if end > len(paths) {
			end = len(paths)
		}
		out = append(out, paths[start:end])
	}
	return out
}

func mimeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}
