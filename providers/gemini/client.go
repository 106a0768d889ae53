package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/calebmoss/invoiceflow/core"
	"github.com/calebmoss/invoiceflow/internal/httpclient"
	"github.com/calebmoss/invoiceflow/obs"
	"go.opentelemetry.io/otel/attribute"
)

// Client calls the Gemini generateContent REST API. It is the process-wide
// extraction client: one instance, injected into every component that needs
// generation.
type Client struct {
	opts       options
	httpClient *http.Client
}

func New(opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = httpclient.New(httpclient.WithTimeout(o.timeout))
	}
	return &Client{opts: o, httpClient: o.httpClient}
}

// GenerateText sends the request, retrying transient failures with
// exponential backoff (1s, 2s, 4s, ...). Once the retry budget is spent the
// last cause is wrapped in an upstream-exhausted error.
func (c *Client) GenerateText(ctx context.Context, req core.Request) (_ *core.TextResult, err error) {
	ctx, stage := obs.StartStage(ctx, "providers.gemini.GenerateText",
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.operation", "generateContent"),
	)
	defer func() { stage.End(err) }()

	model := chooseModel(req.Model, c.opts.model)
	payload, err := buildRequest(req, model)
	if err != nil {
		return nil, err
	}
	stage.AddAttributes(attribute.String("ai.model", model))

	var lastErr error
	for attempt := 0; attempt < c.opts.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			if err := c.wait(ctx, delay); err != nil {
				return nil, err
			}
		}

		result, usage, callErr := c.doRequest(ctx, payload, model)
		if callErr == nil {
			stage.RecordUsage(usage)
			return result, nil
		}
		lastErr = callErr
		if !core.Retryable(callErr) {
			return nil, callErr
		}
	}
	return nil, core.NewError(core.ErrUpstreamExhausted,
		fmt.Sprintf("gemini failed after %d attempts", c.opts.maxRetries),
		core.WithWrapped(lastErr))
}

// wait blocks for the backoff delay, returning early if the context is
// cancelled while waiting.
func (c *Client) wait(ctx context.Context, delay time.Duration) error {
	if c.opts.sleep != nil {
		select {
		case <-ctx.Done():
			return core.WrapError(ctx.Err(), core.ErrTransient)
		default:
		}
		c.opts.sleep(delay)
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return core.WrapError(ctx.Err(), core.ErrTransient)
	case <-timer.C:
		return nil
	}
}

func (c *Client) Capabilities() core.Capabilities {
	return core.Capabilities{
		Images:          true,
		Files:           true,
		MaxOutputTokens: 8192,
		Provider:        "gemini",
	}
}

func (c *Client) doRequest(ctx context.Context, payload *geminiRequest, model string) (*core.TextResult, obs.UsageTokens, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return nil, obs.UsageTokens{}, core.WrapError(err, core.ErrInternal)
	}
	endpoint := "/models/" + url.PathEscape(model) + ":generateContent"
	fullURL := strings.TrimRight(c.opts.baseURL, "/") + endpoint
	if c.opts.apiKey != "" {
		fullURL += "?key=" + url.QueryEscape(c.opts.apiKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, buf)
	if err != nil {
		return nil, obs.UsageTokens{}, core.WrapError(err, core.ErrInternal)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network-level failures (timeouts, resets) are retryable.
		return nil, obs.UsageTokens{}, core.WrapError(err, core.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("gemini: %s: %s", resp.Status, data)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, obs.UsageTokens{}, core.NewError(core.ErrRateLimited, msg, core.WithStatus(resp.StatusCode))
		case resp.StatusCode >= 500:
			return nil, obs.UsageTokens{}, core.NewError(core.ErrTransient, msg, core.WithStatus(resp.StatusCode))
		default:
			return nil, obs.UsageTokens{}, core.NewError(core.ErrBadInput, msg, core.WithStatus(resp.StatusCode))
		}
	}

	var decoded geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, obs.UsageTokens{}, core.WrapError(fmt.Errorf("decode gemini response: %w", err), core.ErrTransient)
	}
	text := decoded.JoinText()
	if text == "" {
		return nil, obs.UsageTokens{}, core.NewError(core.ErrTransient, "gemini: empty response")
	}
	usage := core.Usage{
		InputTokens:  decoded.UsageMetadata.PromptTokenCount,
		OutputTokens: decoded.UsageMetadata.CandidatesTokenCount,
		TotalTokens:  decoded.UsageMetadata.TotalTokenCount,
	}
	finish := ""
	if len(decoded.Candidates) > 0 {
		finish = decoded.Candidates[0].FinishReason
	}
	return &core.TextResult{
		Text:         text,
		Model:        model,
		Provider:     "gemini",
		FinishReason: finish,
		Usage:        usage,
	}, obs.UsageFromCore(usage), nil
}

func buildRequest(req core.Request, model string) (*geminiRequest, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, errors.New("gemini: request requires messages")
	}
	return &geminiRequest{
		Model:    model,
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}, nil
}

func convertMessages(messages []core.Message) ([]geminiContent, error) {
	contents := make([]geminiContent, 0, len(messages))
	var systemBuffer strings.Builder

	for _, message := range messages {
		// Gemini has no system role; system text is prepended to the first
		// user content below.
		if message.Role == core.System {
			for _, part := range message.Parts {
				if text, ok := part.(core.Text); ok {
					if systemBuffer.Len() > 0 {
						systemBuffer.WriteString("\n")
					}
					systemBuffer.WriteString(text.Text)
				}
			}
			continue
		}

		role := "user"
		if message.Role == core.Assistant {
			role = "model"
		}

		parts := make([]geminiPart, 0, len(message.Parts))
		for _, part := range message.Parts {
			switch p := part.(type) {
			case core.Text:
				if p.Text == "" {
					continue
				}
				parts = append(parts, geminiPart{Text: p.Text})
			case core.Image:
				inline, err := inlineDataFromBlob(p.Source)
				if err != nil {
					return nil, err
				}
				parts = append(parts, geminiPart{InlineData: inline})
			case core.File:
				inline, err := inlineDataFromBlob(p.Source)
				if err != nil {
					return nil, err
				}
				parts = append(parts, geminiPart{InlineData: inline})
			default:
				return nil, fmt.Errorf("unsupported gemini part type %T", part)
			}
		}
		if len(parts) > 0 {
			contents = append(contents, geminiContent{Role: role, Parts: parts})
		}
	}

	if systemBuffer.Len() > 0 {
		systemPart := geminiPart{Text: systemBuffer.String()}
		if len(contents) > 0 && contents[0].Role == "user" {
			contents[0].Parts = append([]geminiPart{systemPart}, contents[0].Parts...)
		} else {
			contents = append([]geminiContent{{Role: "user", Parts: []geminiPart{systemPart}}}, contents...)
		}
	}

	return contents, nil
}

func inlineDataFromBlob(blob core.BlobRef) (*geminiInlineData, error) {
	if err := blob.Validate(); err != nil {
		return nil, fmt.Errorf("validate blob: %w", err)
	}
	data, err := blob.Read()
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	mimeType := blob.MIME
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	encoded, err := core.BlobRef{Kind: core.BlobBytes, Bytes: data, MIME: mimeType}.Base64()
	if err != nil {
		return nil, err
	}
	return &geminiInlineData{MimeType: mimeType, Data: encoded}, nil
}

func chooseModel(request, fallback string) string {
	if request != "" {
		return request
	}
	return fallback
}
