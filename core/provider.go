package core

import "context"

// Provider is the boundary to an external generative model. It is the only
// place network calls to the model occur; callers pass text and image parts
// and receive generated text back.
type Provider interface {
	GenerateText(ctx context.Context, req Request) (*TextResult, error)
	Capabilities() Capabilities
}

// Capabilities describes the features supported by a provider.
type Capabilities struct {
	Images bool
	Files  bool

	MaxOutputTokens int

	Provider string
	Models   []string
}

// TextResult is the outcome of a successful generation call.
type TextResult struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// Usage captures token accounting reported by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
