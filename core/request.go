package core

// Request represents a single generation request.
type Request struct {
	Model string `json:"model,omitempty"`

	Messages []Message `json:"messages"`

	Temperature float32 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Clone returns a shallow copy of the request with safe duplication of the
// message slice and metadata map.
func (r Request) Clone() Request {
	clone := r
	if len(r.Messages) > 0 {
		clone.Messages = append([]Message(nil), r.Messages...)
	}
	if r.Metadata != nil {
		clone.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}
