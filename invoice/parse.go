package invoice

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/calebmoss/invoiceflow/core"
)

// ParseItems extracts the JSON array of line items from a raw model reply.
// Markdown code fences are stripped and the reply is sliced from the first
// '[' to the last ']' before decoding.
func ParseItems(reply string) ([]LineItem, error) {
	cleaned := strings.TrimSpace(reply)

	if strings.HasPrefix(cleaned, "```json") {
		cleaned = cleaned[len("```json"):]
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = cleaned[len("```"):]
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end == -1 || end < start {
		return nil, core.NewError(core.ErrParse, "reply contains no JSON array")
	}
	cleaned = cleaned[start : end+1]

	var items []LineItem
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, core.WrapError(fmt.Errorf("decode line items: %w", err), core.ErrParse)
	}
	for i, li := range items {
		if err := li.Validate(); err != nil {
			return nil, core.WrapError(fmt.Errorf("item %d: %w", i, err), core.ErrParse)
		}
	}
	return items, nil
}
