package obs

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestStageLifecycle(t *testing.T) {
	// Without Init the tracer is a noop; the stage must still work.
	ctx, stage := StartStage(context.Background(), "invoice.Process",
		attribute.String("ai.provider", "gemini"))
	if ctx == nil || stage == nil {
		t.Fatal("StartStage returned nil")
	}
	stage.Session("abc-123")
	stage.RecordUsage(UsageTokens{InputTokens: 10, OutputTokens: 5, TotalTokens: 15})
	stage.End(errors.New("boom"))
}

func TestStageNilSafe(t *testing.T) {
	var stage *Stage
	stage.AddAttributes(attribute.String("k", "v"))
	stage.RecordUsage(UsageTokens{})
	stage.End(nil)
}
