package forge

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"meshforge.app/studio/common/llm"
	"meshforge.app/studio/common/logger"
)

const visionSystemPrompt = `You are a 3D model reviewer. You are shown the original modeling request and a rendered preview image of the generated model. The user has rejected this preview.

Compare the preview against the request and identify what is wrong: missing features, wrong proportions, misplaced parts, degenerate geometry, or anything else that fails the request. Then propose a concrete remediation plan for the next generation attempt.

Respond with JSON matching the provided schema: an "issues" array of short observations and a "plan" string describing how to fix them.`

// genericPlan is used when vision analysis produces nothing actionable. The
// retry still carries a non-empty plan so the generator has something to act
// on.
const genericPlan = "Regenerate the model from scratch, re-reading the original request carefully and double-checking every named feature, dimension and proportion."

const defaultVisionMaxTokens = 2048

// RejectionAnalysis is the structured outcome of inspecting a rejected
// preview. Plan is always non-empty.
type RejectionAnalysis struct {
	Issues []string `json:"issues" jsonschema_description:"Short observations of what is wrong with the rendered preview"`
	Plan   string   `json:"plan" jsonschema_description:"Concrete remediation plan for the next generation attempt"`
}

// RejectionAnalyzer turns a rejected preview image into remediation guidance.
type RejectionAnalyzer interface {
	Analyze(ctx context.Context, originalPrompt string, imageDataURL string) RejectionAnalysis
}

var rejectionSchema = llm.GenerateSchema[RejectionAnalysis]()

// VisionAnalyzer implements RejectionAnalyzer on a vision-capable LLM. It
// never fails: degraded analyses fall back to the raw model response or to a
// generic plan, so a flaky vision model cannot block the rejection retry.
type VisionAnalyzer struct {
	client    llm.VisionClient
	maxTokens int
}

func NewVisionAnalyzer(client llm.VisionClient, maxTokens int) *VisionAnalyzer {
	if maxTokens <= 0 {
		maxTokens = defaultVisionMaxTokens
	}
	return &VisionAnalyzer{client: client, maxTokens: maxTokens}
}

func (v *VisionAnalyzer) Analyze(ctx context.Context, originalPrompt string, imageDataURL string) RejectionAnalysis {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "studio.forge.vision"})

	req := llm.VisionRequest{
		SystemPrompt: visionSystemPrompt,
		Prompt:       "Original request: " + originalPrompt,
		ImageDataURL: imageDataURL,
		SchemaName:   "rejection_analysis",
		Schema:       rejectionSchema,
		MaxTokens:    v.maxTokens,
	}

	raw, err := v.client.VisionCompletion(ctx, req)
	if err != nil && llm.IsRetryable(ctx, err) {
		raw, err = v.client.VisionCompletion(ctx, req)
	}
	if err != nil {
		slog.WarnContext(ctx, "vision analysis failed, falling back to generic plan", "error", err)
		return RejectionAnalysis{Plan: genericPlan}
	}

	var analysis RejectionAnalysis
	if jsonErr := json.Unmarshal([]byte(raw), &analysis); jsonErr != nil {
		// Some models wrap or decorate the JSON; treat the whole response as
		// the plan rather than discarding it.
		slog.WarnContext(ctx, "vision analysis returned non-JSON response, using raw text as plan", "error", jsonErr)
		plan := strings.TrimSpace(raw)
		if plan == "" {
			plan = genericPlan
		}
		return RejectionAnalysis{Plan: plan}
	}
	if strings.TrimSpace(analysis.Plan) == "" {
		analysis.Plan = genericPlan
	}
	return analysis
}
