package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"rematrix/internal/logging"
	"rematrix/internal/services"
	"rematrix/internal/services/llm"
	"rematrix/internal/stage"
)

// Completer is the slice of the LLM client the generators need.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
	Temperature() float64
}

// llmGenerator produces one stage's document via an LLM completion and
// validates it against the stage contract. Schema misses are reported as
// transient so the executor regenerates instead of failing the job.
type llmGenerator struct {
	client   Completer
	stage    stage.Stage
	system   string
	user     func(in stage.Input) string
	contract *contract
	logger   *slog.Logger
}

func newLLMGenerator(client Completer, st stage.Stage, system string, user func(stage.Input) string, contract *contract, logger *slog.Logger) *llmGenerator {
	return &llmGenerator{
		client:   client,
		stage:    st,
		system:   system + "\n\n# output_schema\n" + contract.source,
		user:     user,
		contract: contract,
		logger:   logging.NewComponentLogger(logger, "generation"),
	}
}

func (g *llmGenerator) Generate(ctx context.Context, in stage.Input) (*stage.Output, error) {
	content, err := g.client.CompleteJSON(ctx, g.system, g.user(in))
	if err != nil {
		return nil, err
	}
	doc, err := decodeDocument(content)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, string(g.stage), "decode output", err.Error(), nil)
	}
	if err := g.contract.validate(doc); err != nil {
		return nil, services.Wrap(services.ErrTransient, string(g.stage), "contract violation", err.Error(), nil)
	}
	return &stage.Output{
		Content:     doc,
		ContentType: "application/json",
		Provenance: stage.Provenance{
			Model:         g.client.Model(),
			Temperature:   g.client.Temperature(),
			SchemaVersion: g.contract.version,
		},
	}, nil
}

// qaResult is the reviewer document the check prompt asks for.
type qaResult struct {
	Status  string `json:"status"`
	Summary string `json:"summary"`
	Issues  []struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"issues"`
	ActionPlan struct {
		SpecificInstructions []string `json:"specific_instructions"`
	} `json:"action_plan"`
}

// Check asks the model to review a candidate document.
func (g *llmGenerator) Check(ctx context.Context, in stage.Input, candidate json.RawMessage) (stage.QualityReport, error) {
	user := fmt.Sprintf("<stage>%s</stage>\n<original_json>\n%s\n</original_json>", g.stage, candidate)
	content, err := g.client.CompleteJSON(ctx, checkSystem, user)
	if err != nil {
		return stage.QualityReport{}, err
	}
	var qa qaResult
	if err := llm.DecodeLLMJSON(content, &qa); err != nil {
		return stage.QualityReport{}, fmt.Errorf("decode quality report: %w", err)
	}
	report := stage.QualityReport{
		Pass:         strings.EqualFold(qa.Status, "PASS"),
		Summary:      qa.Summary,
		Instructions: qa.ActionPlan.SpecificInstructions,
	}
	for _, issue := range qa.Issues {
		report.Issues = append(report.Issues, stage.QualityIssue{Type: issue.Type, Description: issue.Description})
	}
	return report, nil
}

// Repair regenerates a candidate from the reviewer's findings. The repaired
// document must still satisfy the stage contract.
func (g *llmGenerator) Repair(ctx context.Context, in stage.Input, candidate json.RawMessage, report stage.QualityReport) (json.RawMessage, error) {
	issues, err := json.Marshal(report.Issues)
	if err != nil {
		return nil, err
	}
	user := fmt.Sprintf("<stage>%s</stage>\n<original_json>\n%s\n</original_json>\n<issues>\n%s\n</issues>\n<instructions>\n%s\n</instructions>\n\n# output_schema\n%s",
		g.stage, candidate, issues, strings.Join(report.Instructions, "\n"), g.contract.source)
	content, err := g.client.CompleteJSON(ctx, repairSystem, user)
	if err != nil {
		return nil, err
	}
	doc, err := decodeDocument(content)
	if err != nil {
		return nil, fmt.Errorf("decode repaired document: %w", err)
	}
	if err := g.contract.validate(doc); err != nil {
		return nil, fmt.Errorf("repaired document violates contract: %w", err)
	}
	return doc, nil
}

func decodeDocument(content string) (json.RawMessage, error) {
	var doc json.RawMessage
	if err := llm.DecodeLLMJSON(content, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
