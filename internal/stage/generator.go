package stage

import (
	"context"
	"encoding/json"
)

// Input carries everything a generator may need to produce a stage's output.
type Input struct {
	JobID    string
	Stage    Stage
	Markdown string
	// Upstream maps each dependency stage to the content of its latest
	// artifact. Missing dependencies are absent from the map.
	Upstream map[Stage]json.RawMessage
	// UpstreamVersions records the artifact version each upstream entry came
	// from, for provenance metadata.
	UpstreamVersions map[Stage]int
	// Version is the artifact version the output will be stored under.
	Version int
	// Feedback carries the rejection reason when a gated stage is being
	// regenerated after a human sent it back.
	Feedback string
}

// Output is the result of one generation call. Content is the document
// persisted as the artifact body; Payload, when present, is the binary
// uploaded to blob storage.
type Output struct {
	Content     json.RawMessage
	Payload     []byte
	ContentType string
	// Ext names the blob file extension including the dot, e.g. ".mp3".
	Ext string
	// Meta carries generator-specific provenance merged into the artifact meta.
	Meta map[string]any
	// Provenance records how the content was produced.
	Provenance Provenance
}

// Provenance identifies the model and contract a generated document came from.
type Provenance struct {
	Model         string
	Temperature   float64
	SchemaVersion int
}

// Generator produces a stage's output from its inputs. Implementations
// report transient failures with services.ErrTransient so the executor can
// retry them; any other error is fatal to the job.
type Generator interface {
	Generate(ctx context.Context, in Input) (*Output, error)
}

// QualityIssue is one structured finding from a quality check.
type QualityIssue struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// QualityReport is the outcome of one quality-check pass.
type QualityReport struct {
	Pass         bool
	Summary      string
	Issues       []QualityIssue
	Instructions []string
}

// QualityChecker evaluates a candidate output. Generators that support the
// check/repair loop implement this alongside Repairer.
type QualityChecker interface {
	Check(ctx context.Context, in Input, candidate json.RawMessage) (QualityReport, error)
}

// Repairer regenerates a candidate using the issues from a failed check.
type Repairer interface {
	Repair(ctx context.Context, in Input, candidate json.RawMessage, report QualityReport) (json.RawMessage, error)
}
