package stageexec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"rematrix/internal/stage"
)

// hashInputs is the canonical form fed into the inputs hash. Map keys are
// sorted by encoding/json, so two equal input sets always produce the same
// digest.
type hashInputs struct {
	Stage    stage.Stage                `json:"stage"`
	Markdown string                     `json:"markdown,omitempty"`
	Upstream map[string]json.RawMessage `json:"upstream,omitempty"`
}

// InputsHash digests everything that determines a stage's output: the stage
// name, the job markdown when the stage consumes it, and the content of each
// upstream artifact. A stored artifact whose hash matches the current inputs
// is still valid and the stage can be skipped on resume.
func InputsHash(def stage.Definition, markdown string, upstream map[stage.Stage]json.RawMessage) (string, error) {
	inputs := hashInputs{Stage: def.Stage}
	if def.IncludeMarkdown {
		inputs.Markdown = markdown
	}
	if len(upstream) > 0 {
		inputs.Upstream = make(map[string]json.RawMessage, len(upstream))
		for dep, content := range upstream {
			inputs.Upstream[string(dep)] = compactJSON(content)
		}
	}

	encoded, err := json.Marshal(inputs)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(encoded)
	return hex.EncodeToString(digest[:]), nil
}

// compactJSON normalizes whitespace and object key order so formatting
// differences do not change the digest.
func compactJSON(raw json.RawMessage) json.RawMessage {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return raw
	}
	compact, err := json.Marshal(decoded)
	if err != nil {
		return raw
	}
	return compact
}
