package stage

import "time"

// ArtifactType distinguishes the payload kind a stage produces.
type ArtifactType string

const (
	ArtifactJSON  ArtifactType = "JSON"
	ArtifactAudio ArtifactType = "AUDIO"
	ArtifactVideo ArtifactType = "VIDEO"
)

// RetryPolicy bounds transient-failure retries for a stage execution.
// Delays grow exponentially from BaseDelay and are capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay returns the backoff before the attempt following the given 1-based
// attempt number.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && delay > p.MaxDelay/2 {
			return p.MaxDelay
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Attempts returns the effective attempt budget (at least one).
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// QualityLoop configures the optional check/repair cycle run after the
// initial generation. MaxAttempts bounds the number of check→repair rounds.
type QualityLoop struct {
	Enabled     bool
	MaxAttempts int
}

// Definition carries the static metadata the orchestrator and executor need
// for one stage. The registry is the only place encoding pipeline shape.
type Definition struct {
	Stage            Stage
	RequiresApproval bool
	DependsOn        []Stage
	Output           ArtifactType
	// IncludeMarkdown marks stages whose inputs hash and prompt include the
	// raw markdown submitted with the job.
	IncludeMarkdown bool
	Timeout         time.Duration
	Retry           RetryPolicy
	Quality         QualityLoop
}

var defaultRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

var definitions = []Definition{
	{
		Stage:            Plan,
		RequiresApproval: true,
		Output:           ArtifactJSON,
		IncludeMarkdown:  true,
		Timeout:          2 * time.Minute,
		Retry:            defaultRetry,
		Quality:          QualityLoop{Enabled: true, MaxAttempts: 2},
	},
	{
		Stage:           Outline,
		DependsOn:       []Stage{Plan},
		Output:          ArtifactJSON,
		IncludeMarkdown: true,
		Timeout:         2 * time.Minute,
		Retry:           defaultRetry,
		Quality:         QualityLoop{Enabled: true, MaxAttempts: 2},
	},
	{
		Stage:     Storyboard,
		DependsOn: []Stage{Outline},
		Output:    ArtifactJSON,
		Timeout:   2 * time.Minute,
		Retry:     defaultRetry,
		Quality:   QualityLoop{Enabled: true, MaxAttempts: 2},
	},
	{
		Stage:           Narration,
		DependsOn:       []Stage{Storyboard},
		Output:          ArtifactJSON,
		IncludeMarkdown: true,
		Timeout:         2 * time.Minute,
		Retry:           defaultRetry,
		Quality:         QualityLoop{Enabled: true, MaxAttempts: 2},
	},
	{
		Stage:            Pages,
		RequiresApproval: true,
		DependsOn:        []Stage{Storyboard, Narration},
		Output:           ArtifactJSON,
		Timeout:          2 * time.Minute,
		Retry:            defaultRetry,
		Quality:          QualityLoop{Enabled: true, MaxAttempts: 2},
	},
	{
		Stage:     TTS,
		DependsOn: []Stage{Narration},
		Output:    ArtifactAudio,
		Timeout:   5 * time.Minute,
		Retry:     defaultRetry,
	},
	{
		Stage:     Render,
		DependsOn: []Stage{Pages},
		Output:    ArtifactJSON,
		Timeout:   10 * time.Minute,
		Retry:     defaultRetry,
	},
	{
		Stage:     Merge,
		DependsOn: []Stage{Render, Pages, TTS},
		Output:    ArtifactVideo,
		Timeout:   10 * time.Minute,
		Retry:     defaultRetry,
	},
}

var definitionIndex = func() map[Stage]Definition {
	idx := make(map[Stage]Definition, len(definitions))
	for _, def := range definitions {
		idx[def.Stage] = def
	}
	return idx
}()

// Definitions returns the executable stage definitions in pipeline order.
func Definitions() []Definition {
	cp := make([]Definition, len(definitions))
	copy(cp, definitions)
	return cp
}

// DefinitionFor looks up the definition for a stage. DONE has no definition.
func DefinitionFor(s Stage) (Definition, bool) {
	def, ok := definitionIndex[s]
	return def, ok
}

// GatedStages returns the stages that require human approval, in order.
func GatedStages() []Stage {
	var gated []Stage
	for _, def := range definitions {
		if def.RequiresApproval {
			gated = append(gated, def.Stage)
		}
	}
	return gated
}
