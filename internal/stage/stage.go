package stage

import "strings"

// Stage identifies one step of the generation pipeline. The declaration
// order below is the execution order.
type Stage string

const (
	Plan       Stage = "PLAN"
	Outline    Stage = "OUTLINE"
	Storyboard Stage = "STORYBOARD"
	Narration  Stage = "NARRATION"
	Pages      Stage = "PAGES"
	TTS        Stage = "TTS"
	Render     Stage = "RENDER"
	Merge      Stage = "MERGE"
	Done       Stage = "DONE"
)

var order = []Stage{Plan, Outline, Storyboard, Narration, Pages, TTS, Render, Merge, Done}

var orderIndex = func() map[Stage]int {
	idx := make(map[Stage]int, len(order))
	for i, s := range order {
		idx[s] = i + 1
	}
	return idx
}()

// All returns the ordered list of stages including the terminal DONE marker.
func All() []Stage {
	cp := make([]Stage, len(order))
	copy(cp, order)
	return cp
}

// Pipeline returns the executable stages in order (everything before DONE).
func Pipeline() []Stage {
	return All()[:len(order)-1]
}

// Parse converts a string into a known Stage.
func Parse(value string) (Stage, bool) {
	normalized := Stage(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := orderIndex[normalized]; !ok {
		return "", false
	}
	return normalized, true
}

// Index returns the 1-based position of the stage in the pipeline order,
// or 0 for an unknown stage.
func (s Stage) Index() int {
	return orderIndex[s]
}

// AtOrAfter reports whether s sits at or past target in pipeline order.
// Unknown stages compare as before everything.
func (s Stage) AtOrAfter(target Stage) bool {
	return s.Index() >= target.Index()
}

// Next returns the stage following s, or DONE when s is the last stage.
func (s Stage) Next() Stage {
	idx := s.Index()
	if idx == 0 || idx >= len(order) {
		return Done
	}
	return order[idx]
}
