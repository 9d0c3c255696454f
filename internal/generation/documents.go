package generation

// PlanDoc is the PLAN stage document: scale estimates and clarifying
// questions a reviewer resolves at the first approval gate.
type PlanDoc struct {
	EstimatedPages       int      `json:"estimatedPages"`
	EstimatedDurationSec int      `json:"estimatedDurationSec"`
	Style                string   `json:"style"`
	Questions            []string `json:"questions,omitempty"`
}

// OutlineDoc is the OUTLINE stage document.
type OutlineDoc struct {
	Title    string           `json:"title"`
	Sections []OutlineSection `json:"sections"`
}

type OutlineSection struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// StoryboardDoc is the STORYBOARD stage document: one entry per video page.
type StoryboardDoc struct {
	Pages []StoryboardPage `json:"pages"`
}

type StoryboardPage struct {
	Page           int      `json:"page"`
	Visual         []string `json:"visual"`
	NarrationHints []string `json:"narrationHints"`
}

// NarrationDoc is the NARRATION stage document: spoken text per page.
type NarrationDoc struct {
	Pages []NarrationPage `json:"pages"`
}

type NarrationPage struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// PagesDoc is the PAGES stage document: renderable slides plus theme,
// reviewed at the second approval gate.
type PagesDoc struct {
	Theme  SlideTheme `json:"theme"`
	Slides []SlideDoc `json:"slides"`
}

type SlideTheme struct {
	Primary    string `json:"primary"`
	Background string `json:"background"`
	Text       string `json:"text"`
}

type SlideDoc struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// AudioDescriptor is the JSON content of a TTS artifact. The mp3 bytes
// travel as the artifact payload; AudioPath points at the workspace copy the
// MERGE stage muxes in.
type AudioDescriptor struct {
	Format      string  `json:"format"`
	DurationSec float64 `json:"durationSec"`
	PageCount   int     `json:"pageCount"`
	SampleRate  int     `json:"sampleRate"`
	AudioPath   string  `json:"audioPath"`
}

// RenderDescriptor is the JSON content of a RENDER artifact: where the
// screenshot frames live and how many were produced.
type RenderDescriptor struct {
	FrameCount int         `json:"frameCount"`
	FrameDir   string      `json:"frameDir"`
	Frames     []FrameInfo `json:"frames"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
}

type FrameInfo struct {
	Index int    `json:"index"`
	File  string `json:"file"`
}

// VideoDescriptor is the JSON content of a MERGE artifact. The mp4 bytes
// travel as the artifact payload.
type VideoDescriptor struct {
	Format      string  `json:"format"`
	DurationSec float64 `json:"durationSec"`
	FrameCount  int     `json:"frameCount"`
	HasAudio    bool    `json:"hasAudio"`
	VideoPath   string  `json:"videoPath"`
}
