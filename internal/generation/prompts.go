package generation

import (
	"strings"

	"rematrix/internal/stage"
)

// System prompts per LLM stage. Each generator appends the stage contract
// schema so the model sees the exact output shape.
const (
	planSystem = `You are the planning assistant of a markdown-to-video pipeline.
Given a Markdown document, produce a production plan for a short explainer
video: how many pages it needs, roughly how long it runs, what visual style
fits, and any open questions a human reviewer should settle.
Respond with strict JSON matching the schema below. No prose, no code fences.`

	outlineSystem = `You are the outline assistant of a markdown-to-video pipeline.
Given the source Markdown and the approved plan, produce an outline: a video
title and a list of sections, each with a short title and concise bullets.
Respond with strict JSON matching the schema below. No prose, no code fences.`

	storyboardSystem = `You are the storyboard assistant of a markdown-to-video pipeline.
Given the outline, break the video into numbered pages. For each page list
the visual elements to show and hints for the narration to come.
Pages are numbered from 1 without gaps.
Respond with strict JSON matching the schema below. No prose, no code fences.`

	narrationSystem = `You are the narration writer of a markdown-to-video pipeline.
Given the storyboard and the source Markdown, write the spoken text for each
page. Keep the page numbers aligned with the storyboard. Write naturally, as
if read aloud.
Respond with strict JSON matching the schema below. No prose, no code fences.`

	pagesSystem = `You are the slide-script assistant of a markdown-to-video pipeline.
Given the storyboard and the narration, produce the renderable slide deck:
a coherent color theme and one slide per page with a clear title and 3 to 6
bullets. Keep the slide count aligned with the storyboard.
Respond with strict JSON matching the schema below. No prose, no code fences.`
)

// Quality loop prompts shared by all LLM stages.
const (
	checkSystem = `You are a strict quality reviewer for generated pipeline documents.
Evaluate the document for completeness, internal consistency, and fitness
for the stage it belongs to. Respond with strict JSON:
{"status": "PASS" | "FAIL", "summary": string,
 "issues": [{"type": string, "description": string}],
 "action_plan": {"specific_instructions": [string]}}
No prose, no code fences.`

	repairSystem = `You repair generated pipeline documents.
You receive a document, the issues a reviewer found, and repair instructions.
Return the corrected document as strict JSON matching the original schema.
Change only what the issues require. No prose, no code fences.`
)

func joinSections(sections ...string) string {
	var parts []string
	for _, section := range sections {
		if strings.TrimSpace(section) != "" {
			parts = append(parts, section)
		}
	}
	return strings.Join(parts, "\n\n")
}

func markdownSection(in stage.Input) string {
	if in.Markdown == "" {
		return ""
	}
	return "# Markdown\n" + in.Markdown
}

func upstreamSection(in stage.Input, dep stage.Stage) string {
	doc, ok := in.Upstream[dep]
	if !ok {
		return ""
	}
	return "# " + string(dep) + "(JSON)\n" + string(doc)
}

func feedbackSection(in stage.Input) string {
	if strings.TrimSpace(in.Feedback) == "" {
		return ""
	}
	return "# Reviewer feedback\nA reviewer rejected the previous version for the reason below. Address it before anything else.\n" + in.Feedback
}

func planUserPrompt(in stage.Input) string {
	return joinSections(markdownSection(in), feedbackSection(in))
}

func outlineUserPrompt(in stage.Input) string {
	return joinSections(markdownSection(in), upstreamSection(in, stage.Plan), feedbackSection(in))
}

func storyboardUserPrompt(in stage.Input) string {
	return joinSections(upstreamSection(in, stage.Outline), feedbackSection(in))
}

func narrationUserPrompt(in stage.Input) string {
	return joinSections(upstreamSection(in, stage.Storyboard), markdownSection(in), feedbackSection(in))
}

func pagesUserPrompt(in stage.Input) string {
	return joinSections(upstreamSection(in, stage.Storyboard), upstreamSection(in, stage.Narration), feedbackSection(in))
}
