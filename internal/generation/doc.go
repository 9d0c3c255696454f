// Package generation holds the per-stage content builders. The five document
// stages (PLAN through PAGES) assemble prompts from the source markdown and
// upstream artifacts, call the LLM in JSON mode, and validate the result
// against an embedded JSON Schema contract. TTS, RENDER, and MERGE drive
// ffmpeg and a headless browser through internal/media.
package generation
