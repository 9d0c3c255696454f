// Package llm wraps the OpenRouter-compatible chat completion API used by
// the generation stages.
//
// The client makes exactly one request per call and tags failures with
// services error markers so the stage executor can decide what to retry.
// DecodeLLMJSON tolerates the usual model formatting quirks (code fences,
// surrounding prose) when extracting JSON payloads.
package llm
