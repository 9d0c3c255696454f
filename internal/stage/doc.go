// Package stage defines the fixed generation pipeline: the ordered Stage
// enum, the static registry describing each stage (approval gating,
// dependencies, artifact type, timeout, retry policy, quality loop), and the
// Generator contract stage implementations satisfy.
//
// The registry is the single source of pipeline shape. The orchestrator and
// executor read it; nothing else hard-codes stage order. Add a stage by
// extending the enum order and appending a Definition.
package stage
