// Package stageexec executes individual pipeline stages against the store.
//
// The Executor owns the mechanics every stage shares: gathering upstream
// artifacts, the inputs-hash and approval skip checks that make resume
// idempotent, the bounded retry loop for transient failures, the optional
// quality check/repair cycle, and best-effort blob upload. Stage-specific
// behaviour lives entirely in the registered generators.
package stageexec
