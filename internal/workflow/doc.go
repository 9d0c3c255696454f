// Package workflow drives jobs through the generation pipeline.
//
// The Manager launches one goroutine per active job. Each runner walks the
// stage registry in order, delegating stage mechanics to the executor, and
// parks at approval gates until a human decision arrives. All progress lives
// in the store: the manager can be killed at any point and Resume rebuilds
// the exact same state from the jobs, artifacts, and approvals tables.
//
// Approval decisions are persisted before the waiting runner is woken, so
// decisions made while the daemon is down (or against another process's
// database) apply on the next start.
package workflow
