// Package store persists jobs, versioned artifacts, and approval decisions in
// SQLite.
//
// The database is the single source of truth for pipeline progress: a
// restarted daemon reconstructs everything from the jobs table's current
// stage, the artifact versions, and the approval rows. Writes that express
// progress are shaped to be safe under replay: stage advances are monotonic
// and artifact versions are allocated inside the insert.
package store
