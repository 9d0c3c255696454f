// Package api defines the transport-facing views of jobs, approvals, and
// artifacts, and the JobService facade the daemon and CLI share. Views are
// plain JSON DTOs; no handler code lives here.
package api
