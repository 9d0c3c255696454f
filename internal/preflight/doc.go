// Package preflight verifies the runtime environment before jobs run:
// directory access, workspace free space, external tool availability, and
// LLM API reachability.
package preflight
