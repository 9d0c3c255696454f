// Package daemon assembles the pipeline into the long-running rematrixd
// process: store, generators, executor, workflow manager, an HTTP API with
// optional bearer-token auth, and a lock file guaranteeing a single instance
// per machine.
package daemon
