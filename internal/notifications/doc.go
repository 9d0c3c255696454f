// Package notifications delivers workflow events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. The events cover the moments a human has to act: a stage parked
// at an approval gate, a finished video, and a failed job.
//
// Extend this package if you need alternative transports; all workflow code
// depends only on the simple Service interface.
package notifications
