// Package blob uploads binary stage payloads (audio, video) to external
// storage. Uploads are best-effort: the pipeline records the returned public
// URL when available and carries on without one when storage is down.
package blob
