// Package index defines the contracts between the synchronization pipeline
// and a search backend: the flat document model, the backend and schema
// source interfaces, the error kinds shared by every backend, and the
// per-call retry policy used when talking to a backend.
package index
