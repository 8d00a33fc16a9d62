// Package docsync applies a MongoDB oplog to a search backend. A Manager
// runs each upstream document through a transformer, the schema filter and
// the bulk buffer, and uses the recovery queries to resume after a restart.
package docsync
