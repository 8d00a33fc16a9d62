// Package search implements an embedded search index on SQLite. It includes:
//   - Backend: the index.Backend and index.SchemaSource implementation
//   - a field schema table with exact fields and dynamic field patterns
//   - pending writes that become visible on commit
//   - a small field:value query syntax with ranges and prefixes
//
// Documents are stored as JSON so queries can use the json1 functions.
package search
