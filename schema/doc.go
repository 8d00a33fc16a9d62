// Package schema narrows documents to the fields a search backend declares.
//
// A Snapshot is built once from a single schema read and holds the exact
// field names plus the dynamic field patterns, each with one leading or
// trailing wildcard:
//
//	snap, err := schema.Build(ctx, backend)
//	doc = snap.Filter(doc)
//
// A snapshot without exact fields filters nothing. Snapshots never refresh
// themselves; Filter.Rebuild re-reads the schema on demand.
package schema
