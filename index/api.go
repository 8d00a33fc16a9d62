package index

import "context"

// Document is a flat mapping of backend field name to a scalar or an array
// of scalars. Documents produced by the pipeline always carry the upstream
// identifier under both its upstream name and the canonical id field.
type Document map[string]interface{}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// FieldInfo carries the backend metadata declared for a field. Only the name
// matters to the pipeline; the rest is informational.
type FieldInfo struct {
	Type        string
	MultiValued bool
}

// SchemaDescription is the structured result of a single schema read. Fields
// holds exact field names, DynamicFields holds wildcard patterns such as
// "cs_*" or "*_term".
type SchemaDescription struct {
	Fields        map[string]FieldInfo
	DynamicFields map[string]FieldInfo
}

// SchemaSource reads the backend's declared field schema.
type SchemaSource interface {
	// Read performs one administrative read of the field schema.
	Read(ctx context.Context) (*SchemaDescription, error)
}

// SortField orders query results by a single field.
type SortField struct {
	Field string
	Desc  bool
}

// QueryRequest describes a backend query. Q uses the field:value syntax,
// "*:*" matches every document.
type QueryRequest struct {
	Q    string
	Sort []SortField
	Rows int
}

// Backend defines the write and query operations the pipeline needs from a
// search engine. All calls are synchronous request/response. Implementations
// tag failures with BackendRejected, BackendUnavailable or ValueFormat so
// callers can apply the right policy.
type Backend interface {
	// BulkUpsert adds or replaces docs, keyed by the backend's unique key.
	// When commit is true the documents are visible to queries on return.
	BulkUpsert(ctx context.Context, docs []Document, commit bool) error

	// DeleteByID removes the document with the given id.
	DeleteByID(ctx context.Context, id string, commit bool) error

	// DeleteByQuery removes every document matching query.
	DeleteByQuery(ctx context.Context, query string, commit bool) error

	// Query returns committed documents matching the request.
	Query(ctx context.Context, req QueryRequest) ([]Document, error)

	// Commit makes every pending write visible.
	Commit(ctx context.Context) error
}

// MatchAll is the query matching every document.
const MatchAll = "*:*"
