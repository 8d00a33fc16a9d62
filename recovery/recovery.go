// Package recovery answers the questions a feed asks after a restart or a
// rollback: which document was applied last, and which documents were
// applied within a timestamp range.
package recovery

import (
	"context"
	"fmt"

	"github.com/juju/errors"

	"github.com/viant/searchsync/index"
)

const (
	// DefaultTimestampField holds the upstream operation timestamp.
	DefaultTimestampField = "_ts"

	// UnboundedRows caps range queries at a size no real range reaches.
	UnboundedRows = 100000000
)

// Options configures a Querier.
type Options struct {
	TimestampField string
	Retry          index.RetryPolicy
}

// Querier runs recovery queries against one backend.
type Querier struct {
	backend index.Backend
	opts    Options
}

// New returns a Querier for backend.
func New(backend index.Backend, opts Options) (*Querier, error) {
	if backend == nil {
		return nil, errors.NotValidf("missing Backend")
	}
	if opts.TimestampField == "" {
		opts.TimestampField = DefaultTimestampField
	}
	if err := opts.Retry.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Querier{backend: backend, opts: opts}, nil
}

// LastApplied returns the document with the greatest timestamp. It reports
// false, without error, when the index is empty or the backend cannot
// decode the values it holds.
func (q *Querier) LastApplied(ctx context.Context) (index.Document, bool, error) {
	req := index.QueryRequest{
		Q:    index.MatchAll,
		Sort: []index.SortField{{Field: q.opts.TimestampField, Desc: true}},
		Rows: 1,
	}
	docs, err := q.query(ctx, req)
	if err != nil {
		return nil, false, errors.Annotate(err, "querying last applied document")
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	return docs[0], true, nil
}

// Range returns the documents whose timestamp lies in [start, end].
func (q *Querier) Range(ctx context.Context, start, end int64) ([]index.Document, error) {
	req := index.QueryRequest{
		Q:    fmt.Sprintf("%s:[%d TO %d]", q.opts.TimestampField, start, end),
		Rows: UnboundedRows,
	}
	docs, err := q.query(ctx, req)
	if err != nil {
		return nil, errors.Annotatef(err, "querying documents in [%d, %d]", start, end)
	}
	return docs, nil
}

func (q *Querier) query(ctx context.Context, req index.QueryRequest) ([]index.Document, error) {
	var docs []index.Document
	err := index.Call(q.opts.Retry, "query", func() error {
		var err error
		docs, err = q.backend.Query(context.WithoutCancel(ctx), req)
		return err
	})
	if errors.Is(err, index.ValueFormat) {
		logger.Debugf("query %q: treating value format error as no result: %v", req.Q, err)
		return nil, nil
	}
	return docs, errors.Trace(err)
}
