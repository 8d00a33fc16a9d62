package schema

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/viant/searchsync/index"
)

var logger = loggo.GetLogger("searchsync.schema")

// Filter holds the current snapshot for one backend and rebuilds it on
// request.
type Filter struct {
	src     index.SchemaSource
	require bool

	mu   sync.RWMutex
	snap *Snapshot
}

// NewFilter builds the initial snapshot from src. When the schema cannot be
// read and requireSchema is false, the filter starts in pass-through mode;
// otherwise the error is returned.
func NewFilter(ctx context.Context, src index.SchemaSource, requireSchema bool) (*Filter, error) {
	f := &Filter{src: src, require: requireSchema}
	if err := f.Rebuild(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	return f, nil
}

// Rebuild re-reads the schema. On failure the previous snapshot is kept,
// unless there is none yet.
func (f *Filter) Rebuild(ctx context.Context) error {
	snap, err := Build(ctx, f.src)
	if err != nil {
		if f.require {
			return errors.Trace(err)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.snap == nil {
			logger.Warningf("no schema available, indexing all fields: %v", err)
			f.snap = Empty()
		} else {
			logger.Warningf("schema rebuild failed, keeping previous snapshot: %v", err)
		}
		return nil
	}
	if snap.IsEmpty() {
		logger.Warningf("backend declares no fields, indexing all fields")
	} else {
		logger.Debugf("schema loaded: %d fields, %d dynamic patterns", len(snap.Fields()), len(snap.patterns))
	}
	f.mu.Lock()
	f.snap = snap
	f.mu.Unlock()
	return nil
}

// Snapshot returns the snapshot currently in use.
func (f *Filter) Snapshot() *Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snap
}

// Apply filters doc against the current snapshot.
func (f *Filter) Apply(doc index.Document) index.Document {
	return f.Snapshot().Filter(doc)
}
