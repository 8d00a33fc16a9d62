package bulk

import (
	"context"
	"sync"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/viant/searchsync/index"
	"github.com/viant/searchsync/internal/docpath"
)

var logger = loggo.GetLogger("searchsync.bulk")

const (
	// DefaultThreshold is the number of buffered documents that triggers a
	// flush.
	DefaultThreshold = 1000

	// DefaultIDField identifies buffered documents for Remove.
	DefaultIDField = "id"
)

// Config encapsulates the configuration options for a Buffer.
type Config struct {
	Backend index.Backend

	// Threshold is the buffered document count that triggers a flush.
	Threshold int

	// IDField names the document field compared against Remove ids.
	IDField string

	// Retry applies to every backend call made by the buffer.
	Retry index.RetryPolicy

	Metrics *Metrics
	Clock   clock.Clock
}

// Validate ensures that the config values are valid.
func (c Config) Validate() error {
	if c.Backend == nil {
		return errors.NotValidf("missing Backend")
	}
	if c.Threshold <= 0 {
		return errors.NotValidf("bulk flush threshold %d", c.Threshold)
	}
	return errors.Trace(c.Retry.Validate())
}

// Stats counts buffer activity since creation.
type Stats struct {
	// Flushes counts successful bulk upserts.
	Flushes int
	// Flushed counts documents written by successful flushes.
	Flushed int
	// Rejected counts batches the backend refused.
	Rejected int
	// Dropped counts documents lost with rejected batches.
	Dropped int
	// Failures counts flushes that failed and kept their batch.
	Failures int
}

// Buffer accumulates documents for one backend. Its methods are safe for
// concurrent use; an append, its threshold check and the flush it triggers
// happen under one lock.
type Buffer struct {
	cfg Config

	mu      sync.Mutex
	docs    []index.Document
	counter int
	stats   Stats
}

// New returns an empty buffer.
func New(cfg Config) (*Buffer, error) {
	if cfg.IDField == "" {
		cfg.IDField = DefaultIDField
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Buffer{cfg: cfg, docs: make([]index.Document, 0, cfg.Threshold)}, nil
}

// Upsert appends doc and flushes once the threshold is reached. The returned
// error comes from that flush.
func (b *Buffer) Upsert(ctx context.Context, doc index.Document) error {
	if doc == nil {
		return errors.NotValidf("nil document")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs = append(b.docs, doc)
	b.counter++
	b.cfg.Metrics.setBuffered(len(b.docs))
	if b.counter < b.cfg.Threshold {
		return nil
	}
	_, err := b.flush(ctx)
	return errors.Trace(err)
}

// Flush sends every buffered document in one committed bulk upsert and
// returns how many were written. An empty buffer makes no backend call.
func (b *Buffer) Flush(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flush(ctx)
}

// Commit forces a flush of pending documents.
func (b *Buffer) Commit(ctx context.Context) (int, error) {
	return b.Flush(ctx)
}

func (b *Buffer) flush(ctx context.Context) (int, error) {
	if len(b.docs) == 0 {
		return 0, nil
	}
	n := len(b.docs)
	start := b.cfg.Clock.Now()
	err := index.Call(b.cfg.Retry, "bulk upsert", func() error {
		return b.cfg.Backend.BulkUpsert(context.WithoutCancel(ctx), b.docs, true)
	})
	elapsed := b.cfg.Clock.Now().Sub(start).Seconds()
	switch {
	case err == nil:
		b.reset()
		b.stats.Flushes++
		b.stats.Flushed += n
		b.cfg.Metrics.flushed(resultOK, n, elapsed)
		logger.Infof("bulk add: (%d)", n)
		return n, nil
	case errors.Is(err, index.BackendRejected):
		logger.Errorf("could not insert %d documents into backend, dropping batch: %v", n, err)
		if logger.IsTraceEnabled() {
			logger.Tracef("dropped ids: %v", b.ids())
		}
		b.reset()
		b.stats.Rejected++
		b.stats.Dropped += n
		b.cfg.Metrics.flushed(resultRejected, n, elapsed)
		return 0, nil
	default:
		b.stats.Failures++
		b.cfg.Metrics.flushed(resultFailed, n, elapsed)
		return 0, errors.Annotatef(err, "flushing %d documents", n)
	}
}

func (b *Buffer) reset() {
	b.docs = make([]index.Document, 0, b.cfg.Threshold)
	b.counter = 0
	b.cfg.Metrics.setBuffered(0)
}

func (b *Buffer) ids() []string {
	ids := make([]string, 0, len(b.docs))
	for _, d := range b.docs {
		ids = append(ids, docpath.ID(d[b.cfg.IDField]))
	}
	return ids
}

// Remove deletes the document with id from the backend at once. Once the
// delete succeeds, buffered upserts of the same id are discarded so a later
// flush cannot bring the document back. A failed delete leaves the buffer
// untouched.
func (b *Buffer) Remove(ctx context.Context, id string) error {
	if id == "" {
		return errors.NotValidf("empty document id")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	err := index.Call(b.cfg.Retry, "delete by id", func() error {
		return b.cfg.Backend.DeleteByID(context.WithoutCancel(ctx), id, true)
	})
	if err != nil {
		b.cfg.Metrics.deleted(resultFailed)
		return errors.Annotatef(err, "deleting %q", id)
	}
	b.cfg.Metrics.deleted(resultOK)
	b.discard(id)
	return nil
}

func (b *Buffer) discard(id string) {
	kept := b.docs[:0]
	for _, d := range b.docs {
		if docpath.ID(d[b.cfg.IDField]) != id {
			kept = append(kept, d)
		}
	}
	if dropped := len(b.docs) - len(kept); dropped > 0 {
		logger.Debugf("discarded %d buffered upserts of deleted %q", dropped, id)
	}
	for i := len(kept); i < len(b.docs); i++ {
		b.docs[i] = nil
	}
	b.docs = kept
	b.counter = len(kept)
	b.cfg.Metrics.setBuffered(len(kept))
}

// WipeAll deletes every document in the backend without committing. It is
// meant for administration and tests.
func (b *Buffer) WipeAll(ctx context.Context) error {
	err := index.Call(b.cfg.Retry, "delete all", func() error {
		return b.cfg.Backend.DeleteByQuery(context.WithoutCancel(ctx), index.MatchAll, false)
	})
	return errors.Annotate(err, "deleting all documents")
}

// Len returns the number of buffered documents.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.docs)
}

// Stats returns a copy of the buffer counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
