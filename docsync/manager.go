package docsync

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/mgo/v3/bson"

	"github.com/viant/searchsync/autocommit"
	"github.com/viant/searchsync/bulk"
	"github.com/viant/searchsync/index"
	"github.com/viant/searchsync/internal/docpath"
	"github.com/viant/searchsync/recovery"
	"github.com/viant/searchsync/schema"
	"github.com/viant/searchsync/transform"
)

var logger = loggo.GetLogger("searchsync.docsync")

const (
	// DefaultUniqueKeyField names the upstream identifier.
	DefaultUniqueKeyField = "_id"
	// DefaultNamespaceField receives the upstream namespace.
	DefaultNamespaceField = "ns"
)

// Config encapsulates the configuration options for a Manager.
type Config struct {
	Backend index.Backend

	// Schema is read for field filtering. When nil, Backend is used if it
	// implements index.SchemaSource.
	Schema        index.SchemaSource
	RequireSchema bool

	Transformer transform.Transformer

	UniqueKeyField string
	TimestampField string
	NamespaceField string

	BulkFlushThreshold int
	AutoCommit         bool
	AutoCommitInterval time.Duration

	Retry   index.RetryPolicy
	Metrics *bulk.Metrics
	Clock   clock.Clock
}

// Validate ensures that the config values are valid.
func (c Config) Validate() error {
	if c.Backend == nil {
		return errors.NotValidf("missing Backend")
	}
	if c.Schema == nil {
		return errors.NotValidf("missing Schema")
	}
	if c.Transformer == nil {
		return errors.NotValidf("missing Transformer")
	}
	if c.BulkFlushThreshold <= 0 {
		return errors.NotValidf("bulk flush threshold %d", c.BulkFlushThreshold)
	}
	if c.AutoCommit && c.AutoCommitInterval <= 0 {
		return errors.NotValidf("auto commit interval %v", c.AutoCommitInterval)
	}
	return errors.Trace(c.Retry.Validate())
}

func (c *Config) setDefaults() {
	if c.Schema == nil {
		if src, ok := c.Backend.(index.SchemaSource); ok {
			c.Schema = src
		}
	}
	if c.UniqueKeyField == "" {
		c.UniqueKeyField = DefaultUniqueKeyField
	}
	if c.TimestampField == "" {
		c.TimestampField = recovery.DefaultTimestampField
	}
	if c.NamespaceField == "" {
		c.NamespaceField = DefaultNamespaceField
	}
	if c.BulkFlushThreshold == 0 {
		c.BulkFlushThreshold = bulk.DefaultThreshold
	}
	if c.AutoCommit && c.AutoCommitInterval == 0 {
		c.AutoCommitInterval = autocommit.DefaultInterval
	}
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
}

// Manager keeps one backend in step with an upstream document feed.
type Manager struct {
	cfg     Config
	filter  *schema.Filter
	buffer  *bulk.Buffer
	querier *recovery.Querier
	worker  *autocommit.Worker

	mu         sync.Mutex
	checkpoint int64
	resumed    bool
}

// NewManager reads the backend schema and, when configured, starts the
// auto-commit worker.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	filter, err := schema.NewFilter(ctx, cfg.Schema, cfg.RequireSchema)
	if err != nil {
		return nil, errors.Annotate(err, "building schema filter")
	}
	buffer, err := bulk.New(bulk.Config{
		Backend:   cfg.Backend,
		Threshold: cfg.BulkFlushThreshold,
		IDField:   transform.CanonicalIDField,
		Retry:     cfg.Retry,
		Metrics:   cfg.Metrics,
		Clock:     cfg.Clock,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	querier, err := recovery.New(cfg.Backend, recovery.Options{
		TimestampField: cfg.TimestampField,
		Retry:          cfg.Retry,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	m := &Manager{cfg: cfg, filter: filter, buffer: buffer, querier: querier}
	if cfg.AutoCommit {
		m.worker, err = autocommit.NewWorker(autocommit.Config{
			Committer: buffer,
			Clock:     cfg.Clock,
			Interval:  cfg.AutoCommitInterval,
		})
		if err != nil {
			return nil, errors.Trace(err)
		}
	}
	logger.Infof("document manager ready: mapping %q, flush threshold %d", cfg.Transformer.Name(), cfg.BulkFlushThreshold)
	return m, nil
}

// Upsert transforms, filters and buffers one upstream document. Documents
// without an identifier are logged and dropped.
func (m *Manager) Upsert(ctx context.Context, doc interface{}) error {
	out, err := m.cfg.Transformer.Transform(doc)
	if errors.Is(err, index.MalformedDocument) {
		logger.Errorf("dropping document: %v", err)
		return nil
	} else if err != nil {
		return errors.Trace(err)
	}
	filtered := m.filter.Apply(out)
	m.stamp(doc, filtered)
	return errors.Trace(m.buffer.Upsert(ctx, filtered))
}

// stamp copies the oplog timestamp and namespace from the upstream document.
// They are added after schema filtering so recovery can always sort on the
// timestamp.
func (m *Manager) stamp(doc interface{}, out index.Document) {
	if v, ok := docpath.Lookup(doc, m.cfg.TimestampField); ok {
		if ts, ok := v.(bson.MongoTimestamp); ok {
			v = int64(ts)
		}
		out[m.cfg.TimestampField] = v
	}
	if v, ok := docpath.Lookup(doc, m.cfg.NamespaceField); ok {
		out[m.cfg.NamespaceField] = v
	}
}

// Remove deletes the document keyed by the upstream document's unique key.
func (m *Manager) Remove(ctx context.Context, doc interface{}) error {
	v, _ := docpath.Lookup(doc, docpath.Split(m.cfg.UniqueKeyField)...)
	id := docpath.ID(v)
	if id == "" {
		return errors.WithType(errors.Errorf("missing %q in removed document", m.cfg.UniqueKeyField), index.MalformedDocument)
	}
	return errors.Trace(m.buffer.Remove(ctx, id))
}

// Commit flushes buffered documents.
func (m *Manager) Commit(ctx context.Context) (int, error) {
	return m.buffer.Commit(ctx)
}

// WipeAll stages the deletion of every indexed document.
func (m *Manager) WipeAll(ctx context.Context) error {
	return errors.Trace(m.buffer.WipeAll(ctx))
}

// RebuildSchema re-reads the backend schema.
func (m *Manager) RebuildSchema(ctx context.Context) error {
	return errors.Trace(m.filter.Rebuild(ctx))
}

// Stats returns the buffer statistics.
func (m *Manager) Stats() bulk.Stats {
	return m.buffer.Stats()
}

// Stop stops the auto-commit worker. Buffered documents stay buffered.
func (m *Manager) Stop() error {
	if m.worker == nil {
		return nil
	}
	m.worker.Kill()
	return errors.Trace(m.worker.Wait())
}

// LastDocument returns the most recently applied document, if any.
func (m *Manager) LastDocument(ctx context.Context) (index.Document, bool, error) {
	return m.querier.LastApplied(ctx)
}

// Search returns the documents applied between two oplog timestamps,
// inclusive.
func (m *Manager) Search(ctx context.Context, start, end int64) ([]index.Document, error) {
	return m.querier.Range(ctx, start, end)
}

// Resume loads the timestamp of the last applied document. Entries at or
// before it are skipped by Apply. It reports false when the index holds no
// timestamped document.
func (m *Manager) Resume(ctx context.Context) (int64, bool, error) {
	doc, ok, err := m.LastDocument(ctx)
	if err != nil {
		return 0, false, errors.Trace(err)
	}
	if !ok {
		return 0, false, nil
	}
	ts, ok := timestamp(doc[m.cfg.TimestampField])
	if !ok {
		return 0, false, nil
	}
	m.mu.Lock()
	m.checkpoint, m.resumed = ts, true
	m.mu.Unlock()
	logger.Infof("resuming after timestamp %d", ts)
	return ts, true, nil
}

func timestamp(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case bson.MongoTimestamp:
		return int64(t), true
	}
	return 0, false
}

func (m *Manager) applied(e *Entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumed && e.Timestamp() <= m.checkpoint
}

// Apply applies one oplog entry. Commands, no-ops and updates expressed
// with operators are skipped.
func (m *Manager) Apply(ctx context.Context, e *Entry) error {
	if m.applied(e) {
		logger.Tracef("skipping entry %d, already applied", e.Timestamp())
		return nil
	}
	switch e.Op {
	case OpInsert:
		return errors.Trace(m.Upsert(ctx, m.document(e)))
	case OpUpdate:
		if e.isOperatorUpdate() {
			logger.Warningf("skipping %s update at %d: no full document", e.Namespace, e.Timestamp())
			return nil
		}
		return errors.Trace(m.Upsert(ctx, m.document(e)))
	case OpDelete:
		err := m.Remove(ctx, e.Object)
		if errors.Is(err, index.MalformedDocument) {
			logger.Errorf("skipping %s delete at %d: %v", e.Namespace, e.Timestamp(), err)
			return nil
		}
		return errors.Trace(err)
	case OpCommand, OpNoop:
		return nil
	}
	logger.Warningf("skipping entry %d with unknown op %q", e.Timestamp(), e.Op)
	return nil
}

// document returns the entry's document with its key, timestamp and
// namespace.
func (m *Manager) document(e *Entry) bson.M {
	doc := make(bson.M, len(e.Object)+2)
	for k, v := range e.Object {
		doc[k] = v
	}
	if _, ok := doc[m.cfg.UniqueKeyField]; !ok {
		if id, ok := e.Object2[m.cfg.UniqueKeyField]; ok {
			doc[m.cfg.UniqueKeyField] = id
		}
	}
	doc[m.cfg.TimestampField] = e.Ts
	doc[m.cfg.NamespaceField] = e.Namespace
	return doc
}

// ApplyAll applies every entry read from r and returns how many were read.
func (m *Manager) ApplyAll(ctx context.Context, r *Reader) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, errors.Trace(err)
		}
		e, err := r.Next()
		if err == io.EOF {
			return n, nil
		} else if err != nil {
			return n, errors.Trace(err)
		}
		n++
		if err := m.Apply(ctx, e); err != nil {
			return n, errors.Annotatef(err, "applying entry %d", e.Timestamp())
		}
	}
}
