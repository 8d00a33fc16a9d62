package bulk

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/searchsync/index"
)

type call struct {
	op     string
	docs   []index.Document
	id     string
	query  string
	commit bool
}

type fakeBackend struct {
	mu      sync.Mutex
	calls   []call
	upserts []error
	deletes []error
}

func (f *fakeBackend) next(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeBackend) BulkUpsert(_ context.Context, docs []index.Document, commit bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "upsert", docs: append([]index.Document(nil), docs...), commit: commit})
	return f.next(&f.upserts)
}

func (f *fakeBackend) DeleteByID(_ context.Context, id string, commit bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "delete", id: id, commit: commit})
	return f.next(&f.deletes)
}

func (f *fakeBackend) DeleteByQuery(_ context.Context, query string, commit bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "deleteQuery", query: query, commit: commit})
	return nil
}

func (f *fakeBackend) Query(context.Context, index.QueryRequest) ([]index.Document, error) {
	return nil, nil
}

func (f *fakeBackend) Commit(context.Context) error { return nil }

func (f *fakeBackend) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func doc(id string) index.Document {
	return index.Document{"_id": id, "id": id}
}

func newBuffer(t *testing.T, backend index.Backend, threshold int) *Buffer {
	b, err := New(Config{Backend: backend, Threshold: threshold})
	require.NoError(t, err)
	return b
}

func TestBufferThreshold(t *testing.T) {
	backend := &fakeBackend{}
	b := newBuffer(t, backend, 3)
	ctx := context.Background()

	require.NoError(t, b.Upsert(ctx, doc("a")))
	require.NoError(t, b.Upsert(ctx, doc("b")))
	assert.Empty(t, backend.recorded())
	assert.Equal(t, 2, b.Len())

	require.NoError(t, b.Upsert(ctx, doc("c")))
	calls := backend.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "upsert", calls[0].op)
	assert.True(t, calls[0].commit)
	assert.Equal(t, []index.Document{doc("a"), doc("b"), doc("c")}, calls[0].docs)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, Stats{Flushes: 1, Flushed: 3}, b.Stats())
}

func TestFlushEmptyMakesNoCall(t *testing.T) {
	backend := &fakeBackend{}
	b := newBuffer(t, backend, 10)

	n, err := b.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = b.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, backend.recorded())
}

func TestExplicitCommit(t *testing.T) {
	backend := &fakeBackend{}
	b := newBuffer(t, backend, 10)
	ctx := context.Background()
	require.NoError(t, b.Upsert(ctx, doc("a")))
	require.NoError(t, b.Upsert(ctx, doc("b")))

	n, err := b.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, backend.recorded(), 1)
	assert.Equal(t, 0, b.Len())
}

func TestRejectedBatchIsDropped(t *testing.T) {
	backend := &fakeBackend{upserts: []error{
		errors.WithType(errors.New("document is missing mandatory uniqueKey field"), index.BackendRejected),
	}}
	b := newBuffer(t, backend, 2)
	ctx := context.Background()

	require.NoError(t, b.Upsert(ctx, doc("bad")))
	require.NoError(t, b.Upsert(ctx, doc("other")))
	assert.Equal(t, 0, b.Len(), "rejected batch must not poison the buffer")
	assert.Equal(t, Stats{Rejected: 1, Dropped: 2}, b.Stats())

	require.NoError(t, b.Upsert(ctx, doc("c")))
	n, err := b.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	calls := backend.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, []index.Document{doc("c")}, calls[1].docs)
}

func TestUnavailableKeepsBatch(t *testing.T) {
	unavailable := errors.WithType(errors.New("connection refused"), index.BackendUnavailable)
	backend := &fakeBackend{upserts: []error{unavailable}}
	b := newBuffer(t, backend, 2)
	ctx := context.Background()

	require.NoError(t, b.Upsert(ctx, doc("a")))
	err := b.Upsert(ctx, doc("b"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, index.BackendUnavailable))
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 1, b.Stats().Failures)

	// The next append is past the threshold, so it resubmits everything.
	require.NoError(t, b.Upsert(ctx, doc("c")))
	calls := backend.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, []index.Document{doc("a"), doc("b"), doc("c")}, calls[1].docs)
	assert.Equal(t, 0, b.Len())
}

func TestRetryPolicy(t *testing.T) {
	unavailable := errors.WithType(errors.New("timeout"), index.BackendUnavailable)
	backend := &fakeBackend{upserts: []error{unavailable, unavailable}}
	b, err := New(Config{
		Backend:   backend,
		Threshold: 1,
		Retry:     index.RetryPolicy{Attempts: 3, Delay: time.Millisecond},
	})
	require.NoError(t, err)

	require.NoError(t, b.Upsert(context.Background(), doc("a")))
	assert.Len(t, backend.recorded(), 3)
	assert.Equal(t, 0, b.Len())
}

func TestRejectionIsNotRetried(t *testing.T) {
	backend := &fakeBackend{upserts: []error{errors.WithType(errors.New("bad"), index.BackendRejected)}}
	b, err := New(Config{
		Backend:   backend,
		Threshold: 1,
		Retry:     index.RetryPolicy{Attempts: 5, Delay: time.Millisecond},
	})
	require.NoError(t, err)

	require.NoError(t, b.Upsert(context.Background(), doc("a")))
	assert.Len(t, backend.recorded(), 1)
}

func TestRemove(t *testing.T) {
	backend := &fakeBackend{}
	b := newBuffer(t, backend, 10)
	ctx := context.Background()
	require.NoError(t, b.Upsert(ctx, doc("a")))
	require.NoError(t, b.Upsert(ctx, doc("b")))
	require.NoError(t, b.Upsert(ctx, doc("a")))

	require.NoError(t, b.Remove(ctx, "a"))
	calls := backend.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, call{op: "delete", id: "a", commit: true}, calls[0])
	assert.Equal(t, 1, b.Len())

	_, err := b.Flush(ctx)
	require.NoError(t, err)
	calls = backend.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, []index.Document{doc("b")}, calls[1].docs)

	assert.True(t, errors.Is(b.Remove(ctx, ""), errors.NotValid))
}

func TestRemoveFailure(t *testing.T) {
	backend := &fakeBackend{deletes: []error{errors.WithType(errors.New("down"), index.BackendUnavailable)}}
	b := newBuffer(t, backend, 10)
	ctx := context.Background()
	require.NoError(t, b.Upsert(ctx, doc("a")))
	require.NoError(t, b.Upsert(ctx, doc("b")))

	err := b.Remove(ctx, "a")
	assert.True(t, errors.Is(err, index.BackendUnavailable))
	assert.Equal(t, 2, b.Len(), "failed delete keeps buffered upserts")

	require.NoError(t, b.Remove(ctx, "a"))
	assert.Equal(t, 1, b.Len())
}

func TestWipeAll(t *testing.T) {
	backend := &fakeBackend{}
	b := newBuffer(t, backend, 10)
	require.NoError(t, b.WipeAll(context.Background()))
	assert.Equal(t, []call{{op: "deleteQuery", query: "*:*", commit: false}}, backend.recorded())
}

func TestCancelledContextStillFlushes(t *testing.T) {
	backend := &fakeBackend{}
	b := newBuffer(t, backend, 10)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.Upsert(ctx, doc("a")))
	cancel()
	n, err := b.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConcurrentUpserts(t *testing.T) {
	backend := &fakeBackend{}
	b := newBuffer(t, backend, 7)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.NoError(t, b.Upsert(ctx, doc(fmt.Sprintf("%d-%d", w, i))))
			}
		}(w)
	}
	wg.Wait()
	_, err := b.Flush(ctx)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, c := range backend.recorded() {
		assert.LessOrEqual(t, len(c.docs), 7)
		for _, d := range c.docs {
			seen[d["id"].(string)]++
		}
	}
	assert.Len(t, seen, 200)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestConfigValidate(t *testing.T) {
	_, err := New(Config{Threshold: 1})
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = New(Config{Backend: &fakeBackend{}})
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = New(Config{Backend: &fakeBackend{}, Threshold: 1, Retry: index.RetryPolicy{Attempts: -1}})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestMetrics(t *testing.T) {
	metrics := NewMetrics()
	registry := prometheus.NewPedanticRegistry()
	require.NoError(t, registry.Register(metrics))

	backend := &fakeBackend{upserts: []error{nil, errors.WithType(errors.New("bad"), index.BackendRejected)}}
	b, err := New(Config{Backend: backend, Threshold: 2, Metrics: metrics})
	require.NoError(t, err)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, b.Upsert(ctx, doc(id)))
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.flushes.WithLabelValues(resultOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.flushes.WithLabelValues(resultRejected)))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.documents.WithLabelValues("flushed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.documents.WithLabelValues("dropped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.buffered))
}
