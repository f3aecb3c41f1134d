package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog-indexer/internal/assembler"
	"github.com/utafrali/catalog-indexer/internal/content"
	"github.com/utafrali/catalog-indexer/internal/domain"
	enginemem "github.com/utafrali/catalog-indexer/internal/engine/memory"
	"github.com/utafrali/catalog-indexer/internal/properties"
	"github.com/utafrali/catalog-indexer/internal/reindex"
	catalogmem "github.com/utafrali/catalog-indexer/internal/repository/memory"
	"github.com/utafrali/catalog-indexer/pkg/logger"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

const waitFor = 2 * time.Second

type harness struct {
	catalog *catalogmem.Catalog
	store   *enginemem.Store
	due     *reindex.MemoryStore
	builder *assembler.Assembler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	props, err := properties.Load("")
	require.NoError(t, err)
	catalog := catalogmem.NewCatalog()
	return &harness{
		catalog: catalog,
		store:   enginemem.NewStore(),
		due:     reindex.NewMemoryStore(),
		builder: assembler.New(catalog, content.Static{}, props, logger.Discard()).
			WithClock(func() time.Time { return now }),
	}
}

func (h *harness) worker(owner string, batch int) *Worker {
	return New(Config{Owner: owner, BatchSize: batch}, h.builder, h.store, h.due, logger.Discard())
}

func (h *harness) waitCloses(t *testing.T, owner string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.store.Stats(owner).Closes >= n && !h.store.Locked(owner)
	}, waitFor, 5*time.Millisecond)
}

func start(t *testing.T, w *Worker) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-w.Done()
	})
	return cancel
}

// blockingBuilder reports each id it starts building and waits for release.
type blockingBuilder struct {
	inner   Builder
	started chan string
	release chan struct{}
}

func (b *blockingBuilder) Build(ctx context.Context, id string) assembler.Result {
	b.started <- id
	<-b.release
	return b.inner.Build(ctx, id)
}

// collectMetric returns the metric of c whose labels include labels.
func collectMetric(t *testing.T, c prometheus.Collector, labels map[string]string) *dto.Metric {
	t.Helper()
	ch := make(chan prometheus.Metric, 100)
	c.Collect(ch)
	close(ch)

	for m := range ch {
		d := &dto.Metric{}
		if err := m.Write(d); err != nil {
			continue
		}
		matched := 0
		for _, lp := range d.GetLabel() {
			if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
				matched++
			}
		}
		if matched == len(labels) {
			return d
		}
	}
	return nil
}

func waitDone(t *testing.T, w *Worker) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(waitFor):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_IndexesAndCommitsOnDrain(t *testing.T) {
	h := newHarness(t)
	h.catalog.PutProduct(domain.Product{ID: "P1", ProductName: "Chrome Widget"})
	w := h.worker("default", 100)
	start(t, w)

	assert.True(t, w.Enqueue("P1"))
	h.waitCloses(t, "default", 1)

	doc, ok := h.store.Get("default", "P1")
	require.True(t, ok)
	assert.Equal(t, []string{"Chrome Widget"}, doc.Strings("productName"))

	stats := h.store.Stats("default")
	assert.Equal(t, 1, stats.Opens)
	assert.Equal(t, 1, stats.Commits)
	assert.Equal(t, StateIdle, w.State())
}

func TestWorker_DeletesMissingProduct(t *testing.T) {
	h := newHarness(t)
	h.catalog.PutProduct(domain.Product{ID: "P1", ProductName: "Widget"})
	w := h.worker("default", 100)
	start(t, w)

	w.Enqueue("P1")
	h.waitCloses(t, "default", 1)
	_, ok := h.store.Get("default", "P1")
	require.True(t, ok)

	h.catalog.DeleteProduct("P1")
	w.Enqueue("P1")
	h.waitCloses(t, "default", 2)

	_, ok = h.store.Get("default", "P1")
	assert.False(t, ok)
}

func TestWorker_BatchesCommits(t *testing.T) {
	h := newHarness(t)
	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("P%03d", i)
		h.catalog.PutProduct(domain.Product{ID: ids[i], ProductName: "Product " + ids[i]})
	}

	w := h.worker("bulk", 100)
	assert.Equal(t, 250, w.EnqueueAll(ids))
	start(t, w)
	h.waitCloses(t, "bulk", 1)

	stats := h.store.Stats("bulk")
	assert.Equal(t, 1, stats.Opens)
	assert.Equal(t, 3, stats.Commits)
	assert.Equal(t, 1, stats.Closes)
	assert.Len(t, h.store.IDs("bulk"), 250)
}

func TestWorker_ItemErrorWithEmptyQueueClosesWriter(t *testing.T) {
	h := newHarness(t)
	h.catalog.PutProduct(domain.Product{ID: "P1"})
	h.catalog.PutProduct(domain.Product{ID: "P2"})
	h.store.FailUpdate("P2", errors.New("write failed"))

	w := h.worker("errs", 100)
	w.EnqueueAll([]string{"P1", "P2"})
	start(t, w)
	h.waitCloses(t, "errs", 1)

	stats := h.store.Stats("errs")
	assert.Equal(t, 0, stats.Commits)
	assert.Equal(t, []string{"P1"}, h.store.IDs("errs"))
	assert.Equal(t, StateIdle, w.State())
}

func TestWorker_ItemErrorKeepsWriterOpenForQueuedItems(t *testing.T) {
	h := newHarness(t)
	h.catalog.PutProduct(domain.Product{ID: "P1"})
	h.catalog.PutProduct(domain.Product{ID: "P2"})
	h.store.FailUpdate("P2", errors.New("write failed"))

	w := h.worker("errs-queued", 100)
	w.EnqueueAll([]string{"P2", "P1"})
	start(t, w)
	h.waitCloses(t, "errs-queued", 1)

	stats := h.store.Stats("errs-queued")
	assert.Equal(t, 1, stats.Opens)
	assert.Equal(t, 1, stats.Commits)
	assert.Equal(t, []string{"P1"}, h.store.IDs("errs-queued"))
}

func TestWorker_OpenFailureStopsPermanently(t *testing.T) {
	h := newHarness(t)
	h.catalog.PutProduct(domain.Product{ID: "P1"})
	h.store.FailOpen(errors.New("disk full"))

	w := h.worker("broken", 100)
	start(t, w)
	w.Enqueue("P1")

	select {
	case <-w.Done():
	case <-time.After(waitFor):
		t.Fatal("worker did not stop after open failure")
	}
	assert.Equal(t, StateStopped, w.State())

	h.store.FailOpen(nil)
	assert.True(t, w.Enqueue("P1"))
	assert.Equal(t, 1, w.QueueLen())
	assert.Empty(t, h.store.IDs("broken"))
}

func TestWorker_CancelStops(t *testing.T) {
	h := newHarness(t)
	w := h.worker("cancel", 100)
	cancel := start(t, w)

	cancel()
	select {
	case <-w.Done():
	case <-time.After(waitFor):
		t.Fatal("worker did not stop after cancel")
	}
	assert.Equal(t, StateStopped, w.State())
	assert.Equal(t, 0, h.store.Stats("cancel").Opens)
}

func TestWorker_CancelWhileWriterOpenClosesWriter(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"P1", "P2", "P3"} {
		h.catalog.PutProduct(domain.Product{ID: id})
	}
	b := &blockingBuilder{inner: h.builder, started: make(chan string, 3), release: make(chan struct{})}
	w := New(Config{Owner: "cancel-open", BatchSize: 100}, b, h.store, h.due, logger.Discard())
	w.EnqueueAll([]string{"P1", "P2", "P3"})
	cancel := start(t, w)

	select {
	case id := <-b.started:
		assert.Equal(t, "P1", id)
	case <-time.After(waitFor):
		t.Fatal("build did not start")
	}
	assert.Equal(t, StateActive, w.State())
	assert.True(t, h.store.Locked("cancel-open"))

	cancel()
	close(b.release)
	waitDone(t, w)

	stats := h.store.Stats("cancel-open")
	assert.Equal(t, 1, stats.Opens)
	assert.Equal(t, 0, stats.Commits)
	assert.Equal(t, 1, stats.Closes)
	assert.False(t, h.store.Locked("cancel-open"))
	assert.Equal(t, []string{"P1"}, h.store.IDs("cancel-open"))
	assert.Equal(t, 2, w.QueueLen())
	assert.Equal(t, StateStopped, w.State())
}

func TestWorker_CommitFailureContinues(t *testing.T) {
	h := newHarness(t)
	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("C%03d", i)
		h.catalog.PutProduct(domain.Product{ID: ids[i]})
	}
	h.store.FailCommit(errors.New("fsync failed"))

	w := h.worker("commit-fail", 100)
	w.EnqueueAll(ids)
	start(t, w)
	h.waitCloses(t, "commit-fail", 1)

	stats := h.store.Stats("commit-fail")
	assert.Equal(t, []int{100, 200, 250}, stats.CommitOps)
	assert.Equal(t, 2, stats.Commits)
	assert.Equal(t, 1, stats.Opens)
	assert.Equal(t, 1, stats.Closes)
	assert.Len(t, h.store.IDs("commit-fail"), 250)
	assert.Equal(t, 1.0, testutil.ToFloat64(ErrorsTotal.WithLabelValues("commit-fail", stageCommit)))
	assert.Equal(t, 2.0, testutil.ToFloat64(Commits.WithLabelValues("commit-fail")))
}

func TestWorker_CloseFailureContinues(t *testing.T) {
	h := newHarness(t)
	h.catalog.PutProduct(domain.Product{ID: "P1"})
	h.catalog.PutProduct(domain.Product{ID: "P2"})
	h.store.FailClose(errors.New("segment merge failed"))

	w := h.worker("close-fail", 100)
	start(t, w)

	w.Enqueue("P1")
	h.waitCloses(t, "close-fail", 1)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(ErrorsTotal.WithLabelValues("close-fail", stageClose)) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(WriterCloses.WithLabelValues("close-fail")))

	w.Enqueue("P2")
	h.waitCloses(t, "close-fail", 2)

	stats := h.store.Stats("close-fail")
	assert.Equal(t, 2, stats.Opens)
	assert.Equal(t, 2, stats.Commits)
	assert.Equal(t, []string{"P1", "P2"}, h.store.IDs("close-fail"))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(WriterCloses.WithLabelValues("close-fail")) == 1 && w.State() == StateIdle
	}, waitFor, 5*time.Millisecond)
}

func TestWorker_StartTwiceIsNoop(t *testing.T) {
	h := newHarness(t)
	h.catalog.PutProduct(domain.Product{ID: "P1"})
	w := h.worker("twice", 100)
	start(t, w)
	w.Start(context.Background())

	w.Enqueue("P1")
	h.waitCloses(t, "twice", 1)
	assert.Equal(t, 1, h.store.Stats("twice").Opens)
}

func TestWorker_RecordsReindexDate(t *testing.T) {
	h := newHarness(t)
	launch := now.Add(72 * time.Hour)
	h.catalog.PutProduct(domain.Product{ID: "P1", IntroductionDate: &launch})
	w := h.worker("due", 100)
	start(t, w)

	w.Enqueue("P1")
	h.waitCloses(t, "due", 1)

	due, err := h.due.Due(context.Background(), "due", now.Add(100*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "P1", due[0].ProductID)
	assert.True(t, due[0].At.Equal(launch))

	h.catalog.PutProduct(domain.Product{ID: "P1"})
	w.Enqueue("P1")
	h.waitCloses(t, "due", 2)

	due, err = h.due.Due(context.Background(), "due", now.Add(100*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestWorker_FailedBuildKeepsReindexDate(t *testing.T) {
	h := newHarness(t)
	h.catalog.PutProduct(domain.Product{ID: "P1", ProductName: "Widget"})

	w := h.worker("due-kept", 100)
	start(t, w)
	w.Enqueue("P1")
	h.waitCloses(t, "due-kept", 1)
	_, ok := h.store.Get("due-kept", "P1")
	require.True(t, ok)

	launch := now.Add(72 * time.Hour)
	require.NoError(t, h.due.Schedule(context.Background(), "due-kept", "P1", launch))
	h.catalog.FailProduct("P1", errors.New("connection reset"))
	w.Enqueue("P1")
	h.waitCloses(t, "due-kept", 2)

	due, err := h.due.Due(context.Background(), "due-kept", now.Add(100*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.True(t, due[0].At.Equal(launch))

	_, ok = h.store.Get("due-kept", "P1")
	assert.False(t, ok, "a failed build removes the stale document")
	assert.Equal(t, 1.0, testutil.ToFloat64(ErrorsTotal.WithLabelValues("due-kept", stageBuild)))
}

func TestWorker_Metrics(t *testing.T) {
	h := newHarness(t)
	h.catalog.PutProduct(domain.Product{ID: "P1"})
	w := h.worker("metrics", 100)
	start(t, w)

	w.EnqueueAll([]string{"P1", "gone"})
	h.waitCloses(t, "metrics", 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(DocumentsIndexed.WithLabelValues("metrics")))
	assert.Equal(t, 1.0, testutil.ToFloat64(DocumentsDeleted.WithLabelValues("metrics")))
	assert.Equal(t, 1.0, testutil.ToFloat64(WriterOpens.WithLabelValues("metrics")))

	builds := collectMetric(t, BuildDuration, map[string]string{"owner": "metrics"})
	require.NotNil(t, builds)
	assert.Equal(t, uint64(2), builds.GetHistogram().GetSampleCount())
}

func TestWorker_Status(t *testing.T) {
	h := newHarness(t)
	w := h.worker("status", 100)
	w.EnqueueAll([]string{"a", "b"})

	assert.Equal(t, Status{Owner: "status", State: "idle", QueueLen: 2}, w.Status())
	assert.Equal(t, "stopped", StateStopped.String())
}
