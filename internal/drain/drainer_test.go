package drain

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quailyquaily/slackpm/internal/ingest"
	"github.com/quailyquaily/slackpm/internal/nlp"
	"github.com/quailyquaily/slackpm/internal/taskstore"
)

type fakeExtractor struct{}

func (fakeExtractor) Extract(string) ([]string, []string, error) { return nil, nil, nil }

type fakeDateParser struct{}

func (fakeDateParser) Parse(string) ([]taskstore.DateSpan, error) { return nil, nil }

type fixedDetector struct{}

func (fixedDetector) Detect(string) string { return "eng" }

func testPipeline() *nlp.Pipeline {
	return nlp.New(nlp.Options{
		Language: fixedDetector{},
		Entities: fakeExtractor{},
		Dates:    fakeDateParser{},
	})
}

// failOnText fails extraction for messages whose text contains the marker.
type failOnText struct {
	inner  Pipeline
	marker string
}

func (p failOnText) Run(msg ingest.Message) (taskstore.Metadata, error) {
	if strings.Contains(msg.Text, p.marker) {
		return taskstore.Metadata{}, fmt.Errorf("injected failure")
	}
	return p.inner.Run(msg)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestDrainOnceEndToEnd(t *testing.T) {
	t.Parallel()

	queue := ingest.NewQueue()
	store := taskstore.New()
	d, err := New(queue, store, testPipeline(), DefaultConfig(), discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	queue.Enqueue(ingest.Message{Text: "Please review the PR", User: "U123", Channel: "C123", TS: "t1"})
	queue.Enqueue(ingest.Message{Text: "Fix PROJ-123 bug", User: "U123", Channel: "C123", TS: "t2"})

	if drained := d.DrainOnce(); drained != 2 {
		t.Fatalf("DrainOnce() = %d, want 2", drained)
	}
	if queue.Size() != 0 {
		t.Fatalf("queue.Size() = %d, want 0", queue.Size())
	}
	if store.Len() != 2 {
		t.Fatalf("store.Len() = %d, want 2", store.Len())
	}

	first, ok := store.Get("C123", "t1")
	if !ok {
		t.Fatalf("record for t1 missing")
	}
	if first.Summary != "Please review the PR" {
		t.Fatalf("summary = %q, want %q", first.Summary, "Please review the PR")
	}
	if first.Source == nil || first.Source.Channel != "C123" || first.Source.TS != "t1" {
		t.Fatalf("source = %+v, want back-reference to C123:t1", first.Source)
	}

	second, ok := store.Get("C123", "t2")
	if !ok {
		t.Fatalf("record for t2 missing")
	}
	if second.ProjectID != "PROJ-123" {
		t.Fatalf("project_id = %q, want %q", second.ProjectID, "PROJ-123")
	}

	snap := d.Snapshot()
	if snap.Processed != 2 || snap.Extracted != 2 || snap.Failures != 0 {
		t.Fatalf("snapshot = %+v, want processed=2 extracted=2 failures=0", snap)
	}
}

func TestDrainOnceSkipsNonTasks(t *testing.T) {
	t.Parallel()

	queue := ingest.NewQueue()
	store := taskstore.New()
	d, err := New(queue, store, testPipeline(), DefaultConfig(), discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	queue.Enqueue(ingest.Message{Text: "nothing actionable here", User: "U1", Channel: "C1", TS: "t1"})
	d.DrainOnce()

	if store.Len() != 0 {
		t.Fatalf("store.Len() = %d, want 0", store.Len())
	}
	snap := d.Snapshot()
	if snap.Processed != 1 || snap.Extracted != 0 {
		t.Fatalf("snapshot = %+v, want processed=1 extracted=0", snap)
	}
}

func TestDrainOnceFailureIsolation(t *testing.T) {
	t.Parallel()

	queue := ingest.NewQueue()
	store := taskstore.New()
	pipe := failOnText{inner: testPipeline(), marker: "boom"}
	d, err := New(queue, store, pipe, DefaultConfig(), discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	queue.Enqueue(ingest.Message{Text: "review item one", User: "U1", Channel: "C1", TS: "t1"})
	queue.Enqueue(ingest.Message{Text: "boom review", User: "U1", Channel: "C1", TS: "t2"})
	queue.Enqueue(ingest.Message{Text: "ship item three", User: "U1", Channel: "C1", TS: "t3"})

	d.DrainOnce()

	if queue.Size() != 0 {
		t.Fatalf("queue.Size() = %d, want 0 (failed message must not be re-enqueued)", queue.Size())
	}
	if _, ok := store.Get("C1", "t1"); !ok {
		t.Fatalf("record for t1 missing")
	}
	if _, ok := store.Get("C1", "t2"); ok {
		t.Fatalf("failed message t2 was persisted")
	}
	if _, ok := store.Get("C1", "t3"); !ok {
		t.Fatalf("record for t3 missing")
	}
	snap := d.Snapshot()
	if snap.Processed != 3 || snap.Extracted != 2 || snap.Failures != 1 {
		t.Fatalf("snapshot = %+v, want processed=3 extracted=2 failures=1", snap)
	}
}

func TestFlushIfDueResetsCounters(t *testing.T) {
	t.Parallel()

	clock := &manualClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	queue := ingest.NewQueue()
	store := taskstore.New()
	cfg := Config{Tick: time.Second, FlushInterval: time.Minute, Now: clock.Now}
	d, err := New(queue, store, testPipeline(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	queue.Enqueue(ingest.Message{Text: "review one", User: "U1", Channel: "C1", TS: "t1"})
	d.DrainOnce()

	if d.FlushIfDue() {
		t.Fatalf("FlushIfDue() = true before interval elapsed")
	}
	clock.Advance(59 * time.Second)
	if d.FlushIfDue() {
		t.Fatalf("FlushIfDue() = true at 59s")
	}
	clock.Advance(1 * time.Second)
	if !d.FlushIfDue() {
		t.Fatalf("FlushIfDue() = false at 60s, want flush")
	}

	snap := d.Snapshot()
	if snap.Processed != 0 || snap.Extracted != 0 || snap.Failures != 0 {
		t.Fatalf("snapshot after flush = %+v, want zeroed counters", snap)
	}
	if !snap.LastFlush.Equal(clock.Now()) {
		t.Fatalf("LastFlush = %v, want %v", snap.LastFlush, clock.Now())
	}

	// Backlog depth reflects live queue state, not a cumulative counter.
	queue.Enqueue(ingest.Message{Text: "pending", User: "U1", Channel: "C1", TS: "t2"})
	if got := d.Snapshot().BacklogDepth; got != 1 {
		t.Fatalf("BacklogDepth = %d, want 1", got)
	}
}

func TestDrainOnceEmptyQueueIsNoOp(t *testing.T) {
	t.Parallel()

	queue := ingest.NewQueue()
	store := taskstore.New()
	d, err := New(queue, store, testPipeline(), DefaultConfig(), discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if drained := d.DrainOnce(); drained != 0 {
			t.Fatalf("DrainOnce() = %d, want 0", drained)
		}
	}
	if snap := d.Snapshot(); snap.Processed != 0 {
		t.Fatalf("Processed = %d, want 0", snap.Processed)
	}
}
