package drain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quailyquaily/slackpm/internal/ingest"
	"github.com/quailyquaily/slackpm/internal/taskstore"
)

const (
	defaultTick          = 1 * time.Second
	defaultFlushInterval = 1 * time.Minute
)

// Pipeline is the extraction stage the drainer feeds. An error marks the
// message as an extraction failure: counted, logged, dropped.
type Pipeline interface {
	Run(msg ingest.Message) (taskstore.Metadata, error)
}

type Config struct {
	Tick          time.Duration
	FlushInterval time.Duration

	// Now is the clock used for metrics flushing. Tests inject a fixed clock
	// to advance time deterministically.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Tick:          defaultTick,
		FlushInterval: defaultFlushInterval,
	}
}

// Drainer owns the drain loop: each tick consumes the queue to empty, runs
// the pipeline per message, persists task records, and keeps the rolling
// counters. A single Drainer goroutine is the only consumer of the queue and
// the only writer of the store.
type Drainer struct {
	queue *ingest.Queue
	store *taskstore.Store
	pipe  Pipeline
	log   *slog.Logger
	cfg   Config
	now   func() time.Time

	mu        sync.Mutex
	processed uint64
	extracted uint64
	failures  uint64
	lastFlush time.Time

	wg sync.WaitGroup
}

// Snapshot is a read-only view of the counters since the last flush, plus
// the live backlog depth.
type Snapshot struct {
	Processed    uint64    `json:"processed"`
	Extracted    uint64    `json:"extracted"`
	Failures     uint64    `json:"failures"`
	BacklogDepth int       `json:"backlog_depth"`
	LastFlush    time.Time `json:"last_flush"`
}

func New(queue *ingest.Queue, store *taskstore.Store, pipe Pipeline, cfg Config, log *slog.Logger) (*Drainer, error) {
	if queue == nil {
		return nil, fmt.Errorf("nil queue")
	}
	if store == nil {
		return nil, fmt.Errorf("nil store")
	}
	if pipe == nil {
		return nil, fmt.Errorf("nil pipeline")
	}
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Drainer{
		queue:     queue,
		store:     store,
		pipe:      pipe,
		log:       log,
		cfg:       cfg,
		now:       now,
		lastFlush: now().UTC(),
	}, nil
}

// Start launches the tick loop and returns immediately. The loop runs until
// ctx is canceled; there is no terminal state.
func (d *Drainer) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	d.log.Info("drainer_start", "tick_ms", d.cfg.Tick.Milliseconds(), "flush_interval", d.cfg.FlushInterval.String())

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		t := time.NewTicker(d.cfg.Tick)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				d.log.Info("drainer_stop", "reason", ctx.Err().Error())
				return
			case <-t.C:
				d.DrainOnce()
				d.FlushIfDue()
			}
		}
	}()
}

func (d *Drainer) Wait() {
	d.wg.Wait()
}

// DrainOnce consumes the queue to empty. A burst of N enqueued messages is
// fully processed before the next tick fires. Re-draining an empty queue is
// a no-op.
func (d *Drainer) DrainOnce() int {
	if d == nil {
		return 0
	}
	drained := 0
	for {
		msg, ok := d.queue.Dequeue()
		if !ok {
			return drained
		}
		drained++
		d.mu.Lock()
		d.processed++
		d.mu.Unlock()

		md, err := d.pipe.Run(msg)
		if err != nil {
			d.mu.Lock()
			d.failures++
			d.mu.Unlock()
			d.log.Error("extraction_failed",
				"channel", msg.Channel,
				"ts", msg.TS,
				"user", msg.User,
				"text", msg.Text,
				"error", err.Error(),
			)
			continue
		}
		if !md.IsTask {
			continue
		}

		d.mu.Lock()
		d.extracted++
		d.mu.Unlock()
		md.Source = &taskstore.Source{Channel: msg.Channel, TS: msg.TS}
		d.store.Save(msg.Channel, msg.TS, md)
		d.log.Info("task_extracted",
			"channel", msg.Channel,
			"ts", msg.TS,
			"owner", md.Owner,
			"project_id", md.ProjectID,
			"summary", md.Summary,
			"due_date", formatDueDate(md.DueDate),
		)
	}
}

// FlushIfDue emits a metrics snapshot and zeroes the counters once the flush
// interval has elapsed. Backlog depth is read live, not reset.
func (d *Drainer) FlushIfDue() bool {
	if d == nil {
		return false
	}
	now := d.now().UTC()
	d.mu.Lock()
	if now.Sub(d.lastFlush) < d.cfg.FlushInterval {
		d.mu.Unlock()
		return false
	}
	processed := d.processed
	extracted := d.extracted
	failures := d.failures
	d.processed = 0
	d.extracted = 0
	d.failures = 0
	d.lastFlush = now
	d.mu.Unlock()

	d.log.Info("pipeline_metrics",
		"processed", processed,
		"extracted", extracted,
		"failures", failures,
		"backlog_depth", d.queue.Size(),
	)
	return true
}

// Snapshot reports the counters accumulated since the last flush without
// resetting them.
func (d *Drainer) Snapshot() Snapshot {
	if d == nil {
		return Snapshot{}
	}
	d.mu.Lock()
	snap := Snapshot{
		Processed: d.processed,
		Extracted: d.extracted,
		Failures:  d.failures,
		LastFlush: d.lastFlush,
	}
	d.mu.Unlock()
	snap.BacklogDepth = d.queue.Size()
	return snap
}

func formatDueDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
