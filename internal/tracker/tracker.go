// Package tracker reconciles the tracked set with today's discoveries and
// appends one metric sample per tracked item per run.
package tracker

import (
	"context"
	goerrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/lancelop89/shorts-tracker/internal/discovery"
	"github.com/lancelop89/shorts-tracker/internal/errors"
	"github.com/lancelop89/shorts-tracker/internal/logger"
	"github.com/lancelop89/shorts-tracker/internal/metrics"
	"github.com/lancelop89/shorts-tracker/internal/retry"
	"github.com/lancelop89/shorts-tracker/internal/storage"
	"github.com/lancelop89/shorts-tracker/internal/youtube"
)

// BatchSize is the maximum number of ids per counters request.
const BatchSize = youtube.MaxBatchSize

// ErrRunInProgress is returned when RunOnce is called while another run holds the lock.
var ErrRunInProgress = goerrors.New("a tracking run is already in progress")

// Trigger identifies what started a run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// Discoverer finds items published today.
type Discoverer interface {
	Discover(ctx context.Context, channelIDs []string) *discovery.Result
}

// CounterSource fetches public counters for up to BatchSize ids.
type CounterSource interface {
	Counters(ctx context.Context, videoIDs []string) (map[string]youtube.Counters, error)
}

// RunSummary describes the outcome of one run.
type RunSummary struct {
	Trigger           Trigger  `json:"trigger"`
	Timestamp         string   `json:"timestamp,omitempty"`
	PreviouslyTracked int      `json:"previously_tracked"`
	Discovered        int      `json:"discovered"`
	NewlyTracked      int      `json:"newly_tracked"`
	Tracked           int      `json:"tracked"`
	Built             int      `json:"rows_built"`
	Appended          int      `json:"rows_appended"`
	Duplicates        int      `json:"duplicates_skipped"`
	Skipped           []string `json:"skipped_ids,omitempty"`
	HeaderInitialized bool     `json:"header_initialized"`
	DiscoveryFailed   bool     `json:"discovery_failed"`
	Aborted           bool     `json:"aborted"`
	Logs              []string `json:"logs,omitempty"`
}

func (s *RunSummary) logf(log *logger.Logger, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.Logs = append(s.Logs, msg)
	log.Info(msg, map[string]string{"trigger": string(s.Trigger)})
}

// Config wires a Reconciler.
type Config struct {
	Store      storage.Store
	Discoverer Discoverer
	Counters   CounterSource
	Channels   []string
	Retry      retry.Config
	Now        func() time.Time
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
}

// Reconciler runs the tracking pipeline. RunOnce is safe for concurrent use;
// at most one run executes at a time.
type Reconciler struct {
	store      storage.Store
	discoverer Discoverer
	counters   CounterSource
	channels   []string
	retry      retry.Config
	now        func() time.Time
	log        *logger.Logger
	metrics    *metrics.Metrics

	mu sync.Mutex
}

// NewReconciler creates a Reconciler.
func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.Store == nil || cfg.Discoverer == nil || cfg.Counters == nil {
		return nil, errors.Config("reconciler requires a store, a discoverer and a counter source", nil)
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Reconciler{
		store:      cfg.Store,
		discoverer: cfg.Discoverer,
		counters:   cfg.Counters,
		channels:   append([]string(nil), cfg.Channels...),
		retry:      cfg.Retry,
		now:        cfg.Now,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
	}, nil
}

// trackedItem is the immutable knowledge kept for one id.
type trackedItem struct {
	channel      string
	published    time.Time
	hasPublished bool
}

// trackedSet keeps ids in first-seen order.
type trackedSet struct {
	order []string
	items map[string]trackedItem
}

func newTrackedSet() *trackedSet {
	return &trackedSet{items: make(map[string]trackedItem)}
}

func (t *trackedSet) add(id string, item trackedItem) bool {
	if _, ok := t.items[id]; ok {
		return false
	}
	t.order = append(t.order, id)
	t.items[id] = item
	return true
}

// fromRows rebuilds the tracked set and the existing dedup keys from history.
// The first row seen for an id fixes its channel and publish time.
func fromRows(rows []storage.Row) (*trackedSet, map[sampleKey]struct{}) {
	set := newTrackedSet()
	keys := make(map[sampleKey]struct{}, len(rows))
	for _, row := range rows {
		key, ok := rowKey(row)
		if !ok {
			continue
		}
		keys[key] = struct{}{}

		item := trackedItem{channel: row[storage.ColChannelTitle]}
		if published, err := time.Parse(time.RFC3339, row[storage.ColPublishedAt]); err == nil {
			item.published = published.UTC()
			item.hasPublished = true
		}
		set.add(key.videoID, item)
	}
	return set, keys
}

// RunOnce executes one full tracking run. It returns ErrRunInProgress without
// touching the store when another run is active, and a STORAGE error when the
// store cannot be read, initialized or appended to.
func (r *Reconciler) RunOnce(ctx context.Context, trigger Trigger) (*RunSummary, error) {
	if !r.mu.TryLock() {
		r.log.Warning("Run skipped", ErrRunInProgress, map[string]string{"trigger": string(trigger)})
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	timer := metrics.NewTimer()
	summary, err := r.run(ctx, trigger)
	status := metrics.Status(err)
	if err == nil && summary.Aborted {
		status = "aborted"
	}
	r.metrics.RecordRun(string(trigger), status, timer.ObserveDuration())
	if err != nil {
		r.log.Error("Tracking run failed", err, map[string]string{"trigger": string(trigger)})
	}
	return summary, err
}

func (r *Reconciler) run(ctx context.Context, trigger Trigger) (*RunSummary, error) {
	summary := &RunSummary{Trigger: trigger}
	summary.logf(r.log, "Reading the store to find tracked video IDs...")

	snapshot, err := r.store.ReadAll(ctx)
	if err != nil {
		return summary, errors.Storage("failed to read store", err)
	}
	if snapshot == nil {
		snapshot = &storage.Snapshot{}
	}

	if !snapshot.HasSchema() {
		if err := r.store.InitializeSchema(ctx, storage.Header); err != nil {
			return summary, errors.Storage("failed to initialize header row", err)
		}
		summary.HeaderInitialized = true
		summary.logf(r.log, "Initialized header row in the store.")
	}

	tracked, existing := fromRows(snapshot.Rows)
	summary.PreviouslyTracked = len(tracked.order)
	summary.logf(r.log, "Currently tracking %d unique Short(s) from previous runs.", summary.PreviouslyTracked)

	found := r.discoverer.Discover(ctx, r.channels)
	if found == nil {
		found = &discovery.Result{AllFailed: true}
	}
	summary.Logs = append(summary.Logs, found.Logs...)
	if found.AllFailed {
		summary.DiscoveryFailed = true
		summary.logf(r.log, "No new Shorts found today (IST). Will poll stats for existing IDs only.")
	} else {
		summary.Discovered = len(found.Order)
		for _, id := range found.Order {
			if tracked.add(id, trackedItem{
				channel:      found.Channels[id],
				published:    found.Published[id],
				hasPublished: true,
			}) {
				summary.NewlyTracked++
			}
		}
		summary.logf(r.log, "Now tracking %d Shorts in total (added %d today).", len(tracked.order), summary.NewlyTracked)
	}

	summary.Tracked = len(tracked.order)
	r.metrics.SetTrackedItems(summary.Tracked)
	if summary.Tracked == 0 {
		summary.Aborted = true
		summary.logf(r.log, "No Shorts to track at all. Aborting.")
		return summary, nil
	}

	stats := r.fetchCounters(ctx, tracked.order, summary)
	if len(stats) == 0 {
		summary.Aborted = true
		summary.logf(r.log, "Failed to fetch statistics for any tracked video.")
		return summary, nil
	}

	observed := r.now().UTC().Truncate(time.Second)
	summary.Timestamp = FormatTimestamp(observed)

	rows := make([]storage.Row, 0, len(tracked.order))
	for _, id := range tracked.order {
		counters, ok := stats[id]
		if !ok {
			summary.Skipped = append(summary.Skipped, id)
			summary.logf(r.log, "Skipping %s (no stats returned).", id)
			continue
		}
		item := tracked.items[id]
		if !item.hasPublished {
			summary.Skipped = append(summary.Skipped, id)
			summary.logf(r.log, "Skipping %s (missing published_at info).", id)
			continue
		}
		rows = append(rows, Sample{
			VideoID:      id,
			ChannelTitle: item.channel,
			PublishedAt:  item.published,
			ObservedAt:   observed,
			Views:        counters.Views,
			Likes:        counters.Likes,
			Comments:     counters.Comments,
		}.Row())
	}
	summary.Built = len(rows)
	r.metrics.RecordSkipped("missing_data", len(summary.Skipped))
	summary.logf(r.log, "Built %d new stat-rows (one per tracked video).", summary.Built)

	fresh := rows[:0]
	for _, row := range rows {
		key, _ := rowKey(row)
		if _, dup := existing[key]; dup {
			summary.Duplicates++
			summary.logf(r.log, "Skipping duplicate for %s @ %s", key.videoID, key.timestamp)
			continue
		}
		existing[key] = struct{}{}
		fresh = append(fresh, row)
	}
	summary.logf(r.log, "%d row(s) left after filtering duplicates (skipped %d).", len(fresh), summary.Duplicates)

	if len(fresh) == 0 {
		r.metrics.RecordRows(0, summary.Duplicates)
		summary.logf(r.log, "No new rows to append (all duplicates).")
		return summary, nil
	}

	if err := r.store.AppendRows(ctx, fresh); err != nil {
		return summary, errors.Storage("failed to append rows", err).With("rows", len(fresh))
	}
	summary.Appended = len(fresh)
	r.metrics.RecordRows(summary.Appended, summary.Duplicates)
	summary.logf(r.log, "Appended %d row(s) to the store successfully.", summary.Appended)
	return summary, nil
}

// fetchCounters requests counters in batches. A batch that still fails after
// the retry is logged and its ids are left out of the result.
func (r *Reconciler) fetchCounters(ctx context.Context, ids []string, summary *RunSummary) map[string]youtube.Counters {
	summary.logf(r.log, "Fetching stats for %d tracked Short(s)...", len(ids))
	stats := make(map[string]youtube.Counters, len(ids))
	for start := 0; start < len(ids); start += BatchSize {
		end := start + BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		got, err := retry.Value(ctx, r.retry, func(ctx context.Context) (map[string]youtube.Counters, error) {
			return r.counters.Counters(ctx, batch)
		})
		if err != nil {
			cause := "not retriable"
			if retry.IsMaxRetriesExceeded(err) {
				cause = "retries exhausted"
			}
			r.log.Error("Error fetching statistics batch", err, map[string]string{
				"batch_start": fmt.Sprintf("%d", start),
				"batch_size":  fmt.Sprintf("%d", len(batch)),
				"cause":       cause,
			})
			summary.logf(r.log, "Error fetching stats for batch starting at %d (%s).", start, cause)
			continue
		}
		for id, c := range got {
			stats[id] = c
		}
	}
	return stats
}
