// Package history maintains the per-day series of total portfolio values.
package history

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dense-analysis/networth/internal/model"
)

// SyncDelay is how long the recorder waits for the total to stop changing
// before a snapshot is written.
const SyncDelay = 2 * time.Second

// RemoteStore persists snapshots remotely, keyed by date with last write wins.
type RemoteStore interface {
	ListSnapshots() ([]model.Snapshot, error)
	UpsertSnapshot(snapshot model.Snapshot) error
	UpsertSnapshots(snapshots []model.Snapshot) error
}

// Reconcile merges remote snapshots into local ones.
//
// For dates present in both lists the remote value replaces the local one.
// Entries present on only one side are kept. The result is sorted ascending
// by date, with at most one entry per date.
func Reconcile(remote []model.Snapshot, local []model.Snapshot) []model.Snapshot {
	merged := make([]model.Snapshot, 0, len(local)+len(remote))
	index := map[string]int{}

	for _, snapshot := range local {
		if i, ok := index[snapshot.Date]; ok {
			merged[i] = snapshot
		} else {
			index[snapshot.Date] = len(merged)
			merged = append(merged, snapshot)
		}
	}

	for _, snapshot := range remote {
		if i, ok := index[snapshot.Date]; ok {
			merged[i] = snapshot
		} else {
			index[snapshot.Date] = len(merged)
			merged = append(merged, snapshot)
		}
	}

	sort.Slice(merged, func(i int, j int) bool {
		return merged[i].Date < merged[j].Date
	})

	return merged
}

// Upsert replaces or appends the entry for a snapshot's date, keeping the
// list sorted ascending by date.
func Upsert(list []model.Snapshot, snapshot model.Snapshot) []model.Snapshot {
	for i := range list {
		if list[i].Date == snapshot.Date {
			list[i] = snapshot

			return list
		}
	}

	list = append(list, snapshot)
	sort.Slice(list, func(i int, j int) bool {
		return list[i].Date < list[j].Date
	})

	return list
}

// Recorder turns a stream of observed totals into debounced snapshot writes.
//
// Each Record call arms a delayed write for the latest value, cancelling any
// write still pending. The write applies locally first, then upserts to the
// remote store; remote failures are logged and never block the local series.
type Recorder struct {
	remote RemoteStore
	apply  func(model.Snapshot)
	delay  time.Duration
	log    *logrus.Entry

	mu      sync.Mutex
	timer   *time.Timer
	pending *model.Snapshot
}

// NewRecorder creates a recorder. The apply callback receives each committed
// snapshot so the caller can update its local series.
func NewRecorder(remote RemoteStore, apply func(model.Snapshot)) *Recorder {
	return &Recorder{
		remote: remote,
		apply:  apply,
		delay:  SyncDelay,
		log:    logrus.WithField("component", "history"),
	}
}

// Record schedules a snapshot write for a date after the debounce delay.
//
// Zero totals are never recorded.
func (recorder *Recorder) Record(totalValue decimal.Decimal, date string) {
	if totalValue.IsZero() {
		return
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	recorder.pending = &model.Snapshot{Date: date, TotalValue: totalValue}

	if recorder.timer != nil {
		recorder.timer.Stop()
	}

	recorder.timer = time.AfterFunc(recorder.delay, recorder.commit)
}

func (recorder *Recorder) commit() {
	recorder.mu.Lock()
	snapshot := recorder.pending
	recorder.pending = nil
	recorder.timer = nil
	recorder.mu.Unlock()

	if snapshot == nil {
		return
	}

	recorder.apply(*snapshot)

	if recorder.remote == nil {
		return
	}

	if err := recorder.remote.UpsertSnapshot(*snapshot); err != nil {
		recorder.log.WithError(err).Warn("remote snapshot upsert failed")
	}
}

// Flush writes any pending snapshot immediately, for shutdown.
func (recorder *Recorder) Flush() {
	recorder.mu.Lock()

	if recorder.timer != nil {
		recorder.timer.Stop()
		recorder.timer = nil
	}

	recorder.mu.Unlock()
	recorder.commit()
}

// Migrate bulk-upserts a local snapshot series to the remote store, adding
// an entry for today from the current total when one is missing.
//
// It returns how many snapshots were synced.
func Migrate(remote RemoteStore, local []model.Snapshot, currentTotal decimal.Decimal, today string) (int, error) {
	toSync := make([]model.Snapshot, len(local))
	copy(toSync, local)

	hasToday := false

	for _, snapshot := range toSync {
		if snapshot.Date == today {
			hasToday = true

			break
		}
	}

	if !hasToday {
		toSync = append(toSync, model.Snapshot{Date: today, TotalValue: currentTotal})
	}

	if err := remote.UpsertSnapshots(toSync); err != nil {
		return 0, err
	}

	return len(toSync), nil
}
