package history

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dense-analysis/networth/internal/model"
)

type stubRemote struct {
	mu        sync.Mutex
	snapshots []model.Snapshot
	upserted  []model.Snapshot
	bulk      [][]model.Snapshot
	failWith  error
}

func (remote *stubRemote) ListSnapshots() ([]model.Snapshot, error) {
	remote.mu.Lock()
	defer remote.mu.Unlock()

	return remote.snapshots, remote.failWith
}

func (remote *stubRemote) UpsertSnapshot(snapshot model.Snapshot) error {
	remote.mu.Lock()
	defer remote.mu.Unlock()

	if remote.failWith != nil {
		return remote.failWith
	}

	remote.upserted = append(remote.upserted, snapshot)

	return nil
}

func (remote *stubRemote) UpsertSnapshots(snapshots []model.Snapshot) error {
	remote.mu.Lock()
	defer remote.mu.Unlock()

	if remote.failWith != nil {
		return remote.failWith
	}

	remote.bulk = append(remote.bulk, snapshots)

	return nil
}

func (remote *stubRemote) upsertedSnapshots() []model.Snapshot {
	remote.mu.Lock()
	defer remote.mu.Unlock()

	return remote.upserted
}

func snapshot(date string, value int64) model.Snapshot {
	return model.Snapshot{Date: date, TotalValue: decimal.NewFromInt(value)}
}

func TestReconcileRemoteWins(t *testing.T) {
	local := []model.Snapshot{
		snapshot("2026-02-27", 100),
		snapshot("2026-02-28", 200),
	}
	remote := []model.Snapshot{
		snapshot("2026-02-28", 250),
		snapshot("2026-03-01", 300),
	}

	merged := Reconcile(remote, local)

	require.Len(t, merged, 3)
	assert.Equal(t, "2026-02-27", merged[0].Date)
	assert.True(t, merged[0].TotalValue.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "2026-02-28", merged[1].Date)
	assert.True(t, merged[1].TotalValue.Equal(decimal.NewFromInt(250)), "remote value replaces local")
	assert.Equal(t, "2026-03-01", merged[2].Date)
}

func TestReconcileEmptyRemoteKeepsLocal(t *testing.T) {
	local := []model.Snapshot{
		snapshot("2026-02-28", 200),
		snapshot("2026-02-27", 100),
	}

	merged := Reconcile(nil, local)

	require.Len(t, merged, 2)
	assert.Equal(t, "2026-02-27", merged[0].Date, "result is sorted ascending")
}

func TestReconcileIsIdempotent(t *testing.T) {
	remote := []model.Snapshot{snapshot("2026-03-01", 300)}
	local := []model.Snapshot{snapshot("2026-02-28", 200)}

	once := Reconcile(remote, local)
	twice := Reconcile(remote, once)

	assert.Equal(t, once, twice)
}

func TestUpsertReplacesExistingDate(t *testing.T) {
	list := []model.Snapshot{snapshot("2026-03-01", 300)}

	list = Upsert(list, snapshot("2026-03-01", 350))

	require.Len(t, list, 1)
	assert.True(t, list[0].TotalValue.Equal(decimal.NewFromInt(350)))
}

func TestUpsertInsertsSorted(t *testing.T) {
	list := []model.Snapshot{snapshot("2026-03-02", 300)}

	list = Upsert(list, snapshot("2026-03-01", 200))

	require.Len(t, list, 2)
	assert.Equal(t, "2026-03-01", list[0].Date)
}

func TestRecorderDebouncesToLatestValue(t *testing.T) {
	remote := &stubRemote{}
	var mu sync.Mutex
	var applied []model.Snapshot

	recorder := NewRecorder(remote, func(snapshot model.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		applied = append(applied, snapshot)
	})
	recorder.delay = 20 * time.Millisecond

	recorder.Record(decimal.NewFromInt(100), "2026-03-01")
	recorder.Record(decimal.NewFromInt(150), "2026-03-01")
	recorder.Record(decimal.NewFromInt(175), "2026-03-01")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(applied) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.True(t, applied[0].TotalValue.Equal(decimal.NewFromInt(175)), "only the latest value is written")
	mu.Unlock()

	upserted := remote.upsertedSnapshots()
	require.Len(t, upserted, 1)
	assert.True(t, upserted[0].TotalValue.Equal(decimal.NewFromInt(175)))
}

func TestRecorderSkipsZeroTotals(t *testing.T) {
	remote := &stubRemote{}
	recorder := NewRecorder(remote, func(model.Snapshot) {
		t.Error("a zero total must never be recorded")
	})
	recorder.delay = 10 * time.Millisecond

	recorder.Record(decimal.Zero, "2026-03-01")
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, remote.upsertedSnapshots())
}

func TestRecorderRemoteFailureStillAppliesLocally(t *testing.T) {
	remote := &stubRemote{failWith: errors.New("remote is down")}
	var mu sync.Mutex
	applied := 0

	recorder := NewRecorder(remote, func(model.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		applied++
	})
	recorder.delay = 10 * time.Millisecond

	recorder.Record(decimal.NewFromInt(100), "2026-03-01")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return applied == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRecorderFlushWritesImmediately(t *testing.T) {
	remote := &stubRemote{}
	var mu sync.Mutex
	applied := 0

	recorder := NewRecorder(remote, func(model.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		applied++
	})

	recorder.Record(decimal.NewFromInt(100), "2026-03-01")
	recorder.Flush()

	mu.Lock()
	assert.Equal(t, 1, applied)
	mu.Unlock()
	assert.Len(t, remote.upsertedSnapshots(), 1)

	// A second flush with nothing pending is a no-op.
	recorder.Flush()
	assert.Len(t, remote.upsertedSnapshots(), 1)
}

func TestMigrateAppendsToday(t *testing.T) {
	remote := &stubRemote{}
	local := []model.Snapshot{
		snapshot("2026-02-27", 100),
		snapshot("2026-02-28", 200),
	}

	count, err := Migrate(remote, local, decimal.NewFromInt(300), "2026-03-01")

	require.NoError(t, err)
	assert.Equal(t, 3, count)
	require.Len(t, remote.bulk, 1)
	assert.Equal(t, "2026-03-01", remote.bulk[0][2].Date)
}

func TestMigrateSkipsTodayWhenPresent(t *testing.T) {
	remote := &stubRemote{}
	local := []model.Snapshot{snapshot("2026-03-01", 300)}

	count, err := Migrate(remote, local, decimal.NewFromInt(999), "2026-03-01")

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, remote.bulk, 1)
	assert.True(t, remote.bulk[0][0].TotalValue.Equal(decimal.NewFromInt(300)))
}

func TestMigrateFailureReportsZero(t *testing.T) {
	remote := &stubRemote{failWith: errors.New("remote is down")}

	count, err := Migrate(remote, nil, decimal.NewFromInt(300), "2026-03-01")

	assert.Error(t, err)
	assert.Equal(t, 0, count)
}
