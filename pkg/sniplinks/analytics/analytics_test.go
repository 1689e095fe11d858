package analytics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sniplinks/sniplinks/pkg/sniplinks/database"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/models"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/report"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// flakyStore fails the first clickFailures inserts, with clickErr when set,
// and every increment when countErr is set.
type flakyStore struct {
	mu            sync.Mutex
	clickFailures int
	clickCalls    int
	countCalls    int
	clickErr      error
	countErr      error
	clicks        []*models.Click
}

func (s *flakyStore) InsertClick(_ context.Context, click *models.Click) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clickCalls++
	if s.clickCalls <= s.clickFailures {
		if s.clickErr != nil {
			return s.clickErr
		}
		return errors.New("database is locked")
	}
	s.clicks = append(s.clicks, click)
	return nil
}

func (s *flakyStore) IncrementClickCount(context.Context, uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countCalls++
	return s.countErr
}

func setupTestStore(t *testing.T) (*store.GormStore, *gorm.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() { database.Close(db) })
	return store.NewGormStore(db, 2*time.Second), db
}

func newTestRecorder(st ClickStore, rep report.Reporter) *Recorder {
	r := NewRecorder(st, rep)
	r.backoff = time.Millisecond
	return r
}

func TestRecordWritesClickAndCount(t *testing.T) {
	st, db := setupTestStore(t)
	link := &models.Link{ShortCode: "abc", OriginalURL: "https://example.com"}
	require.NoError(t, db.Create(link).Error)

	at := time.Date(2026, 3, 14, 15, 9, 26, 0, time.FixedZone("EST", -5*3600))
	err := NewRecorder(st, nil).Record(context.Background(), Event{
		LinkID:    link.ID,
		ClickedAt: at,
		Referrer:  "https://news.example",
	})
	require.NoError(t, err)

	var click models.Click
	require.NoError(t, db.Where("link_id = ?", link.ID).First(&click).Error)
	assert.Len(t, click.ID, 36)
	assert.True(t, click.ClickedAt.Equal(at))
	require.NotNil(t, click.Referrer)
	assert.Equal(t, "https://news.example", *click.Referrer)
	assert.Nil(t, click.UserAgent)

	var reloaded models.Link
	require.NoError(t, db.First(&reloaded, link.ID).Error)
	assert.EqualValues(t, 1, reloaded.ClickCount)
}

func TestRecordRetriesTransientFailures(t *testing.T) {
	st := &flakyStore{clickFailures: 2}
	rec := &report.Recorder{}

	err := newTestRecorder(st, rec).Record(context.Background(), Event{LinkID: 1})
	assert.NoError(t, err)
	assert.Equal(t, 3, st.clickCalls)
	assert.Len(t, st.clicks, 1)
	assert.Empty(t, rec.Entries())
}

func TestRecordReportsEachFailure(t *testing.T) {
	st := &flakyStore{clickFailures: 10, countErr: errors.New("connection reset")}
	rec := &report.Recorder{}

	err := newTestRecorder(st, rec).Record(context.Background(), Event{LinkID: 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert click")
	assert.Contains(t, err.Error(), "increment click count")

	assert.Equal(t, MaxAttempts, st.clickCalls)
	assert.Equal(t, MaxAttempts, st.countCalls, "increment is attempted even when the click insert failed")

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "record click", entries[0].Op)
	assert.Equal(t, "increment click count", entries[1].Op)
	assert.Equal(t, []any{"link_id", uint(7)}, entries[1].Fields)
}

func TestRecordRetriesTimeouts(t *testing.T) {
	st := &flakyStore{clickFailures: 1, clickErr: store.ErrTimeout}
	rec := &report.Recorder{}

	err := newTestRecorder(st, rec).Record(context.Background(), Event{LinkID: 1})
	assert.NoError(t, err)
	assert.Equal(t, 2, st.clickCalls)
	assert.Len(t, st.clicks, 1)
	assert.Equal(t, 1, st.countCalls)
	assert.Empty(t, rec.Entries())
}

func TestRecordStopsRetryingWhenContextExpires(t *testing.T) {
	st := &flakyStore{clickFailures: 10, clickErr: store.ErrTimeout}
	rec := &report.Recorder{}
	r := NewRecorder(st, rec)
	r.backoff = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Record(ctx, Event{LinkID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrTimeout)
	assert.Equal(t, 1, st.clickCalls)
}

// committedTimeoutStore commits the first insert but reports a timeout, the
// way a write can land after the client stopped waiting.
type committedTimeoutStore struct {
	mu    sync.Mutex
	rows  map[string]*models.Click
	calls int
}

func (s *committedTimeoutStore) InsertClick(_ context.Context, click *models.Click) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if _, ok := s.rows[click.ID]; ok {
		return store.ErrUniqueViolation
	}
	s.rows[click.ID] = click
	if s.calls == 1 {
		return store.ErrTimeout
	}
	return nil
}

func (s *committedTimeoutStore) IncrementClickCount(context.Context, uint) error { return nil }

func TestRecordTreatsDuplicateRetryAsRecorded(t *testing.T) {
	st := &committedTimeoutStore{rows: map[string]*models.Click{}}
	rec := &report.Recorder{}

	err := newTestRecorder(st, rec).Record(context.Background(), Event{LinkID: 1})
	assert.NoError(t, err)
	assert.Equal(t, 2, st.calls)
	assert.Len(t, st.rows, 1)
	assert.Empty(t, rec.Entries())
}

func TestRecordTreatsDuplicateRetryAsRecordedInDatabase(t *testing.T) {
	st, db := setupTestStore(t)
	link := &models.Link{ShortCode: "dup", OriginalURL: "https://example.com"}
	require.NoError(t, db.Create(link).Error)

	rec := &report.Recorder{}
	err := newTestRecorder(&timeoutAfterInsert{GormStore: st}, rec).Record(context.Background(), Event{LinkID: link.ID})
	assert.NoError(t, err)
	assert.Empty(t, rec.Entries())

	var clicks int64
	require.NoError(t, db.Model(&models.Click{}).Where("link_id = ?", link.ID).Count(&clicks).Error)
	assert.EqualValues(t, 1, clicks)
}

// timeoutAfterInsert lets the first insert reach the database, then reports
// it as timed out.
type timeoutAfterInsert struct {
	*store.GormStore
	once sync.Once
}

func (s *timeoutAfterInsert) InsertClick(ctx context.Context, click *models.Click) error {
	err := s.GormStore.InsertClick(ctx, click)
	timedOut := false
	s.once.Do(func() { timedOut = true })
	if err == nil && timedOut {
		return store.ErrTimeout
	}
	return err
}

func TestRecordReportsCarryRequestID(t *testing.T) {
	st := &flakyStore{countErr: errors.New("connection reset")}
	rec := &report.Recorder{}

	err := newTestRecorder(st, rec).Record(context.Background(), Event{LinkID: 4, RequestID: "req-1"})
	require.Error(t, err)
	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, []any{"link_id", uint(4), "request_id", "req-1"}, entries[0].Fields)
}

func TestDispatcherConcurrentClicks(t *testing.T) {
	st, db := setupTestStore(t)
	link := &models.Link{ShortCode: "busy", OriginalURL: "https://example.com"}
	require.NoError(t, db.Create(link).Error)

	rec := &report.Recorder{}
	d := NewDispatcher(NewRecorder(st, rec), 10*time.Second, 8)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(Event{LinkID: link.ID, UserAgent: "test"})
		}()
	}
	wg.Wait()
	d.Wait()

	assert.Empty(t, rec.Entries())

	var clicks int64
	require.NoError(t, db.Model(&models.Click{}).Where("link_id = ?", link.ID).Count(&clicks).Error)
	assert.EqualValues(t, n, clicks)

	var reloaded models.Link
	require.NoError(t, db.First(&reloaded, link.ID).Error)
	assert.EqualValues(t, n, reloaded.ClickCount)
}

// blockingStore holds every insert until release is closed.
type blockingStore struct {
	release  chan struct{}
	inflight atomic.Int64
	peak     atomic.Int64
}

func (s *blockingStore) InsertClick(ctx context.Context, _ *models.Click) error {
	cur := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		peak := s.peak.Load()
		if cur <= peak || s.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *blockingStore) IncrementClickCount(context.Context, uint) error { return nil }

func TestDispatchDoesNotBlockAndCapsConcurrency(t *testing.T) {
	st := &blockingStore{release: make(chan struct{})}
	d := NewDispatcher(NewRecorder(st, nil), 10*time.Second, 2)

	start := time.Now()
	for i := 0; i < 10; i++ {
		assert.True(t, d.Dispatch(Event{LinkID: 1}))
	}
	assert.Less(t, time.Since(start), time.Second, "Dispatch must return immediately")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	close(st.release)
	require.NoError(t, d.Close(context.Background()))
	assert.LessOrEqual(t, st.peak.Load(), int64(2))
	assert.Zero(t, d.Dropped())
}

func TestDispatchDropsWhenQueueFull(t *testing.T) {
	st := &blockingStore{release: make(chan struct{})}
	rec := &report.Recorder{}
	d := NewDispatcher(NewRecorder(st, rec), 10*time.Second, 1, WithQueueSize(2))

	const n = 20
	accepted := 0
	start := time.Now()
	for i := 0; i < n; i++ {
		if d.Dispatch(Event{LinkID: 9, RequestID: "req-9"}) {
			accepted++
		}
	}
	assert.Less(t, time.Since(start), time.Second, "Dispatch must not wait for room")

	// One event may already be with the worker, the rest sit in the queue.
	assert.GreaterOrEqual(t, accepted, 2)
	assert.LessOrEqual(t, accepted, 3)
	assert.EqualValues(t, n-accepted, d.Dropped())

	entries := rec.Entries()
	require.Len(t, entries, n-accepted)
	assert.Equal(t, "drop click", entries[0].Op)
	assert.ErrorIs(t, entries[0].Err, ErrQueueFull)
	assert.Equal(t, []any{"link_id", uint(9), "request_id", "req-9"}, entries[0].Fields)

	close(st.release)
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatchAfterCloseDrops(t *testing.T) {
	rec := &report.Recorder{}
	d := NewDispatcher(NewRecorder(&flakyStore{}, rec), time.Second, 1)
	require.NoError(t, d.Close(context.Background()))

	assert.False(t, d.Dispatch(Event{LinkID: 1}))
	assert.EqualValues(t, 1, d.Dropped())
	require.Len(t, rec.Entries(), 1)
	assert.ErrorIs(t, rec.Entries()[0].Err, ErrClosed)
}

func TestReconcilerFixesDrift(t *testing.T) {
	st, db := setupTestStore(t)
	link := &models.Link{ShortCode: "drift", OriginalURL: "https://example.com", ClickCount: 1}
	require.NoError(t, db.Create(link).Error)
	for i := 0; i < 3; i++ {
		require.NoError(t, st.InsertClick(context.Background(), &models.Click{
			ID:        "click-" + string(rune('a'+i)),
			LinkID:    link.ID,
			ClickedAt: time.Now().UTC(),
		}))
	}

	r := NewReconciler(st, nil)
	fixed, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, fixed)

	var reloaded models.Link
	require.NoError(t, db.First(&reloaded, link.ID).Error)
	assert.EqualValues(t, 3, reloaded.ClickCount)

	fixed, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, fixed)
}

type failingCounter struct{}

func (failingCounter) SyncClickCounts(context.Context) (int64, error) {
	return 0, errors.New("boom")
}

func TestReconcilerReportsFailure(t *testing.T) {
	rec := &report.Recorder{}
	r := NewReconciler(failingCounter{}, rec)

	_, err := r.RunOnce(context.Background())
	assert.Error(t, err)
	require.Len(t, rec.Entries(), 1)
	assert.Equal(t, "reconcile click counts", rec.Entries()[0].Op)
}

func TestReconcilerStartRejectsBadSchedule(t *testing.T) {
	r := NewReconciler(failingCounter{}, nil)
	assert.Error(t, r.Start("not a schedule"))

	require.NoError(t, r.Start("@every 1h"))
	assert.NoError(t, r.Stop(context.Background()))
}
