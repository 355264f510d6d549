package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockArchiver records ArchiveCompletedBefore calls.
type mockArchiver struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int
	err     error
	entered chan struct{}
	block   chan struct{}
}

func (m *mockArchiver) ArchiveCompletedBefore(_ context.Context, cutoff time.Time) (int, error) {
	if m.entered != nil {
		close(m.entered)
	}
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	return m.n, m.err
}

func (m *mockArchiver) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cutoffs)
}

func newTestScheduler(t *testing.T, a Archiver, schedule string) *Scheduler {
	t.Helper()
	s, err := NewScheduler(a, Config{Schedule: schedule, Retention: 30 * 24 * time.Hour, Logger: slog.Default()})
	require.NoError(t, err)
	return s
}

// --- Tests ---

func TestNewScheduler_Validation(t *testing.T) {
	tests := []struct {
		name string
		a    Archiver
		cfg  Config
	}{
		{"nil archiver", nil, Config{Retention: time.Hour}},
		{"zero retention", &mockArchiver{}, Config{}},
		{"bad schedule", &mockArchiver{}, Config{Schedule: "invalid cron", Retention: time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScheduler(tt.a, tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNextRun(t *testing.T) {
	from := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		schedule string
		want     time.Time
	}{
		{"0 * * * *", time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 2, 10, 12, 15, 0, 0, time.UTC)},
		{"", time.Date(2026, 2, 11, 3, 0, 0, 0, time.UTC)},
		{"@daily", time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			sched := newTestScheduler(t, &mockArchiver{}, tt.schedule)
			assert.Equal(t, tt.want, sched.NextRun(from))
		})
	}
}

func TestRunOnce_UsesRetentionCutoff(t *testing.T) {
	a := &mockArchiver{n: 3}
	sched := newTestScheduler(t, a, "")
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sched.now = func() time.Time { return now }

	n, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, a.cutoffs, 1)
	assert.Equal(t, now.Add(-30*24*time.Hour), a.cutoffs[0])
}

func TestRunOnce_PropagatesError(t *testing.T) {
	a := &mockArchiver{n: 1, err: errors.New("disk full")}
	sched := newTestScheduler(t, a, "")

	n, err := sched.RunOnce(context.Background())
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 1, n)
}

func TestRunOnce_SkipsWhileRunning(t *testing.T) {
	a := &mockArchiver{entered: make(chan struct{}), block: make(chan struct{})}
	sched := newTestScheduler(t, a, "")

	done := make(chan struct{})
	go func() {
		_, _ = sched.RunOnce(context.Background())
		close(done)
	}()
	<-a.entered

	n, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	close(a.block)
	<-done
	assert.Equal(t, 1, a.callCount())
}

func TestStartStop(t *testing.T) {
	a := &mockArchiver{}
	sched := newTestScheduler(t, a, "@every 10ms")

	ctx := context.Background()
	require.NoError(t, sched.Start(ctx))
	assert.Error(t, sched.Start(ctx), "double start")

	assert.Eventually(t, func() bool { return a.callCount() >= 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Stop(), "stop is idempotent")

	calls := a.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, a.callCount())
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	sched := newTestScheduler(t, &mockArchiver{}, "")
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- sched.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
