package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/respondo/internal/interfaces"
	"github.com/ternarybob/respondo/internal/models"
)

type mockJobStorage struct {
	stale     []*models.EngagementJob
	saved     []*models.EngagementJob
	saveErr   map[string]error
	listErr   error
	listDelay time.Duration
	inList    atomic.Int32
	overlap   atomic.Bool
}

func (m *mockJobStorage) SaveJob(_ context.Context, job *models.EngagementJob) error {
	if err := m.saveErr[job.ID]; err != nil {
		return err
	}
	m.saved = append(m.saved, job)
	return nil
}

func (m *mockJobStorage) GetJob(_ context.Context, _ string) (*models.EngagementJob, error) {
	return nil, nil
}

func (m *mockJobStorage) ListJobsByUser(_ context.Context, _ string) ([]*models.EngagementJob, error) {
	return nil, nil
}

func (m *mockJobStorage) ListJobsByStatus(_ context.Context, _ models.JobStatus) ([]*models.EngagementJob, error) {
	return nil, nil
}

func (m *mockJobStorage) ListStaleActiveJobs(_ context.Context, _ time.Time) ([]*models.EngagementJob, error) {
	if m.inList.Add(1) > 1 {
		m.overlap.Store(true)
	}
	defer m.inList.Add(-1)
	if m.listDelay > 0 {
		time.Sleep(m.listDelay)
	}
	return m.stale, m.listErr
}

func (m *mockJobStorage) CountJobs(_ context.Context) (int, error) {
	return len(m.saved), nil
}

type mockQueue struct {
	delayed []*models.QueueMessage
	delays  []time.Duration
}

func (m *mockQueue) Enqueue(_ context.Context, _ *models.QueueMessage) error { return nil }

func (m *mockQueue) EnqueueWithDelay(_ context.Context, msg *models.QueueMessage, delay time.Duration) error {
	m.delayed = append(m.delayed, msg)
	m.delays = append(m.delays, delay)
	return nil
}

func (m *mockQueue) Receive(_ context.Context) (*interfaces.Delivery, func() error, error) {
	return nil, nil, models.ErrNoMessage
}

func (m *mockQueue) Extend(_ context.Context, _ string, _ time.Duration) error { return nil }
func (m *mockQueue) Length(_ context.Context) (int, error)                     { return 0, nil }
func (m *mockQueue) Close() error                                              { return nil }

func activeJob(id string) *models.EngagementJob {
	job := models.NewEngagementJob("user1", []string{"golang"}, 3, models.ReplyOptions{})
	job.ID = id
	job.MarkActive()
	started := time.Now().Add(-time.Hour)
	job.StartedAt = &started
	return job
}

func TestSweepRequeuesStaleJobs(t *testing.T) {
	jobs := &mockJobStorage{stale: []*models.EngagementJob{activeJob("job_a"), activeJob("job_b")}}
	queue := &mockQueue{}
	reaper := NewReaper(jobs, queue, "@every 2m", 30*time.Minute, 2*time.Second, arbor.NewLogger())

	require.NoError(t, reaper.Sweep(context.Background()))

	require.Len(t, jobs.saved, 2)
	for _, job := range jobs.saved {
		assert.Equal(t, models.JobStatusFailed, job.Status)
		assert.Equal(t, 1, job.FailedAttempts)
		assert.Contains(t, job.Error, "worker lost")
	}

	require.Len(t, queue.delayed, 2)
	assert.Equal(t, "job_a", queue.delayed[0].JobID)
	assert.Equal(t, models.MessageTypeEngagement, queue.delayed[0].Type)
	assert.Equal(t, 2*time.Second, queue.delays[0])
}

func TestSweepNoStaleJobs(t *testing.T) {
	jobs := &mockJobStorage{}
	queue := &mockQueue{}
	reaper := NewReaper(jobs, queue, "@every 2m", 30*time.Minute, 2*time.Second, arbor.NewLogger())

	require.NoError(t, reaper.Sweep(context.Background()))
	assert.Empty(t, jobs.saved)
	assert.Empty(t, queue.delayed)
}

func TestSweepSkipsRequeueWhenSaveFails(t *testing.T) {
	jobs := &mockJobStorage{
		stale:   []*models.EngagementJob{activeJob("job_a"), activeJob("job_b")},
		saveErr: map[string]error{"job_a": errors.New("db closed")},
	}
	queue := &mockQueue{}
	reaper := NewReaper(jobs, queue, "@every 2m", 30*time.Minute, 2*time.Second, arbor.NewLogger())

	require.NoError(t, reaper.Sweep(context.Background()))

	require.Len(t, queue.delayed, 1, "only the saved job should be requeued")
	assert.Equal(t, "job_b", queue.delayed[0].JobID)
}

func TestSweepsDoNotOverlap(t *testing.T) {
	// A slow store must not let two ticks fail the same job twice
	jobs := &mockJobStorage{
		stale:     []*models.EngagementJob{activeJob("job_a")},
		listDelay: 20 * time.Millisecond,
	}
	reaper := NewReaper(jobs, &mockQueue{}, "@every 2m", 30*time.Minute, 2*time.Second, arbor.NewLogger())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reaper.Sweep(context.Background())
		}()
	}
	wg.Wait()

	assert.False(t, jobs.overlap.Load(), "concurrent sweeps must serialize")
}

func TestSweepPropagatesListError(t *testing.T) {
	jobs := &mockJobStorage{listErr: errors.New("badger iterator failed")}
	reaper := NewReaper(jobs, &mockQueue{}, "@every 2m", 30*time.Minute, 2*time.Second, arbor.NewLogger())

	err := reaper.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list stale jobs")
}
