package service

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobQueueFull(t *testing.T) {
	q := NewJobQueue("ffmpeg", 1)

	for range 4 {
		require.NoError(t, q.Enqueue(&FFmpegJob{Args: []string{"-version"}}))
	}

	assert.ErrorIs(t, q.Enqueue(&FFmpegJob{Args: []string{"-version"}}), ErrQueueFull)
}

func TestJobQueueRunsJobs(t *testing.T) {
	bin, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true binary not available")
	}

	q := NewJobQueue(bin, 2)
	q.StartWorkerPool()
	defer q.Stop()

	job := &FFmpegJob{Args: []string{"ignored"}, Ctx: context.Background()}
	require.NoError(t, q.Enqueue(job))
	assert.NoError(t, <-job.Done)

	empty := &FFmpegJob{}
	require.NoError(t, q.Enqueue(empty))
	assert.Error(t, <-empty.Done)
}

func TestJobQueueEnqueueAfterStop(t *testing.T) {
	q := NewJobQueue("ffmpeg", 1)
	q.StartWorkerPool()
	q.Stop()
	q.Stop()

	assert.ErrorIs(t, q.Enqueue(&FFmpegJob{Args: []string{"-version"}}), ErrQueueStopped)
}
