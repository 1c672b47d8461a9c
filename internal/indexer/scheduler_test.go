package indexer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_SingleCall_RunsOnce(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(10*time.Millisecond, func(ctx context.Context, job Job) {
		runs.Add(1)
	}, nil)

	s.ScheduleIndex("loc-a", Job{World: "w"})

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 2*time.Millisecond)
}

func TestScheduler_BurstWithinWindow_CoalescesToOneRun(t *testing.T) {
	var runs atomic.Int32
	var lastWorld string
	var mu sync.Mutex

	s := NewScheduler(30*time.Millisecond, func(ctx context.Context, job Job) {
		runs.Add(1)
		mu.Lock()
		lastWorld = job.World
		mu.Unlock()
	}, nil)

	s.ScheduleIndex("loc-a", Job{World: "first"})
	s.ScheduleIndex("loc-a", Job{World: "second"})
	s.ScheduleIndex("loc-a", Job{World: "third"})

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, time.Second, 2*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), runs.Load())
	mu.Lock()
	assert.Equal(t, "third", lastWorld)
	mu.Unlock()
}

func TestScheduler_DifferentLocations_RunIndependently(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(5*time.Millisecond, func(ctx context.Context, job Job) {
		runs.Add(1)
	}, nil)

	s.ScheduleIndex("loc-a", Job{})
	s.ScheduleIndex("loc-b", Job{})

	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 2*time.Millisecond)
}

func TestScheduler_CallDuringRun_QueuesFollowUp(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	s := NewScheduler(1*time.Millisecond, func(ctx context.Context, job Job) {
		n := runs.Add(1)
		if n == 1 {
			close(started)
			<-release
		}
	}, nil)

	s.ScheduleIndex("loc-a", Job{})
	<-started

	s.ScheduleIndex("loc-a", Job{})
	close(release)

	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 2*time.Millisecond)
}

func TestScheduler_Shutdown_StopsPendingTimers(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(50*time.Millisecond, func(ctx context.Context, job Job) {
		runs.Add(1)
	}, nil)

	s.ScheduleIndex("loc-a", Job{})
	s.Shutdown()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
}
