package utils

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsAllJobsBeforeShutdownReturns(t *testing.T) {
	pool := NewWorkerPool(4, 8)
	var done atomic.Int32

	for i := 0; i < 100; i++ {
		require.NoError(t, pool.Submit(func() { done.Add(1) }))
	}
	pool.Shutdown()

	assert.Equal(t, int32(100), done.Load())
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	pool.Shutdown()
	pool.Shutdown()

	err := pool.Submit(func() {})

	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestWorkerPool_RunsConcurrently(t *testing.T) {
	pool := NewWorkerPool(3, 3)
	var started sync.WaitGroup
	started.Add(3)
	release := make(chan struct{})

	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(func() {
			started.Done()
			<-release
		}))
	}
	started.Wait()
	close(release)
	pool.Shutdown()
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Dedupe([]string{"a", "b", "a"}))
	assert.Equal(t, []string{"org_1", "org_2"}, SplitCSV(" org_1, ,org_2 "))
	assert.Nil(t, SplitCSV(""))
	assert.Len(t, SliceToSet([]int{1, 1, 2}), 2)
}
