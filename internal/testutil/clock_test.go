package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClockConcurrent(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Zero(t, clock.Current())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int64]bool{}
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				v := clock.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 800, "no sequence number handed out twice")
	assert.Equal(t, int64(800), clock.Current())
	assert.True(t, seen[1] && seen[800])
}

func TestSteppingTime(t *testing.T) {
	st := NewSteppingTime(time.Time{}, 0)
	assert.Equal(t, Epoch, st.Now())
	assert.Equal(t, Epoch.Add(time.Second), st.Now())

	start := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	st = NewSteppingTime(start, time.Minute)
	st.Now()
	st.Now()
	assert.Equal(t, start.Add(2*time.Minute), st.Now())
}
