package history

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		expected int
	}{
		{"default capacity", 0, DefaultCapacity},
		{"negative capacity", -1, DefaultCapacity},
		{"custom capacity", 60, 60},
		{"tiny capacity", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(tt.capacity)
			assert.Equal(t, tt.expected, s.Capacity())
		})
	}
}

func TestAppendAndSnapshot(t *testing.T) {
	s := NewStore(10)
	base := time.Now()

	for i := 0; i < 5; i++ {
		s.Append("run_queue", float64(i), base.Add(time.Duration(i)*time.Second))
	}

	points := s.Snapshot("run_queue")
	require.Len(t, points, 5)
	for i, p := range points {
		assert.Equal(t, float64(i), p.Value)
		assert.Equal(t, base.Add(time.Duration(i)*time.Second), p.Time)
	}

	assert.Equal(t, []float64{0, 1, 2, 3, 4}, s.Values("run_queue"))
}

func TestRingEviction(t *testing.T) {
	const capacity = 5
	s := NewStore(capacity)
	base := time.Now()

	// capacity+1 appends leave exactly capacity entries with the oldest
	// original entry evicted.
	for i := 0; i <= capacity; i++ {
		s.Append("mem_total", float64(i), base.Add(time.Duration(i)*time.Second))
	}

	assert.Equal(t, capacity, s.Count("mem_total"))
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, s.Values("mem_total"))

	last, ok := s.Last("mem_total")
	require.True(t, ok)
	assert.Equal(t, float64(capacity), last.Value)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(4)
	s.Append("gc", 1, time.Now())

	snap := s.Snapshot("gc")
	require.Len(t, snap, 1)
	snap[0].Value = 999

	again := s.Snapshot("gc")
	assert.Equal(t, float64(1), again[0].Value, "mutating a snapshot must not affect the store")
}

func TestUnknownSeries(t *testing.T) {
	s := NewStore(4)
	assert.Nil(t, s.Snapshot("nope"))
	assert.Nil(t, s.Values("nope"))
	assert.Equal(t, 0, s.Count("nope"))
	_, ok := s.Last("nope")
	assert.False(t, ok)
}

func TestNamesSorted(t *testing.T) {
	s := NewStore(4)
	now := time.Now()
	s.Append("run_queue", 1, now)
	s.Append("gc", 1, now)
	s.Append("processes", 1, now)

	assert.Equal(t, []string{"gc", "processes", "run_queue"}, s.Names())
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	s := NewStore(32)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Append("io_in", float64(i), time.Now())
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = s.Snapshot("io_in")
				_ = s.Values("io_in")
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 32, s.Count("io_in"))
}
