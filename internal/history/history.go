// Package history holds fixed-capacity time series written by the sampler
// and read by the dashboard. Writers and readers never share slices: reads
// return point-in-time copies.
package history

import (
	"sort"
	"sync"
	"time"
)

// DefaultCapacity is the default number of points retained per series.
const DefaultCapacity = 120

// Point is one immutable sample of a series.
type Point struct {
	Time  time.Time
	Value float64
}

// Store manages the ring buffers for all metric series. It is safe for
// concurrent use by one writer and any number of readers.
type Store struct {
	mu       sync.RWMutex
	capacity int
	series   map[string]*ring
}

// ring is a fixed-size circular buffer of points. Capacity never grows;
// insertion evicts the oldest entry once full.
type ring struct {
	data  []Point
	head  int
	count int
}

// NewStore creates a store whose series each retain capacity points.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		series:   make(map[string]*ring),
	}
}

// Capacity returns the fixed per-series capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// Append inserts a point at the logical "now" end of the named series,
// creating the series on first use. O(1); evicts the oldest point when the
// series is at capacity.
func (s *Store) Append(name string, value float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.series[name]
	if !ok {
		r = &ring{data: make([]Point, s.capacity)}
		s.series[name] = r
	}
	r.push(Point{Time: ts, Value: value})
}

// Snapshot returns the points of the named series in insertion order, oldest
// first. The returned slice is a copy and safe to retain. Unknown series
// yield nil.
func (s *Store) Snapshot(name string) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.series[name]
	if !ok || r.count == 0 {
		return nil
	}
	return r.ordered()
}

// Values returns just the values of the named series, oldest first. This is
// the shape sparkline rendering consumes.
func (s *Store) Values(name string) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.series[name]
	if !ok || r.count == 0 {
		return nil
	}
	points := r.ordered()
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values
}

// Last returns the most recent point of the named series.
func (s *Store) Last(name string) (Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.series[name]
	if !ok || r.count == 0 {
		return Point{}, false
	}
	return r.data[(r.head+r.count-1)%len(r.data)], true
}

// Count returns the number of points currently held for the named series.
func (s *Store) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.series[name]
	if !ok {
		return 0
	}
	return r.count
}

// Names returns all series names, sorted for stable display order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *ring) push(p Point) {
	if r.count < len(r.data) {
		r.data[(r.head+r.count)%len(r.data)] = p
		r.count++
		return
	}
	// Full: overwrite the oldest slot and advance the head.
	r.data[r.head] = p
	r.head = (r.head + 1) % len(r.data)
}

func (r *ring) ordered() []Point {
	out := make([]Point, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.data[(r.head+i)%len(r.data)]
	}
	return out
}
