package statsd

import (
	"maps"
	"sync"
	"time"
)

// Point is a single metric captured by Recorder.
type Point struct {
	Kind  string
	Name  string
	Value float64
	Tags  map[string]string
}

// Recorder is an in-memory Sink for tests.
type Recorder struct {
	mu     sync.Mutex
	points []Point
}

var _ Sink = (*Recorder)(nil)

// Count records a counter increment.
func (r *Recorder) Count(name string, value int64, tags map[string]string) {
	r.add(Point{Kind: "c", Name: name, Value: float64(value), Tags: maps.Clone(tags)})
}

// Gauge records a gauge value.
func (r *Recorder) Gauge(name string, value float64, tags map[string]string) {
	r.add(Point{Kind: "g", Name: name, Value: value, Tags: maps.Clone(tags)})
}

// Timing records a duration in milliseconds.
func (r *Recorder) Timing(name string, value time.Duration, tags map[string]string) {
	r.add(Point{Kind: "ms", Name: name, Value: float64(value) / float64(time.Millisecond), Tags: maps.Clone(tags)})
}

// Points returns a copy of everything recorded so far.
func (r *Recorder) Points() []Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Point, len(r.points))
	copy(out, r.points)
	return out
}

// Named returns the recorded points with the given name.
func (r *Recorder) Named(name string) []Point {
	var out []Point
	for _, p := range r.Points() {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out
}

func (r *Recorder) add(p Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, p)
}
