// Package metrics defines the metric names and tag conventions emitted by the job system.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/espeech/espeech-api/internal/observability/errors"
	"github.com/espeech/espeech-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names for job lifecycle metrics.
const (
	TransitionCreated  = "created"
	TransitionClaimed  = "claimed"
	TransitionComplete = "complete"
	TransitionFail     = "fail"
)

// Metric names.
const (
	NameJobTransition     = "job.transition"
	NameJobDuration       = "job.duration"
	NameSynthesisDuration = "synthesis.duration"
	NameQueueDepth        = "queue.depth"
	NameEventsDropped     = "events.dropped"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Transition string
	Result     string
	Format     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Format != "" {
		tags["format"] = in.Format
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count(NameJobTransition, 1, tags)

	if in.Duration > 0 {
		sink.Timing(NameJobDuration, in.Duration, CloneTags(tags))
	}
}

// SynthesisMetric describes a single engine call.
type SynthesisMetric struct {
	Engine   string
	Format   string
	Mode     string
	Duration time.Duration
	Err      error
}

// EmitSynthesis records the latency and outcome of an engine call.
func EmitSynthesis(sink statsd.Sink, in SynthesisMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"engine": in.Engine,
		"format": in.Format,
		"mode":   in.Mode,
		"result": ResultSuccess,
	}
	if in.Err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	sink.Timing(NameSynthesisDuration, in.Duration, tags)
}

// EmitQueueDepth reports the number of queued and running jobs.
func EmitQueueDepth(sink statsd.Sink, queued, running int) {
	if sink == nil {
		return
	}
	sink.Gauge(NameQueueDepth, float64(queued), map[string]string{"status": "queued"})
	sink.Gauge(NameQueueDepth, float64(running), map[string]string{"status": "running"})
}

// EmitEventDropped counts a status event discarded because a subscriber fell behind.
func EmitEventDropped(sink statsd.Sink, transport string) {
	if sink == nil {
		return
	}
	sink.Count(NameEventsDropped, 1, map[string]string{"transport": transport})
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}
