package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/espeech/espeech-api/internal/errors"
	"github.com/espeech/espeech-api/internal/observability/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitJobLifecycle(t *testing.T) {
	var rec statsd.Recorder
	EmitJobLifecycle(&rec, JobMetric{
		Transition: TransitionFail,
		Result:     ResultError,
		Format:     "mp3",
		Duration:   2 * time.Second,
		Err:        apperrors.Wrap(errors.New("boom"), apperrors.ErrCodeSynthesisFailed, "engine failed"),
	})

	counts := rec.Named(NameJobTransition)
	require.Len(t, counts, 1)
	assert.Equal(t, map[string]string{
		"transition":  TransitionFail,
		"result":      ResultError,
		"format":      "mp3",
		"error_class": "synthesis_failed",
	}, counts[0].Tags)

	timings := rec.Named(NameJobDuration)
	require.Len(t, timings, 1)
	assert.InDelta(t, 2000.0, timings[0].Value, 0.001)
}

func TestEmitJobLifecycle_NoDurationNoTiming(t *testing.T) {
	var rec statsd.Recorder
	EmitJobLifecycle(&rec, JobMetric{Transition: TransitionCreated, Result: ResultSuccess})
	assert.Len(t, rec.Named(NameJobTransition), 1)
	assert.Empty(t, rec.Named(NameJobDuration))

	EmitJobLifecycle(nil, JobMetric{})
}

func TestEmitSynthesis(t *testing.T) {
	var rec statsd.Recorder
	EmitSynthesis(&rec, SynthesisMetric{
		Engine:   "tone",
		Format:   "wav",
		Mode:     "stream",
		Duration: 10 * time.Millisecond,
		Err:      context.DeadlineExceeded,
	})
	p := rec.Named(NameSynthesisDuration)
	require.Len(t, p, 1)
	assert.Equal(t, ResultError, p[0].Tags["result"])
	assert.Equal(t, "timeout", p[0].Tags["error_class"])
}

func TestEmitQueueDepthAndDrops(t *testing.T) {
	var rec statsd.Recorder
	EmitQueueDepth(&rec, 3, 1)
	EmitEventDropped(&rec, "sse")

	depth := rec.Named(NameQueueDepth)
	require.Len(t, depth, 2)
	assert.InDelta(t, 3.0, depth[0].Value, 0.001)
	assert.Equal(t, "running", depth[1].Tags["status"])
	assert.Len(t, rec.Named(NameEventsDropped), 1)
}
