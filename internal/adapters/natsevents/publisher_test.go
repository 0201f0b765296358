package natsevents

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/espeech/espeech-api/internal/domain/model"
	"github.com/espeech/espeech-api/internal/observability/notify"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) *server.Server {
	t.Helper()
	opts := test.DefaultTestOptions
	opts.Port = -1
	srv := test.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestPublisher_PublishesBySubject(t *testing.T) {
	srv := startTestServer(t)

	conn, err := Connect(srv.ClientURL(), "espeech-test")
	require.NoError(t, err)
	defer conn.Close()

	sub, err := conn.SubscribeSync("espeech.test.>")
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	pub, err := NewPublisher(Options{Conn: conn, SubjectPrefix: ".espeech.test."})
	require.NoError(t, err)
	assert.Equal(t, "espeech.test.done", pub.Subject("done"))

	completed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.SendJobEvent(context.Background(), notify.JobEvent{
		JobID:      "job-1",
		VoiceID:    "alice",
		Status:     model.JobStatusDone,
		Format:     model.AudioFormatWAV,
		Filename:   "alice_0123456789.wav",
		MimeType:   "audio/wav",
		Duration:   1200 * time.Millisecond,
		OccurredAt: completed,
	}))
	require.NoError(t, pub.SendJobEvent(context.Background(), notify.JobEvent{
		JobID:  "job-2",
		Status: model.JobStatusError,
		Error:  "synthesis failed",
	}))

	first, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "espeech.test.done", first.Subject)
	assert.Equal(t, "job-1", first.Header.Get("Job-Id"))

	var msg Message
	require.NoError(t, json.Unmarshal(first.Data, &msg))
	assert.Equal(t, "alice_0123456789.wav", msg.Filename)
	assert.Equal(t, int64(1200), msg.DurationMs)
	assert.True(t, completed.Equal(msg.CompletedAt))

	second, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "espeech.test.error", second.Subject)
}

func TestNewPublisher_RequiresConn(t *testing.T) {
	_, err := NewPublisher(Options{})
	require.Error(t, err)
}

func TestPublisher_DefaultPrefix(t *testing.T) {
	srv := startTestServer(t)
	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)

	pub, err := NewPublisher(Options{Conn: conn})
	require.NoError(t, err)
	assert.Equal(t, "espeech.jobs.error", pub.Subject("error"))
	require.NoError(t, pub.Close())
}
