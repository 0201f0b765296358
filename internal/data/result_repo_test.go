package data

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeParams(jobID string) core.StoreResultParams {
	return core.StoreResultParams{
		JobID:    jobID,
		Data:     []byte("ID3-audio-" + jobID),
		MimeType: "audio/mpeg",
		Filename: "alice_" + jobID + ".mp3",
	}
}

func readPayload(t *testing.T, res *model.Result) string {
	t.Helper()
	rc, err := res.Open()
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func localRepos(t *testing.T, tp TimeProvider) map[string]*LocalResultRepo {
	t.Helper()
	opts := ResultRepoOptions{TTL: time.Hour, TimeProvider: tp}
	fileRepo, err := NewFileResultRepo(t.TempDir(), opts)
	require.NoError(t, err)
	return map[string]*LocalResultRepo{
		"memory": NewMemoryResultRepo(opts),
		"file":   fileRepo,
	}
}

func TestLocalResultRepo_Lifecycle(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for _, name := range []string{"memory", "file"} {
		t.Run(name, func(t *testing.T) {
			tp := NewFixedTimeProvider(start)
			repo := localRepos(t, tp)[name]
			ctx := context.Background()

			_, err := repo.Get(ctx, "j1")
			require.ErrorIs(t, err, ErrResultNotFound)

			stored, err := repo.Store(ctx, storeParams("j1"))
			require.NoError(t, err)
			assert.Equal(t, start.Add(time.Hour), stored.ExpiresAt)
			assert.Equal(t, int64(len("ID3-audio-j1")), stored.Size)

			got, err := repo.Get(ctx, "j1")
			require.NoError(t, err)
			assert.Equal(t, "audio/mpeg", got.MimeType)
			assert.Equal(t, "ID3-audio-j1", readPayload(t, got))

			tp.AddTime(59 * time.Minute)
			n, err := repo.EvictExpired(ctx, tp.Now())
			require.NoError(t, err)
			assert.Zero(t, n)

			tp.AddTime(time.Minute)
			n, err = repo.EvictExpired(ctx, tp.Now())
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, err = repo.Get(ctx, "j1")
			require.ErrorIs(t, err, ErrResultExpired)
			if got.Path != "" {
				_, statErr := os.Stat(got.Path)
				assert.True(t, os.IsNotExist(statErr), "payload file should be removed")
			}

			require.NoError(t, repo.Forget(ctx, []string{"j1"}))
			_, err = repo.Get(ctx, "j1")
			require.ErrorIs(t, err, ErrResultNotFound)
		})
	}
}

func TestLocalResultRepo_LazyExpiryOnGet(t *testing.T) {
	tp := NewFixedTimeProvider(time.Now())
	repo := NewMemoryResultRepo(ResultRepoOptions{TTL: time.Minute, TimeProvider: tp})
	ctx := context.Background()

	_, err := repo.Store(ctx, storeParams("j1"))
	require.NoError(t, err)

	tp.AddTime(time.Minute)
	_, err = repo.Get(ctx, "j1")
	require.ErrorIs(t, err, ErrResultExpired)

	n, err := repo.EvictExpired(ctx, tp.Now())
	require.NoError(t, err)
	assert.Zero(t, n, "already evicted by the read")
}

func TestLocalResultRepo_TouchExtendsTTL(t *testing.T) {
	tp := NewFixedTimeProvider(time.Now())
	repo := NewMemoryResultRepo(ResultRepoOptions{TTL: time.Minute, TimeProvider: tp})
	ctx := context.Background()

	_, err := repo.Store(ctx, storeParams("j1"))
	require.NoError(t, err)

	tp.AddTime(50 * time.Second)
	require.NoError(t, repo.Touch(ctx, "j1"))

	tp.AddTime(50 * time.Second)
	_, err = repo.Get(ctx, "j1")
	require.NoError(t, err)

	require.ErrorIs(t, repo.Touch(ctx, "missing"), ErrResultNotFound)
}

func TestLocalResultRepo_EvictSingle(t *testing.T) {
	repo := NewMemoryResultRepo(ResultRepoOptions{})
	ctx := context.Background()

	_, err := repo.Store(ctx, storeParams("j1"))
	require.NoError(t, err)

	require.NoError(t, repo.Evict(ctx, "j1"))
	require.NoError(t, repo.Evict(ctx, "j1"))
	_, err = repo.Get(ctx, "j1")
	require.ErrorIs(t, err, ErrResultExpired)

	require.ErrorIs(t, repo.Evict(ctx, "missing"), ErrResultNotFound)
}

func TestFileResultRepo_RejectsUnsafeFilenames(t *testing.T) {
	repo, err := NewFileResultRepo(t.TempDir(), ResultRepoOptions{})
	require.NoError(t, err)

	for _, name := range []string{"", "../x.mp3", "a/b.mp3", ".hidden"} {
		params := storeParams("j1")
		params.Filename = name
		_, err := repo.Store(context.Background(), params)
		assert.Error(t, err, "filename %q", name)
	}
}

func TestFileResultRepo_SweepsOrphans(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	tp := NewFixedTimeProvider(now)
	repo, err := NewFileResultRepo(dir, ResultRepoOptions{TTL: time.Hour, TimeProvider: tp})
	require.NoError(t, err)
	ctx := context.Background()

	stale := filepath.Join(dir, "previous_run.wav")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(stale, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))
	recent := filepath.Join(dir, "recent.wav")
	require.NoError(t, os.WriteFile(recent, []byte("x"), 0o600))

	_, err = repo.Store(ctx, storeParams("tracked"))
	require.NoError(t, err)

	n, err := repo.EvictExpired(ctx, tp.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(recent)
	assert.NoError(t, err)
	_, err = repo.Get(ctx, "tracked")
	assert.NoError(t, err)
}

func TestFileResultRepo_MissingFileIsExpired(t *testing.T) {
	repo, err := NewFileResultRepo(t.TempDir(), ResultRepoOptions{TTL: time.Hour})
	require.NoError(t, err)
	ctx := context.Background()

	res, err := repo.Store(ctx, storeParams("j1"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(res.Path))

	_, err = repo.Get(ctx, "j1")
	require.ErrorIs(t, err, ErrResultExpired)
	_, err = repo.Get(ctx, "j1")
	require.ErrorIs(t, err, ErrResultExpired, "tombstone persists")
	require.ErrorIs(t, repo.Touch(ctx, "j1"), ErrResultExpired)

	res, err = repo.Store(ctx, storeParams("j1"))
	require.NoError(t, err)
	got, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, res.Path, got.Path)
	assert.Equal(t, "ID3-audio-j1", readPayload(t, got))
}

func TestNewFileResultRepo_RequiresDir(t *testing.T) {
	_, err := NewFileResultRepo(" ", ResultRepoOptions{})
	assert.Error(t, err)
}
