package data

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/domain/model"
)

// ResultRepoOptions configure a LocalResultRepo.
type ResultRepoOptions struct {
	// TTL is how long a result stays available after it is stored or touched.
	TTL          time.Duration
	TimeProvider TimeProvider
	Logger       *slog.Logger
}

// LocalResultRepo keeps result payloads in process memory or on local disk.
//
// Each stored result leaves an entry behind after eviction so lookups can report
// ErrResultExpired rather than ErrResultNotFound. Entries are dropped by Forget
// when the owning job is reaped.
type LocalResultRepo struct {
	ttl          time.Duration
	dir          string
	timeProvider TimeProvider
	logger       *slog.Logger

	mu      sync.Mutex
	entries map[string]*resultEntry
}

type resultEntry struct {
	result  model.Result
	evicted bool
}

// NewMemoryResultRepo creates a repository holding payloads in memory.
func NewMemoryResultRepo(opts ResultRepoOptions) *LocalResultRepo {
	return newLocalResultRepo(opts, "")
}

// NewFileResultRepo creates a repository writing payloads under dir.
func NewFileResultRepo(dir string, opts ResultRepoOptions) (*LocalResultRepo, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("result directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create result directory: %w", err)
	}
	return newLocalResultRepo(opts, dir), nil
}

func newLocalResultRepo(opts ResultRepoOptions, dir string) *LocalResultRepo {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	tp := opts.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalResultRepo{
		ttl:          ttl,
		dir:          dir,
		timeProvider: tp,
		logger:       logger.With("component", "result_repo"),
		entries:      make(map[string]*resultEntry),
	}
}

// Store saves a payload and starts its TTL.
func (r *LocalResultRepo) Store(ctx context.Context, params core.StoreResultParams) (*model.Result, error) {
	if params.JobID == "" {
		return nil, ErrJobIDRequired
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now()
	res := model.Result{
		JobID:     params.JobID,
		Filename:  params.Filename,
		MimeType:  params.MimeType,
		Size:      int64(len(params.Data)),
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}

	if r.dir == "" {
		res.Data = params.Data
	} else {
		path, err := r.writeFile(params.Filename, params.Data)
		if err != nil {
			return nil, err
		}
		res.Path = path
	}

	r.mu.Lock()
	previous := r.entries[params.JobID]
	r.entries[params.JobID] = &resultEntry{result: res}
	r.mu.Unlock()

	if previous != nil && !previous.evicted && previous.result.Path != res.Path {
		r.removePayload(ctx, &previous.result)
	}

	out := res
	return &out, nil
}

// Get returns the result for jobID. A result past its TTL is evicted on the spot.
func (r *LocalResultRepo) Get(ctx context.Context, jobID string) (*model.Result, error) {
	now := r.timeProvider.Now()

	r.mu.Lock()
	entry, ok := r.entries[jobID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, jobID)
	}
	if entry.evicted {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrResultExpired, jobID)
	}
	if entry.result.Expired(now) {
		victim := r.evictLocked(entry)
		r.mu.Unlock()
		r.removePayload(ctx, &victim)
		return nil, fmt.Errorf("%w: %s", ErrResultExpired, jobID)
	}
	out := entry.result
	r.mu.Unlock()

	if out.Path != "" {
		if _, err := os.Stat(out.Path); errors.Is(err, fs.ErrNotExist) {
			r.markMissing(entry)
			return nil, fmt.Errorf("%w: %s", ErrResultExpired, jobID)
		}
	}
	return &out, nil
}

// markMissing records that the payload of entry vanished from disk. A newer
// entry stored for the same job in the meantime is left untouched.
func (r *LocalResultRepo) markMissing(entry *resultEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.entries[entry.result.JobID]; ok && current == entry && !entry.evicted {
		r.evictLocked(entry)
		r.logger.Warn("result file missing, treating as expired", "job_id", entry.result.JobID)
	}
}

// Touch restarts the TTL of an available result.
func (r *LocalResultRepo) Touch(ctx context.Context, jobID string) error {
	if _, err := r.Get(ctx, jobID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[jobID]; ok && !entry.evicted {
		entry.result.ExpiresAt = r.timeProvider.Now().Add(r.ttl)
	}
	return nil
}

// Evict removes the payload of jobID immediately; later lookups report it expired.
func (r *LocalResultRepo) Evict(ctx context.Context, jobID string) error {
	r.mu.Lock()
	entry, ok := r.entries[jobID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrResultNotFound, jobID)
	}
	if entry.evicted {
		r.mu.Unlock()
		return nil
	}
	victim := r.evictLocked(entry)
	r.mu.Unlock()

	r.removePayload(ctx, &victim)
	return nil
}

// EvictExpired removes every payload whose TTL elapsed at now. The file backend also
// removes untracked files older than the TTL, such as those left by a previous process.
func (r *LocalResultRepo) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	var victims []model.Result
	tracked := make(map[string]struct{}, len(r.entries))
	for _, entry := range r.entries {
		if entry.result.Path != "" {
			tracked[filepath.Base(entry.result.Path)] = struct{}{}
		}
		if entry.evicted || !entry.result.Expired(now) {
			continue
		}
		victims = append(victims, r.evictLocked(entry))
	}
	r.mu.Unlock()

	for i := range victims {
		r.removePayload(ctx, &victims[i])
	}

	evicted := len(victims)
	if r.dir == "" {
		return evicted, nil
	}

	orphans, err := r.sweepOrphans(ctx, now, tracked)
	return evicted + orphans, err
}

// Forget drops every trace of the given results.
func (r *LocalResultRepo) Forget(ctx context.Context, jobIDs []string) error {
	var victims []model.Result

	r.mu.Lock()
	for _, id := range jobIDs {
		entry, ok := r.entries[id]
		if !ok {
			continue
		}
		if !entry.evicted {
			victims = append(victims, r.evictLocked(entry))
		}
		delete(r.entries, id)
	}
	r.mu.Unlock()

	for i := range victims {
		r.removePayload(ctx, &victims[i])
	}
	return nil
}

// evictLocked marks entry evicted and returns the payload that must be released.
// Callers hold r.mu.
func (r *LocalResultRepo) evictLocked(entry *resultEntry) model.Result {
	victim := entry.result
	entry.evicted = true
	entry.result.Data = nil
	return victim
}

func (r *LocalResultRepo) removePayload(ctx context.Context, res *model.Result) {
	if res.Path == "" {
		return
	}
	if err := os.Remove(res.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.logger.WarnContext(ctx, "failed to remove result file", "job_id", res.JobID, "path", res.Path, "error", err)
	}
}

func (r *LocalResultRepo) writeFile(filename string, data []byte) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", fmt.Errorf("invalid result filename %q", filename)
	}

	tmp, err := os.CreateTemp(r.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp result file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write result file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close result file: %w", err)
	}

	path := filepath.Join(r.dir, filename)
	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename result file: %w", err)
	}
	return path, nil
}

func (r *LocalResultRepo) sweepOrphans(ctx context.Context, now time.Time, tracked map[string]struct{}) (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, fmt.Errorf("read result directory: %w", err)
	}

	removed := 0
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		if _, ok := tracked[de.Name()]; ok {
			continue
		}
		info, infoErr := de.Info()
		if infoErr != nil || now.Sub(info.ModTime()) < r.ttl {
			continue
		}
		path := filepath.Join(r.dir, de.Name())
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			r.logger.WarnContext(ctx, "failed to remove orphaned result file", "path", path, "error", rmErr)
			continue
		}
		removed++
	}
	return removed, nil
}

var _ core.ResultRepository = (*LocalResultRepo)(nil)
