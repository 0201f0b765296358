package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/data"
	"github.com/espeech/espeech-api/internal/domain/model"
	apperrors "github.com/espeech/espeech-api/internal/errors"
	"github.com/google/uuid"
)

// ResultServiceOptions groups dependencies for ResultService.
type ResultServiceOptions struct {
	Repo core.ResultRepository // Required: result store
	// SingleRead evicts a result after its first complete download.
	SingleRead bool
	// TouchOnAccess restarts the TTL whenever a result is polled or downloaded.
	TouchOnAccess bool
	Logger        *slog.Logger
	// NewSuffix overrides the random filename suffix (tests).
	NewSuffix func() string
}

// ResultService applies naming and access policy on top of a ResultRepository.
type ResultService struct {
	repo          core.ResultRepository
	singleRead    bool
	touchOnAccess bool
	logger        *slog.Logger
	newSuffix     func() string
}

// NewResultService constructs a ResultService.
func NewResultService(opts ResultServiceOptions) (*ResultService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ResultRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	suffix := opts.NewSuffix
	if suffix == nil {
		suffix = randomSuffix
	}
	return &ResultService{
		repo:          opts.Repo,
		singleRead:    opts.SingleRead,
		touchOnAccess: opts.TouchOnAccess,
		logger:        logger.With("component", "result_service"),
		newSuffix:     suffix,
	}, nil
}

// OutputFilename returns <voice>_<10 hex>.<ext>.
func (s *ResultService) OutputFilename(voiceID string, format model.AudioFormat) string {
	return SafeFilenamePart(voiceID) + "_" + s.newSuffix() + "." + format.Extension()
}

// StreamFilename returns the filename used for synchronous responses.
func StreamFilename(voiceID string, format model.AudioFormat) string {
	return SafeFilenamePart(voiceID) + "_stream." + format.Extension()
}

// Store saves audio produced for job and returns its reference.
func (s *ResultService) Store(ctx context.Context, job *model.Job, audio []byte) (model.ResultReference, error) {
	res, err := s.repo.Store(ctx, core.StoreResultParams{
		JobID:    job.ID,
		Data:     audio,
		MimeType: job.Params.Format.MimeType(),
		Filename: s.OutputFilename(job.Params.VoiceID, job.Params.Format),
	})
	if err != nil {
		return model.ResultReference{}, fmt.Errorf("store result: %w", err)
	}
	return res.Reference(), nil
}

// Available reports whether a done job's audio can still be downloaded.
// It is the poll path, so it applies touch-on-access.
func (s *ResultService) Available(ctx context.Context, job *model.Job) bool {
	if job == nil || job.Status != model.JobStatusDone {
		return false
	}
	if _, err := s.repo.Get(ctx, job.ID); err != nil {
		if !errors.Is(err, data.ErrResultExpired) && !errors.Is(err, data.ErrResultNotFound) {
			s.logger.WarnContext(ctx, "result lookup failed", "job_id", job.ID, "error", err)
		}
		return false
	}
	s.touch(ctx, job.ID)
	return true
}

// Open returns the result for a job. Jobs that are not done yield a conflict
// error; done jobs whose result is gone yield an expired error.
func (s *ResultService) Open(ctx context.Context, job *model.Job) (*model.Result, error) {
	if job.Status != model.JobStatusDone {
		return nil, apperrors.Conflictf("job %s is %s", job.ID, job.Status)
	}

	res, err := s.repo.Get(ctx, job.ID)
	switch {
	case err == nil:
	case errors.Is(err, data.ErrResultExpired), errors.Is(err, data.ErrResultNotFound):
		// A done job always had a result, so a missing one has been evicted.
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeExpired, "result for job %s has expired", job.ID)
	default:
		return nil, fmt.Errorf("get result: %w", err)
	}

	s.touch(ctx, job.ID)
	return res, nil
}

// Delivered is called after a complete download. With single-read enabled the
// result is evicted.
func (s *ResultService) Delivered(ctx context.Context, jobID string) {
	if !s.singleRead {
		return
	}
	if err := s.repo.Evict(ctx, jobID); err != nil && !errors.Is(err, data.ErrResultNotFound) {
		s.logger.WarnContext(ctx, "single-read eviction failed", "job_id", jobID, "error", err)
		return
	}
	s.logger.DebugContext(ctx, "result evicted after first read", "job_id", jobID)
}

// SingleRead reports whether results are evicted after the first download.
func (s *ResultService) SingleRead() bool { return s.singleRead }

func (s *ResultService) touch(ctx context.Context, jobID string) {
	if !s.touchOnAccess {
		return
	}
	if err := s.repo.Touch(ctx, jobID); err != nil {
		s.logger.DebugContext(ctx, "result touch failed", "job_id", jobID, "error", err)
	}
}

// SafeFilenamePart keeps letters, digits, dash, underscore and dot and
// replaces everything else with an underscore.
func SafeFilenamePart(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
	cleaned = strings.TrimLeft(cleaned, ".")
	if cleaned == "" {
		return "voice"
	}
	return cleaned
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
