package model

import (
	"bytes"
	"io"
	"os"
	"time"
)

// Result is a produced audio artifact. It carries either in-memory Data or a file Path.
type Result struct {
	JobID     string
	Filename  string
	MimeType  string
	Data      []byte
	Path      string
	Size      int64
	CreatedAt time.Time
	// ExpiresAt is when the result becomes eligible for eviction.
	ExpiresAt time.Time
}

// Reference returns the job-facing reference to r.
func (r *Result) Reference() ResultReference {
	return ResultReference{Filename: r.Filename, MimeType: r.MimeType}
}

// Expired reports whether r is past its expiry at now.
func (r *Result) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// ReadSeekCloser is the payload handle returned by Open.
type ReadSeekCloser interface {
	io.ReadSeeker
	io.Closer
}

// Open returns a seekable reader over the payload.
func (r *Result) Open() (ReadSeekCloser, error) {
	if r.Path != "" {
		return os.Open(r.Path)
	}
	return nopCloser{bytes.NewReader(r.Data)}, nil
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
