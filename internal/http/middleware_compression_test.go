package httpx

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobListBody = strings.Repeat(`{"job_id":"5f0c","status":"queued","voice_id":"alice"},`, 40)

func serveCompressed(t *testing.T, cfg CompressionConfig, method, acceptEncoding string, h http.HandlerFunc) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, "/api/jobs", nil)
	if acceptEncoding != "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	rec := httptest.NewRecorder()
	Compression(cfg)(h).ServeHTTP(rec, req)
	resp := rec.Result()
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func writeBody(contentType string, status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func gunzip(t *testing.T, r io.Reader) string {
	t.Helper()
	zr, err := gzip.NewReader(r)
	require.NoError(t, err)
	defer zr.Close()
	b, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(b)
}

func readAll(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestCompressionGzipsJSON(t *testing.T) {
	for _, level := range []int{0, gzip.BestSpeed, gzip.BestCompression, 42} {
		t.Run("level_"+strconv.Itoa(level), func(t *testing.T) {
			resp := serveCompressed(t, CompressionConfig{Level: level}, http.MethodGet, "gzip, deflate",
				writeBody("application/json", http.StatusOK, jobListBody))

			assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
			assert.Equal(t, "Accept-Encoding", resp.Header.Get("Vary"))
			assert.Empty(t, resp.Header.Get("Content-Length"))
			assert.Equal(t, jobListBody, gunzip(t, resp.Body))
		})
	}
}

func TestCompressionSkipsStreamsAndAudio(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
	}{
		{name: "event stream", contentType: "text/event-stream"},
		{name: "wav", contentType: "audio/wav"},
		{name: "mp3", contentType: "audio/mpeg"},
		{name: "octet stream", contentType: "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serveCompressed(t, CompressionConfig{}, http.MethodGet, "gzip",
				writeBody(tt.contentType, http.StatusOK, jobListBody))

			assert.Empty(t, resp.Header.Get("Content-Encoding"))
			assert.Equal(t, jobListBody, readAll(t, resp.Body))
		})
	}
}

func TestCompressionContentTypeWithParameters(t *testing.T) {
	resp := serveCompressed(t, CompressionConfig{}, http.MethodGet, "gzip",
		writeBody("text/plain; charset=utf-8", http.StatusOK, jobListBody))

	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	assert.Equal(t, jobListBody, gunzip(t, resp.Body))
}

func TestCompressionSkipsHEAD(t *testing.T) {
	resp := serveCompressed(t, CompressionConfig{}, http.MethodHead, "gzip",
		writeBody("application/json", http.StatusOK, ""))

	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	assert.Empty(t, resp.Header.Get("Vary"))
}

func TestCompressionAcceptEncoding(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{header: "", want: false},
		{header: "gzip", want: true},
		{header: "GZIP", want: true},
		{header: "br, gzip;q=0.5", want: true},
		{header: "gzip;q=0", want: false},
		{header: "gzip; q=0.0", want: false},
		{header: "gzip;q=bogus", want: false},
		{header: "*", want: true},
		{header: "deflate, br", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, acceptsGzip(tt.header))
		})
	}
}

func TestCompressionRespectsExistingEncoding(t *testing.T) {
	resp := serveCompressed(t, CompressionConfig{}, http.MethodGet, "gzip",
		func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Encoding", "br")
			_, _ = io.WriteString(w, "already-encoded")
		})

	assert.Equal(t, "br", resp.Header.Get("Content-Encoding"))
	assert.Equal(t, "already-encoded", readAll(t, resp.Body))
}

func TestCompressionMinSize(t *testing.T) {
	small := `{"status":"ok"}`
	resp := serveCompressed(t, CompressionConfig{MinSize: 1024}, http.MethodGet, "gzip",
		func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Length", strconv.Itoa(len(small)))
			_, _ = io.WriteString(w, small)
		})

	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	assert.Equal(t, small, readAll(t, resp.Body))

	// Bodies without a declared length are compressed regardless of size.
	resp = serveCompressed(t, CompressionConfig{MinSize: 1024}, http.MethodGet, "gzip",
		writeBody("application/json", http.StatusOK, small))
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	assert.Equal(t, small, gunzip(t, resp.Body))
}

func TestCompressionStatusCodes(t *testing.T) {
	tests := []struct {
		status   int
		body     string
		compress bool
	}{
		{status: http.StatusOK, body: jobListBody, compress: true},
		{status: http.StatusNotFound, body: `{"error":"job not found","code":"not_found"}`, compress: true},
		{status: http.StatusNoContent, compress: false},
		{status: http.StatusNotModified, compress: false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			resp := serveCompressed(t, CompressionConfig{}, http.MethodGet, "gzip",
				writeBody("application/json", tt.status, tt.body))

			require.Equal(t, tt.status, resp.StatusCode)
			if tt.compress {
				assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
				assert.Equal(t, tt.body, gunzip(t, resp.Body))
				return
			}
			assert.Empty(t, resp.Header.Get("Content-Encoding"))
			assert.Empty(t, readAll(t, resp.Body))
		})
	}
}

func TestCompressionImplicitHeaderSniffsContentType(t *testing.T) {
	resp := serveCompressed(t, CompressionConfig{}, http.MethodGet, "gzip",
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "plain text reply that is sniffed")
		})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	assert.Equal(t, "plain text reply that is sniffed", gunzip(t, resp.Body))
}

func TestCompressionFlushPassesThrough(t *testing.T) {
	resp := serveCompressed(t, CompressionConfig{}, http.MethodGet, "gzip",
		func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"a":`)
			w.(http.Flusher).Flush()
			_, _ = io.WriteString(w, `1}`)
		})

	assert.Equal(t, `{"a":1}`, gunzip(t, resp.Body))
}

func TestLoggingCountsBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	ww := &respWriter{ResponseWriter: rec, status: http.StatusOK}
	ww.WriteHeader(http.StatusAccepted)
	_, err := ww.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, ww.status)
	assert.Equal(t, int64(5), ww.written)
	assert.Same(t, rec, ww.Unwrap())
}
