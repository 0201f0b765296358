package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthHandlerGET(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	healthHandler(rec, req)

	resp := rec.Result()
	t.Cleanup(func() { _ = resp.Body.Close() })

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %q", ct)
	}

	body := rec.Body.String()
	if body != `{"status":"ok"}` {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestHealthHandlerHEAD(t *testing.T) {
	req := httptest.NewRequest(http.MethodHead, "/healthz", nil)
	rec := httptest.NewRecorder()

	healthHandler(rec, req)

	resp := rec.Result()
	t.Cleanup(func() { _ = resp.Body.Close() })

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %q", ct)
	}

	if bodyLen := rec.Body.Len(); bodyLen != 0 {
		t.Fatalf("expected empty body for HEAD request, got %d bytes", bodyLen)
	}
}

func TestServiceHealthReportsQueue(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{slots: 2})
	h.submit(t, "wav")
	h.submit(t, "wav")
	if _, err := h.jobs.ClaimNext(context.Background()); err != nil {
		t.Fatalf("claim: %v", err)
	}

	resp := h.do(t, http.MethodGet, "/api/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var body ServiceHealthResponse
	decodeBody(t, resp, &body)
	want := ServiceHealthResponse{Status: "ok", Workers: 2, Queued: 1, Running: 1}
	if body != want {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestHealthzThroughRouter(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		resp := h.do(t, method, "/healthz", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s /healthz: expected 200, got %d", method, resp.StatusCode)
		}
	}
}
