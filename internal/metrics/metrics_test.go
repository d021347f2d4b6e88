package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecordRequest(t *testing.T) {
	RecordRequest("GET", "/test", 200, 100*time.Millisecond)
	RecordRequest("POST", "/test", 201, 50*time.Millisecond)
	RecordRequest("GET", "/test", 404, 10*time.Millisecond)
}

func TestRecordJobScheduled(t *testing.T) {
	RecordJobScheduled("daily_digest")
	RecordJobScheduled("match_alert")
}

func TestRecordJobProcessed(t *testing.T) {
	RecordJobProcessed("delivered", "daily_digest")
	RecordJobProcessed("failed", "match_alert")
}

func TestRecordJobsPruned(t *testing.T) {
	RecordJobsPruned(0)
	RecordJobsPruned(7)
}

func TestSetJobsPending(t *testing.T) {
	SetJobsPending(10)
	SetJobsPending(0)
}

func TestRecordDispatchTick(t *testing.T) {
	RecordDispatchTick(25 * time.Millisecond)
}

func TestWatchdogCounters(t *testing.T) {
	RecordProbeFailure()
	RecordRestartAttempt()
	SetWatchdogExhausted(true)
	SetWatchdogExhausted(false)
}

func TestRecordRateLimitRejection(t *testing.T) {
	RecordRateLimitRejection("ip:10.0.0.1")
}

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Error("Handler should not return nil")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if len(body) == 0 {
		t.Error("metrics response should not be empty")
	}
}

func TestMiddleware(t *testing.T) {
	innerCalled := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		innerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	handler := Middleware(inner)
	req := httptest.NewRequest("POST", "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !innerCalled {
		t.Error("inner handler should have been called")
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
}

func TestResponseWriter_ExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)

	if rw.status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rw.status)
	}
}
