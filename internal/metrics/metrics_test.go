package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecordRequest(t *testing.T) {
	RecordRequest("GET", "/v1/notifications", 200, 100*time.Millisecond)
	RecordRequest("POST", "/v1/visits", 204, 50*time.Millisecond)
	RecordRequest("GET", "/v1/badge", 500, 10*time.Millisecond)
}

func TestAggregationTimer(t *testing.T) {
	timer := StartAggregationTimer()
	if timer == nil {
		t.Fatal("timer should not be nil")
	}
	timer.ObserveDuration()
}

func TestRecordSourceFailure(t *testing.T) {
	RecordSourceFailure("mentioned_in_entry")
	RecordSourceFailure("reply_to_entry")
}

func TestRecordBadgeRefresh(t *testing.T) {
	RecordBadgeRefresh()
	RecordBadgeRefresh()
}

func TestRecordBadgePush(t *testing.T) {
	RecordBadgePush("ok")
	RecordBadgePush("http_error")
	RecordBadgePush("rejected")
}

func TestRecordRefreshCoalesced(t *testing.T) {
	RecordRefreshCoalesced()
}

func TestRecordLedgerOp(t *testing.T) {
	RecordLedgerOp("mark_visited", "entry")
	RecordLedgerOp("mark_checked", "global")
}

func TestSetSQSMessagesInFlight(t *testing.T) {
	SetSQSMessagesInFlight(1)
	SetSQSMessagesInFlight(0)
}

func TestRecordRateLimitRejection(t *testing.T) {
	RecordRateLimitRejection("user:abc")
}

func TestSetConnections(t *testing.T) {
	SetDBConnections(10)
	SetRedisConnections(5)
}

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Fatal("Handler should not return nil")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("metrics response should not be empty")
	}
}

func TestMiddleware(t *testing.T) {
	innerCalled := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		innerCalled = true
		w.WriteHeader(http.StatusAccepted)
	})

	handler := Middleware(inner)
	req := httptest.NewRequest("POST", "/v1/badge/refresh", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !innerCalled {
		t.Error("inner handler should have been called")
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected status 202, got %d", rec.Code)
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
