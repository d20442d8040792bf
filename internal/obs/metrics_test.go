package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetReady(t *testing.T) {
	SetReady(true)
	if got := testutil.ToFloat64(ready); got != 1 {
		t.Fatalf("expected ready=1, got %v", got)
	}
	SetReady(false)
	if got := testutil.ToFloat64(ready); got != 0 {
		t.Fatalf("expected ready=0, got %v", got)
	}
}

func TestCountAuthDecision(t *testing.T) {
	before := testutil.ToFloat64(authDecisionsTotal.WithLabelValues("deny"))
	CountAuthDecision(false)
	after := testutil.ToFloat64(authDecisionsTotal.WithLabelValues("deny"))
	if after != before+1 {
		t.Fatalf("deny counter did not increment: %v -> %v", before, after)
	}

	before = testutil.ToFloat64(authDecisionsTotal.WithLabelValues("admit"))
	CountAuthDecision(true)
	after = testutil.ToFloat64(authDecisionsTotal.WithLabelValues("admit"))
	if after != before+1 {
		t.Fatalf("admit counter did not increment: %v -> %v", before, after)
	}
}

func TestInstrumentPreservesStatus(t *testing.T) {
	handler := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tea", nil))

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rr.Code)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/tea", "418")); got < 1 {
		t.Fatalf("request counter not incremented: %v", got)
	}
}
