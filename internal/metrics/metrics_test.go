package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersExported(t *testing.T) {
	m := Get()
	if Get() != m {
		t.Fatal("Get should return the same collectors")
	}
	before := testutil.ToFloat64(m.DuelsCreated.WithLabelValues("wagered"))
	m.DuelsCreated.WithLabelValues("wagered").Inc()
	if got := testutil.ToFloat64(m.DuelsCreated.WithLabelValues("wagered")); got != before+1 {
		t.Fatalf("duels_created_total = %v, want %v", got, before+1)
	}

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "duel_arena_duels_created_total") {
		t.Fatal("metrics output missing duels_created_total")
	}
}
