package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestSwapCounters(t *testing.T) {
	m := New()
	m.Swaps.Created()
	m.Swaps.Responded("accepted", 50)
	m.Swaps.Responded("rejected", 0)
	m.Swaps.Cancelled()
	m.Swaps.Failed("respond", "conflict")

	out := scrape(t, m)
	for _, want := range []string{
		"rewear_swaps_created_total 1",
		`rewear_swaps_responses_total{decision="accepted"} 1`,
		`rewear_swaps_responses_total{decision="rejected"} 1`,
		"rewear_swaps_cancelled_total 1",
		`rewear_swaps_failures_total{op="respond",reason="conflict"} 1`,
		"rewear_swaps_points_transferred_total 50",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilSwapsIsNoop(t *testing.T) {
	var s *Swaps
	s.Created()
	s.Responded("accepted", 10)
	s.Cancelled()
	s.Failed("create", "validation")
}

func TestInstrumentHandlerLabelsByPattern(t *testing.T) {
	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	srv := httptest.NewServer(m.InstrumentHandler(mux))
	defer srv.Close()

	for _, id := range []string{"1", "2", "3"} {
		resp, err := http.Get(srv.URL + "/api/items/" + id)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}

	out := scrape(t, m)
	want := `rewear_http_requests_total{method="GET",path="/api/items/{id}",status="404"} 3`
	if !strings.Contains(out, want) {
		t.Errorf("expected %q in output:\n%s", want, out)
	}
}
