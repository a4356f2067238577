package observe

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type harness struct {
	reader *sdkmetric.ManualReader
	spans  *tracetest.InMemoryExporter
	server http.Handler
}

// newHarness serves a small mux through the middleware with in-memory
// metrics and tracing.
func newHarness(t *testing.T) *harness {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/pronunciation/check", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Correlation", CorrelationID(r.Context()))
		w.Write([]byte(`{"score":82.4}`))
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /fail", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	return &harness{reader: reader, spans: installTracer(t), server: Middleware(m)(mux)}
}

func (h *harness) do(method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("audio"))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func (h *harness) durations(t *testing.T) []metricdata.HistogramDataPoint[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "speakingbuddy.http.request.duration")
	if met == nil {
		t.Fatal("duration metric not recorded")
	}
	return met.Data.(metricdata.Histogram[float64]).DataPoints
}

func TestMiddleware_CorrelationID(t *testing.T) {
	h := newHarness(t)

	rec := h.do("POST", "/api/pronunciation/check", nil)
	cid := rec.Header().Get("X-Correlation-ID")
	if len(cid) != 32 {
		t.Fatalf("X-Correlation-ID = %q", cid)
	}
	if seen := rec.Header().Get("X-Seen-Correlation"); seen != cid {
		t.Errorf("handler saw %q, client got %q", seen, cid)
	}

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	rec = h.do("POST", "/api/pronunciation/check", map[string]string{
		"traceparent": "00-" + traceID + "-00f067aa0ba902b7-01",
	})
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("incoming trace not continued: %q", got)
	}
}

func TestMiddleware_SpanNamedAfterRoute(t *testing.T) {
	h := newHarness(t)
	h.do("POST", "/api/pronunciation/check", nil)
	h.do("GET", "/nowhere", nil)

	spans := h.spans.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Name != "POST /api/pronunciation/check" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if spans[1].Name != "GET unmatched" {
		t.Errorf("unmatched span name = %q", spans[1].Name)
	}

	attrs := map[string]int64{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInt64()
	}
	if attrs["http.response.status_code"] != 200 {
		t.Errorf("status attr = %d", attrs["http.response.status_code"])
	}
	if attrs["http.response.body.size"] != int64(len(`{"score":82.4}`)) {
		t.Errorf("body size attr = %d", attrs["http.response.body.size"])
	}
}

func TestMiddleware_RecordsByRouteAndClass(t *testing.T) {
	h := newHarness(t)
	for range 3 {
		h.do("POST", "/api/pronunciation/check", nil)
	}
	h.do("GET", "/nowhere/1", nil)
	h.do("GET", "/nowhere/2", nil)
	h.do("GET", "/fail", nil)

	counts := map[string]uint64{}
	for _, dp := range h.durations(t) {
		route, _ := dp.Attributes.Value("route")
		class, _ := dp.Attributes.Value("status_class")
		counts[route.AsString()+" "+class.AsString()] += dp.Count
	}
	want := map[string]uint64{
		"POST /api/pronunciation/check 2xx": 3,
		"unmatched 4xx":                     2,
		"GET /fail 5xx":                     1,
	}
	for k, n := range want {
		if counts[k] != n {
			t.Errorf("count[%s] = %d, want %d (all: %v)", k, counts[k], n, counts)
		}
	}
}

func TestMiddleware_ServerErrorFailsSpan(t *testing.T) {
	h := newHarness(t)
	h.do("GET", "/fail", nil)

	if got := h.spans.GetSpans()[0].Status.Code; got != codes.Error {
		t.Errorf("span status = %v, want Error", got)
	}
}

func TestMiddleware_LogLevels(t *testing.T) {
	h := newHarness(t)
	buf := captureLogs(t, slog.LevelInfo)

	h.do("GET", "/healthz", nil)
	if buf.Len() != 0 {
		t.Errorf("probe logged at info: %s", buf)
	}

	h.do("GET", "/fail", nil)
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "status=502") {
		t.Errorf("server error log = %s", buf)
	}
}

func TestStatusClass(t *testing.T) {
	for code, want := range map[int]string{200: "2xx", 204: "2xx", 413: "4xx", 499: "4xx", 504: "5xx"} {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", code, got, want)
		}
	}
}
