package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// testSetup returns metrics backed by a manual reader.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// requestDurations returns the sample count per path attribute.
func requestDurations(t *testing.T, reader *sdkmetric.ManualReader) map[string]uint64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]uint64)
	met := findMetric(rm, "chartvox.http.request.duration")
	if met == nil {
		return out
	}
	for _, dp := range met.Data.(metricdata.Histogram[float64]).DataPoints {
		path, _ := dp.Attributes.Value("path")
		out[path.AsString()] += dp.Count
	}
	return out
}

func TestMiddleware_CorrelationID(t *testing.T) {
	const incoming = "4bf92f3577b34da6a3ce929d0e0e4736"
	tests := []struct {
		name        string
		traceparent string
		want        string
	}{
		{name: "new trace"},
		{name: "propagated", traceparent: "00-" + incoming + "-00f067aa0ba902b7-01", want: incoming},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := testSetup(t)
			useTestTracer(t)

			var seen string
			h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = CorrelationID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/v1/fields", nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if len(seen) != 32 {
				t.Fatalf("handler saw correlation ID %q", seen)
			}
			if tt.want != "" && seen != tt.want {
				t.Errorf("correlation ID = %q, want %q", seen, tt.want)
			}
			if got := rec.Header().Get("X-Correlation-ID"); got != seen {
				t.Errorf("X-Correlation-ID = %q, want %q", got, seen)
			}
		})
	}
}

func TestMiddleware_RouteAndStatus(t *testing.T) {
	m, reader := testSetup(t)
	exp := useTestTracer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/{id}/form", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "gone" {
			http.NotFound(w, r)
		}
	})
	h := Middleware(m)(mux)

	for _, id := range []string{"a", "b", "gone"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id+"/form", nil))
	}

	spans := exp.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("recorded %d spans, want 3", len(spans))
	}
	for _, s := range spans {
		if s.Name != "HTTP GET /v1/sessions/{id}/form" {
			t.Errorf("span name = %q", s.Name)
		}
	}
	if v, _ := attrValue(spans[2].Attributes, "http.response.status_code"); v.AsInt64() != http.StatusNotFound {
		t.Errorf("status attribute = %d, want 404", v.AsInt64())
	}

	if got := requestDurations(t, reader); len(got) != 1 || got["/v1/sessions/{id}/form"] != 3 {
		t.Errorf("durations = %v, want 3 samples on the route pattern", got)
	}
}

func TestMiddleware_HealthRoutesLogAtDebug(t *testing.T) {
	m, _ := testSetup(t)
	buf := captureLog(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(http.ResponseWriter, *http.Request) {})
	mux.HandleFunc("GET /v1/fields", func(http.ResponseWriter, *http.Request) {})
	h := Middleware(m)(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if buf.String() != "" {
		t.Errorf("health route logged at info: %s", buf)
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/fields", nil))
	if !buf.Contains("route=/v1/fields") {
		t.Errorf("request log missing route: %s", buf)
	}
}

func TestMiddleware_WebsocketUpgrade(t *testing.T) {
	m, reader := testSetup(t)
	buf := captureLog(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/dictation", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("Accept behind middleware: %v", err)
			return
		}
		defer conn.CloseNow()
		typ, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		_ = conn.Write(r.Context(), typ, data)
		conn.Close(websocket.StatusNormalClosure, "")
	})
	srv := httptest.NewServer(Middleware(m)(mux))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/dictation", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"text":"頭痛","isFinal":true}`)); err != nil {
		t.Fatal(err)
	}
	if _, data, err := conn.Read(ctx); err != nil || !strings.Contains(string(data), "頭痛") {
		t.Fatalf("echo = %q, %v", data, err)
	}
	_, _, _ = conn.Read(ctx) // wait for the server close

	// The middleware records and logs once the handler returns.
	deadline := time.Now().Add(2 * time.Second)
	for !buf.Contains("connection closed") {
		if time.Now().After(deadline) {
			t.Fatalf("upgrade not logged as a closed connection: %s", buf)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !buf.Contains("status=101") {
		t.Errorf("upgrade status not logged as 101: %s", buf)
	}
	if requestDurations(t, reader)["/v1/dictation"] != 1 {
		t.Error("no duration recorded for the websocket route")
	}
}
