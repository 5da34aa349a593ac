package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type panicHandler struct{}

func (panicHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/boom", func(echo.Context) error { panic("boom") })
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
}

func newTestServer() *Server {
	reg := prometheus.NewRegistry()
	return NewServer(nil, []Handler{panicHandler{}}, WithMetrics("/metrics", reg, reg))
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzAndMetrics(t *testing.T) {
	s := newTestServer()
	if rec := get(s, "/healthz"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("healthz: %d %s", rec.Code, rec.Body.String())
	}
	_ = get(s, "/ok")
	rec := get(s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `optionsflow_http_requests_total{method="GET",route="/ok",status="200"} 1`) {
		t.Fatalf("request counter missing:\n%s", rec.Body.String())
	}
}

func TestPanicBecomes500(t *testing.T) {
	s := newTestServer()
	if rec := get(s, "/boom"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if rec := get(s, "/ok"); rec.Code != http.StatusOK {
		t.Fatalf("server should keep serving after a panic, got %d", rec.Code)
	}
}

func TestAddr(t *testing.T) {
	s := NewServer(nil, nil, WithHost("127.0.0.1"), WithPort(9000), WithMetrics("", prometheus.NewRegistry(), prometheus.NewRegistry()))
	if s.Addr() != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr %s", s.Addr())
	}
}
