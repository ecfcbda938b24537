package status

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	logx "charitybot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	s := New(Config{}, logx.Nop())

	code, body := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	s.SetHalted("missing MQTT_URL")
	code, body = get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "halted", body["status"])
	assert.Equal(t, "missing MQTT_URL", body["reason"])
}

func TestStatusSections(t *testing.T) {
	s := New(Config{}, logx.Nop())
	s.Register("tips", func() any { return map[string]int{"queue": 2} })
	s.Register("posts", func() any { return map[string]int{"remaining_quota": 14} })

	code, body := get(t, s.Handler(), "/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"queue": float64(2)}, body["tips"])
	assert.Equal(t, map[string]any{"remaining_quota": float64(14)}, body["posts"])
	assert.NotContains(t, body, "halted")
}

func TestMetricsAndPprofRoutes(t *testing.T) {
	rec := httptest.NewRecorder()
	New(Config{}, logx.Nop()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	New(Config{}, logx.Nop()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	New(Config{Pprof: true}, logx.Nop()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(Config{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
