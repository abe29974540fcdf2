package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/pixelwall/internal/adapter/metrics"
	"github.com/pscheid92/pixelwall/internal/app"
	"github.com/pscheid92/pixelwall/internal/domain"
	"github.com/pscheid92/pixelwall/internal/platform/config"
)

type fakeService struct {
	view    domain.CanvasView
	serveFn func(ctx context.Context, conn app.SessionConn) error
}

func (f *fakeService) View() domain.CanvasView {
	return f.view
}

func (f *fakeService) Serve(ctx context.Context, conn app.SessionConn) error {
	if f.serveFn != nil {
		return f.serveFn(ctx, conn)
	}
	return conn.Close()
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:         "development",
		Port:           "0",
		SessionSecret:  "test-session-secret",
		IdentityMaxAge: time.Hour,
	}
}

func defaultLimits() *ConnectionLimits {
	return NewConnectionLimits(clockwork.NewRealClock(), 100, 100, 1000, 1000)
}

func newTestServer(t *testing.T, svc canvasService, limits *ConnectionLimits, obs Observability, checks ...HealthCheck) *Server {
	t.Helper()
	srv, err := NewServer(testConfig(), svc, limits, obs, checks)
	require.NoError(t, err)
	return srv
}

func threeByThree() *fakeService {
	cells := make([]domain.Color, 9)
	for i := range cells {
		cells[i] = "green"
	}
	cells[4] = "#ff0000"
	return &fakeService{view: domain.CanvasView{Cells: cells, Size: 3, CellSize: 40, Online: 7}}
}

var identityPattern = regexp.MustCompile(`data-identity="([0-9a-f-]{36})"`)

func getCanvas(t *testing.T, srv *Server, cookies ...*http.Cookie) (*httptest.ResponseRecorder, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	match := identityPattern.FindStringSubmatch(rec.Body.String())
	require.Len(t, match, 2, "page must embed an identity")
	return rec, match[1]
}

func TestCanvas_RendersGrid(t *testing.T) {
	srv := newTestServer(t, threeByThree(), defaultLimits(), Observability{})

	rec, _ := getCanvas(t, srv)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `id="p1"`)
	assert.Contains(t, body, `id="p9"`)
	assert.NotContains(t, body, `id="p10"`)
	assert.Contains(t, body, "#ff0000")
	assert.Contains(t, body, "7 online")
	assert.Contains(t, body, "repeat(3, 40px)")
}

func TestCanvas_IssuesAndReusesIdentity(t *testing.T) {
	srv := newTestServer(t, threeByThree(), defaultLimits(), Observability{})

	first, identity := getCanvas(t, srv)
	cookies := first.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, identityCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	second, again := getCanvas(t, srv, cookies[0])
	assert.Equal(t, identity, again)
	assert.Empty(t, second.Result().Cookies(), "existing identity is not reissued")
}

func TestCanvas_TamperedCookieIsReplaced(t *testing.T) {
	srv := newTestServer(t, threeByThree(), defaultLimits(), Observability{})

	rec, identity := getCanvas(t, srv, &http.Cookie{Name: identityCookieName, Value: "forged"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, identity)
	require.Len(t, rec.Result().Cookies(), 1)
}

func TestCanvas_SecurityHeaders(t *testing.T) {
	srv := newTestServer(t, threeByThree(), defaultLimits(), Observability{})

	rec, _ := getCanvas(t, srv)

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "connect-src 'self' ws: wss:")
}

func TestHealth_ReadyAndLive(t *testing.T) {
	called := false
	srv := newTestServer(t, threeByThree(), defaultLimits(), Observability{}, HealthCheck{
		Name:  "postgres",
		Check: func(ctx context.Context) error { called = true; return nil },
	})

	for _, path := range []string{"/health/ready", "/health/startup", "/health/live"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
	assert.True(t, called)
}

func TestHealth_ReadyReportsCanvasState(t *testing.T) {
	srv := newTestServer(t, threeByThree(), defaultLimits(), Observability{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
	assert.InDelta(t, 7, body["online"], 0)
	assert.InDelta(t, 3, body["canvas_size"], 0)
}

func TestHealth_FailingCheck(t *testing.T) {
	srv := newTestServer(t, threeByThree(), defaultLimits(), Observability{},
		HealthCheck{Name: "postgres", Check: func(ctx context.Context) error { return nil }},
		HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return errors.New("connection refused") }},
	)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, "redis", body["failed_check"])
	assert.Equal(t, "connection refused", body["error"])
}

func TestVersion(t *testing.T) {
	srv := newTestServer(t, threeByThree(), defaultLimits(), Observability{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "version")
	assert.Contains(t, body, "go_version")
}

func TestMetrics_ServedAndRecorded(t *testing.T) {
	reg := metrics.NewRegistry()
	obs := Observability{
		MetricsHandler: metrics.Handler(reg),
		HTTP:           metrics.NewHTTPMetrics(reg, WebSocketRoute),
	}
	srv := newTestServer(t, threeByThree(), defaultLimits(), obs)

	getCanvas(t, srv)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pixelwall_http_requests_total{method="GET",route="/",status_code="200"} 1`)
}

func TestMetrics_NotRoutedWithoutHandler(t *testing.T) {
	srv := newTestServer(t, threeByThree(), defaultLimits(), Observability{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSocket_DeniedByLimitsIsCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	limits := NewConnectionLimits(clockwork.NewFakeClock(), 100, 100, 1, 1)
	srv := newTestServer(t, threeByThree(), limits, Observability{WebSocket: wsMetrics})

	// The first request spends the only token even though it is not an upgrade.
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["type"])
	assert.Equal(t, 0, limits.Current(), "slots are released after the request")
	assert.InDelta(t, 1, testutil.ToFloat64(wsMetrics.ConnectionsDenied.WithLabelValues("rate_limit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(wsMetrics.ConnectionsDenied.WithLabelValues("upgrade")), 0)
}
