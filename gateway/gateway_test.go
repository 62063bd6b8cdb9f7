package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"edge-gateway/middleware/httperr"
	"edge-gateway/middleware/identity"
	"edge-gateway/middleware/ratelimit/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type backendHit struct {
	method, path, deviceID, contentType, body, requestID string
}

type fixture struct {
	h       http.Handler
	clk     *clock
	hits    chan backendHit
	backend *httptest.Server
}

func newFixture(t *testing.T, tweak func(*Config)) *fixture {
	t.Helper()
	hits := make(chan backendHit, 128)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		hits <- backendHit{
			method:      r.Method,
			path:        r.URL.Path,
			deviceID:    r.Header.Get(identity.HeaderName),
			contentType: r.Header.Get("Content-Type"),
			body:        string(b),
			requestID:   r.Header.Get("X-Request-Id"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	t.Cleanup(backend.Close)

	u, err := url.Parse(backend.URL)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.BackendURL = u
	if tweak != nil {
		tweak(&cfg)
	}

	clk := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	h := New(cfg, Deps{
		WindowStore: infra.NewMemoryStore(infra.WithClock(clk.Now)),
		BurstStore:  infra.NewMemoryStore(infra.WithClock(clk.Now)),
		Now:         clk.Now,
	})
	return &fixture{h: h, clk: clk, hits: hits, backend: backend}
}

func (f *fixture) do(r *http.Request) *httptest.ResponseRecorder {
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", browserUA)
	}
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, r)
	return w
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var b httperr.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b), w.Body.String())
	return b.Code
}

func TestHealth_ExemptFromIngressChain(t *testing.T) {
	f := newFixture(t, nil)

	r := httptest.NewRequest(http.MethodGet, "http://gw/health", nil)
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, r) // sem User-Agent

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetrics_Exposed(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(httptest.NewRequest(http.MethodGet, "http://gw/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestMetrics_DisabledIs404(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MetricsEnabled = false })

	w := f.do(httptest.NewRequest(http.MethodGet, "http://gw/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(httptest.NewRequest(http.MethodGet, "http://gw/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errCode(t, w))
}

func TestEmptyUserAgentIs403(t *testing.T) {
	f := newFixture(t, nil)

	r := httptest.NewRequest(http.MethodGet, "http://gw/api/books", nil)
	r.Header.Set("User-Agent", "")
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "BLOCKED_USER_AGENT", errCode(t, w))
	assert.Len(t, f.hits, 0)
}

func TestJSONEnrichIsProxiedWithDeviceID(t *testing.T) {
	f := newFixture(t, nil)

	payload := `{"books":[{"title":"Dune","author":"Frank Herbert"}]}`
	r := httptest.NewRequest(http.MethodPost, "http://gw/api/books/enrich", strings.NewReader(payload))
	r.Header.Set("Content-Type", "application/json")
	w := f.do(r)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	hit := <-f.hits
	assert.Equal(t, "/v1/books/enrich", hit.path)
	assert.Equal(t, "application/json", hit.contentType)
	assert.Equal(t, payload, hit.body)
	assert.Equal(t, cookies[0].Value, hit.deviceID)
	assert.NotEmpty(t, hit.requestID)
	assert.Equal(t, hit.requestID, w.Header().Get("X-Request-Id"))
}

func TestDeviceCookieRoundTrip(t *testing.T) {
	f := newFixture(t, nil)

	w1 := f.do(httptest.NewRequest(http.MethodGet, "http://gw/api/history", nil))
	require.Equal(t, http.StatusOK, w1.Code)
	cookies := w1.Result().Cookies()
	require.Len(t, cookies, 1)
	first := <-f.hits

	r2 := httptest.NewRequest(http.MethodGet, "http://gw/api/history", nil)
	r2.AddCookie(cookies[0])
	w2 := f.do(r2)
	second := <-f.hits

	assert.Empty(t, w2.Header().Values("Set-Cookie"))
	assert.Equal(t, first.deviceID, second.deviceID)
}

func TestAdminPathIsRewritten(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(httptest.NewRequest(http.MethodDelete, "http://gw/api/admin/cache", nil))
	require.Equal(t, http.StatusOK, w.Code)

	hit := <-f.hits
	assert.Equal(t, http.MethodDelete, hit.method)
	assert.Equal(t, "/v1/admin/cache", hit.path)
	assert.NotEmpty(t, hit.deviceID)
}

func TestInvalidJSONIs400(t *testing.T) {
	f := newFixture(t, nil)

	r := httptest.NewRequest(http.MethodPost, "http://gw/api/books/enrich", strings.NewReader(`{"books":[`))
	r.Header.Set("Content-Type", "application/json")
	w := f.do(r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_JSON", errCode(t, w))
}

func TestWhitespaceJSONBodyIs400NotUpstreamError(t *testing.T) {
	f := newFixture(t, nil)

	r := httptest.NewRequest(http.MethodPost, "http://gw/api/books/enrich", strings.NewReader("   \n"))
	r.Header.Set("Content-Type", "application/json")
	w := f.do(r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_JSON", errCode(t, w))
	assert.Len(t, f.hits, 0)
}

func TestDebugStatsEndpoint(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.StatsDebug = true
		c.SuspiciousMax = 1000
		c.Burst.Max = 2
	})

	for i := 0; i < 3; i++ {
		f.do(httptest.NewRequest(http.MethodGet, "http://gw/api/books", nil))
	}
	for len(f.hits) > 0 {
		<-f.hits
	}

	w := f.do(httptest.NewRequest(http.MethodGet, "http://gw/debug/ratelimit", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var snap infra.StatsSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, infra.Counters{Allowed: 3}, snap.ByLimiter["window"])
	assert.Equal(t, infra.Counters{Allowed: 2, Denied: 1}, snap.ByLimiter["burst"])
	assert.Equal(t, infra.Counters{Allowed: 5, Denied: 1}, snap.ByRoute["api"])
	assert.Equal(t, int64(1), snap.Rejections["BURST_LIMITED"])
}

func TestDebugStatsEndpointOffByDefault(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(httptest.NewRequest(http.MethodGet, "http://gw/debug/ratelimit", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSixtyOneRequestsInFiveMinutes(t *testing.T) {
	// o tracker de suspeitos (10/min) derrubaria o cenário antes do limite de janela
	f := newFixture(t, func(c *Config) { c.SuspiciousMax = 1000 })

	for i := 1; i <= 60; i++ {
		w := f.do(httptest.NewRequest(http.MethodGet, "http://gw/api/books", nil))
		require.Equal(t, http.StatusOK, w.Code, "request %d: %s", i, w.Body.String())
		<-f.hits
		f.clk.Advance(4 * time.Second)
	}

	w := f.do(httptest.NewRequest(http.MethodGet, "http://gw/api/books", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", errCode(t, w))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	f.clk.Advance(5 * time.Minute)
	w = f.do(httptest.NewRequest(http.MethodGet, "http://gw/api/books", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBurstIsRejectedIndependently(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.SuspiciousMax = 1000 })

	var rejected int
	for i := 0; i < 25; i++ {
		w := f.do(httptest.NewRequest(http.MethodGet, "http://gw/api/books", nil))
		if w.Code == http.StatusTooManyRequests {
			assert.Equal(t, "BURST_LIMITED", errCode(t, w))
			rejected++
		}
	}
	assert.Equal(t, 5, rejected)
}

func TestSuspiciousTrackerDefaults(t *testing.T) {
	f := newFixture(t, nil)

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "http://gw/api/books", nil)).Code)
	}
	w := f.do(httptest.NewRequest(http.MethodGet, "http://gw/api/books", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "SUSPICIOUS_ACTIVITY", errCode(t, w))
}

func scanBody(t *testing.T, declared string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="image"; filename="shelf.jpg"`)
	h.Set("Content-Type", declared)
	pw, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, _ = pw.Write(data)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestScan_PNGDeclaredAsJPEGIs415(t *testing.T) {
	f := newFixture(t, nil)

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	b, ct := scanBody(t, "image/jpeg", png)
	r := httptest.NewRequest(http.MethodPost, "http://gw/api/scan", b)
	r.Header.Set("Content-Type", ct)
	w := f.do(r)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, "SIGNATURE_MISMATCH", errCode(t, w))
	assert.Len(t, f.hits, 0)
}

func TestScan_OversizedIs413(t *testing.T) {
	f := newFixture(t, nil)

	b, ct := scanBody(t, "image/jpeg", append([]byte{0xff, 0xd8, 0xff}, make([]byte, 15<<20)...))
	r := httptest.NewRequest(http.MethodPost, "http://gw/api/scan", b)
	r.Header.Set("Content-Type", ct)
	w := f.do(r)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "FILE_TOO_LARGE", errCode(t, w))
}

func TestScan_ValidImageIsForwarded(t *testing.T) {
	f := newFixture(t, nil)

	jpeg := append([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 64)...)
	b, ct := scanBody(t, "image/jpeg", jpeg)
	r := httptest.NewRequest(http.MethodPost, "http://gw/api/scan", b)
	r.Header.Set("Content-Type", ct)
	w := f.do(r)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	hit := <-f.hits
	assert.Equal(t, "/v1/scan", hit.path)
	assert.True(t, strings.HasPrefix(hit.contentType, "multipart/form-data"))
	assert.NotEmpty(t, hit.deviceID)
}

func TestBackendURL(t *testing.T) {
	u, err := BackendURL(" http://backend:8000/ ")
	require.NoError(t, err)
	assert.Equal(t, "http://backend:8000", u.String())

	_, err = BackendURL("backend:8000")
	assert.Error(t, err)
}
