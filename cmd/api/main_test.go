package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/member-gate/internal/config"
	"github.com/yourusername/member-gate/internal/metrics"
	"github.com/yourusername/member-gate/internal/user/memory"
	"github.com/yourusername/member-gate/internal/web"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		GinMode:            gin.TestMode,
		CORSAllowedOrigins: "http://localhost:8080",
		SessionMaxLifetime: time.Hour,
		SessionIdleTimeout: 30 * time.Minute,
		BcryptCost:         4,
	}
	store := cookie.NewStore([]byte("0123456789abcdef0123456789abcdef"))
	router, err := newRouter(cfg, zerolog.Nop(), metrics.New("member_gate"), memory.NewStore(), store, nil)
	require.NoError(t, err)
	return web.MethodOverride(router)
}

type browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func (b *browser) send(method, target string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range b.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func TestHealth(t *testing.T) {
	b := &browser{t: t, handler: newTestServer(t), cookies: map[string]*http.Cookie{}}

	rec := b.send(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), serviceName)
}

func TestFullFlow(t *testing.T) {
	b := &browser{t: t, handler: newTestServer(t), cookies: map[string]*http.Cookie{}}

	rec := b.send(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = b.send(http.MethodGet, "/register", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/register"`)

	rec = b.send(http.MethodPost, "/register", url.Values{
		"name":     {"Alice Smith"},
		"email":    {"a@x.io"},
		"password": {"hunter22"},
	})
	require.Equal(t, http.StatusFound, rec.Code)

	rec = b.send(http.MethodPost, "/login", url.Values{"email": {"a@x.io"}, "password": {"nope-nope"}})
	require.Equal(t, http.StatusFound, rec.Code)
	rec = b.send(http.MethodGet, "/login", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Incorrect password.")

	rec = b.send(http.MethodPost, "/login", url.Values{"email": {"a@x.io"}, "password": {"hunter22"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = b.send(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hi Alice Smith")

	// HTML フォームからのログアウト
	rec = b.send(http.MethodPost, "/logout?_method=DELETE", url.Values{})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = b.send(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestLoggedOutCookieIsRejected(t *testing.T) {
	b := &browser{t: t, handler: newTestServer(t), cookies: map[string]*http.Cookie{}}

	b.send(http.MethodPost, "/register", url.Values{"name": {"Alice Smith"}, "email": {"a@x.io"}, "password": {"hunter22"}})
	rec := b.send(http.MethodPost, "/login", url.Values{"email": {"a@x.io"}, "password": {"hunter22"}})
	require.Equal(t, http.StatusFound, rec.Code)
	saved := *b.cookies["mg_session"]

	rec = b.send(http.MethodPost, "/logout?_method=DELETE", url.Values{})
	require.Equal(t, http.StatusFound, rec.Code)

	b.cookies["mg_session"] = &saved
	rec = b.send(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestMetricsEndpoint(t *testing.T) {
	b := &browser{t: t, handler: newTestServer(t), cookies: map[string]*http.Cookie{}}

	b.send(http.MethodPost, "/register", url.Values{"name": {"Al"}, "email": {"a@x.io"}, "password": {"hunter22"}})

	rec := b.send(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `member_gate_registrations_total{result="invalid"} 1`)
}
