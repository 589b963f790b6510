package sessionstore

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-contrib/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cookieName = "mg_session"

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := NewRedisStore(rdb, testKey)
	store.Options(sessions.Options{Path: "/", MaxAge: 3600, HttpOnly: true})
	return store, mr
}

// saveValues は新しいセッションに値を書き込み、発行されたクッキーを返します。
func saveValues(t *testing.T, store *RedisStore, values map[interface{}]interface{}) *http.Cookie {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	session, err := store.New(req, cookieName)
	require.NoError(t, err)
	for k, v := range values {
		session.Values[k] = v
	}
	require.NoError(t, store.Save(req, rec, session))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func requestWithCookie(c *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	return req
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr := newTestStore(t)

	cookie := saveValues(t, store, map[interface{}]interface{}{
		"auth_user": "user-1",
		"issued_at": int64(1700000000),
	})
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 3600, cookie.MaxAge)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], keyPrefix))
	assert.Equal(t, time.Hour, mr.TTL(keys[0]))
	assert.NotContains(t, cookie.Value, "user-1", "values must stay server side")

	session, err := store.Get(requestWithCookie(cookie), cookieName)
	require.NoError(t, err)
	assert.False(t, session.IsNew)
	assert.Equal(t, "user-1", session.Values["auth_user"])
	assert.Equal(t, int64(1700000000), session.Values["issued_at"])
}

func TestRedisStoreFlashes(t *testing.T) {
	store, _ := newTestStore(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	session, err := store.New(req, cookieName)
	require.NoError(t, err)
	session.AddFlash("Incorrect password.")
	require.NoError(t, store.Save(req, rec, session))

	loaded, err := store.New(requestWithCookie(rec.Result().Cookies()[0]), cookieName)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Incorrect password."}, loaded.Flashes())
}

func TestRedisStoreTamperedCookie(t *testing.T) {
	store, _ := newTestStore(t)
	cookie := saveValues(t, store, map[interface{}]interface{}{"auth_user": "user-1"})

	cookie.Value = cookie.Value[:len(cookie.Value)-4] + "AAAA"
	session, err := store.New(requestWithCookie(cookie), cookieName)
	require.NoError(t, err)
	assert.True(t, session.IsNew)
	assert.Empty(t, session.Values)
}

func TestRedisStoreForeignKey(t *testing.T) {
	store, mr := newTestStore(t)
	cookie := saveValues(t, store, map[interface{}]interface{}{"auth_user": "user-1"})

	other := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), []byte("ffffffffffffffffffffffffffffffff"))
	session, err := other.New(requestWithCookie(cookie), cookieName)
	require.NoError(t, err)
	assert.True(t, session.IsNew)
}

func TestRedisStoreExpiredEntry(t *testing.T) {
	store, mr := newTestStore(t)
	cookie := saveValues(t, store, map[interface{}]interface{}{"auth_user": "user-1"})

	mr.FastForward(2 * time.Hour)

	session, err := store.New(requestWithCookie(cookie), cookieName)
	require.NoError(t, err)
	assert.True(t, session.IsNew)
	assert.Empty(t, session.ID)
	assert.Empty(t, session.Values)
}

func TestRedisStoreDeleteIsIdempotent(t *testing.T) {
	store, mr := newTestStore(t)
	cookie := saveValues(t, store, map[interface{}]interface{}{"auth_user": "user-1"})

	for i := 0; i < 2; i++ {
		req := requestWithCookie(cookie)
		session, err := store.New(req, cookieName)
		require.NoError(t, err)
		session.Options.MaxAge = -1
		rec := httptest.NewRecorder()
		require.NoError(t, store.Save(req, rec, session))

		cleared := rec.Result().Cookies()
		require.Len(t, cleared, 1)
		assert.Equal(t, "", cleared[0].Value)
		assert.Empty(t, mr.Keys())
	}
}

func TestRedisStoreSaveAfterDeleteIssuesNewID(t *testing.T) {
	store, mr := newTestStore(t)
	cookie := saveValues(t, store, map[interface{}]interface{}{"auth_user": "user-1"})
	before := mr.Keys()
	require.Len(t, before, 1)

	req := requestWithCookie(cookie)
	session, err := store.New(req, cookieName)
	require.NoError(t, err)
	oldID := session.ID

	session.Options.MaxAge = -1
	require.NoError(t, store.Save(req, httptest.NewRecorder(), session))
	assert.Empty(t, session.ID)
	assert.Empty(t, mr.Keys())

	// 同じリクエスト内でフラッシュを保存し直す
	session.Options.MaxAge = 3600
	session.AddFlash("Incorrect password.")
	require.NoError(t, store.Save(req, httptest.NewRecorder(), session))

	after := mr.Keys()
	require.Len(t, after, 1)
	assert.NotEqual(t, oldID, session.ID)
	assert.NotEqual(t, before[0], after[0])
}

func TestRedisStoreRenew(t *testing.T) {
	store, mr := newTestStore(t)
	cookie := saveValues(t, store, map[interface{}]interface{}{"auth_user": "user-1"})

	req := requestWithCookie(cookie)
	session, err := store.New(req, cookieName)
	require.NoError(t, err)
	oldID := session.ID

	require.NoError(t, store.Renew(req, session))
	assert.Empty(t, mr.Keys())

	rec := httptest.NewRecorder()
	require.NoError(t, store.Save(req, rec, session))
	assert.NotEqual(t, oldID, session.ID)
	assert.Len(t, mr.Keys(), 1)
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	cookie := saveValues(t, store, map[interface{}]interface{}{"auth_user": "user-1"})

	mr.Close()

	_, err := store.New(requestWithCookie(cookie), cookieName)
	assert.ErrorIs(t, err, ErrUnavailable)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	session, err := store.New(req, cookieName)
	require.NoError(t, err, "requests without a cookie never touch redis")
	err = store.Save(req, httptest.NewRecorder(), session)
	assert.ErrorIs(t, err, ErrUnavailable)
}
