package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kasirpos/kasirpos/internal/shared"
)

func newManager(t *testing.T) *shared.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return shared.NewSessionManager(client, "test_session", time.Hour, false)
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "test_session" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestSessionRoundTrip(t *testing.T) {
	sm := newManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.Zero(t, sess.Operator())

	sess.SetOperator(7)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))
	cookie := sessionCookie(t, rec)

	next := httptest.NewRequest(http.MethodGet, "/api/pos/summary/today", nil)
	next.AddCookie(cookie)
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	require.Equal(t, int64(7), loaded.Operator())
}

func TestSessionAnonymousWithoutCookie(t *testing.T) {
	sm := newManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	require.Zero(t, sess.Operator())
}

func TestSessionUnknownCookieIsAnonymous(t *testing.T) {
	sm := newManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "test_session", Value: "stale-id"})
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	require.Zero(t, sess.Operator())
}

func TestSessionDestroy(t *testing.T) {
	sm := newManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.SetOperator(7)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))
	cookie := sessionCookie(t, rec)

	again := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	again.AddCookie(cookie)
	loaded, err := sm.Load(ctx, again)
	require.NoError(t, err)
	sm.Destroy(loaded)
	rec2 := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec2, loaded))
	expired := sessionCookie(t, rec2)
	require.Negative(t, expired.MaxAge)

	after := httptest.NewRequest(http.MethodGet, "/", nil)
	after.AddCookie(cookie)
	reloaded, err := sm.Load(ctx, after)
	require.NoError(t, err)
	require.Zero(t, reloaded.Operator())
}

func TestOperatorFromContext(t *testing.T) {
	require.Zero(t, shared.OperatorFromContext(context.Background()))

	sm := newManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetOperator(42)

	ctx := shared.ContextWithSession(context.Background(), sess)
	require.Equal(t, int64(42), shared.OperatorFromContext(ctx))
}
