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

	"github.com/odyssey-erp/authority/internal/shared"
)

func newManager(t *testing.T) (*shared.SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, "authority_session", time.Hour, false), mr
}

func requestWith(cookies []*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestSessionRoundTripKeepsCredential(t *testing.T) {
	ctx := context.Background()
	sm, mr := newManager(t)

	sess, err := sm.Load(ctx, requestWith(nil))
	require.NoError(t, err)
	sess.SetUser("7", "digest-7")
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))
	require.True(t, mr.Exists("session:"+sess.ID))

	loaded, err := sm.Load(ctx, requestWith(rec.Result().Cookies()))
	require.NoError(t, err)
	require.Equal(t, sess.ID, loaded.ID)
	require.Equal(t, "7", loaded.User())
	require.Equal(t, "digest-7", loaded.Credential())
}

func TestAnonymousSessionIsNotStored(t *testing.T) {
	ctx := context.Background()
	sm, mr := newManager(t)

	sess, err := sm.Load(ctx, requestWith(nil))
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))
	require.Empty(t, mr.Keys())
	require.Empty(t, rec.Result().Cookies())
}

func TestUnknownSessionIDIsReplaced(t *testing.T) {
	ctx := context.Background()
	sm, _ := newManager(t)

	sess, err := sm.Load(ctx, requestWith([]*http.Cookie{{Name: "authority_session", Value: "forged"}}))
	require.NoError(t, err)
	require.NotEqual(t, "forged", sess.ID)
	require.Empty(t, sess.Credential())
}

func TestRenewDropsPreviousID(t *testing.T) {
	ctx := context.Background()
	sm, mr := newManager(t)

	sess, err := sm.Load(ctx, requestWith(nil))
	require.NoError(t, err)
	sess.SetUser("1", "a")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), sess))
	old := sess.ID

	sm.Renew(sess)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), sess))
	require.NotEqual(t, old, sess.ID)
	require.False(t, mr.Exists("session:"+old))
	require.True(t, mr.Exists("session:"+sess.ID))
}

func TestDestroyClearsCookie(t *testing.T) {
	ctx := context.Background()
	sm, mr := newManager(t)

	sess, err := sm.Load(ctx, requestWith(nil))
	require.NoError(t, err)
	sess.SetUser("1", "a")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), sess))

	sm.Destroy(sess)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))
	require.False(t, mr.Exists("session:"+sess.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, -1, cookies[0].MaxAge)
}
