package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/store"
	"github.com/rentaldesk/rentals/internal/types"
)

func newService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	return NewService(s, NewMemorySessionStore(), time.Hour, nil), s
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", hash)
	assert.True(t, CheckPassword("s3cret!", hash))
	assert.False(t, CheckPassword("wrong", hash))
}

func TestLoginAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	_, err := svc.CreateUser(ctx, NewUser{Username: "Maria", Password: "hunter22", Role: model.RoleUser})
	require.NoError(t, err)

	sess, u, err := svc.Login(ctx, "  MARIA ", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "maria", u.Username)
	assert.NotEmpty(t, sess.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, time.Minute)

	stored, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)

	got, err := svc.Authenticate(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	require.NoError(t, svc.Logout(ctx, sess.ID))
	_, err = svc.Authenticate(ctx, sess.ID)
	assert.True(t, apperror.Is(err, apperror.CodeUnauthorized))
}

func TestLoginRejections(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	u, err := svc.CreateUser(ctx, NewUser{Username: "joao", Password: "hunter22"})
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "joao", "nope")
	assert.True(t, apperror.Is(err, apperror.CodeUnauthorized))
	_, _, err = svc.Login(ctx, "nobody", "hunter22")
	assert.True(t, apperror.Is(err, apperror.CodeUnauthorized))

	sess, _, err := svc.Login(ctx, "joao", "hunter22")
	require.NoError(t, err)

	u.Status = types.StatusInactive
	require.NoError(t, s.UpdateUser(ctx, u))
	_, _, err = svc.Login(ctx, "joao", "hunter22")
	assert.True(t, apperror.Is(err, apperror.CodeUnauthorized))
	_, err = svc.Authenticate(ctx, sess.ID)
	assert.True(t, apperror.Is(err, apperror.CodeUnauthorized))
}

func TestCreateUser_ShortPassword(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.CreateUser(context.Background(), NewUser{Username: "x", Password: "123"})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestPasswordLengthBounds(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	long := strings.Repeat("x", MaxPasswordLength+1)

	_, err := svc.CreateUser(ctx, NewUser{Username: "long", Password: long})
	var ae *apperror.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperror.CodeValidation, ae.Code)
	assert.Contains(t, ae.Fields, "password")

	u, err := svc.CreateUser(ctx, NewUser{Username: "edge", Password: long[:MaxPasswordLength]})
	require.NoError(t, err)
	assert.True(t, CheckPassword(long[:MaxPasswordLength], u.PasswordHash))

	err = SetPassword(u, long)
	assert.True(t, apperror.Is(err, apperror.CodeValidation), "got %v", err)
	assert.True(t, CheckPassword(long[:MaxPasswordLength], u.PasswordHash))
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)

	created, err := svc.Bootstrap(ctx, "", "")
	require.NoError(t, err)
	assert.False(t, created)

	created, err = svc.Bootstrap(ctx, "admin", "changeme")
	require.NoError(t, err)
	assert.True(t, created)
	u, err := s.GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, u.IsAdmin())

	created, err = svc.Bootstrap(ctx, "admin2", "changeme")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestMemorySessionStore_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySessionStore()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Save(ctx, &Session{ID: "a", ExpiresAt: now.Add(time.Minute)}))
	_, err := m.Get(ctx, "a")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStore(t *testing.T) {
	addr := os.Getenv("RENTALS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RENTALS_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	rs := NewRedisSessionStore(client, "rentals:test:session:")
	sess := &Session{ID: "r1", UserID: 9, Role: model.RoleAdmin, ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, rs.Save(ctx, sess))

	got, err := rs.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.UserID)

	require.NoError(t, rs.Delete(ctx, "r1"))
	_, err = rs.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStore_RejectsExpired(t *testing.T) {
	rs := NewRedisSessionStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "p:")
	err := rs.Save(context.Background(), &Session{ID: "old", ExpiresAt: time.Now().Add(-time.Second)})
	assert.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", TokenFromRequest(r, "sid"))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "sid", Value: "xyz"})
	assert.Equal(t, "xyz", TokenFromRequest(r, "sid"))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic Zm9v")
	assert.Empty(t, TokenFromRequest(r, "sid"))
}

func TestMiddleware(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.CreateUser(ctx, NewUser{Username: "admin", Password: "adminpw", Role: model.RoleAdmin})
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, NewUser{Username: "clerk", Password: "clerkpw"})
	require.NoError(t, err)
	adminSess, _, err := svc.Login(ctx, "admin", "adminpw")
	require.NoError(t, err)
	clerkSess, _, err := svc.Login(ctx, "clerk", "clerkpw")
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := UserFrom(r.Context())
		w.Write([]byte(u.Username))
	})
	session := svc.RequireSession("sid")
	open := session(ok)
	admin := session(RequireAdmin(ok))

	do := func(h http.Handler, token string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	rec := do(open, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"UNAUTHORIZED"`)

	rec = do(open, clerkSess.ID)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "clerk", rec.Body.String())

	assert.Equal(t, http.StatusForbidden, do(admin, clerkSess.ID).Code)
	assert.Equal(t, http.StatusOK, do(admin, adminSess.ID).Code)
	assert.Equal(t, http.StatusUnauthorized, do(admin, "bogus").Code)
}

type brokenSessions struct {
	SessionStore
}

func (brokenSessions) Get(context.Context, string) (*Session, error) {
	return nil, errors.New("dial tcp 10.0.0.5:6379: connection refused")
}

func TestRequireSession_HidesInternalErrors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	svc := NewService(store.NewMemoryStore(), brokenSessions{NewMemorySessionStore()}, time.Hour, zap.New(core))
	h := svc.RequireSession("sid")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer some-session")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"INTERNAL_ERROR"`)
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].ContextMap()["error"], "10.0.0.5")
}
