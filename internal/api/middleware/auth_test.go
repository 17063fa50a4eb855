package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-loyalty/points-api/internal/cache"
	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/pkg/jwthelper"
	"github.com/campus-loyalty/points-api/internal/repository"
)

const testKey = "middleware-test-signing-key"

type stubUsers map[uint]domain.User

func (s stubUsers) FindByID(_ context.Context, id uint) (domain.User, error) {
	u, ok := s[id]
	if !ok {
		return domain.User{}, repository.ErrUserNotFound
	}

	return u, nil
}

func newRouter(t *testing.T, denylist TokenChecker, users UserLoader, guards ...gin.HandlerFunc) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	r := gin.New()

	handlers := append([]gin.HandlerFunc{NewAuthenticator(testKey, denylist, users).VerifyJWT()}, guards...)
	handlers = append(handlers, func(ctx *gin.Context) {
		user, ok := CurrentUser(ctx)
		require.True(t, ok)
		token, expiresAt := CurrentToken(ctx)
		ctx.JSON(http.StatusOK, gin.H{"utorid": user.UTORid, "token": token != "", "expires": !expiresAt.IsZero()})
	})
	r.GET("/private", handlers...)

	return r
}

func token(t *testing.T, userID uint, ttl time.Duration) string {
	t.Helper()

	signed, _, err := jwthelper.GenerateToken([]byte(testKey), userID, "regular", ttl, time.Now())
	require.NoError(t, err)

	return signed
}

func get(r http.Handler, target, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestVerifyJWT(t *testing.T) {
	users := stubUsers{1: {ID: 1, UTORid: "student01", Role: domain.RoleRegular}}
	r := newRouter(t, nil, users)

	w := get(r, "/private", token(t, 1, time.Hour))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"utorid":"student01","token":true,"expires":true}`, w.Body.String())

	w = get(r, "/private?token="+token(t, 1, time.Hour), "")
	assert.Equal(t, http.StatusOK, w.Code, "query parameter is accepted for websocket upgrades")

	tests := []struct {
		name    string
		bearer  string
		wantMsg string
	}{
		{name: "missing", bearer: "", wantMsg: "missing bearer token"},
		{name: "malformed", bearer: "abc.def.ghi", wantMsg: "invalid or expired token"},
		{name: "expired", bearer: token(t, 1, -time.Minute), wantMsg: "invalid or expired token"},
		{name: "unknown user", bearer: token(t, 2, time.Hour), wantMsg: "user no longer exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, "/private", tt.bearer)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"`+tt.wantMsg+`"}`, w.Body.String())
		})
	}
}

func TestVerifyJWT_WrongKey(t *testing.T) {
	r := newRouter(t, nil, stubUsers{1: {ID: 1}})

	signed, _, err := jwthelper.GenerateToken([]byte("some-other-signing-key"), 1, "regular", time.Hour, time.Now())
	require.NoError(t, err)

	w := get(r, "/private", signed)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyJWT_Denylist(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	denylist := cache.NewDenylist(rdb)
	r := newRouter(t, denylist, stubUsers{1: {ID: 1, UTORid: "student01"}})
	tok := token(t, 1, time.Hour)

	assert.Equal(t, http.StatusOK, get(r, "/private", tok).Code)

	require.NoError(t, denylist.Add(context.Background(), tok, time.Minute))
	w := get(r, "/private", tok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"token has been revoked"}`, w.Body.String())

	mr.FastForward(2 * time.Minute)
	assert.Equal(t, http.StatusOK, get(r, "/private", tok).Code)
}

func TestVerifyJWT_DenylistFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := newRouter(t, cache.NewDenylist(rdb), stubUsers{1: {ID: 1}})
	mr.SetError("READONLY unavailable")

	w := get(r, "/private", token(t, 1, time.Hour))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	users := stubUsers{
		1: {ID: 1, UTORid: "student01", Role: domain.RoleRegular},
		2: {ID: 2, UTORid: "cashier01", Role: domain.RoleCashier},
		3: {ID: 3, UTORid: "super0001", Role: domain.RoleSuperuser},
	}
	r := newRouter(t, nil, users, RequireRole(domain.RoleCashier))

	assert.Equal(t, http.StatusForbidden, get(r, "/private", token(t, 1, time.Hour)).Code)
	assert.Equal(t, http.StatusOK, get(r, "/private", token(t, 2, time.Hour)).Code)
	assert.Equal(t, http.StatusOK, get(r, "/private", token(t, 3, time.Hour)).Code)
}

func TestRequireRole_WithoutAuthentication(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/private", RequireRole(domain.RoleRegular), func(ctx *gin.Context) {
		ctx.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusUnauthorized, get(r, "/private", "").Code)
}
