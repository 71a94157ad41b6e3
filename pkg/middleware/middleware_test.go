package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSenderLimiter_RejectsAfterLimit(t *testing.T) {
	l, err := NewSenderLimiter("30-M", nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		ok, err := l.Allow(ctx, "user:7")
		require.NoError(t, err)
		require.True(t, ok, "message %d", i+1)
	}
	ok, err := l.Allow(ctx, "user:7")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "user:8")
	assert.True(t, ok, "other senders have their own counter")
}

func TestSenderLimiter_NewWindow(t *testing.T) {
	l, err := NewSenderLimiter("2-S", nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "k")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "k")
	assert.False(t, ok)

	time.Sleep(1100 * time.Millisecond)
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl, err := NewRateLimiter(RateLimiterConfig{Rate: "2-M", AddHeaders: true, SkipPaths: []string{"/health"}}, nil)
	require.NoError(t, err)
	rl.WithObserver(NewPrometheusObserver(prometheus.NewRegistry()))

	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/api/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/x", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func loaderFor(users ...*Principal) UserLoader {
	return func(ctx context.Context, id uint) (*Principal, error) {
		for _, u := range users {
			if u.ID == id {
				return u, nil
			}
		}
		return nil, fmt.Errorf("user %d not found", id)
	}
}

func TestAuthenticate_Bearer(t *testing.T) {
	nurse := &Principal{ID: 2, Username: "nurse", IsStaff: true, Role: "NURSE"}
	tok, err := SignToken("s3cret", nurse.ID, time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.Use(SessionStore("cookie-secret"), Authenticate("s3cret", loaderFor(nurse)))
	r.GET("/staff", RequireStaff(), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).Username)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/staff", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nurse", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/staff?token="+tok, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/staff", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireStaff_RejectsRefugee(t *testing.T) {
	refugee := &Principal{ID: 9, Role: "REFUGEE"}
	tok, err := SignToken("s3cret", refugee.ID, time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.Use(Authenticate("s3cret", loaderFor(refugee)))
	r.GET("/staff", RequireStaff(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/staff", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthenticate_CookieSession(t *testing.T) {
	refugee := &Principal{ID: 5, Username: "amal", Role: "REFUGEE"}

	r := gin.New()
	r.Use(SessionStore("cookie-secret"), Authenticate("", loaderFor(refugee)))
	r.POST("/login", func(c *gin.Context) {
		require.NoError(t, Login(c, refugee.ID))
		c.Status(http.StatusNoContent)
	})
	r.GET("/me", RequireUser(), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).Username)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "amal", w.Body.String())
}

func TestParseToken_RejectsWrongSecret(t *testing.T) {
	tok, err := SignToken("a", 1, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken("b", tok)
	assert.Error(t, err)
}
