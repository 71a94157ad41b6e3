package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
)

const (
	SessionName    = "triage_session"
	sessionUserKey = "user_id"
	contextUserKey = "user"
)

// Principal is the authenticated caller as seen by handlers.
type Principal struct {
	ID             uint
	Username       string
	FullName       string
	Role           string
	IsStaff        bool
	NativeLanguage string
}

// UserLoader resolves a user id from a cookie session or token.
type UserLoader func(ctx context.Context, id uint) (*Principal, error)

// Claims is the bearer token payload.
type Claims struct {
	UserID uint `json:"uid"`
	jwt.RegisteredClaims
}

// SessionStore 基于 cookie 的会话存储
func SessionStore(secret string) gin.HandlerFunc {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int((12 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(SessionName, store)
}

// SignToken issues an HS256 token for id.
func SignToken(secret string, id uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(id), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates tokenStr and returns its claims.
func ParseToken(secret, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Login stores id in the cookie session.
func Login(c *gin.Context, id uint) error {
	s := sessions.Default(c)
	s.Set(sessionUserKey, id)
	return s.Save()
}

// Authenticate resolves the caller from the cookie session or a bearer token
// (header, or ?token= for websocket upgrades). It never aborts; use
// RequireUser/RequireStaff for that.
func Authenticate(jwtSecret string, load UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := sessionUserID(c)
		if !ok {
			id, ok = bearerUserID(c, jwtSecret)
		}
		if ok {
			u, err := load(c.Request.Context(), id)
			if err != nil {
				logger.Debug("auth: user lookup failed", zap.Uint("user_id", id), zap.Error(err))
			} else if u != nil {
				c.Set(contextUserKey, u)
			}
		}
		c.Next()
	}
}

func sessionUserID(c *gin.Context) (uint, bool) {
	if _, exists := c.Get(sessions.DefaultKey); !exists {
		return 0, false
	}
	switch v := sessions.Default(c).Get(sessionUserKey).(type) {
	case uint:
		return v, v != 0
	case int:
		return uint(v), v > 0
	case int64:
		return uint(v), v > 0
	}
	return 0, false
}

func bearerUserID(c *gin.Context, secret string) (uint, bool) {
	if secret == "" {
		return 0, false
	}
	tok := ""
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		tok = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	} else {
		tok = c.Query("token")
	}
	if tok == "" {
		return 0, false
	}
	claims, err := ParseToken(secret, tok)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			logger.Debug("auth: token expired")
		}
		return 0, false
	}
	return claims.UserID, claims.UserID != 0
}

// CurrentUser returns the authenticated principal or nil.
func CurrentUser(c *gin.Context) *Principal {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*Principal)
	return u
}

// SetUser 测试和内部调用时直接注入用户
func SetUser(c *gin.Context, u *Principal) {
	c.Set(contextUserKey, u)
}

func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !u.IsStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "staff only"})
			return
		}
		c.Next()
	}
}
