package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimiterConfig 限流配置
//
// 示例：Rate: "120-M"、Identifier: "ip"/"user"、SkipPaths: ["/health", "/metrics"]
type RateLimiterConfig struct {
	Rate        string   `json:"rate"`       // e.g. "30-M", "1000-H"
	Identifier  string   `json:"identifier"` // ip|user
	SkipPaths   []string `json:"skip_paths"`
	AddHeaders  bool     `json:"add_headers"`
	DenyStatus  int      `json:"deny_status"` // 默认 429
	DenyMessage string   `json:"deny_message"`
}

// NewLimiterStore 有 redis 客户端时使用 redis 计数（INCR+EXPIRE 原子执行），否则使用进程内存
func NewLimiterStore(client *redis.Client, prefix string) (limiter.Store, error) {
	if client == nil {
		return memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          prefix,
			CleanUpInterval: limiter.DefaultCleanUpInterval,
		}), nil
	}
	return sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:          prefix,
		MaxRetry:        limiter.DefaultMaxRetry,
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	})
}

// MetricsObserver 指标上报接口
type MetricsObserver interface {
	OnAllow(route string, key string)
	OnDeny(route string, key string)
}

// PrometheusObserver 基于 Prometheus 的实现
type PrometheusObserver struct {
	allow *prometheus.CounterVec
	deny  *prometheus.CounterVec
}

// NewPrometheusObserver 创建 Prometheus 观察者
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	f := promauto.With(reg)
	return &PrometheusObserver{
		allow: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_allow_total",
			Help: "Allowed requests by rate limiter",
		}, []string{"route"}),
		deny: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_deny_total",
			Help: "Denied requests by rate limiter",
		}, []string{"route"}),
	}
}

func (p *PrometheusObserver) OnAllow(route, key string) { p.allow.WithLabelValues(route).Inc() }
func (p *PrometheusObserver) OnDeny(route, key string)  { p.deny.WithLabelValues(route).Inc() }

// RateLimiter HTTP 接口限流器
type RateLimiter struct {
	cfg      RateLimiterConfig
	lim      *limiter.Limiter
	mu       sync.RWMutex
	observer MetricsObserver
}

// NewRateLimiter 构造函数，store 为 nil 时使用内存存储
func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) (*RateLimiter, error) {
	if store == nil {
		store = memory.NewStore()
	}
	if cfg.Rate == "" {
		cfg.Rate = "120-M"
	}
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{cfg: cfg, lim: limiter.New(store, rate)}, nil
}

// WithObserver 配置指标观察者
func (l *RateLimiter) WithObserver(observer MetricsObserver) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = observer
	return l
}

// Middleware 返回 Gin 中间件
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if pathSkipped(l.cfg, c.FullPath(), c.Request.URL.Path) {
			c.Next()
			return
		}

		key := buildLimitKey(l.cfg, c)
		lctx, err := l.lim.Get(c.Request.Context(), key)
		if err != nil {
			// 存储不可用时放行
			c.Next()
			return
		}
		if l.cfg.AddHeaders {
			setStandardHeaders(c, lctx)
		}
		if lctx.Reached {
			setRetryAfter(c, time.Until(time.Unix(lctx.Reset, 0)))
			l.report(c, key, false)
			denyTooMany(c, l.cfg)
			return
		}

		l.report(c, key, true)
		c.Next()
	}
}

func (l *RateLimiter) report(c *gin.Context, key string, allowed bool) {
	l.mu.RLock()
	obs := l.observer
	l.mu.RUnlock()
	if obs == nil {
		return
	}
	r := c.FullPath()
	if r == "" {
		r = c.Request.URL.Path
	}
	if allowed {
		obs.OnAllow(r, key)
	} else {
		obs.OnDeny(r, key)
	}
}

// SenderLimiter 按发送者计数，供实时网关使用。
// 每次调用先原子递增再比较，超过上限即拒绝。
type SenderLimiter struct {
	lim      *limiter.Limiter
	observer MetricsObserver
}

func NewSenderLimiter(rate string, store limiter.Store, observer MetricsObserver) (*SenderLimiter, error) {
	if store == nil {
		store = memory.NewStore()
	}
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	return &SenderLimiter{lim: limiter.New(store, r), observer: observer}, nil
}

// Allow counts one message for key. A store error fails open.
func (s *SenderLimiter) Allow(ctx context.Context, key string) (bool, error) {
	lctx, err := s.lim.Get(ctx, key)
	if err != nil {
		return true, err
	}
	if s.observer != nil {
		if lctx.Reached {
			s.observer.OnDeny("ws", key)
		} else {
			s.observer.OnAllow("ws", key)
		}
	}
	return !lctx.Reached, nil
}

func pathSkipped(cfg RateLimiterConfig, fullPath, rawPath string) bool {
	p := fullPath
	if p == "" {
		p = rawPath
	}
	for _, pref := range cfg.SkipPaths {
		if pref != "" && strings.HasPrefix(p, pref) {
			return true
		}
	}
	return false
}

func buildLimitKey(cfg RateLimiterConfig, c *gin.Context) string {
	ip := strings.TrimPrefix(c.ClientIP(), "::ffff:")
	if cfg.Identifier == "user" {
		if u := CurrentUser(c); u != nil {
			return "user:" + strconv.FormatUint(uint64(u.ID), 10)
		}
	}
	return "ip:" + ip
}

func setStandardHeaders(c *gin.Context, ctx limiter.Context) {
	c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
	resetSec := int(time.Until(time.Unix(ctx.Reset, 0)).Seconds())
	if resetSec < 0 {
		resetSec = 0
	}
	c.Header("X-RateLimit-Reset", strconv.Itoa(resetSec))
}

func setRetryAfter(c *gin.Context, d time.Duration) {
	sec := int(d.Seconds())
	if sec < 0 {
		sec = 0
	}
	c.Header("Retry-After", strconv.Itoa(sec))
}

func denyTooMany(c *gin.Context, cfg RateLimiterConfig) {
	status := cfg.DenyStatus
	if status == 0 {
		status = http.StatusTooManyRequests
	}
	msg := cfg.DenyMessage
	if msg == "" {
		msg = "Too Many Requests"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
