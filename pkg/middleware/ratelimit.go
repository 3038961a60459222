package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/cryptoquote/pkg/logger"
	"github.com/wyfcoding/cryptoquote/pkg/ratelimit"
)

// RateLimitRejector 写出限流拒绝响应
type RateLimitRejector func(c *gin.Context, d *ratelimit.Decision)

type rateLimitOptions struct {
	skip   map[string]struct{}
	reject RateLimitRejector
}

// RateLimitOption 限流中间件选项
type RateLimitOption func(*rateLimitOptions)

// WithRateLimitSkipPaths 不参与限流的路径，例如健康检查与指标
func WithRateLimitSkipPaths(paths ...string) RateLimitOption {
	return func(o *rateLimitOptions) {
		for _, p := range paths {
			if p != "" {
				o.skip[p] = struct{}{}
			}
		}
	}
}

// WithRateLimitRejector 自定义拒绝响应体
func WithRateLimitRejector(fn RateLimitRejector) RateLimitOption {
	return func(o *rateLimitOptions) {
		if fn != nil {
			o.reject = fn
		}
	}
}

// RateLimitMiddleware 按客户端 IP 与请求类别限流
// 限流器故障时放行
func RateLimitMiddleware(limiter ratelimit.Limiter, enabled bool, opts ...RateLimitOption) gin.HandlerFunc {
	o := &rateLimitOptions{
		skip: map[string]struct{}{},
		reject: func(c *gin.Context, d *ratelimit.Decision) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too Many Requests"})
		},
	}
	for _, opt := range opts {
		opt(o)
	}

	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}
		if _, ok := o.skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		class := ratelimit.ClassOf(c.Request.Method)
		d, err := limiter.Allow(ctx, class, c.ClientIP())
		if err != nil {
			logger.Warn(ctx, "Rate limiter unavailable", "class", class, "error", err)
			c.Next()
			return
		}

		if d.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			c.Header("X-RateLimit-Reset", strconv.Itoa(ceilSeconds(d.ResetAfter)))
		}
		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(ceilSeconds(d.RetryAfter)))
			logger.Debug(ctx, "Request rate limited", "class", class, "client_ip", c.ClientIP())
			o.reject(c, d)
			c.Abort()
			return
		}

		c.Next()
	}
}

// ceilSeconds 向上取整到秒，避免客户端收到 0 后立即重试
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
