// 包 middleware：入口中间件（令牌桶限流、CDN 地理头注入）
package middleware

import (
	"net/http"
	"sync"
	"time"

	"places-api/internal/config"
	"places-api/internal/logger"
	"places-api/internal/metrics"
)

// 文档注释：令牌桶限流中间件（每秒）
// 背景：在流量峰值时对入口进行限速，避免近邻检索把存储压垮；按配置开关与速率。
// 约束：简化实现，不做队列排队，仅丢弃并返回 429；桶按整秒重置。
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	now      func() int64
	mu       sync.Mutex
}

func NewTokenBucket(qps int) *TokenBucket {
	if qps <= 0 {
		qps = 200
	}
	now := func() int64 { return time.Now().Unix() }
	return &TokenBucket{capacity: qps, tokens: qps, lastSec: now(), now: now}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := tb.now()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wrap：按顺序组装 CDN 地理头注入与限流；限流未启用时仅注入
func Wrap(next http.Handler, rl config.RateLimitConfig) http.Handler {
	h := WithEdgeGeo(next)
	if !rl.Enabled {
		return h
	}
	return RateLimit(NewTokenBucket(rl.QPS), h)
}

func RateLimit(tb *TokenBucket, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tb.Allow() {
			metrics.RateLimitedTotal.Inc()
			logger.L().Debug("rate_limited", "path", r.URL.Path)
			w.Header().Set("content-type", "application/json; charset=utf-8")
			w.Header().Set("retry-after", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
