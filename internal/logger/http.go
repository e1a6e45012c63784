package logger

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// DefaultSlowThreshold：超过该耗时的请求即使成功也以 info 级别记录
const DefaultSlowThreshold = time.Second

// accessRecorder 记录首次写头的状态码与响应字节数
type accessRecorder struct {
	http.ResponseWriter
	code  int
	size  int
	wrote bool
}

func (a *accessRecorder) WriteHeader(code int) {
	if !a.wrote {
		a.code = code
		a.wrote = true
	}
	a.ResponseWriter.WriteHeader(code)
}

func (a *accessRecorder) Write(b []byte) (int, error) {
	if !a.wrote {
		a.WriteHeader(http.StatusOK)
	}
	n, err := a.ResponseWriter.Write(b)
	a.size += n
	return n, err
}

func (a *accessRecorder) Unwrap() http.ResponseWriter { return a.ResponseWriter }

type accessConfig struct {
	skip map[string]bool
	slow time.Duration
}

type AccessOption func(*accessConfig)

// WithSkipPaths：完全匹配的路径不记录（健康检查、指标抓取）
func WithSkipPaths(paths ...string) AccessOption {
	return func(c *accessConfig) {
		for _, p := range paths {
			c.skip[p] = true
		}
	}
}

func WithSlowThreshold(d time.Duration) AccessOption {
	return func(c *accessConfig) {
		if d > 0 {
			c.slow = d
		}
	}
}

// 文档注释：访问日志中间件
// 背景：近邻检索的耗时集中在存储扇出，慢请求与 5xx 需要在 info 级别即可看到；正常请求仅 debug。
// 约束：5xx 记为 warn；超过慢阈值记为 info 并带 slow=true；命中近邻缓存时附带 cache 字段。不读取请求体。
func AccessMiddleware(l *slog.Logger, opts ...AccessOption) func(http.Handler) http.Handler {
	cfg := accessConfig{skip: map[string]bool{}, slow: DefaultSlowThreshold}
	for _, o := range opts {
		o(&cfg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			rec := &accessRecorder{ResponseWriter: w, code: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.code),
				slog.Int("bytes", rec.size),
				slog.Int64("duration_ms", elapsed.Milliseconds()),
				slog.String("ip", r.RemoteAddr),
			}
			if r.URL.RawQuery != "" {
				attrs = append(attrs, slog.String("query", r.URL.RawQuery))
			}
			if c := rec.Header().Get("x-cache"); c != "" {
				attrs = append(attrs, slog.String("cache", c))
			}
			lvl := slog.LevelDebug
			switch {
			case rec.code >= 500:
				lvl = slog.LevelWarn
			case elapsed >= cfg.slow:
				lvl = slog.LevelInfo
				attrs = append(attrs, slog.Bool("slow", true))
			}
			l.LogAttrs(context.WithoutCancel(r.Context()), lvl, "http_access", attrs...)
		})
	}
}
