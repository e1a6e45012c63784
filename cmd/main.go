// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"places-api/internal/api"
	"places-api/internal/config"
	"places-api/internal/geoip"
	"places-api/internal/logger"
	"places-api/internal/metrics"
	"places-api/internal/middleware"
	"places-api/internal/places"
	"places-api/internal/store"
	"places-api/internal/utils"
	"places-api/internal/version"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	// 日志初始化
	l := logger.Setup(cfg.Log.Level, cfg.Log.Format)
	l.Debug("log_init_ok")
	l.Debug("config_api_base", "base", cfg.APIBase)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	st, err := store.Open(openCtx, cfg)
	cancel()
	if err != nil {
		l.Error("store_open_error", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	// 响应缓存：未启用或连接失败时退化为直连存储
	var rc *redis.Client
	if cfg.Redis.Enabled {
		rc = utils.OpenRedisFromConfig(cfg.Redis)
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
			_ = rc.Close()
			rc = nil
		} else {
			l.Info("redis_ping_ok")
			defer rc.Close()
		}
	} else {
		l.Info("redis_disabled")
	}

	// 背景：读取已下载的 mmdb 作为“附近”检索的缺省中心来源；失败不影响其余接口
	var loc api.Locator
	if cfg.GeoIP.Path != "" {
		if g, err := geoip.Open(cfg.GeoIP.Path, cfg.GeoIP.Lang); err == nil {
			loc = g
			defer g.Close()
		} else {
			l.Error("geoip_open_error", "path", cfg.GeoIP.Path, "err", err)
		}
	}

	svc := places.NewService(st,
		places.WithSearchTimeout(cfg.Search.Timeout),
		places.WithLatestDefault(cfg.Search.LatestDefault),
	)

	// 文档注释：构建路由
	mux := http.NewServeMux()
	apiMux := api.BuildRoutes(api.Deps{Places: svc, Config: cfg, Redis: rc, Locator: loc})
	mux.Handle(cfg.APIBase+"/", http.StripPrefix(cfg.APIBase, apiMux))
	mux.Handle(cfg.APIBase+"/metrics", metrics.Handler())

	handler := logger.AccessMiddleware(l, logger.WithSkipPaths(cfg.APIBase+"/healthz", cfg.APIBase+"/metrics"))(mux)
	handler = middleware.Wrap(handler, cfg.RateLimit)
	s := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		l.Info("server_shutdown")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()

	l.Info("server_start", "addr", cfg.Addr, "tls", cfg.TLS.Enabled, "driver", cfg.Store.Driver, "commit", version.Commit)
	if cfg.TLS.Enabled {
		if err := utils.EnsureSelfSignedCert(cfg.TLS.CertPath, cfg.TLS.KeyPath, cfg.TLS.CN); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		err = s.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
	} else {
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
}
