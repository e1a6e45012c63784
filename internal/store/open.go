package store

import (
	"context"
	"fmt"

	"places-api/internal/config"
	"places-api/internal/logger"
	"places-api/internal/migrate"
	"places-api/internal/utils"
)

// 文档注释：按配置打开文档存储
// 背景：主服务与导入工具共用同一入口，保证两者读写同一后端。
// 约束：打开后立即 Ping，失败时关闭已建立的连接并返回错误。
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		db, e := utils.OpenPostgres(cfg.Postgres)
		if e != nil {
			return nil, fmt.Errorf("store: open postgres: %w", e)
		}
		if e := db.PingContext(ctx); e != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: ping postgres: %w", e)
		}
		s, err = NewSQLStore(db, migrate.DriverPostgres)
		if err != nil {
			_ = db.Close()
		}
	case "sqlite":
		db, e := utils.OpenSQLite(cfg.SQLite.Path)
		if e != nil {
			return nil, fmt.Errorf("store: open sqlite: %w", e)
		}
		s, err = NewSQLStore(db, migrate.DriverSQLite)
		if err != nil {
			_ = db.Close()
		}
	case "redis":
		rs := NewRedisStore(utils.OpenRedisFromConfig(cfg.Redis), cfg.Redis.KeyPrefix)
		if e := rs.Ping(ctx); e != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("store: ping redis: %w", e)
		}
		s = rs
	case "memory":
		s = NewMemoryStore()
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	logger.L().Info("store_open_ok", "driver", cfg.Store.Driver)
	return s, nil
}
