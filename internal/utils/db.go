package utils

import (
	"database/sql"
	"os"
	"path/filepath"

	"places-api/internal/config"
	"places-api/internal/logger"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// OpenPostgres：按配置打开 PostgreSQL 连接池
// 约束：连接数上限为 0 时沿用 50/25 的默认值
func OpenPostgres(pc config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", pc.DSN())
	if err != nil {
		return nil, err
	}
	maxOpen, maxIdle := 50, 25
	if pc.MaxOpenConns > 0 {
		maxOpen = pc.MaxOpenConns
	}
	if pc.MaxIdleConns > 0 {
		maxIdle = pc.MaxIdleConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	logger.L().Debug("pg_open", "host", pc.Host, "port", pc.Port, "db", pc.DB, "max_open", maxOpen)
	return db, nil
}

// 文档注释：打开 SQLite 数据库（modernc 纯 Go 驱动）
// 约束：
// - ":memory:" 每个连接是独立库，故限制为单连接；
// - 文件库自动创建父目录并开启 WAL 与 busy_timeout。
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	logger.L().Debug("sqlite_open", "path", path)
	return db, nil
}
