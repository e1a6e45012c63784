package migrate

import (
	"database/sql"
	"fmt"

	"places-api/internal/logger"
)

// 驱动名，与 database/sql 注册名一致
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// 文档注释：建表与索引
// 背景：首次运行自动创建 places 表与 geohash/created 索引，保障后续写入与范围查询。
// 约束：
// - 使用 IF NOT EXISTS，可重复执行；
// - PostgreSQL 的 geohash 索引使用 COLLATE "C"，保证范围谓词按字节序走索引；
// - created_at 以毫秒整数存储，两种方言口径一致。
func EnsureSchema(db *sql.DB, driver string) error {
	var stmts []string
	switch driver {
	case DriverPostgres:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS places (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            city TEXT NOT NULL DEFAULT '',
            place_type TEXT NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT '',
            schedule TEXT NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            photo TEXT NOT NULL DEFAULT '',
            lat DOUBLE PRECISION NOT NULL,
            lng DOUBLE PRECISION NOT NULL,
            geohash TEXT NOT NULL,
            tags TEXT NOT NULL DEFAULT '[]',
            created_by TEXT NOT NULL DEFAULT '',
            created_at_ms BIGINT NOT NULL,
            status TEXT NOT NULL DEFAULT 'approved'
        )`,
			`CREATE INDEX IF NOT EXISTS idx_places_geohash ON places (geohash COLLATE "C")`,
			`CREATE INDEX IF NOT EXISTS idx_places_created ON places (created_at_ms DESC)`,
		}
	case DriverSQLite:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS places (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            city TEXT NOT NULL DEFAULT '',
            place_type TEXT NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT '',
            schedule TEXT NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            photo TEXT NOT NULL DEFAULT '',
            lat REAL NOT NULL,
            lng REAL NOT NULL,
            geohash TEXT NOT NULL,
            tags TEXT NOT NULL DEFAULT '[]',
            created_by TEXT NOT NULL DEFAULT '',
            created_at_ms INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'approved'
        )`,
			`CREATE INDEX IF NOT EXISTS idx_places_geohash ON places (geohash)`,
			`CREATE INDEX IF NOT EXISTS idx_places_created ON places (created_at_ms DESC)`,
		}
	default:
		return fmt.Errorf("migrate: unsupported driver %q", driver)
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "driver", driver, "idx", i)
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("migrate: stmt %d: %w", i, err)
		}
	}
	logger.L().Debug("schema_done", "driver", driver)
	return nil
}
