// 包 utils：数据库与 Redis 连接工具，统一由配置构造客户端
package utils

import (
	"places-api/internal/config"
	"places-api/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：使用地址与密码打开 Redis 客户端
// 背景：保留直接传入参数的能力，用于测试与手工注入场景
func OpenRedis(addr, pass string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass})
}

// OpenRedisFromConfig：按配置打开 Redis 客户端，支持 DB 选择
// 约束：DB 为负数时回退到 0
func OpenRedisFromConfig(rc config.RedisConfig) *redis.Client {
	db := rc.DB
	if db < 0 {
		db = 0
	}
	logger.L().Debug("redis_open", "addr", rc.Addr(), "db", db)
	return redis.NewClient(&redis.Options{Addr: rc.Addr(), Password: rc.Password, DB: db})
}
