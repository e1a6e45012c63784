package api

import (
	"context"
	"strconv"
	"time"

	"places-api/internal/logger"
	"places-api/internal/metrics"
	"places-api/internal/search"

	"github.com/redis/go-redis/v9"
)

// 文档注释：近邻响应缓存
// 背景：热点位置的重复检索直接命中 Redis，避免 9 路范围查询；键由精确查询参数与写入代数组成。
// 约束：
// - 新增/删除地点时代数自增，旧键自然失效，无需逐键清理；
// - rc 为 nil 或 ttl <= 0 时全部操作为空操作；
// - Redis 异常只记日志，不影响主流程。
type nearCache struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration
}

func (c *nearCache) enabled() bool { return c != nil && c.rc != nil && c.ttl > 0 }

func (c *nearCache) genKey() string { return c.prefix + ":near:gen" }

func (c *nearCache) key(ctx context.Context, q search.Query) string {
	gen, err := c.rc.Get(ctx, c.genKey()).Result()
	if err != nil && err != redis.Nil {
		logger.L().Debug("near_cache_gen_error", "err", err)
	}
	if gen == "" {
		gen = "0"
	}
	return c.prefix + ":near:" + gen + ":" +
		strconv.FormatFloat(q.Center.Lat, 'f', 6, 64) + ":" +
		strconv.FormatFloat(q.Center.Lng, 'f', 6, 64) + ":" +
		strconv.FormatFloat(q.RadiusMeters, 'f', -1, 64) + ":" +
		strconv.Itoa(q.Limit)
}

func (c *nearCache) get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.rc.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.L().Debug("near_cache_get_error", "err", err)
		}
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.Inc()
	return b, true
}

func (c *nearCache) set(ctx context.Context, key string, body []byte) {
	if err := c.rc.Set(ctx, key, body, c.ttl).Err(); err != nil {
		logger.L().Debug("near_cache_set_error", "err", err)
	}
}

// bump：写路径调用，使已缓存的近邻结果失效
func (c *nearCache) bump(ctx context.Context) {
	if !c.enabled() {
		return
	}
	if err := c.rc.Incr(ctx, c.genKey()).Err(); err != nil {
		logger.L().Warn("near_cache_bump_error", "err", err)
	}
}
