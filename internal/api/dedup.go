package api

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// 文档注释：计算布隆过滤器位置
// 参数：data 为参与哈希的字节序列，m 为位图大小，k 为哈希次数。
// 背景：使用 FNV64a 结合索引扰动生成 k 个位置，用于 GetBit/SetBit。
func bloomPositions(data []byte, m uint32, k int) []int64 {
	pos := make([]int64, k)
	for i := 0; i < k; i++ {
		h := fnv.New64a()
		h.Write([]byte{byte(i)})
		h.Write(data)
		pos[i] = int64(uint32(h.Sum64() % uint64(m)))
	}
	return pos
}

// bloomContains：位图中 positions 是否全部置位
func bloomContains(ctx context.Context, rc *redis.Client, key string, positions []int64) (bool, error) {
	pipe := rc.Pipeline()
	cmds := make([]*redis.IntCmd, len(positions))
	for i, p := range positions {
		cmds[i] = pipe.GetBit(ctx, key, p)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, err
	}
	for _, c := range cmds {
		if c.Val() == 0 {
			return false, nil
		}
	}
	return true, nil
}

// 文档注释：检查并写入布隆过滤器位图
// 背景：拦截短时间内的重复提交（同一访问者、同名、同一 geohash 格子），表单连点不会产生重复地点。
// 参数：prevKey 为上一时间窗的位图，命中同样视为重复，避免跨窗边界漏判；可为空。
// 返回：true 表示首次见到（已写入位图，可继续处理）；false 表示疑似重复。
// 异常：Redis 交互错误时返回 true 与 error，不阻断主流程；rc 为 nil 时恒为 true。
func bloomCheckAndSet(ctx context.Context, rc *redis.Client, key, prevKey string, positions []int64, ttl time.Duration) (bool, error) {
	if rc == nil {
		return true, nil
	}
	for _, k := range []string{key, prevKey} {
		if k == "" {
			continue
		}
		seen, err := bloomContains(ctx, rc, k, positions)
		if err != nil {
			return true, err
		}
		if seen {
			return false, nil
		}
	}
	_, err := rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, pos := range positions {
			p.SetBit(ctx, key, pos, 1)
		}
		p.Expire(ctx, key, ttl)
		return nil
	})
	return true, err
}
