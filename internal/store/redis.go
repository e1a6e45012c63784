package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"places-api/internal/geo"
	"places-api/internal/logger"
	"places-api/internal/place"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 文档注释：Redis 存储
// 背景：文档存为哈希，geohash 索引存为分值全 0 的有序集合（成员 "geohash:id"），
// 利用 ZRANGEBYLEX 的字节序比较完成范围读取；创建时间另建有序集合用于最新列表。
// 约束：
// - 键：{prefix}:doc:{id}、{prefix}:geohash、{prefix}:created；
// - 写入与删除使用 MULTI/EXEC，文档与索引同时可见；
// - id 与 geohash 均不含冒号。
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "places"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) docKey(id string) string { return s.prefix + ":doc:" + id }
func (s *RedisStore) geoKey() string          { return s.prefix + ":geohash" }
func (s *RedisStore) createdKey() string      { return s.prefix + ":created" }

func (s *RedisStore) Insert(ctx context.Context, p *place.Place) (string, error) {
	doc := clonePlace(*p)
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	fields, err := encodeHash(doc)
	if err != nil {
		return "", err
	}
	old, err := s.rdb.HGet(ctx, s.docKey(doc.ID), "geohash").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("store: redis lookup %s: %w", doc.ID, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if old != "" && old != doc.Geohash {
			pipe.ZRem(ctx, s.geoKey(), old+":"+doc.ID)
		}
		pipe.Del(ctx, s.docKey(doc.ID))
		pipe.HSet(ctx, s.docKey(doc.ID), fields)
		pipe.ZAdd(ctx, s.geoKey(), redis.Z{Score: 0, Member: doc.Geohash + ":" + doc.ID})
		pipe.ZAdd(ctx, s.createdKey(), redis.Z{Score: float64(doc.CreatedAt.UnixMilli()), Member: doc.ID})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store: redis insert %s: %w", doc.ID, err)
	}
	logger.L().Debug("redisstore_insert", "id", doc.ID, "geohash", doc.Geohash)
	return doc.ID, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*place.Place, error) {
	m, err := s.rdb.HGetAll(ctx, s.docKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis get %s: %w", id, err)
	}
	if len(m) == 0 {
		return nil, place.ErrNotFound
	}
	p, err := decodeHash(id, m)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	hash, err := s.rdb.HGet(ctx, s.docKey(id), "geohash").Result()
	if errors.Is(err, redis.Nil) {
		return place.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: redis delete %s: %w", id, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(id))
		pipe.ZRem(ctx, s.geoKey(), hash+":"+id)
		pipe.ZRem(ctx, s.createdKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: redis delete %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Latest(ctx context.Context, n int) ([]place.Place, error) {
	if n <= 0 {
		return nil, nil
	}
	ids, err := s.rdb.ZRevRange(ctx, s.createdKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis latest: %w", err)
	}
	return s.loadDocs(ctx, ids)
}

// 文档注释：geohash 闭区间范围查询
// 背景：成员形如 "geohash:id"，ZRANGEBYLEX 先按字节序粗取，再按成员中的 geohash 精确裁剪区间端点。
// 约束：start 为空时下界为 "-"（负无穷）；上界取 "(end;"，';' 紧随 ':'，使 "end:<id>" 成员落在区间内；结果按 geohash 升序。
func (s *RedisStore) RangeByGeohash(ctx context.Context, start, end string) ([]place.Place, error) {
	lo := "-"
	if start != "" {
		lo = "[" + start
	}
	members, err := s.rdb.ZRangeByLex(ctx, s.geoKey(), &redis.ZRangeBy{Min: lo, Max: "(" + end + ";"}).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis range %q..%q: %w", start, end, err)
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		hash, id, ok := strings.Cut(m, ":")
		if !ok || hash < start || hash > end {
			continue
		}
		ids = append(ids, id)
	}
	return s.loadDocs(ctx, ids)
}

// loadDocs：按 id 顺序批量读取文档；并发删除导致的缺失文档直接跳过
func (s *RedisStore) loadDocs(ctx context.Context, ids []string) ([]place.Place, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.docKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: redis load docs: %w", err)
	}
	out := make([]place.Place, 0, len(ids))
	for i, c := range cmds {
		m := c.Val()
		if len(m) == 0 {
			continue
		}
		p, err := decodeHash(ids[i], m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *RedisStore) Close() error { return s.rdb.Close() }

func encodeHash(p place.Place) (map[string]interface{}, error) {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("store: encode tags: %w", err)
	}
	return map[string]interface{}{
		"name":        p.Name,
		"city":        p.City,
		"place_type":  p.PlaceType,
		"address":     p.Address,
		"schedule":    p.Schedule,
		"description": p.Description,
		"photo":       p.Photo,
		"lat":         strconv.FormatFloat(p.Coords.Lat, 'g', -1, 64),
		"lng":         strconv.FormatFloat(p.Coords.Lng, 'g', -1, 64),
		"geohash":     p.Geohash,
		"tags":        string(b),
		"created_by":  p.CreatedBy,
		"created_at":  strconv.FormatInt(p.CreatedAt.UnixMilli(), 10),
		"status":      p.Status,
	}, nil
}

func decodeHash(id string, m map[string]string) (place.Place, error) {
	lat, err := strconv.ParseFloat(m["lat"], 64)
	if err != nil {
		return place.Place{}, fmt.Errorf("store: bad lat on %s: %w", id, err)
	}
	lng, err := strconv.ParseFloat(m["lng"], 64)
	if err != nil {
		return place.Place{}, fmt.Errorf("store: bad lng on %s: %w", id, err)
	}
	ms, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return place.Place{}, fmt.Errorf("store: bad created_at on %s: %w", id, err)
	}
	var tags []string
	if v := m["tags"]; v != "" {
		if err := json.Unmarshal([]byte(v), &tags); err != nil {
			return place.Place{}, fmt.Errorf("store: decode tags of %s: %w", id, err)
		}
	}
	if len(tags) == 0 {
		tags = nil
	}
	return place.Place{
		ID:          id,
		Name:        m["name"],
		City:        m["city"],
		PlaceType:   m["place_type"],
		Address:     m["address"],
		Schedule:    m["schedule"],
		Description: m["description"],
		Photo:       m["photo"],
		Coords:      geo.LatLng{Lat: lat, Lng: lng},
		Geohash:     m["geohash"],
		Tags:        tags,
		CreatedBy:   m["created_by"],
		CreatedAt:   time.UnixMilli(ms).UTC(),
		Status:      m["status"],
	}, nil
}

var _ Store = (*RedisStore)(nil)
