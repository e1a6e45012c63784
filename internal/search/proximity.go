// 包 search：近邻检索（geohash 粗筛 + Haversine 精筛 + 去重 + 截断）
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"places-api/internal/geo"
	"places-api/internal/logger"
	"places-api/internal/metrics"
	"places-api/internal/place"
	"places-api/internal/store"
)

// DefaultLimit：未指定上限时的返回条数
const DefaultLimit = 100

// Query：一次近邻检索的参数；Limit <= 0 时取 DefaultLimit
type Query struct {
	Center       geo.LatLng
	RadiusMeters float64
	Limit        int
}

// 文档注释：近邻检索器
// 背景：只依赖存储的范围读接口；每次检索按半径推导若干 geohash 区间并发读取，再以球面距离做权威过滤。
// 约束：
// - 纯读路径，多个检索并发执行互不影响；
// - Timeout > 0 时为每次检索叠加超时，超时与调用方取消同归 ErrCancelled；
// - 任一区间读取失败即整体失败（ErrStoreUnavailable），其余在途读取随派生上下文取消。
type Searcher struct {
	reader  store.RangeReader
	timeout time.Duration
}

type Option func(*Searcher)

// WithTimeout：单次检索的超时上限
func WithTimeout(d time.Duration) Option {
	return func(s *Searcher) { s.timeout = d }
}

func NewSearcher(reader store.RangeReader, opts ...Option) *Searcher {
	s := &Searcher{reader: reader}
	for _, o := range opts {
		o(s)
	}
	return s
}

// 文档注释：检索 center 周围 radius 米内的地点
// 返回：去重后的地点集合，顺序不保证，最多 Limit 条；无命中时返回空切片。
// 约束：参数非法时在发出任何查询前返回 ErrInvalidArgument。
func (s *Searcher) Near(ctx context.Context, q Query) ([]place.Place, error) {
	start := time.Now()
	metrics.NearRequestsTotal.Inc()
	if err := q.Center.Validate(); err != nil {
		metrics.NearErrorsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %w", place.ErrInvalidArgument, err)
	}
	if math.IsNaN(q.RadiusMeters) || math.IsInf(q.RadiusMeters, 0) || q.RadiusMeters <= 0 {
		metrics.NearErrorsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: radius %v must be positive", place.ErrInvalidArgument, q.RadiusMeters)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	ranges, err := geo.BoundsForRadius(q.Center, q.RadiusMeters)
	if err != nil {
		metrics.NearErrorsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %w", place.ErrInvalidArgument, err)
	}
	metrics.NearRanges.Observe(float64(len(ranges)))

	batches, err := s.fetch(ctx, ranges)
	if err != nil {
		kind := "store"
		if errors.Is(err, place.ErrCancelled) {
			kind = "cancelled"
		}
		metrics.NearErrorsTotal.WithLabelValues(kind).Inc()
		logger.L().Warn("near_search_failed", "lat", q.Center.Lat, "lng", q.Center.Lng, "radius_m", q.RadiusMeters, "kind", kind, "err", err)
		return nil, err
	}

	candidates := 0
	seen := make(map[string]int)
	out := make([]place.Place, 0)
	for _, batch := range batches {
		candidates += len(batch)
		for _, p := range batch {
			if p.Coords.Validate() != nil {
				continue
			}
			if geo.Haversine(q.Center, p.Coords) > q.RadiusMeters {
				continue
			}
			if i, ok := seen[p.ID]; ok {
				out[i] = p
				continue
			}
			seen[p.ID] = len(out)
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}

	metrics.NearCandidates.Observe(float64(candidates))
	metrics.NearResults.Observe(float64(len(out)))
	metrics.NearDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	logger.L().Debug("near_search_done", "lat", q.Center.Lat, "lng", q.Center.Lng, "radius_m", q.RadiusMeters, "ranges", len(ranges), "candidates", candidates, "results", len(out), "ms", time.Since(start).Milliseconds())
	return out, nil
}

// fetch：每个区间一个 goroutine，全部完成后按区间顺序返回；首个错误取消其余读取
func (s *Searcher) fetch(ctx context.Context, ranges []geo.Range) ([][]place.Place, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", place.ErrCancelled, err)
	}
	parent := ctx
	if s.timeout > 0 {
		var cancelTimeout context.CancelFunc
		parent, cancelTimeout = context.WithTimeout(ctx, s.timeout)
		defer cancelTimeout()
	}
	rctx, cancel := context.WithCancel(parent)
	defer cancel()

	results := make([][]place.Place, len(ranges))
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for i, r := range ranges {
		wg.Add(1)
		go func(i int, r geo.Range) {
			defer wg.Done()
			recs, err := s.reader.RangeByGeohash(rctx, r.Start, r.End)
			if err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			results[i] = recs
		}(i, r)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", place.ErrCancelled, err)
	}
	if firstErr != nil {
		if err := parent.Err(); err != nil {
			return nil, fmt.Errorf("%w: search timeout %s: %w", place.ErrCancelled, s.timeout, err)
		}
		metrics.StoreErrorsTotal.WithLabelValues("range").Inc()
		return nil, fmt.Errorf("%w: %w", place.ErrStoreUnavailable, firstErr)
	}
	return results, nil
}
