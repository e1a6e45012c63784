package geo

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/mmcloughlin/geohash"
)

// MaxSearchPrecision：范围推导时允许的最细网格；更细的网格只会增加查询次数而不减少候选
const MaxSearchPrecision = 9

// RangeEndSuffix：范围上界后缀，'~' 的字节序大于全部 base32 字符
const RangeEndSuffix = "~"

// ErrInvalidRadius：半径非有限数或不为正
var ErrInvalidRadius = errors.New("invalid radius")

// Range：geohash 字典序闭区间 [Start, End]
type Range struct {
	Start string
	End   string
}

// FullRange：覆盖全部 geohash 的区间（极区或超大半径时的兜底）
var FullRange = Range{Start: "", End: RangeEndSuffix}

// 文档注释：按半径推导覆盖圆盘的 geohash 区间集合
// 背景：粗过滤阶段只做字典序范围查询；选取单格尺寸不小于半径的精度，再取中心格的 3x3 邻域，
// 则邻域并集必然覆盖整个球冠，精确过滤交由 Haversine 完成。
// 约束：
// - 球冠包含极点（|φ|+δ ≥ 90°）或任何精度都不满足时，返回 FullRange，结果正确但退化为全表扫描；
// - 越过极点的邻行直接跳过（中心格已贴极，球冠不会越界）；
// - 经度按 360 取模回绕，日期变更线两侧的网格都会纳入；
// - 返回区间按 Start 排序且去重，便于测试与日志比对。
func BoundsForRadius(center LatLng, radiusMeters float64) ([]Range, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) || radiusMeters <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRadius, radiusMeters)
	}
	p := SearchPrecision(center, radiusMeters)
	if p == 0 {
		return []Range{FullRange}, nil
	}
	latDeg, lngDeg := CellSize(p)
	lat0, lng0 := normalize(center.Lat, center.Lng)
	box := geohash.BoundingBox(geohash.EncodeWithPrecision(lat0, lng0, uint(p)))
	cLat, cLng := box.Center()

	seen := make(map[string]struct{}, 9)
	out := make([]Range, 0, 9)
	for dy := -1; dy <= 1; dy++ {
		lat := cLat + float64(dy)*latDeg
		if lat > 90 || lat < -90 {
			continue
		}
		for dx := -1; dx <= 1; dx++ {
			nLat, nLng := normalize(lat, cLng+float64(dx)*lngDeg)
			h := geohash.EncodeWithPrecision(nLat, nLng, uint(p))
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, Range{Start: h, End: h + RangeEndSuffix})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// 文档注释：选取范围查询所用的 geohash 精度
// 背景：纬向需 cellLat ≥ δ；经向需 cellLng ≥ asin(sin δ / cos φ)，即球冠在经度方向的真实半宽。
// 返回：满足条件的最细精度（1..MaxSearchPrecision）；0 表示需要全量区间。
func SearchPrecision(center LatLng, radiusMeters float64) int {
	delta := radiusMeters / EarthRadiusMeters
	deltaDeg := toDeg(delta)
	if math.Abs(center.Lat)+deltaDeg >= 90 {
		return 0
	}
	lngHalf := toDeg(math.Asin(math.Sin(delta) / math.Cos(toRad(center.Lat))))
	// 轻微放大，抵消浮点误差导致的边界漏格
	const margin = 1.000001
	for p := MaxSearchPrecision; p >= 1; p-- {
		latDeg, lngDeg := CellSize(p)
		if latDeg >= deltaDeg*margin && lngDeg >= lngHalf*margin {
			return p
		}
	}
	return 0
}

// Contains：geohash 是否落在区间内（闭区间，字节序）
func (r Range) Contains(hash string) bool {
	return hash >= r.Start && hash <= r.End
}
