// 包 geo：地理编码与距离计算，为近邻检索提供 geohash 编码、范围推导与大圆距离
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/mmcloughlin/geohash"
)

// DefaultPrecision：写库时的 geohash 长度，10 字符约 1.2m x 0.6m，满足亚米级定位
const DefaultPrecision = 10

// MaxPrecision：底层 64 位整数编码可表达的最大字符数
const MaxPrecision = 12

// ErrInvalidCoordinates：坐标非有限数或超出 WGS84 取值范围
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// LatLng：WGS84 坐标点（度）
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// 文档注释：坐标合法性校验
// 约束：纬度 [-90, 90]，经度 [-180, 180]，NaN/Inf 一律拒绝；不做自动截断。
func (p LatLng) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return fmt.Errorf("%w: non-finite lat=%v lng=%v", ErrInvalidCoordinates, p.Lat, p.Lng)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinates, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinates, p.Lng)
	}
	return nil
}

// 文档注释：geohash 编码（base32，经度位起始交错）
// 背景：底层交由 mmcloughlin/geohash 完成位交错与 base32 映射；此处负责校验与边界策略。
// 约束：
// - 越界或非有限坐标返回 ErrInvalidCoordinates，不做截断；
// - 纬度贴近 +90 时内缩 edgeInset 落入最北一行网格（编码器区间为半开区间）；
// - 经度恰为 +180 视作 -180（同一经线），保证与日期变更线西侧网格相邻；
// - precision 越界时回退到 DefaultPrecision / MaxPrecision。
func Encode(p LatLng, precision int) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if precision <= 0 {
		precision = DefaultPrecision
	}
	if precision > MaxPrecision {
		precision = MaxPrecision
	}
	lat, lng := normalize(p.Lat, p.Lng)
	return geohash.EncodeWithPrecision(lat, lng, uint(precision)), nil
}

// edgeInset：上边界内缩量（度）；(x+r)/2r 在 x 贴近 r 时会被舍入为 1，导致量化溢出
const edgeInset = 1e-9

// normalize：把合法坐标映射到编码器的半开区间 [-90,90) x [-180,180)
func normalize(lat, lng float64) (float64, float64) {
	if lat > 90-edgeInset {
		lat = 90 - edgeInset
	}
	if lat < -90 {
		lat = -90
	}
	for lng >= 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	if lng > 180-edgeInset {
		lng = 180 - edgeInset
	}
	return lat, lng
}

// 文档注释：单个网格的经纬度跨度（度）
// 背景：geohash 每字符 5 位，经度取偶数位、纬度取奇数位；经度位数为 ceil(5p/2)，纬度位数为 floor(5p/2)。
func CellSize(precision int) (latDeg, lngDeg float64) {
	bits := 5 * precision
	lngBits := (bits + 1) / 2
	latBits := bits / 2
	return 180 / math.Exp2(float64(latBits)), 360 / math.Exp2(float64(lngBits))
}

// CommonPrefixLen：两个 geohash 的公共前缀长度
func CommonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
