package geo

import "math"

// EarthRadiusMeters：球面近似采用的平均地球半径
const EarthRadiusMeters = 6371000.0

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// 文档注释：Haversine 大圆距离（米）
// 背景：近邻检索的精确过滤依据；与范围推导使用同一地球半径，避免粗/细两阶段口径不一致。
func Haversine(a, b LatLng) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if s > 1 {
		s = 1
	}
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}

// 文档注释：按方位角与距离推算终点（球面）
// 背景：用于测试构造与导入数据的合理性抽样；方位角以正北为 0 顺时针（度）。
func Destination(from LatLng, bearingDeg, meters float64) LatLng {
	d := meters / EarthRadiusMeters
	brg := toRad(bearingDeg)
	lat1 := toRad(from.Lat)
	lng1 := toRad(from.Lng)
	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lng2 := lng1 + math.Atan2(math.Sin(brg)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))
	out := LatLng{Lat: toDeg(lat2), Lng: toDeg(lng2)}
	for out.Lng > 180 {
		out.Lng -= 360
	}
	for out.Lng < -180 {
		out.Lng += 360
	}
	return out
}
