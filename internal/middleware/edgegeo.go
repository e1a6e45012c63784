package middleware

import (
	"context"
	"net/http"
	"strconv"

	"places-api/internal/geo"
	"places-api/internal/logger"
)

// EdgeGeo：CDN 回源时改写到请求头中的访问者地理信息
type EdgeGeo struct {
	Country string
	City    string
	Center  geo.LatLng
	HasGeo  bool
}

type edgeGeoKey struct{}

// 文档注释：解析 CDN 地理请求头
// 背景：EdgeOne 与 Cloudflare 均可把访问者经纬度写入回源请求头，比本地 IP 库更准；作为“附近”检索缺省中心的首选来源。
// 约束：经纬度须同时存在且合法，否则 HasGeo 为 false；国家/城市仅透传。
func ParseEdgeGeo(r *http.Request) EdgeGeo {
	h := r.Header
	var g EdgeGeo
	g.Country = first(h.Get("X-EO-Geo-CountryCodeAlpha2"), h.Get("cf-ipcountry"))
	g.City = first(h.Get("X-EO-Geo-City"), h.Get("cf-ipcity"))
	latS := first(h.Get("X-EO-Geo-Latitude"), h.Get("cf-iplatitude"))
	lngS := first(h.Get("X-EO-Geo-Longitude"), h.Get("cf-iplongitude"))
	if latS == "" || lngS == "" {
		return g
	}
	lat, e1 := strconv.ParseFloat(latS, 64)
	lng, e2 := strconv.ParseFloat(lngS, 64)
	if e1 != nil || e2 != nil {
		return g
	}
	c := geo.LatLng{Lat: lat, Lng: lng}
	if c.Validate() != nil {
		return g
	}
	g.Center = c
	g.HasGeo = true
	return g
}

// WithEdgeGeo：把解析结果注入请求上下文；解析失败不阻断主流程
func WithEdgeGeo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g := ParseEdgeGeo(r)
		if g.HasGeo {
			logger.L().Debug("edge_geo_inject", "country", g.Country, "city", g.City, "lat", g.Center.Lat, "lng", g.Center.Lng)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), edgeGeoKey{}, g)))
	})
}

// EdgeGeoFrom：读取上下文中的 CDN 地理信息
func EdgeGeoFrom(ctx context.Context) (EdgeGeo, bool) {
	g, ok := ctx.Value(edgeGeoKey{}).(EdgeGeo)
	return g, ok && g.HasGeo
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
