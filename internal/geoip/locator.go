// 包 geoip：客户端 IP 到经纬度的本地解析（MaxMind GeoLite2/GeoIP2 City 库）
package geoip

import (
	"errors"
	"net"
	"strings"
	"sync"

	"places-api/internal/geo"
	"places-api/internal/logger"

	"github.com/oschwald/geoip2-golang"
)

// Location：IP 定位结果；Center 用作“附近”检索的默认中心
type Location struct {
	Center    geo.LatLng
	City      string
	Country   string
	AccuracyK uint16
}

// 文档注释：City 库查询器
// 背景：近邻接口缺省经纬度时以客户端 IP 的大致位置作为中心；库文件只读打开，查询无锁。
// 约束：
// - 私有、回环与无法解析的地址直接判为未命中；
// - 经纬度同时为 0 视为库中无坐标（GeoLite2 对部分网段的缺省值）。
type Locator struct {
	mu   sync.RWMutex
	db   *geoip2.Reader
	lang string
}

// Open：打开 mmdb 文件；lang 为城市名语言，空值取 en
func Open(path, lang string) (*Locator, error) {
	if path == "" {
		return nil, errors.New("geoip: empty database path")
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	if lang == "" {
		lang = "en"
	}
	md := db.Metadata()
	logger.L().Info("geoip_open_ok", "path", path, "type", md.DatabaseType, "build_epoch", md.BuildEpoch)
	return &Locator{db: db, lang: lang}, nil
}

func (l *Locator) Lookup(ip string) (Location, bool) {
	var zero Location
	if l == nil {
		return zero, false
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return zero, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return zero, false
	}
	rec, err := l.db.City(parsed)
	if err != nil {
		logger.L().Debug("geoip_lookup_error", "ip", ip, "err", err)
		return zero, false
	}
	lat, lng := rec.Location.Latitude, rec.Location.Longitude
	if lat == 0 && lng == 0 {
		return zero, false
	}
	c := geo.LatLng{Lat: lat, Lng: lng}
	if c.Validate() != nil {
		return zero, false
	}
	return Location{
		Center:    c,
		City:      pickName(rec.City.Names, l.lang),
		Country:   rec.Country.IsoCode,
		AccuracyK: rec.Location.AccuracyRadius,
	}, true
}

func (l *Locator) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

func pickName(names map[string]string, lang string) string {
	if v := names[lang]; v != "" {
		return v
	}
	return names["en"]
}
