// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"places-api/internal/config"
	"places-api/internal/geo"
	"places-api/internal/geoip"
	"places-api/internal/logger"
	"places-api/internal/middleware"
	"places-api/internal/place"
	"places-api/internal/places"
	"places-api/internal/search"

	"github.com/redis/go-redis/v9"
)

// statusClientClosed：调用方已断开（沿用 nginx 的 499 约定）
const statusClientClosed = 499

const maxBodyBytes = 64 << 10

// 重复提交拦截窗口
const dedupWindow = 10 * time.Second

// Locator：客户端 IP 到中心点的解析；*geoip.Locator 实现该接口
type Locator interface {
	Lookup(ip string) (geoip.Location, bool)
}

// Deps：路由依赖；Redis 与 Locator 可为空
type Deps struct {
	Places  *places.Service
	Config  *config.Config
	Redis   *redis.Client
	Locator Locator
}

type server struct {
	svc     *places.Service
	cfg     *config.Config
	rc      *redis.Client
	loc     Locator
	cache   *nearCache
	proxies *proxyTrust
}

// 文档注释：构建并返回 API 路由
// 背景：独立 ServeMux 便于在主入口挂载到 API_BASE 前缀；路径均为前缀内的相对路径。
// 约束：/places/latest 与 /places/near 比 /places/{id} 更具体，优先匹配。
func BuildRoutes(d Deps) *http.ServeMux {
	s := &server{
		svc:     d.Places,
		cfg:     d.Config,
		rc:      d.Redis,
		loc:     d.Locator,
		proxies: newProxyTrust(d.Config.TrustedProxies),
	}
	if d.Redis != nil {
		s.cache = &nearCache{rc: d.Redis, prefix: d.Config.Redis.KeyPrefix, ttl: d.Config.Search.CacheTTL}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /places", s.handleAdd)
	mux.HandleFunc("GET /places/latest", s.handleLatest)
	mux.HandleFunc("GET /places/near", s.handleNear)
	mux.HandleFunc("GET /places/{id}", s.handleGet)
	mux.HandleFunc("DELETE /places/{id}", s.handleDelete)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var in place.NewPlace
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if ok := s.firstSubmission(r, in); !ok {
		writeJSONError(w, http.StatusConflict, "duplicate submission")
		return
	}
	id, err := s.svc.Add(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	s.cache.bump(r.Context())
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// firstSubmission：同一访问者对同名同格子的重复提交在窗口期内只放行一次
func (s *server) firstSubmission(r *http.Request, in place.NewPlace) bool {
	if s.rc == nil {
		return true
	}
	cell, err := geo.Encode(in.Coords, 7)
	if err != nil {
		return true
	}
	data := []byte(s.proxies.visitorIP(r) + "|" + strings.ToLower(strings.TrimSpace(in.Name)) + "|" + cell)
	bucket := time.Now().Unix() / int64(dedupWindow/time.Second)
	base := s.cfg.Redis.KeyPrefix + ":addbloom:"
	key := base + strconv.FormatInt(bucket, 10)
	prev := base + strconv.FormatInt(bucket-1, 10)
	first, err := bloomCheckAndSet(r.Context(), s.rc, key, prev, bloomPositions(data, 1<<16, 4), 2*dedupWindow)
	if err != nil {
		logger.L().Debug("add_dedup_error", "err", err)
	}
	return first
}

func (s *server) handleLatest(w http.ResponseWriter, r *http.Request) {
	n := s.cfg.Search.LatestDefault
	if v := r.URL.Query().Get("n"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil || k <= 0 {
			writeJSONError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = min(k, s.cfg.Search.MaxLimit)
	}
	out, err := s.svc.Latest(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// 文档注释：近邻检索
// 参数：lat/lng 缺省时依次取 CDN 地理头、本地 IP 库定位；radius 缺省取配置默认值，超过上限拒绝；limit 超过上限截断到上限。
// 约束：缓存只保存成功响应；命中时附带 x-cache: hit。
func (s *server) handleNear(w http.ResponseWriter, r *http.Request) {
	q, status, msg := s.parseNear(r)
	if status != 0 {
		writeJSONError(w, status, msg)
		return
	}
	ctx := r.Context()
	var key string
	if s.cache.enabled() {
		key = s.cache.key(ctx, q)
		if b, ok := s.cache.get(ctx, key); ok {
			w.Header().Set("x-cache", "hit")
			writeRaw(w, http.StatusOK, b)
			return
		}
	}
	out, err := s.svc.Near(ctx, q)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := json.Marshal(out)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "encode error")
		return
	}
	if key != "" {
		s.cache.set(ctx, key, b)
	}
	writeRaw(w, http.StatusOK, b)
}

func (s *server) parseNear(r *http.Request) (search.Query, int, string) {
	v := r.URL.Query()
	q := search.Query{RadiusMeters: s.cfg.Search.DefaultRadiusM, Limit: s.cfg.Search.DefaultLimit}
	latS, lngS := v.Get("lat"), v.Get("lng")
	switch {
	case latS != "" && lngS != "":
		lat, e1 := strconv.ParseFloat(latS, 64)
		lng, e2 := strconv.ParseFloat(lngS, 64)
		if e1 != nil || e2 != nil {
			return q, http.StatusBadRequest, "lat/lng must be numbers"
		}
		q.Center = geo.LatLng{Lat: lat, Lng: lng}
	case latS == "" && lngS == "":
		c, ok := s.resolveCenter(r)
		if !ok {
			return q, http.StatusBadRequest, "lat/lng required: client location unavailable"
		}
		q.Center = c
	default:
		return q, http.StatusBadRequest, "lat and lng must be given together"
	}
	if rs := v.Get("radius"); rs != "" {
		radius, err := strconv.ParseFloat(rs, 64)
		if err != nil || math.IsNaN(radius) {
			return q, http.StatusBadRequest, "radius must be a number"
		}
		q.RadiusMeters = radius
	}
	if q.RadiusMeters > s.cfg.Search.MaxRadiusM {
		return q, http.StatusBadRequest, "radius exceeds " + strconv.FormatFloat(s.cfg.Search.MaxRadiusM, 'f', -1, 64) + "m"
	}
	if ls := v.Get("limit"); ls != "" {
		n, err := strconv.Atoi(ls)
		if err != nil || n <= 0 {
			return q, http.StatusBadRequest, "limit must be a positive integer"
		}
		q.Limit = min(n, s.cfg.Search.MaxLimit)
	}
	return q, 0, ""
}

// resolveCenter：CDN 地理头优先，其次 ?ip= 或访问者 IP 的本地库定位
func (s *server) resolveCenter(r *http.Request) (geo.LatLng, bool) {
	if g, ok := middleware.EdgeGeoFrom(r.Context()); ok {
		return g.Center, true
	}
	if s.loc == nil {
		return geo.LatLng{}, false
	}
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		ip = s.proxies.visitorIP(r)
	}
	loc, ok := s.loc.Lookup(ip)
	if !ok {
		logger.L().Debug("near_center_unresolved", "ip", ip)
		return geo.LatLng{}, false
	}
	return loc.Center, true
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleDelete：需携带 x-admin-token；未配置管理口令时删除不可用
func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	t := r.Header.Get("x-admin-token")
	if s.cfg.AdminToken == "" || subtle.ConstantTimeCompare([]byte(t), []byte(s.cfg.AdminToken)) != 1 {
		writeJSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := s.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	s.cache.bump(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// 文档注释：错误分类到 HTTP 状态码
// 约束：取消区分超时（504）与调用方断开（499）；未分类错误统一 500 且不透出细节。
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, place.ErrInvalidArgument):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, place.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, place.ErrCancelled):
		if errors.Is(err, context.DeadlineExceeded) {
			writeJSONError(w, http.StatusGatewayTimeout, "search timed out")
			return
		}
		writeJSONError(w, statusClientClosed, "request cancelled")
	case errors.Is(err, place.ErrStoreUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		logger.L().Error("api_unclassified_error", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
