package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"places-api/internal/config"
	"places-api/internal/geo"
	"places-api/internal/geoip"
	"places-api/internal/middleware"
	"places-api/internal/place"
	"places-api/internal/places"
	"places-api/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocator map[string]geo.LatLng

func (f fakeLocator) Lookup(ip string) (geoip.Location, bool) {
	c, ok := f[ip]
	return geoip.Location{Center: c}, ok
}

type fixture struct {
	h   http.Handler
	mr  *miniredis.Miniredis
	cfg *config.Config
}

func newFixture(t *testing.T, withRedis bool) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.AdminToken = "s3cret"
	f := &fixture{cfg: cfg}
	deps := Deps{
		Places:  places.NewService(store.NewMemoryStore()),
		Config:  cfg,
		Locator: fakeLocator{"203.0.113.7": {Lat: 52.520008, Lng: 13.404954}},
	}
	if withRedis {
		f.mr = miniredis.RunT(t)
		rc := redis.NewClient(&redis.Options{Addr: f.mr.Addr()})
		t.Cleanup(func() { _ = rc.Close() })
		deps.Redis = rc
	}
	f.h = middleware.Wrap(BuildRoutes(deps), cfg.RateLimit)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) add(t *testing.T, name string, lat, lng float64) string {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q,"city":"Berlin","placeType":"park","coords":{"lat":%v,"lng":%v}}`, name, lat, lng)
	rec := f.do(t, http.MethodPost, "/places", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out["id"])
	return out["id"]
}

func decodePlaces(t *testing.T, rec *httptest.ResponseRecorder) []place.Place {
	t.Helper()
	var out []place.Place
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAddGetLatest(t *testing.T) {
	f := newFixture(t, false)
	id := f.add(t, "Tiergarten", 52.5145, 13.3501)

	rec := f.do(t, http.MethodGet, "/places/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p place.Place
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Tiergarten", p.Name)
	assert.Equal(t, place.StatusApproved, p.Status)
	assert.Len(t, p.Geohash, geo.DefaultPrecision)

	rec = f.do(t, http.MethodGet, "/places/latest?n=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodePlaces(t, rec), 1)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/places/latest?n=x", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/places/missing", "", nil).Code)
}

func TestAddRejectsBadInput(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/places", "{", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/places", `{"name":"","coords":{"lat":1,"lng":1}}`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/places", `{"name":"x","coords":{"lat":91,"lng":1}}`, nil).Code)
}

func TestNear(t *testing.T) {
	f := newFixture(t, false)
	planted := f.add(t, "planted", 52.515, 13.40)
	f.add(t, "paris", 48.8566, 2.3522)

	rec := f.do(t, http.MethodGet, "/places/near?lat=52.520008&lng=13.404954&radius=2000", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodePlaces(t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, planted, got[0].ID)

	rec = f.do(t, http.MethodGet, "/places/near?lat=0&lng=0&radius=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestNearValidation(t *testing.T) {
	f := newFixture(t, false)
	cases := map[string]string{
		"radius too big": "/places/near?lat=1&lng=1&radius=999999",
		"negative":       "/places/near?lat=1&lng=1&radius=-1",
		"only lat":       "/places/near?lat=1",
		"bad lat":        "/places/near?lat=x&lng=1",
		"lat range":      "/places/near?lat=100&lng=1",
		"bad limit":      "/places/near?lat=1&lng=1&limit=0",
		"unknown ip":     "/places/near?ip=198.51.100.1",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, target, "", nil).Code)
		})
	}
}

func TestNearResolvesCenter(t *testing.T) {
	f := newFixture(t, false)
	id := f.add(t, "planted", 52.515, 13.40)

	// 访问者 IP 经本地库定位
	rec := f.do(t, http.MethodGet, "/places/near", "", map[string]string{"x-forwarded-for": "203.0.113.7, 10.0.0.1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decodePlaces(t, rec)[0].ID)

	// CDN 地理头优先
	rec = f.do(t, http.MethodGet, "/places/near?radius=1000", "", map[string]string{
		"cf-iplatitude":  "52.5151",
		"cf-iplongitude": "13.4001",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodePlaces(t, rec), 1)
}

func TestDeleteRequiresToken(t *testing.T) {
	f := newFixture(t, false)
	id := f.add(t, "gone soon", 10, 10)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/places/"+id, "", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/places/"+id, "", map[string]string{"x-admin-token": "nope"}).Code)

	tok := map[string]string{"x-admin-token": "s3cret"}
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/places/"+id, "", tok).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/places/"+id, "", tok).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/places/"+id, "", nil).Code)
}

func TestNearCacheAndInvalidation(t *testing.T) {
	f := newFixture(t, true)
	f.add(t, "first", 52.515, 13.40)
	target := "/places/near?lat=52.520008&lng=13.404954&radius=2000"

	rec := f.do(t, http.MethodGet, target, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("x-cache"))
	assert.Len(t, decodePlaces(t, rec), 1)

	rec = f.do(t, http.MethodGet, target, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Header().Get("x-cache"))

	f.add(t, "second", 52.5151, 13.4001)
	rec = f.do(t, http.MethodGet, target, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("x-cache"))
	assert.Len(t, decodePlaces(t, rec), 2)
}

func TestDuplicateSubmission(t *testing.T) {
	f := newFixture(t, true)
	body := `{"name":"Twice","coords":{"lat":52.5,"lng":13.4}}`
	hdr := map[string]string{"x-forwarded-for": "203.0.113.9"}
	assert.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/places", body, hdr).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/places", body, hdr).Code)

	other := map[string]string{"x-forwarded-for": "203.0.113.10"}
	assert.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/places", body, other).Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", place.ErrInvalidArgument), http.StatusBadRequest},
		{place.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: %w", place.ErrCancelled, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("%w: %w", place.ErrCancelled, context.Canceled), statusClientClosed},
		{fmt.Errorf("%w: boom", place.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("mystery"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, c.err)
		assert.Equal(t, c.want, rec.Code, c.err.Error())
	}
}

func TestVisitorIPTrust(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.20:5555"
	r.Header.Set("x-forwarded-for", "203.0.113.7")

	assert.Equal(t, "203.0.113.7", newProxyTrust(nil).visitorIP(r))
	assert.Equal(t, "198.51.100.20", newProxyTrust([]string{"10.0.0.0/8"}).visitorIP(r))
	assert.Equal(t, "203.0.113.7", newProxyTrust([]string{"198.51.100.20"}).visitorIP(r))

	fw := httptest.NewRequest(http.MethodGet, "/", nil)
	fw.Header.Set("forwarded", `for="[2001:db8::1]";proto=https`)
	assert.Equal(t, "2001:db8::1", newProxyTrust(nil).visitorIP(fw))
}

func TestBloomCheckAndSet_PreviousWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()
	ctx := context.Background()
	pos := bloomPositions([]byte("visitor|name|u33dbbj"), 1<<16, 4)

	first, err := bloomCheckAndSet(ctx, rc, "b:1", "b:0", pos, time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	// 下一窗口仍能看到上一窗口写入的位
	again, err := bloomCheckAndSet(ctx, rc, "b:2", "b:1", pos, time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	fresh, err := bloomCheckAndSet(ctx, rc, "b:3", "b:2", pos, time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	ok, err := bloomCheckAndSet(ctx, nil, "k", "", pos, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
