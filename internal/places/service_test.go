package places

import (
	"context"
	"errors"
	"testing"
	"time"

	"places-api/internal/geo"
	"places-api/internal/place"
	"places-api/internal/search"
	"places-api/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestAdd_SetsGeohashAndStatus(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	svc := NewService(store.NewMemoryStore(), WithClock(fixedClock(now)))
	ctx := context.Background()

	id, err := svc.Add(ctx, place.NewPlace{
		Name:      "  Café Quiet ",
		City:      "Berlin",
		PlaceType: place.TypeCafe,
		Coords:    geo.LatLng{Lat: 52.515, Lng: 13.40},
		Tags:      []string{"wifi", " ", "quiet"},
		Photo:     "https://example.org/p.jpg",
	})
	require.NoError(t, err)

	p, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Café Quiet", p.Name)
	assert.Equal(t, "u33dbbjd49", p.Geohash)
	assert.Equal(t, place.StatusApproved, p.Status)
	assert.Equal(t, []string{"wifi", "quiet"}, p.Tags)
	assert.True(t, now.Equal(p.CreatedAt))
}

func TestAdd_Validation(t *testing.T) {
	svc := NewService(store.NewMemoryStore())
	ok := geo.LatLng{Lat: 1, Lng: 1}
	cases := map[string]place.NewPlace{
		"empty name":   {Name: " ", Coords: ok},
		"bad type":     {Name: "x", PlaceType: "bar", Coords: ok},
		"bad lat":      {Name: "x", Coords: geo.LatLng{Lat: 95}},
		"bad photo":    {Name: "x", Coords: ok, Photo: "ftp://host/file"},
		"relative url": {Name: "x", Coords: ok, Photo: "/img.png"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Add(context.Background(), in)
			assert.ErrorIs(t, err, place.ErrInvalidArgument)
		})
	}
}

func TestLatest_DefaultAndOrder(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(store.NewMemoryStore(), WithLatestDefault(2), WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	ctx := context.Background()
	var ids []string
	for _, n := range []string{"a", "b", "c"} {
		id, err := svc.Add(ctx, place.NewPlace{Name: n, Coords: geo.LatLng{Lat: 10, Lng: 10}})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	got, err := svc.Latest(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[2], got[0].ID)
	assert.Equal(t, ids[1], got[1].ID)

	empty, err := NewService(store.NewMemoryStore()).Latest(ctx, 5)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestNearAndDelete(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), WithSearchTimeout(time.Second))
	ctx := context.Background()
	id, err := svc.Add(ctx, place.NewPlace{Name: "planted", Coords: geo.LatLng{Lat: 52.515, Lng: 13.40}})
	require.NoError(t, err)

	got, err := svc.Near(ctx, search.Query{Center: geo.LatLng{Lat: 52.520008, Lng: 13.404954}, RadiusMeters: 2000})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)

	require.NoError(t, svc.Delete(ctx, id))
	assert.ErrorIs(t, svc.Delete(ctx, id), place.ErrNotFound)
	_, err = svc.Get(ctx, id)
	assert.ErrorIs(t, err, place.ErrNotFound)
	_, err = svc.Get(ctx, "")
	assert.ErrorIs(t, err, place.ErrInvalidArgument)
}

// brokenStore 所有操作返回连接错误
type brokenStore struct{ store.Store }

var errDown = errors.New("dial tcp: connection refused")

func (brokenStore) Insert(context.Context, *place.Place) (string, error) { return "", errDown }
func (brokenStore) Get(context.Context, string) (*place.Place, error)    { return nil, errDown }
func (brokenStore) Latest(context.Context, int) ([]place.Place, error)   { return nil, errDown }
func (brokenStore) Ping(context.Context) error                           { return errDown }

func TestStoreErrorsAreClassified(t *testing.T) {
	svc := NewService(brokenStore{})
	ctx := context.Background()

	_, err := svc.Add(ctx, place.NewPlace{Name: "x", Coords: geo.LatLng{Lat: 1, Lng: 1}})
	assert.ErrorIs(t, err, place.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errDown)

	_, err = svc.Latest(ctx, 3)
	assert.ErrorIs(t, err, place.ErrStoreUnavailable)
	assert.ErrorIs(t, svc.Ping(ctx), place.ErrStoreUnavailable)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = svc.Get(cctx, "id")
	assert.ErrorIs(t, err, place.ErrCancelled)
}
