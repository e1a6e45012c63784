// 包 places：地点服务，组合存储与近邻检索，负责写路径校验与 geohash 落库
package places

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"places-api/internal/geo"
	"places-api/internal/logger"
	"places-api/internal/metrics"
	"places-api/internal/place"
	"places-api/internal/search"
	"places-api/internal/store"
)

// DefaultLatest：最新列表的默认条数
const DefaultLatest = 50

type Service struct {
	store         store.Store
	searcher      *search.Searcher
	latestDefault int
	now           func() time.Time
}

type Option func(*Service)

func WithSearchTimeout(d time.Duration) Option {
	return func(s *Service) { s.searcher = search.NewSearcher(s.store, search.WithTimeout(d)) }
}

func WithLatestDefault(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.latestDefault = n
		}
	}
}

// WithClock：替换时间源，测试用
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, latestDefault: DefaultLatest, now: time.Now}
	s.searcher = search.NewSearcher(st)
	for _, o := range opts {
		o(s)
	}
	return s
}

// 文档注释：新增地点
// 背景：geohash 在此计算一次并随文档落库，此后只读。
// 约束：
// - name 必填（去除首尾空白后非空）；坐标需合法；placeType 限 park/cafe/空；
// - photo 非空时必须是 http(s) 绝对地址；
// - createdAt 取服务端时间，status 固定 approved。
func (s *Service) Add(ctx context.Context, in place.NewPlace) (string, error) {
	p, err := s.build(in)
	if err != nil {
		return "", err
	}
	id, err := s.store.Insert(ctx, p)
	if err != nil {
		return "", storeErr(ctx, "insert", err)
	}
	metrics.PlacesAddedTotal.Inc()
	logger.L().Info("place_added", "id", id, "geohash", p.Geohash, "type", p.PlaceType)
	return id, nil
}

func (s *Service) build(in place.NewPlace) (*place.Place, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", place.ErrInvalidArgument)
	}
	if !place.ValidPlaceType(in.PlaceType) {
		return nil, fmt.Errorf("%w: unknown placeType %q", place.ErrInvalidArgument, in.PlaceType)
	}
	if in.Photo != "" {
		u, err := url.Parse(in.Photo)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: photo must be an http(s) url", place.ErrInvalidArgument)
		}
	}
	hash, err := geo.Encode(in.Coords, geo.DefaultPrecision)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", place.ErrInvalidArgument, err)
	}
	var tags []string
	for _, t := range in.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return &place.Place{
		Name:        name,
		City:        strings.TrimSpace(in.City),
		PlaceType:   in.PlaceType,
		Address:     strings.TrimSpace(in.Address),
		Schedule:    in.Schedule,
		Description: in.Description,
		Photo:       in.Photo,
		Coords:      in.Coords,
		Geohash:     hash,
		Tags:        tags,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
		Status:      place.StatusApproved,
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*place.Place, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty id", place.ErrInvalidArgument)
	}
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeErr(ctx, "get", err)
	}
	return p, nil
}

// Latest：按创建时间倒序；n <= 0 时取默认条数
func (s *Service) Latest(ctx context.Context, n int) ([]place.Place, error) {
	if n <= 0 {
		n = s.latestDefault
	}
	out, err := s.store.Latest(ctx, n)
	if err != nil {
		return nil, storeErr(ctx, "latest", err)
	}
	if out == nil {
		out = []place.Place{}
	}
	return out, nil
}

func (s *Service) Near(ctx context.Context, q search.Query) ([]place.Place, error) {
	return s.searcher.Near(ctx, q)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty id", place.ErrInvalidArgument)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return storeErr(ctx, "delete", err)
	}
	metrics.PlacesDeletedTotal.Inc()
	logger.L().Info("place_deleted", "id", id)
	return nil
}

// Ping：存储健康检查
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return storeErr(ctx, "ping", err)
	}
	return nil
}

// storeErr：把存储层错误归入错误分类；NotFound 原样返回
func storeErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, place.ErrNotFound) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %w", place.ErrCancelled, op, ctxErr)
	}
	metrics.StoreErrorsTotal.WithLabelValues(op).Inc()
	logger.L().Warn("store_op_failed", "op", op, "err", err)
	return fmt.Errorf("%w: %s: %w", place.ErrStoreUnavailable, op, err)
}
