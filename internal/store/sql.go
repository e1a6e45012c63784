package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"places-api/internal/geo"
	"places-api/internal/logger"
	"places-api/internal/migrate"
	"places-api/internal/place"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// placeRow：places 表行映射
type placeRow struct {
	ID          string  `db:"id"`
	Name        string  `db:"name"`
	City        string  `db:"city"`
	PlaceType   string  `db:"place_type"`
	Address     string  `db:"address"`
	Schedule    string  `db:"schedule"`
	Description string  `db:"description"`
	Photo       string  `db:"photo"`
	Lat         float64 `db:"lat"`
	Lng         float64 `db:"lng"`
	Geohash     string  `db:"geohash"`
	Tags        string  `db:"tags"`
	CreatedBy   string  `db:"created_by"`
	CreatedAtMs int64   `db:"created_at_ms"`
	Status      string  `db:"status"`
}

const placeCols = `id, name, city, place_type, address, schedule, description, photo, lat, lng, geohash, tags, created_by, created_at_ms, status`

// 文档注释：SQL 存储（PostgreSQL / SQLite）
// 背景：同一套语句经 sqlx 按驱动重绑定占位符；PostgreSQL 需显式 COLLATE "C" 以获得字节序比较，
// SQLite 默认 BINARY 排序即为字节序。
// 约束：构造时确保表结构存在；连接池参数由调用方在 *sql.DB 上设置。
type SQLStore struct {
	db      *sqlx.DB
	driver  string
	collate string
}

func NewSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("store: db is nil")
	}
	if err := migrate.EnsureSchema(db, driver); err != nil {
		return nil, err
	}
	s := &SQLStore{db: sqlx.NewDb(db, driver), driver: driver}
	if driver == migrate.DriverPostgres {
		s.collate = ` COLLATE "C"`
	}
	return s, nil
}

func (s *SQLStore) Insert(ctx context.Context, p *place.Place) (string, error) {
	row, err := toRow(p)
	if err != nil {
		return "", err
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	q := `INSERT INTO places (` + placeCols + `) VALUES (:id, :name, :city, :place_type, :address, :schedule, :description, :photo, :lat, :lng, :geohash, :tags, :created_by, :created_at_ms, :status)`
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return "", fmt.Errorf("store: insert place: %w", err)
	}
	logger.L().Debug("sqlstore_insert", "driver", s.driver, "id", row.ID, "geohash", row.Geohash)
	return row.ID, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*place.Place, error) {
	var row placeRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+placeCols+` FROM places WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, place.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get place %s: %w", id, err)
	}
	p, err := row.toPlace()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM places WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("store: delete place %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete place %s: %w", id, err)
	}
	if n == 0 {
		return place.ErrNotFound
	}
	return nil
}

func (s *SQLStore) Latest(ctx context.Context, n int) ([]place.Place, error) {
	if n <= 0 {
		return nil, nil
	}
	var rows []placeRow
	q := s.db.Rebind(`SELECT ` + placeCols + ` FROM places ORDER BY created_at_ms DESC, id LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, q, n); err != nil {
		return nil, fmt.Errorf("store: latest places: %w", err)
	}
	return rowsToPlaces(rows)
}

// 文档注释：geohash 闭区间范围查询
// 约束：等价于 WHERE geohash BETWEEN start AND end ORDER BY geohash；比较与排序均为字节序。
func (s *SQLStore) RangeByGeohash(ctx context.Context, start, end string) ([]place.Place, error) {
	var rows []placeRow
	q := s.db.Rebind(`SELECT ` + placeCols + ` FROM places WHERE geohash` + s.collate + ` >= ? AND geohash` + s.collate + ` <= ? ORDER BY geohash` + s.collate + `, id`)
	if err := s.db.SelectContext(ctx, &rows, q, start, end); err != nil {
		return nil, fmt.Errorf("store: range %q..%q: %w", start, end, err)
	}
	return rowsToPlaces(rows)
}

func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLStore) Close() error { return s.db.Close() }

func toRow(p *place.Place) (placeRow, error) {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return placeRow{}, fmt.Errorf("store: encode tags: %w", err)
	}
	return placeRow{
		ID:          p.ID,
		Name:        p.Name,
		City:        p.City,
		PlaceType:   p.PlaceType,
		Address:     p.Address,
		Schedule:    p.Schedule,
		Description: p.Description,
		Photo:       p.Photo,
		Lat:         p.Coords.Lat,
		Lng:         p.Coords.Lng,
		Geohash:     p.Geohash,
		Tags:        string(b),
		CreatedBy:   p.CreatedBy,
		CreatedAtMs: p.CreatedAt.UnixMilli(),
		Status:      p.Status,
	}, nil
}

func (r placeRow) toPlace() (place.Place, error) {
	var tags []string
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
			return place.Place{}, fmt.Errorf("store: decode tags of %s: %w", r.ID, err)
		}
	}
	if len(tags) == 0 {
		tags = nil
	}
	return place.Place{
		ID:          r.ID,
		Name:        r.Name,
		City:        r.City,
		PlaceType:   r.PlaceType,
		Address:     r.Address,
		Schedule:    r.Schedule,
		Description: r.Description,
		Photo:       r.Photo,
		Coords:      geo.LatLng{Lat: r.Lat, Lng: r.Lng},
		Geohash:     r.Geohash,
		Tags:        tags,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   time.UnixMilli(r.CreatedAtMs).UTC(),
		Status:      r.Status,
	}, nil
}

func rowsToPlaces(rows []placeRow) ([]place.Place, error) {
	out := make([]place.Place, 0, len(rows))
	for _, r := range rows {
		p, err := r.toPlace()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

var _ Store = (*SQLStore)(nil)
