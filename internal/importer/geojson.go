// 包 importer：GeoJSON 地点批量导入，作为离线数据通道
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"places-api/internal/geo"
	"places-api/internal/logger"
	"places-api/internal/place"

	"github.com/tidwall/gjson"
)

// 单次下载上限
const maxFetchBytes = 32 << 20

// Adder：导入目标；*places.Service 实现该接口
type Adder interface {
	Add(ctx context.Context, in place.NewPlace) (string, error)
}

// Result：导入统计；Skipped 中的每一条在 Problems 里有对应说明
type Result struct {
	Added    int
	Skipped  int
	IDs      []string
	Problems []string
}

// 文档注释：导入 GeoJSON FeatureCollection
// 背景：社区整理的地点清单以 GeoJSON 交付；逐条经服务写路径落库，geohash 与校验规则与接口新增一致。
// 约束：
// - 仅接受 Point 要素，坐标顺序为 [lng, lat]；
// - 单条数据非法时跳过并记录原因；存储不可用或取消时立即中止并返回已完成的统计；
// - tags 支持字符串数组或逗号分隔字符串。
func ImportGeoJSON(ctx context.Context, data []byte, a Adder, createdBy string) (Result, error) {
	var res Result
	if !gjson.ValidBytes(data) {
		return res, errors.New("importer: invalid json")
	}
	doc := gjson.ParseBytes(data)
	if t := doc.Get("type").String(); t != "FeatureCollection" {
		return res, fmt.Errorf("importer: expected FeatureCollection, got %q", t)
	}
	features := doc.Get("features").Array()
	logger.L().Info("import_begin", "features", len(features))
	for i, f := range features {
		in, err := toNewPlace(f)
		if err != nil {
			res.Skipped++
			res.Problems = append(res.Problems, fmt.Sprintf("feature %d: %v", i, err))
			continue
		}
		in.CreatedBy = createdBy
		id, err := a.Add(ctx, in)
		if errors.Is(err, place.ErrInvalidArgument) {
			res.Skipped++
			res.Problems = append(res.Problems, fmt.Sprintf("feature %d (%s): %v", i, in.Name, err))
			continue
		}
		if err != nil {
			logger.L().Error("import_abort", "feature", i, "added", res.Added, "err", err)
			return res, fmt.Errorf("importer: feature %d: %w", i, err)
		}
		res.Added++
		res.IDs = append(res.IDs, id)
	}
	logger.L().Info("import_done", "added", res.Added, "skipped", res.Skipped)
	return res, nil
}

func toNewPlace(f gjson.Result) (place.NewPlace, error) {
	var in place.NewPlace
	if t := f.Get("geometry.type").String(); t != "Point" {
		return in, fmt.Errorf("unsupported geometry %q", t)
	}
	coords := f.Get("geometry.coordinates").Array()
	if len(coords) < 2 || coords[0].Type != gjson.Number || coords[1].Type != gjson.Number {
		return in, errors.New("point needs numeric [lng, lat]")
	}
	in.Coords = geo.LatLng{Lat: coords[1].Float(), Lng: coords[0].Float()}
	props := f.Get("properties")
	in.Name = props.Get("name").String()
	in.City = props.Get("city").String()
	in.PlaceType = strings.ToLower(props.Get("placeType").String())
	in.Address = props.Get("address").String()
	in.Schedule = props.Get("schedule").String()
	in.Description = props.Get("description").String()
	in.Photo = props.Get("photo").String()
	tags := props.Get("tags")
	switch {
	case tags.IsArray():
		for _, t := range tags.Array() {
			in.Tags = append(in.Tags, t.String())
		}
	case tags.Type == gjson.String:
		in.Tags = strings.Split(tags.String(), ",")
	}
	return in, nil
}

// 文档注释：拉取远端 GeoJSON
// 异常：非 2xx 状态或超过大小上限直接返回错误，不做重试。
func Fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	logger.L().Info("import_fetch", "src", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("importer: fetch %s: status %d", url, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxFetchBytes {
		return nil, fmt.Errorf("importer: %s exceeds %d bytes", url, maxFetchBytes)
	}
	return b, nil
}
