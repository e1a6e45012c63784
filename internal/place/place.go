// 包 place：地点文档模型与错误分类，供存储、检索与接口层共享
package place

import (
	"time"

	"places-api/internal/geo"
)

// 地点类型
const (
	TypePark = "park"
	TypeCafe = "cafe"
)

// 审核状态；新增路径默认 approved
const (
	StatusApproved = "approved"
	StatusPending  = "pending"
)

// 文档注释：地点文档（LocationRecord）
// 背景：对应社区地图中的安静地点；Geohash 在创建时由写路径计算并落库，检索只读不改。
// 约束：Geohash 恒等于 geo.Encode(Coords, geo.DefaultPrecision)；其余字段对近邻算法不透明。
type Place struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	City        string     `json:"city"`
	PlaceType   string     `json:"placeType,omitempty"`
	Address     string     `json:"address,omitempty"`
	Schedule    string     `json:"schedule,omitempty"`
	Description string     `json:"description,omitempty"`
	Photo       string     `json:"photo,omitempty"`
	Coords      geo.LatLng `json:"coords"`
	Geohash     string     `json:"geohash"`
	Tags        []string   `json:"tags,omitempty"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	Status      string     `json:"status,omitempty"`
}

// 文档注释：新增地点的输入（不含 id/geohash/createdAt/status）
type NewPlace struct {
	Name        string     `json:"name"`
	City        string     `json:"city"`
	PlaceType   string     `json:"placeType,omitempty"`
	Address     string     `json:"address,omitempty"`
	Schedule    string     `json:"schedule,omitempty"`
	Description string     `json:"description,omitempty"`
	Photo       string     `json:"photo,omitempty"`
	Coords      geo.LatLng `json:"coords"`
	Tags        []string   `json:"tags,omitempty"`
	CreatedBy   string     `json:"createdBy"`
}

// ValidPlaceType：空值视为未分类
func ValidPlaceType(t string) bool {
	return t == "" || t == TypePark || t == TypeCafe
}
