// 包 store：地点文档存储的边界契约与多后端实现（PostgreSQL / SQLite / Redis / 内存）
package store

import (
	"context"

	"places-api/internal/place"
)

// 文档注释：按 geohash 字典序范围读取
// 背景：近邻检索唯一依赖的读接口；单独抽出便于检索层注入测试替身。
// 约束：start/end 均为闭区间，按字节序比较；结果按 geohash 升序返回完整文档；不截断。
type RangeReader interface {
	RangeByGeohash(ctx context.Context, start, end string) ([]place.Place, error)
}

// 文档注释：文档存储契约
// 背景：对应 places 文档集合；写路径负责落库 geohash，读路径只读。
// 约束：
// - Insert 在 p.ID 为空时生成 id 并返回；已有 id 时按其写入；
// - Get/Delete 在文档不存在时返回 place.ErrNotFound；
// - Latest 按 CreatedAt 倒序返回最多 n 条；
// - 实现需并发安全。
type Store interface {
	RangeReader
	Insert(ctx context.Context, p *place.Place) (string, error)
	Get(ctx context.Context, id string) (*place.Place, error)
	Delete(ctx context.Context, id string) error
	Latest(ctx context.Context, n int) ([]place.Place, error)
	Ping(ctx context.Context) error
	Close() error
}
