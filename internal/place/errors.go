package place

import "errors"

// 文档注释：错误分类
// 背景：对外统一以哨兵错误表达类别，调用方使用 errors.Is 判定；底层原因以 %w 包装保留。
// 约束：检索路径不做内部重试，所有类别原样上抛；接口层负责映射为 HTTP 状态码。
var (
	// ErrInvalidArgument：坐标非法、半径非正、必填字段缺失等
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStoreUnavailable：文档存储未能应答（连接失败、查询出错）
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCancelled：调用方取消或超时先于完成
	ErrCancelled = errors.New("cancelled")
	// ErrNotFound：按 id 读取/删除时文档不存在
	ErrNotFound = errors.New("not found")
)
