// Package repository 定义领域仓储接口
// 链接仓储负责已签名附件链接记录的持久化
package repository

import "context"

// LinkStore is the key/value contract every link record backend satisfies.
// Keys are identity-only cache keys (see models.SignedURL.CacheKey); values are
// codec-encoded records and are opaque to the store.
// LinkStore 定义链接记录存储接口，键只由附件标识决定，值对存储层不透明。
// 实现类：internal/infrastructure/persistence/redis/link_store.go
//
//	internal/infrastructure/persistence/postgres/link_store.go
type LinkStore interface {
	// Get 读取键对应的记录
	// 返回：
	//   - []byte: 记录内容
	//   - bool: 记录是否存在，不存在时返回 (nil, false, nil)
	//   - error: 存储不可用时返回 cache_io_error
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put 写入（覆盖）键对应的记录，最后写入者生效
	// 返回：
	//   - error: 存储不可用时返回 cache_io_error
	Put(ctx context.Context, key string, value []byte) error
}

// HealthChecker is implemented by stores that can report their own availability.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
