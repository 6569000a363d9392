package port

import "context"

// KVStore 持久化键值存储
type KVStore interface {
	// Get 键不存在时 ok=false, err=nil
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// SetOrClear 空列表删除该键，否则以 JSON 数组写入
	SetOrClear(ctx context.Context, key string, values []string) error
	Close() error
}

// 持久化键
const (
	KeyTickerList   = "tickers-list"
	KeyCoinMetadata = "all-coins-names"
)
