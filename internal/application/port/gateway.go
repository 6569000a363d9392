package port

import (
	"context"

	"tickerwatch/internal/domain/model"
)

// PriceGateway REST 价格接口
type PriceGateway interface {
	// FetchPrices symbol -> USD；响应中缺失的 symbol 不出现在结果里
	FetchPrices(ctx context.Context, symbols []string) (map[string]float64, error)
	FetchCoinMetadata(ctx context.Context) (model.CoinMetadata, error)
}
