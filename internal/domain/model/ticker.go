package model

import "strings"

// Rate 美元价格；RateUnavailable 表示尚未取得价格
type Rate float64

const RateUnavailable Rate = -1

// Available 价格是否有效（正数）
func (r Rate) Available() bool { return r > 0 }

func (r Rate) Float() float64 { return float64(r) }

// CoinInfo 币种元数据，JSON 字段名与持久化格式 all-coins-names 一致
type CoinInfo struct {
	Symbol   string `json:"Symbol" yaml:"symbol"`
	FullName string `json:"FullName" yaml:"full_name"`
	ImageUrl string `json:"ImageUrl" yaml:"image_url"`
}

// CoinMetadata symbol -> CoinInfo，加载后只读
type CoinMetadata map[string]CoinInfo

// Lookup 未命中时返回空 CoinInfo，不报错
func (m CoinMetadata) Lookup(symbol string) CoinInfo {
	if m == nil {
		return CoinInfo{}
	}
	return m[NormalizeSymbol(symbol)]
}

// Ticker 一个被跟踪的币种
type Ticker struct {
	Name     string
	FullName string
	Rate     Rate
	Prices   PriceBuffer
	ImgURL   string
}

// NewTicker 构造 ticker，价格历史以当前 rate 作为种子
func NewTicker(name string, rate Rate, info CoinInfo) Ticker {
	t := Ticker{
		Name:     NormalizeSymbol(name),
		FullName: info.FullName,
		Rate:     rate,
		ImgURL:   info.ImageUrl,
	}
	t.Prices.Reset(rate)
	return t
}

// Clone 深拷贝（Prices 不共享底层数组）
func (t Ticker) Clone() Ticker {
	out := t
	out.Prices = t.Prices.Clone()
	return out
}

func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
