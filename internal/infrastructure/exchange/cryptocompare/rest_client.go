package cryptocompare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tickerwatch/internal/application/port"
	"tickerwatch/internal/domain/model"
)

const DefaultRESTURL = "https://min-api.cryptocompare.com/data"

// RESTClient CryptoCompare REST 价格客户端
type RESTClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRESTClient 创建 REST 客户端，baseURL 为空时使用默认地址
func NewRESTClient(baseURL, apiKey string) *RESTClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultRESTURL
	}
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// errorResp CryptoCompare 在 HTTP 200 下也可能返回 {"Response":"Error"}
type errorResp struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
}

type coinListResp struct {
	Response string                    `json:"Response"`
	Message  string                    `json:"Message"`
	Data     map[string]model.CoinInfo `json:"Data"`
}

// FetchPrices GET /pricemulti?fsyms=BTC,ETH&tsyms=USD
func (c *RESTClient) FetchPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	fsyms := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = model.NormalizeSymbol(s); s != "" {
			fsyms = append(fsyms, s)
		}
	}
	if len(fsyms) == 0 {
		return map[string]float64{}, nil
	}

	params := url.Values{}
	params.Set("fsyms", strings.Join(fsyms, ","))
	params.Set("tsyms", "USD")

	body, err := c.get(ctx, "/pricemulti", params)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode pricemulti: %w", err)
	}
	if _, ok := raw["Response"]; ok {
		var e errorResp
		_ = json.Unmarshal(body, &e)
		if e.Response == "Error" {
			return nil, fmt.Errorf("pricemulti: %s", e.Message)
		}
	}

	out := make(map[string]float64, len(raw))
	for sym, v := range raw {
		var quote struct {
			USD *float64 `json:"USD"`
		}
		if err := json.Unmarshal(v, &quote); err != nil || quote.USD == nil {
			continue
		}
		out[strings.ToUpper(sym)] = *quote.USD
	}
	return out, nil
}

// FetchCoinMetadata GET /all/coinlist?summary=true
func (c *RESTClient) FetchCoinMetadata(ctx context.Context) (model.CoinMetadata, error) {
	params := url.Values{}
	params.Set("summary", "true")

	body, err := c.get(ctx, "/all/coinlist", params)
	if err != nil {
		return nil, err
	}

	var resp coinListResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode coinlist: %w", err)
	}
	if resp.Response == "Error" {
		return nil, fmt.Errorf("coinlist: %s", resp.Message)
	}

	out := make(model.CoinMetadata, len(resp.Data))
	for key, info := range resp.Data {
		sym := model.NormalizeSymbol(info.Symbol)
		if sym == "" {
			sym = model.NormalizeSymbol(key)
		}
		info.Symbol = sym
		out[sym] = info
	}
	return out, nil
}

func (c *RESTClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cryptocompare api error: %d %s", resp.StatusCode, string(body))
	}
	return body, nil
}

var _ port.PriceGateway = (*RESTClient)(nil)
