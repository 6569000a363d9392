package relay

import (
	"encoding/json"
	"fmt"
	"strings"

	"tickerwatch/internal/application/port"
)

type Action string

const (
	ActionSubAdd    Action = "SubAdd"
	ActionSubRemove Action = "SubRemove"
)

// 上游消息类型 (TYPE 字段)
const (
	typeCurrentAgg = "5"
	typeWelcome    = "20"
	typeError      = "500"
	typeHeartbeat  = "999"
)

const (
	aggChannel  = "5"
	aggExchange = "CCCAGG"
	quoteSymbol = "USD"
)

// SubRequest 上游订阅命令
type SubRequest struct {
	Action Action   `json:"action"`
	Subs   []string `json:"subs"`
}

// SubscriptionKey 5~CCCAGG~BTC~USD
func SubscriptionKey(symbol string) string {
	return strings.Join([]string{aggChannel, aggExchange, symbol, quoteSymbol}, "~")
}

func newSubRequest(action Action, symbol string) SubRequest {
	return SubRequest{Action: action, Subs: []string{SubscriptionKey(symbol)}}
}

type envelope struct {
	Type       string  `json:"TYPE"`
	FromSymbol string  `json:"FROMSYMBOL"`
	Flags      int     `json:"FLAGS"`
	Price      float64 `json:"PRICE"`
	Message    string  `json:"MESSAGE"`
	Parameter  string  `json:"PARAMETER"`
}

// decodeEvent 解析上游消息；ok=false 表示该类型无需转发
func decodeEvent(raw []byte) (ev port.StreamEvent, ok bool, err error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return port.StreamEvent{}, false, err
	}

	switch env.Type {
	case typeCurrentAgg:
		sym := strings.ToUpper(strings.TrimSpace(env.FromSymbol))
		if sym == "" {
			return port.StreamEvent{}, false, fmt.Errorf("price update without FROMSYMBOL")
		}
		return port.StreamEvent{
			Kind: port.EventTick,
			Tick: port.Tick{Symbol: sym, Flags: env.Flags, Price: env.Price},
		}, true, nil
	case typeWelcome:
		return port.StreamEvent{Kind: port.EventWelcome, State: port.ConnOpen}, true, nil
	case typeError:
		return port.StreamEvent{}, false, fmt.Errorf("upstream error: %s %s", env.Message, env.Parameter)
	default:
		// heartbeat / sub ack / unknown types
		return port.StreamEvent{}, false, nil
	}
}
