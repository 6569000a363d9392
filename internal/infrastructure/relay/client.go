package relay

import (
	"errors"
	"sync/atomic"

	"tickerwatch/internal/application/port"
	"tickerwatch/internal/domain/model"
)

// Client 单个消费者的 Relay 句柄，屏蔽多路复用细节
type Client struct {
	id     string
	relay  *Relay
	events chan port.StreamEvent
	closed atomic.Bool
}

func (c *Client) ID() string { return c.id }

func (c *Client) Subscribe(symbol string) error {
	return c.send(ActionSubAdd, symbol)
}

func (c *Client) Unsubscribe(symbol string) error {
	return c.send(ActionSubRemove, symbol)
}

func (c *Client) send(action Action, symbol string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	sym := model.NormalizeSymbol(symbol)
	if sym == "" {
		return errors.New("empty symbol")
	}
	return c.relay.sendCommand(c.id, action, sym)
}

// Events 价格与连接状态事件流；端口断开或 Relay 停止后关闭，不可重放
func (c *Client) Events() <-chan port.StreamEvent {
	return c.events
}

// Close 断开端口，可重复调用
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.relay.disconnect(c)
	return nil
}

var _ port.StreamHandle = (*Client)(nil)
