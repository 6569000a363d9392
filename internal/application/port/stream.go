package port

// ConnState 上游流连接状态：Connecting -> Open -> Closed
type ConnState int

const (
	ConnConnecting ConnState = iota
	ConnOpen
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnOpen:
		return "open"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// 价格变动标志（上游 FLAGS 字段）
const (
	FlagUp   = 1
	FlagDown = 2
)

type Tick struct {
	Symbol string  // "BTC"
	Flags  int     // 1 上涨, 2 下跌, 其他为心跳/未变化
	Price  float64 // USD
}

// Directional 是否为有方向的价格变化（非心跳）
func (t Tick) Directional() bool {
	return t.Flags == FlagUp || t.Flags == FlagDown
}

type EventKind int

const (
	EventTick    EventKind = iota // 价格更新
	EventState                    // 连接状态变化
	EventWelcome                  // 上游连接建立消息 (TYPE 20)
)

type StreamEvent struct {
	Kind  EventKind
	Tick  Tick
	State ConnState
}

// Upstream 上游流连接的发送端
type Upstream interface {
	Send(v any) error
}

// StreamListener 上游连接事件回调，由 Relay 实现
type StreamListener interface {
	OnUpstreamOpen()
	OnUpstreamMessage(raw []byte)
	OnUpstreamClose(err error)
}

// StreamHandle 消费者侧的订阅句柄
type StreamHandle interface {
	Subscribe(symbol string) error
	Unsubscribe(symbol string) error
	Events() <-chan StreamEvent
}
