package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"tickerwatch/internal/application/port"
)

var (
	ErrRelayClosed  = errors.New("relay closed")
	ErrClientClosed = errors.New("relay client closed")
)

const (
	defaultPortBuffer    = 256
	defaultInboundBuffer = 1024
)

type connectReq struct {
	id    string
	reply chan *Client
}

type command struct {
	from   string
	action Action
	symbol string
	reply  chan error
}

type upstreamKind int

const (
	upstreamOpen upstreamKind = iota
	upstreamMessage
	upstreamClose
)

type upstreamEvent struct {
	kind upstreamKind
	raw  []byte
	err  error
}

// Stats Relay 运行计数
type Stats struct {
	Ports     int
	Delivered uint64
	Dropped   uint64
	Malformed uint64
}

// Relay 独占唯一的上游流连接，把上游消息广播给所有已连接的端口，
// 并把各端口的订阅命令转发给上游。
// 所有状态只在 Run 的事件循环里读写。
type Relay struct {
	upstream   port.Upstream
	portBuffer int

	connectCh    chan connectReq
	disconnectCh chan *Client
	commandCh    chan command
	inboundCh    chan upstreamEvent
	done         chan struct{}

	// 仅事件循环访问
	ports    map[string]*Client
	idToPort map[string]*Client
	subs     map[string]struct{}
	state    port.ConnState

	stateVal  atomic.Int32
	nPorts    atomic.Int32
	nextID    atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	malformed atomic.Uint64
}

// New 创建 Relay；portBuffer <= 0 时使用默认值
func New(upstream port.Upstream, portBuffer int) *Relay {
	if portBuffer <= 0 {
		portBuffer = defaultPortBuffer
	}
	r := &Relay{
		upstream:     upstream,
		portBuffer:   portBuffer,
		connectCh:    make(chan connectReq),
		disconnectCh: make(chan *Client),
		commandCh:    make(chan command),
		inboundCh:    make(chan upstreamEvent, defaultInboundBuffer),
		done:         make(chan struct{}),
		ports:        make(map[string]*Client),
		idToPort:     make(map[string]*Client),
		subs:         make(map[string]struct{}),
		state:        port.ConnConnecting,
	}
	r.stateVal.Store(int32(port.ConnConnecting))
	return r
}

// Run 事件循环，阻塞直到 ctx 结束；结束时关闭所有端口
func (r *Relay) Run(ctx context.Context) error {
	defer func() {
		for id, c := range r.ports {
			close(c.events)
			delete(r.ports, id)
		}
		r.nPorts.Store(0)
		close(r.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case req := <-r.connectCh:
			req.reply <- r.handleConnect(req.id)

		case c := <-r.disconnectCh:
			r.handleDisconnect(c)

		case cmd := <-r.commandCh:
			cmd.reply <- r.handleCommand(cmd)

		case ev := <-r.inboundCh:
			switch ev.kind {
			case upstreamOpen:
				r.handleOpen()
			case upstreamMessage:
				r.handleMessage(ev.raw)
			case upstreamClose:
				r.handleClose(ev.err)
			}
		}
	}
}

// Connect 注册一个本地消费者端口；id 为空时自动生成
func (r *Relay) Connect(ctx context.Context, id string) (*Client, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = fmt.Sprintf("port-%d", r.nextID.Add(1))
	}
	req := connectReq{id: id, reply: make(chan *Client, 1)}
	select {
	case r.connectCh <- req:
	case <-r.done:
		return nil, ErrRelayClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case c := <-req.reply:
		return c, nil
	case <-r.done:
		return nil, ErrRelayClosed
	}
}

// State 当前上游连接状态
func (r *Relay) State() port.ConnState {
	return port.ConnState(r.stateVal.Load())
}

func (r *Relay) Stats() Stats {
	return Stats{
		Ports:     int(r.nPorts.Load()),
		Delivered: r.delivered.Load(),
		Dropped:   r.dropped.Load(),
		Malformed: r.malformed.Load(),
	}
}

// Done 事件循环退出后关闭
func (r *Relay) Done() <-chan struct{} { return r.done }

// OnUpstreamOpen 由上游连接回调
func (r *Relay) OnUpstreamOpen() {
	r.pushInbound(upstreamEvent{kind: upstreamOpen})
}

func (r *Relay) OnUpstreamMessage(raw []byte) {
	r.pushInbound(upstreamEvent{kind: upstreamMessage, raw: raw})
}

func (r *Relay) OnUpstreamClose(err error) {
	r.pushInbound(upstreamEvent{kind: upstreamClose, err: err})
}

func (r *Relay) pushInbound(ev upstreamEvent) {
	select {
	case r.inboundCh <- ev:
	case <-r.done:
	}
}

func (r *Relay) sendCommand(from string, action Action, symbol string) error {
	cmd := command{from: from, action: action, symbol: symbol, reply: make(chan error, 1)}
	select {
	case r.commandCh <- cmd:
	case <-r.done:
		return ErrRelayClosed
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-r.done:
		return ErrRelayClosed
	}
}

func (r *Relay) disconnect(c *Client) {
	select {
	case r.disconnectCh <- c:
	case <-r.done:
	}
}

// ---- event loop handlers ----

func (r *Relay) handleConnect(id string) *Client {
	if old, ok := r.ports[id]; ok {
		// 同一个 id 重复连接：旧端口作废
		log.Warn().Str("port", id).Msg("port id reused, closing previous port")
		r.removePort(old)
	}
	c := &Client{id: id, relay: r, events: make(chan port.StreamEvent, r.portBuffer)}
	r.ports[id] = c
	r.nPorts.Store(int32(len(r.ports)))

	// 迟到的消费者立即拿到当前连接状态
	r.deliver(c, port.StreamEvent{Kind: port.EventState, State: r.state})
	log.Debug().Str("port", id).Int("ports", len(r.ports)).Msg("port connected")
	return c
}

func (r *Relay) handleDisconnect(c *Client) {
	if cur, ok := r.ports[c.id]; !ok || cur != c {
		return
	}
	r.removePort(c)
	log.Debug().Str("port", c.id).Int("ports", len(r.ports)).Msg("port disconnected")
}

func (r *Relay) removePort(c *Client) {
	delete(r.ports, c.id)
	if r.idToPort[c.id] == c {
		delete(r.idToPort, c.id)
	}
	r.nPorts.Store(int32(len(r.ports)))
	close(c.events)
}

func (r *Relay) handleCommand(cmd command) error {
	if c, ok := r.ports[cmd.from]; ok {
		r.idToPort[cmd.from] = c
	}

	switch cmd.action {
	case ActionSubAdd:
		r.subs[cmd.symbol] = struct{}{}
	case ActionSubRemove:
		delete(r.subs, cmd.symbol)
	default:
		return fmt.Errorf("unknown relay action %q", cmd.action)
	}

	if r.state != port.ConnOpen {
		// 连接建立后统一补发
		log.Debug().Str("symbol", cmd.symbol).Str("action", string(cmd.action)).Msg("upstream not open, command queued")
		return nil
	}
	if err := r.upstream.Send(newSubRequest(cmd.action, cmd.symbol)); err != nil {
		log.Error().Err(err).Str("symbol", cmd.symbol).Str("action", string(cmd.action)).Msg("upstream send failed")
		return fmt.Errorf("send %s %s: %w", cmd.action, cmd.symbol, err)
	}
	return nil
}

func (r *Relay) handleOpen() {
	r.setState(port.ConnOpen)
	for sym := range r.subs {
		if err := r.upstream.Send(newSubRequest(ActionSubAdd, sym)); err != nil {
			log.Error().Err(err).Str("symbol", sym).Msg("resubscribe failed")
		}
	}
	r.broadcast(port.StreamEvent{Kind: port.EventState, State: port.ConnOpen})
}

func (r *Relay) handleClose(err error) {
	r.setState(port.ConnClosed)
	if err != nil {
		log.Warn().Err(err).Msg("upstream closed")
	}
	r.broadcast(port.StreamEvent{Kind: port.EventState, State: port.ConnClosed})
}

func (r *Relay) handleMessage(raw []byte) {
	ev, ok, err := decodeEvent(raw)
	if err != nil {
		r.malformed.Add(1)
		log.Debug().Err(err).Msg("upstream message dropped")
		return
	}
	if !ok {
		return
	}
	r.broadcast(ev)
}

func (r *Relay) setState(s port.ConnState) {
	r.state = s
	r.stateVal.Store(int32(s))
}

func (r *Relay) broadcast(ev port.StreamEvent) {
	for _, c := range r.ports {
		r.deliver(c, ev)
	}
}

// deliver 非阻塞投递；端口缓冲区满时丢弃该事件
func (r *Relay) deliver(c *Client, ev port.StreamEvent) {
	select {
	case c.events <- ev:
		r.delivered.Add(1)
	default:
		r.dropped.Add(1)
		log.Warn().Str("port", c.id).Msg("port buffer full, event dropped")
	}
}
