package tickers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tickerwatch/internal/application/port"
	"tickerwatch/internal/domain/model"
)

const DefaultMaxGraphElements = 20

var (
	ErrInvalidMaxGraphElements = errors.New("max graph elements must be positive")
	ErrNoSymbols               = errors.New("no symbols given")
	ErrStreamClosed            = errors.New("stream events closed")
)

type Deps struct {
	Gateway          port.PriceGateway
	KV               port.KVStore
	Stream           port.StreamHandle
	MaxGraphElements int
	PollEvery        time.Duration // 0 表示不轮询
}

// Store 跟踪的 ticker 集合、当前选中项及其价格历史、币种元数据缓存
// 只能通过方法修改；读方法返回副本
type Store struct {
	deps Deps

	mu          sync.Mutex
	tickers     []model.Ticker
	current     *model.Ticker
	loading     bool
	lastErr     error
	maxGraph    int
	streamState port.ConnState
	meta        model.CoinMetadata

	// 串行化元数据加载，保证一次会话最多请求一次
	metaMu     sync.Mutex
	metaLoaded bool

	changes chan struct{}
}

func NewStore(deps Deps) *Store {
	n := deps.MaxGraphElements
	if n <= 0 {
		n = DefaultMaxGraphElements
	}
	return &Store{
		deps:        deps,
		maxGraph:    n,
		streamState: port.ConnConnecting,
		changes:     make(chan struct{}, 1),
	}
}

// Changes 状态变化通知（合并的，不携带数据），供 UI 重新渲染
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// ---- getters ----

func (s *Store) Tickers() []model.Ticker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Ticker, len(s.tickers))
	for i, t := range s.tickers {
		out[i] = t.Clone()
	}
	return out
}

// Ticker 按名称查找第一个匹配项
func (s *Store) Ticker(name string) (model.Ticker, bool) {
	name = model.NormalizeSymbol(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(name); i >= 0 {
		return s.tickers[i].Clone(), true
	}
	return model.Ticker{}, false
}

// Symbols 按顺序返回跟踪的名称（可能含重复）
func (s *Store) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namesLocked()
}

func (s *Store) CurrentTicker() (model.Ticker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return model.Ticker{}, false
	}
	return s.current.Clone(), true
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LastError 最近一次失败的加载；成功加载后清空
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) StreamState() port.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamState
}

func (s *Store) MaxGraphElements() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxGraph
}

func (s *Store) indexLocked(name string) int {
	for i := range s.tickers {
		if s.tickers[i].Name == name {
			return i
		}
	}
	return -1
}

func (s *Store) namesLocked() []string {
	names := make([]string, len(s.tickers))
	for i, t := range s.tickers {
		names[i] = t.Name
	}
	return names
}

// ---- mutators ----

// AddTicker 添加一个或一批 symbol。
// 结果集合由 REST 快照整体重建（不是增量合并）；重复的 symbol 不去重。
// 只有单个 symbol 时才向 Relay 订阅。
func (s *Store) AddTicker(ctx context.Context, symbols ...string) error {
	return s.addTickers(ctx, symbols, len(symbols) == 1)
}

func (s *Store) addTickers(ctx context.Context, symbols []string, subscribe bool) error {
	added := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if sym = model.NormalizeSymbol(sym); sym != "" {
			added = append(added, sym)
		}
	}
	if len(added) == 0 {
		return ErrNoSymbols
	}

	s.mu.Lock()
	names := append(s.namesLocked(), added...)
	s.loading = true
	s.mu.Unlock()
	s.notify()

	s.persistList(ctx, names)

	prices, err := s.deps.Gateway.FetchPrices(ctx, names)
	if err != nil {
		s.mu.Lock()
		s.loading = false
		s.lastErr = err
		s.mu.Unlock()
		s.notify()
		log.Error().Err(err).Strs("symbols", added).Msg("fetch prices failed")
		return fmt.Errorf("fetch prices: %w", err)
	}

	s.mu.Lock()
	built := make([]model.Ticker, 0, len(names))
	for _, name := range names {
		rate := model.RateUnavailable
		if p, ok := prices[name]; ok && p > 0 {
			rate = model.Rate(p)
		}
		built = append(built, model.NewTicker(name, rate, s.meta.Lookup(name)))
	}
	s.tickers = built
	s.loading = false
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()

	// 集合重建之后再订阅，首个 tick 不会因未跟踪而被丢弃
	if subscribe {
		s.subscribeAll(added)
	}

	log.Info().Strs("symbols", added).Int("tracked", len(built)).Msg("tickers added")
	return nil
}

// UpdateFromStream 合并一条流式价格。
// 只有方向性变化（FLAGS 1/2）才改写 rate；未跟踪的 symbol 直接丢弃。
// 返回是否应用。
func (s *Store) UpdateFromStream(t port.Tick) bool {
	sym := model.NormalizeSymbol(t.Symbol)
	if !t.Directional() || t.Price <= 0 {
		return false
	}

	s.mu.Lock()
	found := false
	for i := range s.tickers {
		if s.tickers[i].Name == sym {
			s.tickers[i].Rate = model.Rate(t.Price)
			found = true
		}
	}
	if found && s.current != nil && s.current.Name == sym {
		s.current.Rate = model.Rate(t.Price)
		s.current.Prices.Push(t.Price, s.maxGraph)
	}
	s.mu.Unlock()

	if !found {
		log.Debug().Str("symbol", sym).Msg("tick for untracked symbol dropped")
		return false
	}
	s.notify()
	return true
}

// SelectTicker 选中一个 ticker，价格历史以当前 rate 为种子；找不到时不做任何事
func (s *Store) SelectTicker(symbol string) bool {
	sym := model.NormalizeSymbol(symbol)
	s.mu.Lock()
	i := s.indexLocked(sym)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	cur := s.tickers[i].Clone()
	cur.Prices.Reset(cur.Rate)
	s.current = &cur
	s.mu.Unlock()
	s.notify()
	return true
}

// UnselectTicker 清除选中，并把对应 ticker 的价格历史重置为 [rate]
func (s *Store) UnselectTicker() {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	name := s.current.Name
	for i := range s.tickers {
		if s.tickers[i].Name == name {
			s.tickers[i].Prices.Reset(s.tickers[i].Rate)
		}
	}
	s.current = nil
	s.mu.Unlock()
	s.notify()
}

// RemoveTicker 退订、移除（所有同名项）、必要时清除选中，并持久化新的列表
func (s *Store) RemoveTicker(ctx context.Context, symbol string) error {
	sym := model.NormalizeSymbol(symbol)
	if sym == "" {
		return ErrNoSymbols
	}

	if err := s.deps.Stream.Unsubscribe(sym); err != nil {
		log.Warn().Err(err).Str("symbol", sym).Msg("unsubscribe failed")
	}

	s.mu.Lock()
	kept := make([]model.Ticker, 0, len(s.tickers))
	for _, t := range s.tickers {
		if t.Name != sym {
			kept = append(kept, t)
		}
	}
	s.tickers = kept
	if s.current != nil && s.current.Name == sym {
		s.current = nil
	}
	names := s.namesLocked()
	s.mu.Unlock()
	s.notify()

	if err := s.deps.KV.SetOrClear(ctx, port.KeyTickerList, names); err != nil {
		log.Warn().Err(err).Msg("persist ticker list failed")
		return fmt.Errorf("persist ticker list: %w", err)
	}
	return nil
}

// SetMaxGraphElements 只影响之后的追加；不会立即截断已有的缓冲区
func (s *Store) SetMaxGraphElements(n int) error {
	if n < 1 {
		return ErrInvalidMaxGraphElements
	}
	s.mu.Lock()
	s.maxGraph = n
	s.mu.Unlock()
	return nil
}

// RefreshPrices 轮询对账：按 symbol 把 REST 快照写到当前状态，
// 期间被移除的 symbol 忽略，不改动价格历史
func (s *Store) RefreshPrices(ctx context.Context) error {
	names := s.Symbols()
	if len(names) == 0 {
		return nil
	}

	prices, err := s.deps.Gateway.FetchPrices(ctx, names)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.notify()
		return fmt.Errorf("refresh prices: %w", err)
	}

	s.mu.Lock()
	for i := range s.tickers {
		if p, ok := prices[s.tickers[i].Name]; ok && p > 0 {
			s.tickers[i].Rate = model.Rate(p)
		}
	}
	if s.current != nil {
		if p, ok := prices[s.current.Name]; ok && p > 0 {
			s.current.Rate = model.Rate(p)
		}
	}
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Store) setStreamState(st port.ConnState) {
	s.mu.Lock()
	changed := s.streamState != st
	s.streamState = st
	s.mu.Unlock()
	if changed {
		log.Info().Str("state", st.String()).Msg("stream state changed")
		s.notify()
	}
}

// Run 消费 Relay 事件并（可选）定时轮询 REST，阻塞直到 ctx 结束或事件流关闭
func (s *Store) Run(ctx context.Context) error {
	events := s.deps.Stream.Events()

	var poll <-chan time.Time
	if s.deps.PollEvery > 0 {
		t := time.NewTicker(s.deps.PollEvery)
		defer t.Stop()
		poll = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return ErrStreamClosed
			}
			switch ev.Kind {
			case port.EventTick:
				s.UpdateFromStream(ev.Tick)
			case port.EventState:
				s.setStreamState(ev.State)
			case port.EventWelcome:
				s.setStreamState(port.ConnOpen)
			}

		case <-poll:
			if err := s.RefreshPrices(ctx); err != nil {
				log.Warn().Err(err).Msg("price poll failed")
			}
		}
	}
}
