package console

import (
	"context"
	"time"

	"tickerwatch/internal/application/port"
	"tickerwatch/internal/domain/model"
)

// TickerSource Presenter 读取的 Store 视图
type TickerSource interface {
	Changes() <-chan struct{}
	Tickers() []model.Ticker
	CurrentTicker() (model.Ticker, bool)
	StreamState() port.ConnState
	Loading() bool
	LastError() error
}

// Presenter 每次状态变化重画 live 行，定时在下方打印选中 ticker 的图表
type Presenter struct {
	src        TickerSource
	sink       port.Sink
	render     *Renderer
	chartEvery time.Duration
}

func NewPresenter(src TickerSource, sink port.Sink, render *Renderer, chartEvery time.Duration) *Presenter {
	if chartEvery <= 0 {
		chartEvery = time.Minute
	}
	return &Presenter{src: src, sink: sink, render: render, chartEvery: chartEvery}
}

func (p *Presenter) view() View {
	v := View{
		Tickers: p.src.Tickers(),
		State:   p.src.StreamState(),
		Loading: p.src.Loading(),
		LastErr: p.src.LastError(),
	}
	if cur, ok := p.src.CurrentTicker(); ok {
		v.Current = &cur
	}
	return v
}

// DrawChart 立即打印一次图表；没有选中项时什么也不做
func (p *Presenter) DrawChart(now time.Time) error {
	cur, ok := p.src.CurrentTicker()
	if !ok {
		return nil
	}
	if err := p.sink.WriteBlock(now, p.render.Chart(cur)); err != nil {
		return err
	}
	return p.sink.WriteLive(p.render.Line(p.view(), RenderLive))
}

func (p *Presenter) Run(ctx context.Context) error {
	chartTicker := time.NewTicker(p.chartEvery)
	defer chartTicker.Stop()

	_ = p.sink.WriteLive(p.render.Line(p.view(), RenderLive))

	for {
		select {
		case <-ctx.Done():
			_ = p.sink.NewLine()
			return ctx.Err()

		case now := <-chartTicker.C:
			_ = p.DrawChart(now)

		case <-p.src.Changes():
			_ = p.sink.WriteLive(p.render.Line(p.view(), RenderLive))
		}
	}
}
