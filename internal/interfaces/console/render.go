package console

import (
	"strings"

	"tickerwatch/internal/application/port"
	"tickerwatch/internal/domain/model"
)

const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiYellow   = "\033[33m"
	ansiDim      = "\033[2m"
	ansiBold     = "\033[1m"
	ansiClearEOL = "\033[K"
)

func colorize(s, c string) string { return c + s + ansiReset }

// 柱状图高度按百分比归一化到 [minBarPercent, 100]
const (
	minBarPercent = 5
	chartRows     = 8
)

type RenderMode int

const (
	RenderLive RenderMode = iota
	RenderSnapshot
)

// View 一次渲染需要的 Store 状态
type View struct {
	Tickers []model.Ticker
	Current *model.Ticker
	State   port.ConnState
	Loading bool
	LastErr error
}

type Renderer struct {
	Color bool
}

func NewRenderer(color bool) *Renderer {
	return &Renderer{Color: color}
}

func (r *Renderer) paint(s, c string) string {
	if !r.Color {
		return s
	}
	return colorize(s, c)
}

// Line 单行状态：连接状态 + 所有 ticker 价格，选中项加粗
func (r *Renderer) Line(v View, mode RenderMode) string {
	var sb strings.Builder
	if mode == RenderLive {
		sb.WriteString("\r")
	}

	sb.WriteString(r.paint("[TICKERS] ", ansiDim))
	sb.WriteString(r.stateBadge(v.State))

	if v.Loading {
		sb.WriteString(r.paint(" loading…", ansiDim))
	}
	if len(v.Tickers) == 0 {
		sb.WriteString(r.paint(" (no tickers)", ansiDim))
	}

	for i, t := range v.Tickers {
		if i > 0 {
			sb.WriteString(r.paint("  ||  ", ansiDim))
		} else {
			sb.WriteString(" ")
		}
		name := t.Name
		if v.Current != nil && v.Current.Name == t.Name {
			name = r.paint(name, ansiBold)
		}
		sb.WriteString(name)
		sb.WriteString(" ")
		sb.WriteString(r.paint(FormatUSD(t.Rate.Float()), r.priceColor(t)))
	}

	if v.LastErr != nil {
		sb.WriteString(r.paint("  ! "+v.LastErr.Error(), ansiRed))
	}
	if mode == RenderLive && r.Color {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}

func (r *Renderer) stateBadge(s port.ConnState) string {
	switch s {
	case port.ConnOpen:
		return r.paint("●", ansiGreen)
	case port.ConnClosed:
		return r.paint("●", ansiRed)
	default:
		return r.paint("●", ansiYellow)
	}
}

// priceColor 按历史中最后两次价格的方向着色
func (r *Renderer) priceColor(t model.Ticker) string {
	if !t.Rate.Available() {
		return ansiDim
	}
	vals := t.Prices.Values()
	if len(vals) < 2 {
		return ansiYellow
	}
	prev, last := vals[len(vals)-2], vals[len(vals)-1]
	switch {
	case last > prev:
		return ansiGreen
	case last < prev:
		return ansiRed
	default:
		return ansiYellow
	}
}

// Chart 选中 ticker 的价格柱状图，第一行为标题
func (r *Renderer) Chart(t model.Ticker) []string {
	title := t.Name
	if t.FullName != "" {
		title = t.FullName
	}
	lines := []string{r.paint(title+" - USD", ansiBold)}

	heights := BarHeights(t.Prices.Values())
	if len(heights) == 0 {
		return append(lines, r.paint("  (no price history)", ansiDim))
	}

	for row := chartRows; row >= 1; row-- {
		threshold := float64(row-1) * 100 / chartRows
		var sb strings.Builder
		sb.WriteString("  ")
		for _, h := range heights {
			if h > threshold {
				sb.WriteString(r.paint("█", ansiGreen))
			} else {
				sb.WriteString(" ")
			}
			sb.WriteString(" ")
		}
		lines = append(lines, strings.TrimRight(sb.String(), " "))
	}

	if last, ok := t.Prices.Last(); ok {
		lines = append(lines, r.paint("  last "+FormatUSD(last), ansiDim))
	}
	return lines
}

// BarHeights 把价格归一化为百分比高度：最低价 -> 5，最高价 -> 100；
// 价格全部相同时均为 50
func BarHeights(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	out := make([]float64, len(values))
	for i, v := range values {
		if hi == lo {
			out[i] = 50
			continue
		}
		out[i] = minBarPercent + (v-lo)*(100-minBarPercent)/(hi-lo)
	}
	return out
}
