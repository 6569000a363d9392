package model

// PriceBuffer 有界 FIFO 价格窗口，插入顺序即时间顺序
type PriceBuffer struct {
	values []float64
}

// Push 追加一个价格，超过 max 时从头部淘汰，直到长度不超过 max
// max <= 0 时不做限制
func (b *PriceBuffer) Push(v float64, max int) {
	b.values = append(b.values, v)
	if max <= 0 {
		return
	}
	if over := len(b.values) - max; over > 0 {
		// 复制到新切片，避免底层数组无限增长
		kept := make([]float64, max)
		copy(kept, b.values[over:])
		b.values = kept
	}
}

// Reset 缓冲区重置为 [seed]；seed 无效时清空
func (b *PriceBuffer) Reset(seed Rate) {
	if !seed.Available() {
		b.values = nil
		return
	}
	b.values = []float64{seed.Float()}
}

func (b PriceBuffer) Len() int { return len(b.values) }

// Values 返回副本
func (b PriceBuffer) Values() []float64 {
	out := make([]float64, len(b.values))
	copy(out, b.values)
	return out
}

func (b PriceBuffer) Clone() PriceBuffer {
	if b.values == nil {
		return PriceBuffer{}
	}
	return PriceBuffer{values: b.Values()}
}

// Last 最近一个价格
func (b PriceBuffer) Last() (float64, bool) {
	if len(b.values) == 0 {
		return 0, false
	}
	return b.values[len(b.values)-1], true
}
