package market

// Buffer 维护最近N个Bar的有界滚动缓冲，用于为策略提供历史上下文。
type Buffer struct {
	window int
	bars   []Bar
}

// NewBuffer 创建指定容量的滚动缓冲。
func NewBuffer(window int) *Buffer {
	if window <= 0 {
		window = 30
	}
	return &Buffer{
		window: window,
		bars:   make([]Bar, 0, window),
	}
}

// Window 返回缓冲容量。
func (b *Buffer) Window() int {
	return b.window
}

// Len 返回当前缓冲长度。
func (b *Buffer) Len() int {
	return len(b.bars)
}

// Push 追加最新Bar，超出容量时淘汰最旧的一个。
func (b *Buffer) Push(bar Bar) {
	if len(b.bars) >= b.window {
		copy(b.bars, b.bars[1:])
		b.bars[len(b.bars)-1] = bar
		return
	}
	b.bars = append(b.bars, bar)
}

// Fill 将Bar依次写入缓冲，仅保留末尾的window个。
func (b *Buffer) Fill(bars []Bar) {
	for _, bar := range bars {
		b.Push(bar)
	}
}

// Bars 返回缓冲内容的副本。
func (b *Buffer) Bars() []Bar {
	return append([]Bar(nil), b.bars...)
}

// Series 以序列形式返回缓冲内容。
func (b *Buffer) Series(symbols []string) Series {
	return Series{Symbols: symbols, Bars: b.Bars()}
}
