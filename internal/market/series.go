package market

import (
	"sort"
	"time"
)

// Bar 表示单个时间戳下的多标的OHLCV数据，各价格向量与标的列表按下标对齐。
type Bar struct {
	Ts     time.Time `json:"ts"`
	Open   []float64 `json:"open"`
	High   []float64 `json:"high"`
	Low    []float64 `json:"low"`
	Close  []float64 `json:"close"`
	Volume []float64 `json:"volume"`
}

// NumSymbols 返回该Bar覆盖的标的数量。
func (b Bar) NumSymbols() int {
	return len(b.Close)
}

// Series 为按时间升序排列的Bar序列。
type Series struct {
	Symbols []string `json:"symbols"`
	Bars    []Bar    `json:"bars"`
}

// Len 返回序列长度。
func (s Series) Len() int {
	return len(s.Bars)
}

// IndexOf 按精确时间戳定位Bar，返回下标及是否命中。
func (s Series) IndexOf(ts time.Time) (int, bool) {
	idx := sort.Search(len(s.Bars), func(i int) bool {
		return !s.Bars[i].Ts.Before(ts)
	})
	if idx < len(s.Bars) && s.Bars[idx].Ts.Equal(ts) {
		return idx, true
	}
	return 0, false
}

// SearchTimeout 返回第一个时间戳不早于 ts 的下标，越界时收敛到序列末尾。
func (s Series) SearchTimeout(ts time.Time) int {
	idx := sort.Search(len(s.Bars), func(i int) bool {
		return !s.Bars[i].Ts.Before(ts)
	})
	if idx >= len(s.Bars) {
		return len(s.Bars) - 1
	}
	return idx
}

// Slice 返回 [from, to) 区间的子序列，共享底层数组。
func (s Series) Slice(from, to int) Series {
	if from < 0 {
		from = 0
	}
	if to > len(s.Bars) {
		to = len(s.Bars)
	}
	if from >= to {
		return Series{Symbols: s.Symbols}
	}
	return Series{Symbols: s.Symbols, Bars: s.Bars[from:to]}
}

// Last 返回最后一个Bar，序列为空时第二个返回值为false。
func (s Series) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Closes 提取指定标的的收盘价序列。
func (s Series) Closes(symbolIdx int) []float64 {
	closes := make([]float64, 0, len(s.Bars))
	for _, bar := range s.Bars {
		if symbolIdx >= len(bar.Close) {
			closes = append(closes, 0)
			continue
		}
		closes = append(closes, bar.Close[symbolIdx])
	}
	return closes
}
