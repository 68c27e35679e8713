package feed

import (
	"context"
	"errors"
	"time"

	"github.com/rjm263/tradekit/internal/market"
)

var (
	// ErrNoData 表示数据源在请求区间内没有任何可用Bar。
	ErrNoData = errors.New("feed: 无可用行情数据")
)

// Feed 是批量与增量求值器共享的行情来源抽象。
//
// Poll 只返回时间戳严格大于游标的新Bar并推进游标；游标单调不回退，
// 由检查点负责持久化，重启后通过 SetCursor 恢复。
type Feed interface {
	History(ctx context.Context, lookback int) (market.Series, error)
	Poll(ctx context.Context) ([]market.Bar, error)
	Cursor() time.Time
	SetCursor(ts time.Time)
}

// SliceFeed 基于内存中的固定序列实现 Feed，用于回测和测试。
type SliceFeed struct {
	series market.Series
	cursor time.Time
}

// NewSliceFeed 用给定序列构造内存数据源。
func NewSliceFeed(series market.Series) *SliceFeed {
	return &SliceFeed{series: series}
}

// History 返回序列末尾最多 lookback 根Bar。
func (f *SliceFeed) History(ctx context.Context, lookback int) (market.Series, error) {
	if err := ctx.Err(); err != nil {
		return market.Series{}, err
	}
	n := f.series.Len()
	if n == 0 {
		return market.Series{}, ErrNoData
	}
	if lookback <= 0 || lookback > n {
		lookback = n
	}
	return f.series.Slice(n-lookback, n), nil
}

// Poll 返回游标之后的全部Bar并把游标推进到最新一根。
func (f *SliceFeed) Poll(ctx context.Context) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var fresh []market.Bar
	for _, bar := range f.series.Bars {
		if bar.Ts.After(f.cursor) {
			fresh = append(fresh, bar)
		}
	}
	if len(fresh) > 0 {
		f.cursor = fresh[len(fresh)-1].Ts
	}
	return fresh, nil
}

// Cursor 返回当前游标。
func (f *SliceFeed) Cursor() time.Time {
	return f.cursor
}

// SetCursor 恢复游标位置。
func (f *SliceFeed) SetCursor(ts time.Time) {
	f.cursor = ts
}
