package feed

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rjm263/tradekit/internal/market"
)

// pollFetchLimit 是增量轮询时每个标的拉取的K线数量，
// 留出余量以覆盖上次轮询之后新收盘的多根Bar。
const pollFetchLimit = 5

// CCXTFeed 基于交易所K线接口实现 Feed，多标的并发拉取后按时间戳对齐，
// 丢弃最新一根未收盘的K线。
type CCXTFeed struct {
	client    *Client
	symbols   []string
	timeframe string
	logger    *zap.Logger

	mu     sync.Mutex
	cursor time.Time
}

// NewCCXTFeed 构造交易所行情数据源。
func NewCCXTFeed(client *Client, symbols []string, timeframe string, logger *zap.Logger) (*CCXTFeed, error) {
	if client == nil {
		return nil, fmt.Errorf("feed: 交易所客户端不能为空")
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("feed: 标的列表不能为空")
	}
	if _, err := TimeframeDuration(timeframe); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CCXTFeed{
		client:    client,
		symbols:   append([]string(nil), symbols...),
		timeframe: timeframe,
		logger:    logger,
	}, nil
}

// TimeframeDuration 把交易所周期写法（如 1m/4h/1d）换算成时长。
func TimeframeDuration(timeframe string) (time.Duration, error) {
	if len(timeframe) < 2 {
		return 0, fmt.Errorf("feed: 无法解析周期 %q", timeframe)
	}
	n, err := strconv.Atoi(timeframe[:len(timeframe)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("feed: 无法解析周期 %q", timeframe)
	}
	switch timeframe[len(timeframe)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("feed: 不支持的周期单位 %q", timeframe)
	}
}

// fetchAligned 并发拉取全部标的的K线，按时间戳取交集对齐，
// 并丢掉最新一根（尚未收盘）。
func (f *CCXTFeed) fetchAligned(ctx context.Context, limit int64) ([]market.Bar, error) {
	bySymbol := make([][]Candle, len(f.symbols))

	g, gctx := errgroup.WithContext(ctx)
	for i, symbol := range f.symbols {
		g.Go(func() error {
			candles, err := f.client.FetchCandles(gctx, symbol, f.timeframe, limit)
			if err != nil {
				return fmt.Errorf("feed: 拉取 %s K线失败: %w", symbol, err)
			}
			bySymbol[i] = candles
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 时间戳交集：只保留所有标的都有数据的Bar。
	index := make([]map[int64]Candle, len(f.symbols))
	for i, candles := range bySymbol {
		index[i] = make(map[int64]Candle, len(candles))
		for _, c := range candles {
			index[i][c.Timestamp.UnixMilli()] = c
		}
	}

	var stamps []int64
	for ms := range index[0] {
		shared := true
		for _, m := range index[1:] {
			if _, ok := m[ms]; !ok {
				shared = false
				break
			}
		}
		if shared {
			stamps = append(stamps, ms)
		}
	}
	sort.Slice(stamps, func(a, b int) bool { return stamps[a] < stamps[b] })

	if len(stamps) > 0 {
		stamps = stamps[:len(stamps)-1]
	}

	bars := make([]market.Bar, 0, len(stamps))
	for _, ms := range stamps {
		bar := market.Bar{
			Ts:     time.UnixMilli(ms).UTC(),
			Open:   make([]float64, len(f.symbols)),
			High:   make([]float64, len(f.symbols)),
			Low:    make([]float64, len(f.symbols)),
			Close:  make([]float64, len(f.symbols)),
			Volume: make([]float64, len(f.symbols)),
		}
		for i := range f.symbols {
			c := index[i][ms]
			bar.Open[i] = c.Open
			bar.High[i] = c.High
			bar.Low[i] = c.Low
			bar.Close[i] = c.Close
			bar.Volume[i] = c.Volume
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// History 拉取最近 lookback 根已收盘Bar组成序列。
func (f *CCXTFeed) History(ctx context.Context, lookback int) (market.Series, error) {
	if lookback <= 0 {
		lookback = 1
	}
	bars, err := f.fetchAligned(ctx, int64(lookback)+1)
	if err != nil {
		return market.Series{}, err
	}
	if len(bars) == 0 {
		return market.Series{}, ErrNoData
	}
	if len(bars) > lookback {
		bars = bars[len(bars)-lookback:]
	}
	return market.Series{
		Symbols: append([]string(nil), f.symbols...),
		Bars:    bars,
	}, nil
}

// Poll 返回游标之后新收盘的Bar并推进游标。
func (f *CCXTFeed) Poll(ctx context.Context) ([]market.Bar, error) {
	bars, err := f.fetchAligned(ctx, pollFetchLimit)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var fresh []market.Bar
	for _, bar := range bars {
		if bar.Ts.After(f.cursor) {
			fresh = append(fresh, bar)
		}
	}
	if len(fresh) > 0 {
		f.cursor = fresh[len(fresh)-1].Ts
		f.logger.Debug("轮询到新Bar",
			zap.Int("count", len(fresh)),
			zap.Time("cursor", f.cursor),
		)
	}
	return fresh, nil
}

// Cursor 返回当前游标。
func (f *CCXTFeed) Cursor() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor
}

// SetCursor 恢复游标位置，用于检查点恢复。
func (f *CCXTFeed) SetCursor(ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursor = ts
}
