package forward

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/rjm263/tradekit/internal/journal"
	"github.com/rjm263/tradekit/internal/market"
	"github.com/rjm263/tradekit/internal/notify"
	"github.com/rjm263/tradekit/internal/rule"
	"github.com/rjm263/tradekit/internal/strategy"
	"github.com/rjm263/tradekit/internal/trade"
)

// Evaluator 是逐Bar的增量求值器：维护活跃交易集合与策略所需的
// 滚动窗口，新Bar先结算活跃交易，再询问策略开新仓。
type Evaluator struct {
	source string
	strat  strategy.BarStrategy
	specs  rule.SpecSet
	reg    *rule.RegistrySet
	buffer *market.Buffer

	writer    *journal.Writer
	events    *journal.Events
	notifiers []notify.Notifier
	logger    *zap.Logger

	active map[string]*trade.Trade
}

// Options 聚合求值器的可选协作方，events 与 notifiers 可为空。
type Options struct {
	Source    string
	Window    int
	Writer    *journal.Writer
	Events    *journal.Events
	Notifiers []notify.Notifier
	Logger    *zap.Logger
}

// NewEvaluator 构建增量求值器，策略必须支持逐Bar决策。
func NewEvaluator(strat strategy.Strategy, specs rule.SpecSet, reg *rule.RegistrySet, opts Options) (*Evaluator, error) {
	bs, ok := strat.(strategy.BarStrategy)
	if !ok {
		return nil, fmt.Errorf("forward: 策略 %s 不支持逐Bar决策", strat.Name())
	}
	if reg == nil {
		return nil, fmt.Errorf("forward: 规则注册表不能为空")
	}
	if opts.Writer == nil {
		return nil, fmt.Errorf("forward: 成交记录写入器不能为空")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	window := opts.Window
	if window < strat.Window() {
		window = strat.Window()
	}

	return &Evaluator{
		source:    opts.Source,
		strat:     bs,
		specs:     specs,
		reg:       reg,
		buffer:    market.NewBuffer(window),
		writer:    opts.Writer,
		events:    opts.Events,
		notifiers: opts.Notifiers,
		logger:    logger,
		active:    make(map[string]*trade.Trade),
	}, nil
}

// ActiveCount 返回活跃交易数量。
func (e *Evaluator) ActiveCount() int {
	return len(e.active)
}

// Buffer 返回滚动窗口。
func (e *Evaluator) Buffer() *market.Buffer {
	return e.buffer
}

// HandleBar 处理一根新收盘的Bar。
//
// 顺序固定：先对全部活跃交易执行 CheckExit 并落盘关单，再把Bar推进
// 滚动窗口，最后询问策略并按该Bar收盘价开新仓。通知失败只记日志。
func (e *Evaluator) HandleBar(ctx context.Context, bar market.Bar) error {
	for _, id := range e.sortedActiveIDs() {
		t := e.active[id]
		closed, reason := t.CheckExit(bar.Ts, bar)
		if !closed {
			continue
		}

		record := t.Record(bar.Ts, bar.Close, reason)
		if err := e.writer.Append(record); err != nil {
			return err
		}
		if e.events != nil {
			e.events.RecordExit(ctx, record)
		}
		notify.Dispatch(ctx, e.logger, e.notifiers, notify.Event{
			Type:    notify.TypeTradeExit,
			Source:  e.source,
			TS:      bar.Ts,
			Payload: record,
		})
		delete(e.active, id)

		e.logger.Info("交易关闭",
			zap.String("trade_id", id),
			zap.String("reason", string(reason)),
			zap.Time("exit_ts", bar.Ts),
		)
	}

	e.buffer.Push(bar)

	signals, err := e.strat.OnBar(bar.Ts, bar, e.buffer.Bars())
	if err != nil {
		return fmt.Errorf("forward: 策略 %s 处理Bar失败: %w", e.strat.Name(), err)
	}

	for _, sig := range signals {
		if err := sig.Validate(); err != nil {
			return err
		}
		if err := e.openTrade(ctx, sig, bar); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) openTrade(ctx context.Context, sig strategy.Signal, bar market.Bar) error {
	t, err := trade.New(trade.Params{
		ID:         sig.ID,
		Symbols:    sig.Symbols,
		TradeType:  sig.TradeType,
		Capital:    sig.Capital,
		EntryTS:    bar.Ts,
		EntryPrice: bar.Close,
		EntryVol:   bar.Volume,
		Specs:      e.specs,
		Timeout:    sig.Timeout,
	}, e.reg)
	if err != nil {
		return err
	}

	e.active[t.ID] = t
	if e.events != nil {
		e.events.RecordOpen(ctx, sig)
	}
	e.logger.Info("交易开仓",
		zap.String("trade_id", t.ID),
		zap.Time("entry_ts", bar.Ts),
		zap.Strings("symbols", t.Symbols),
	)
	return nil
}

// sortedActiveIDs 固定遍历顺序，避免map迭代的随机性影响落盘顺序。
func (e *Evaluator) sortedActiveIDs() []string {
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshots 导出全部活跃交易的快照。
func (e *Evaluator) Snapshots() ([]trade.Snapshot, error) {
	snaps := make([]trade.Snapshot, 0, len(e.active))
	for _, id := range e.sortedActiveIDs() {
		snap, err := e.active[id].Snapshot()
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// RestoreTrades 从快照还原活跃交易集合，已关闭的快照直接跳过。
// 全部快照还原成功才提交；任一失败时活跃集合保持原样，调用方可以
// 安全地回退到冷启动。
func (e *Evaluator) RestoreTrades(snaps []trade.Snapshot) error {
	restored := make(map[string]*trade.Trade, len(snaps))
	for _, snap := range snaps {
		if snap.Status == trade.StatusClosed {
			continue
		}
		t, err := trade.Restore(snap, e.reg)
		if err != nil {
			return err
		}
		restored[t.ID] = t
	}

	for id, t := range restored {
		e.active[id] = t
	}
	return nil
}
