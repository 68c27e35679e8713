package backtest

import (
	"errors"
	"fmt"

	"github.com/rjm263/tradekit/internal/market"
	"github.com/rjm263/tradekit/internal/rule"
	"github.com/rjm263/tradekit/internal/strategy"
	"github.com/rjm263/tradekit/internal/trade"
)

var (
	// ErrNoEntryBar 表示序列中不存在信号入场时间对应的Bar。
	ErrNoEntryBar = errors.New("backtest: 序列中没有入场Bar")
	// ErrEmptyWindow 表示入场之后没有任何可评估的Bar。
	ErrEmptyWindow = errors.New("backtest: 评估窗口为空")
	// ErrNoSignals 表示策略在给定序列上没有产出任何信号。
	ErrNoSignals = errors.New("backtest: 策略未产出信号")
)

// EvaluateSignal 在完整序列上独立评估单个信号的退出。
//
// 入场Bar按时间戳精确匹配，入场价与入场量取该Bar收盘值；规则实例按配置
// 全新构造；评估窗口严格从入场后一根开始，到超时下标（含）结束。窗口内
// 逐Bar推进：先对全部规则实例 Update，再检查限制类放行与止损/止盈触发，
// 与增量求值器的单Bar顺序一致，移动止损等有状态规则因此得到相同轨迹。
// 同Bar同时触发时止损优先；都未触发按超时关单。只读共享序列，每个信号
// 只写自己的结果。
func EvaluateSignal(sig strategy.Signal, series market.Series, specs rule.SpecSet, reg *rule.RegistrySet) (trade.ClosedRecord, error) {
	entryIdx, ok := series.IndexOf(sig.EntryTS)
	if !ok {
		return trade.ClosedRecord{}, fmt.Errorf("%w: signal=%s entry_ts=%s", ErrNoEntryBar, sig.ID, sig.EntryTS)
	}

	entryBar := series.Bars[entryIdx]
	args := rule.Args{
		EntryPrice: append([]float64(nil), entryBar.Close...),
		EntryVol:   append([]float64(nil), entryBar.Volume...),
		TradeType:  append([]int(nil), sig.TradeType...),
	}

	stop, err := reg.Stop.Create(specs.Stop, args)
	if err != nil {
		return trade.ClosedRecord{}, err
	}
	profit, err := reg.Profit.Create(specs.Profit, args)
	if err != nil {
		return trade.ClosedRecord{}, err
	}

	var restrictions []rule.Rule
	for _, spec := range specs.Dates {
		r, err := reg.Datetime.Create(spec, args)
		if err != nil {
			return trade.ClosedRecord{}, err
		}
		restrictions = append(restrictions, r)
	}
	for _, spec := range specs.Vols {
		r, err := reg.Volume.Create(spec, args)
		if err != nil {
			return trade.ClosedRecord{}, err
		}
		restrictions = append(restrictions, r)
	}
	for _, spec := range specs.Events {
		r, err := reg.Event.Create(spec, args)
		if err != nil {
			return trade.ClosedRecord{}, err
		}
		restrictions = append(restrictions, r)
	}

	timeoutIdx := series.Len() - 1
	if sig.Timeout > 0 {
		timeoutIdx = series.SearchTimeout(sig.EntryTS.Add(sig.Timeout))
	}
	if timeoutIdx <= entryIdx {
		return trade.ClosedRecord{}, fmt.Errorf("%w: signal=%s entry_idx=%d timeout_idx=%d", ErrEmptyWindow, sig.ID, entryIdx, timeoutIdx)
	}

	window := series.Bars[entryIdx+1 : timeoutIdx+1]

	exitIdx := -1
	reason := trade.ReasonTimeout
	for i, bar := range window {
		stop.Update(bar)
		profit.Update(bar)
		for _, r := range restrictions {
			r.Update(bar)
		}

		permitted := true
		for _, r := range restrictions {
			if !r.Hit(bar) {
				permitted = false
				break
			}
		}
		if !permitted {
			continue
		}

		if stop.Hit(bar) {
			exitIdx = i
			reason = trade.ReasonStop
			break
		}
		if profit.Hit(bar) {
			exitIdx = i
			reason = trade.ReasonProfit
			break
		}
	}
	if exitIdx < 0 {
		exitIdx = len(window) - 1
		reason = trade.ReasonTimeout
	}

	exitBar := window[exitIdx]
	return trade.ClosedRecord{
		SignalID:   sig.ID,
		Symbols:    append([]string(nil), sig.Symbols...),
		Type:       append([]int(nil), sig.TradeType...),
		Capital:    append([]float64(nil), sig.Capital...),
		EntryTime:  entryBar.Ts,
		ExitTime:   exitBar.Ts,
		EntryPrice: append([]float64(nil), entryBar.Close...),
		ExitPrice:  append([]float64(nil), exitBar.Close...),
		ExitReason: string(reason),
	}, nil
}
