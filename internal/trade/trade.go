package trade

import (
	"errors"
	"fmt"
	"time"

	"github.com/rjm263/tradekit/internal/market"
	"github.com/rjm263/tradekit/internal/rule"
)

// Reason 表示交易关闭原因。
type Reason string

const (
	ReasonStop    Reason = "stop"
	ReasonProfit  Reason = "profit"
	ReasonTimeout Reason = "timeout"
)

// Status 表示交易生命周期状态，open -> closed 单向且只发生一次。
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// ErrVectorMismatch 表示逐标的向量长度不一致。
var ErrVectorMismatch = errors.New("trade: 逐标的向量长度不一致")

// Params 聚合开仓所需的全部信息。
type Params struct {
	ID         string
	Symbols    []string
	TradeType  []int
	Capital    []float64
	EntryTS    time.Time
	EntryPrice []float64
	EntryVol   []float64
	Specs      rule.SpecSet
	Timeout    time.Duration
}

// Trade 表示一笔活跃交易，聚合一个止损、一个止盈以及零或多个限制规则实例。
// 规则阈值状态只通过各实例的 Update 变化。
type Trade struct {
	ID         string
	Symbols    []string
	TradeType  []int
	Capital    []float64
	EntryTS    time.Time
	EntryPrice []float64
	EntryVol   []float64
	Timeout    time.Duration

	status Status
	reason Reason

	stop   rule.Rule
	profit rule.Rule
	dates  []rule.Rule
	vols   []rule.Rule
	events []rule.Rule
}

// New 按参数和规则配置构造新交易，规则实例全部新建。
func New(p Params, reg *rule.RegistrySet) (*Trade, error) {
	if reg == nil {
		return nil, errors.New("trade: 规则注册表不能为空")
	}
	n := len(p.Symbols)
	if n == 0 {
		return nil, fmt.Errorf("%w: symbols 为空", ErrVectorMismatch)
	}
	if len(p.TradeType) != n || len(p.Capital) != n || len(p.EntryPrice) != n || len(p.EntryVol) != n {
		return nil, fmt.Errorf("%w: symbols=%d type=%d capital=%d price=%d vol=%d",
			ErrVectorMismatch, n, len(p.TradeType), len(p.Capital), len(p.EntryPrice), len(p.EntryVol))
	}

	args := rule.Args{
		EntryPrice: p.EntryPrice,
		EntryVol:   p.EntryVol,
		TradeType:  p.TradeType,
	}

	stop, err := reg.Stop.Create(p.Specs.Stop, args)
	if err != nil {
		return nil, err
	}
	profit, err := reg.Profit.Create(p.Specs.Profit, args)
	if err != nil {
		return nil, err
	}

	dates, err := createAll(reg.Datetime, p.Specs.Dates, args)
	if err != nil {
		return nil, err
	}
	events, err := createAll(reg.Event, p.Specs.Events, args)
	if err != nil {
		return nil, err
	}
	vols, err := createAll(reg.Volume, p.Specs.Vols, args)
	if err != nil {
		return nil, err
	}

	return &Trade{
		ID:         p.ID,
		Symbols:    append([]string(nil), p.Symbols...),
		TradeType:  append([]int(nil), p.TradeType...),
		Capital:    append([]float64(nil), p.Capital...),
		EntryTS:    p.EntryTS,
		EntryPrice: append([]float64(nil), p.EntryPrice...),
		EntryVol:   append([]float64(nil), p.EntryVol...),
		Timeout:    p.Timeout,
		status:     StatusOpen,
		stop:       stop,
		profit:     profit,
		dates:      dates,
		events:     events,
		vols:       vols,
	}, nil
}

func createAll(reg *rule.Registry, specs []rule.Spec, args rule.Args) ([]rule.Rule, error) {
	rules := make([]rule.Rule, 0, len(specs))
	for _, spec := range specs {
		r, err := reg.Create(spec, args)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Status 返回当前生命周期状态。
func (t *Trade) Status() Status {
	return t.status
}

// Reason 返回关闭原因，未关闭时为空。
func (t *Trade) Reason() Reason {
	return t.reason
}

func (t *Trade) close(reason Reason) {
	t.status = StatusClosed
	t.reason = reason
}

// CheckExit 对单个Bar执行一次退出评估。
//
// 固定顺序：先对每个规则实例逐一 Update；超时无条件优先；随后
// datetime、volume、event 三类限制全部放行后才检查价位；止损先于止盈，
// 同Bar同时触发时止损胜出（风险优先，两种求值器一致）。
// 触发后状态机单向切换到 closed，再次调用直接返回 false。
func (t *Trade) CheckExit(ts time.Time, bar market.Bar) (bool, Reason) {
	if t.status != StatusOpen {
		return false, ""
	}

	t.stop.Update(bar)
	t.profit.Update(bar)
	for _, r := range t.dates {
		r.Update(bar)
	}
	for _, r := range t.vols {
		r.Update(bar)
	}
	for _, r := range t.events {
		r.Update(bar)
	}

	if t.Timeout > 0 && !ts.Before(t.EntryTS.Add(t.Timeout)) {
		t.close(ReasonTimeout)
		return true, ReasonTimeout
	}

	for _, r := range t.dates {
		if !r.Hit(bar) {
			return false, ""
		}
	}
	for _, r := range t.vols {
		if !r.Hit(bar) {
			return false, ""
		}
	}
	for _, r := range t.events {
		if !r.Hit(bar) {
			return false, ""
		}
	}

	if t.stop.Hit(bar) {
		t.close(ReasonStop)
		return true, ReasonStop
	}
	if t.profit.Hit(bar) {
		t.close(ReasonProfit)
		return true, ReasonProfit
	}

	return false, ""
}

// ClosedRecord 是逐行追加到成交记录文件的关单记录。
type ClosedRecord struct {
	SignalID   string    `json:"signal_id"`
	Symbols    []string  `json:"symbols"`
	Type       []int     `json:"type"`
	Capital    []float64 `json:"capital"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice []float64 `json:"entry_price"`
	ExitPrice  []float64 `json:"exit_price"`
	ExitReason string    `json:"exit_reason"`
}

// Record 基于退出时间与退出价格生成关单记录。
func (t *Trade) Record(exitTS time.Time, exitPrice []float64, reason Reason) ClosedRecord {
	return ClosedRecord{
		SignalID:   t.ID,
		Symbols:    append([]string(nil), t.Symbols...),
		Type:       append([]int(nil), t.TradeType...),
		Capital:    append([]float64(nil), t.Capital...),
		EntryTime:  t.EntryTS,
		ExitTime:   exitTS,
		EntryPrice: append([]float64(nil), t.EntryPrice...),
		ExitPrice:  append([]float64(nil), exitPrice...),
		ExitReason: string(reason),
	}
}
