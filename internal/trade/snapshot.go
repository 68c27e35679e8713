package trade

import (
	"fmt"
	"time"

	"github.com/rjm263/tradekit/internal/rule"
)

// Snapshot 是单笔交易的可序列化快照，覆盖数据字段、生命周期状态
// 以及每个规则实例的内部状态。
type Snapshot struct {
	ID         string        `json:"id"`
	Symbols    []string      `json:"symbols"`
	TradeType  []int         `json:"trade_type"`
	Capital    []float64     `json:"capital"`
	EntryTS    time.Time     `json:"entry_ts"`
	EntryPrice []float64     `json:"entry_price"`
	EntryVol   []float64     `json:"entry_vol"`
	Timeout    time.Duration `json:"timeout"`

	Status Status `json:"status"`
	Reason Reason `json:"reason,omitempty"`

	Stop   rule.State   `json:"stop"`
	Profit rule.State   `json:"profit"`
	Dates  []rule.State `json:"dates,omitempty"`
	Events []rule.State `json:"events,omitempty"`
	Vols   []rule.State `json:"vols,omitempty"`
}

// Snapshot 导出当前交易的完整快照。
func (t *Trade) Snapshot() (Snapshot, error) {
	stop, err := t.stop.State()
	if err != nil {
		return Snapshot{}, fmt.Errorf("trade: 导出止损状态失败: %w", err)
	}
	profit, err := t.profit.State()
	if err != nil {
		return Snapshot{}, fmt.Errorf("trade: 导出止盈状态失败: %w", err)
	}
	dates, err := statesOf(t.dates)
	if err != nil {
		return Snapshot{}, err
	}
	events, err := statesOf(t.events)
	if err != nil {
		return Snapshot{}, err
	}
	vols, err := statesOf(t.vols)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		ID:         t.ID,
		Symbols:    append([]string(nil), t.Symbols...),
		TradeType:  append([]int(nil), t.TradeType...),
		Capital:    append([]float64(nil), t.Capital...),
		EntryTS:    t.EntryTS,
		EntryPrice: append([]float64(nil), t.EntryPrice...),
		EntryVol:   append([]float64(nil), t.EntryVol...),
		Timeout:    t.Timeout,
		Status:     t.status,
		Reason:     t.reason,
		Stop:       stop,
		Profit:     profit,
		Dates:      dates,
		Events:     events,
		Vols:       vols,
	}, nil
}

func statesOf(rules []rule.Rule) ([]rule.State, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	states := make([]rule.State, 0, len(rules))
	for _, r := range rules {
		s, err := r.State()
		if err != nil {
			return nil, fmt.Errorf("trade: 导出规则状态失败: %w", err)
		}
		states = append(states, s)
	}
	return states, nil
}

// Restore 从快照还原交易，规则实例通过各自注册表重建，
// 阈值状态与快照时刻一致。
func Restore(snap Snapshot, reg *rule.RegistrySet) (*Trade, error) {
	if reg == nil {
		return nil, fmt.Errorf("trade: 规则注册表不能为空")
	}

	stop, err := reg.Stop.Restore(snap.Stop)
	if err != nil {
		return nil, err
	}
	profit, err := reg.Profit.Restore(snap.Profit)
	if err != nil {
		return nil, err
	}
	dates, err := restoreAll(reg.Datetime, snap.Dates)
	if err != nil {
		return nil, err
	}
	events, err := restoreAll(reg.Event, snap.Events)
	if err != nil {
		return nil, err
	}
	vols, err := restoreAll(reg.Volume, snap.Vols)
	if err != nil {
		return nil, err
	}

	status := snap.Status
	if status == "" {
		status = StatusOpen
	}

	return &Trade{
		ID:         snap.ID,
		Symbols:    append([]string(nil), snap.Symbols...),
		TradeType:  append([]int(nil), snap.TradeType...),
		Capital:    append([]float64(nil), snap.Capital...),
		EntryTS:    snap.EntryTS,
		EntryPrice: append([]float64(nil), snap.EntryPrice...),
		EntryVol:   append([]float64(nil), snap.EntryVol...),
		Timeout:    snap.Timeout,
		status:     status,
		reason:     snap.Reason,
		stop:       stop,
		profit:     profit,
		dates:      dates,
		events:     events,
		vols:       vols,
	}, nil
}

func restoreAll(reg *rule.Registry, states []rule.State) ([]rule.Rule, error) {
	if len(states) == 0 {
		return nil, nil
	}
	rules := make([]rule.Rule, 0, len(states))
	for _, s := range states {
		r, err := reg.Restore(s)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}
