package rule

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/rjm263/tradekit/internal/market"
)

// VolumeInterval 仅在成交量落入配置区间时允许退出评估。
const VolumeInterval = "interval"

type volumeBand struct {
	Min float64 `mapstructure:"min" json:"min"`
	Max float64 `mapstructure:"max" json:"max"`
}

type volumeIntervalState struct {
	EntryVol  []float64    `json:"entry_vol"`
	TradeType []int        `json:"trade_type"`
	Bands     []volumeBand `json:"bands"`
}

// volumeIntervalRule 要求所有标的的当前成交量均落入某个区间，否则禁评。
type volumeIntervalRule struct {
	entryVol  []float64
	tradeType []int
	bands     []volumeBand
}

type volumeIntervalParams struct {
	Intervals []volumeBand `mapstructure:"intervals"`
}

func newVolumeIntervalRule(params map[string]any, args Args) (Rule, error) {
	var p volumeIntervalParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p.Intervals) == 0 {
		return nil, fmt.Errorf("%w: intervals 不能为空", ErrInvalidParams)
	}
	for _, band := range p.Intervals {
		if band.Min > band.Max {
			return nil, fmt.Errorf("%w: 区间 [%v, %v] 上下界颠倒", ErrInvalidParams, band.Min, band.Max)
		}
	}
	return &volumeIntervalRule{
		entryVol:  append([]float64(nil), args.EntryVol...),
		tradeType: append([]int(nil), args.TradeType...),
		bands:     p.Intervals,
	}, nil
}

func restoreVolumeIntervalRule(payload []byte) (Rule, error) {
	var st volumeIntervalState
	if err := sonic.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("rule: 解析成交量限制状态失败: %w", err)
	}
	return &volumeIntervalRule{
		entryVol:  st.EntryVol,
		tradeType: st.TradeType,
		bands:     st.Bands,
	}, nil
}

func (r *volumeIntervalRule) inBand(vol float64) bool {
	for _, band := range r.bands {
		if vol >= band.Min && vol <= band.Max {
			return true
		}
	}
	return false
}

// Hit 返回 true 表示当前Bar允许退出评估。
func (r *volumeIntervalRule) Hit(bar market.Bar) bool {
	for _, vol := range bar.Volume {
		if !r.inBand(vol) {
			return false
		}
	}
	return true
}

func (r *volumeIntervalRule) ExitMask(window []market.Bar) []bool {
	return maskOf(r, window)
}

func (r *volumeIntervalRule) Update(bar market.Bar) {}

func (r *volumeIntervalRule) State() (State, error) {
	payload, err := sonic.Marshal(volumeIntervalState{
		EntryVol:  r.entryVol,
		TradeType: r.tradeType,
		Bands:     r.bands,
	})
	if err != nil {
		return State{}, fmt.Errorf("rule: 序列化成交量限制状态失败: %w", err)
	}
	return State{Name: VolumeInterval, Payload: payload}, nil
}
