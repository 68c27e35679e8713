package rule

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/rjm263/tradekit/internal/market"
)

// ProfitConstant 为固定价差止盈。
const ProfitConstant = "constant"

type constantProfitState struct {
	EntryPrice []float64 `json:"entry_price"`
	TradeType  []int     `json:"trade_type"`
	Diff       []float64 `json:"diff"`
	Level      []float64 `json:"level"`
}

// constantProfit 在入场价上方（空头为下方）固定价差处设置止盈位。
type constantProfit struct {
	entryPrice []float64
	tradeType  []int
	diff       []float64
	level      []float64
}

type constantProfitParams struct {
	Diff    float64   `mapstructure:"diff"`
	PerSymb []float64 `mapstructure:"diffs"`
}

func newConstantProfit(params map[string]any, args Args) (Rule, error) {
	var p constantProfitParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Diff <= 0 && len(p.PerSymb) == 0 {
		return nil, fmt.Errorf("%w: diff 或 diffs 必须提供正值", ErrInvalidParams)
	}
	if len(args.EntryPrice) == 0 || len(args.EntryPrice) != len(args.TradeType) {
		return nil, fmt.Errorf("%w: 入场价格与方向向量长度不一致", ErrInvalidParams)
	}

	diff, err := broadcast(p.PerSymb, p.Diff, len(args.EntryPrice))
	if err != nil {
		return nil, err
	}
	level := make([]float64, len(args.EntryPrice))
	for i := range level {
		if diff[i] <= 0 {
			return nil, fmt.Errorf("%w: 第%d个diff必须大于0", ErrInvalidParams, i)
		}
		level[i] = args.EntryPrice[i] + float64(args.TradeType[i])*diff[i]
	}

	return &constantProfit{
		entryPrice: append([]float64(nil), args.EntryPrice...),
		tradeType:  append([]int(nil), args.TradeType...),
		diff:       diff,
		level:      level,
	}, nil
}

func restoreConstantProfit(payload []byte) (Rule, error) {
	var st constantProfitState
	if err := sonic.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("rule: 解析止盈状态失败: %w", err)
	}
	return &constantProfit{
		entryPrice: st.EntryPrice,
		tradeType:  st.TradeType,
		diff:       st.Diff,
		level:      st.Level,
	}, nil
}

func (p *constantProfit) Hit(bar market.Bar) bool {
	return priceHit(p.level, p.tradeType, bar, false)
}

func (p *constantProfit) ExitMask(window []market.Bar) []bool {
	return maskOf(p, window)
}

func (p *constantProfit) Update(bar market.Bar) {}

func (p *constantProfit) State() (State, error) {
	payload, err := sonic.Marshal(constantProfitState{
		EntryPrice: p.entryPrice,
		TradeType:  p.tradeType,
		Diff:       p.diff,
		Level:      p.level,
	})
	if err != nil {
		return State{}, fmt.Errorf("rule: 序列化止盈状态失败: %w", err)
	}
	return State{Name: ProfitConstant, Payload: payload}, nil
}
