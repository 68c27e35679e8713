package rule

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/rjm263/tradekit/internal/market"
)

const (
	// StopConstant 为固定价差止损。
	StopConstant = "constant"
	// StopTrailing 为分段移动止损。
	StopTrailing = "trailing"
)

// priceHit 检查价位规则的触发：多头以Low触及、空头以High触及为准，
// 全部标的同时触及才算命中。
func priceHit(level []float64, tradeType []int, bar market.Bar, isStop bool) bool {
	if len(bar.Low) < len(level) || len(bar.High) < len(level) {
		return false
	}
	for i := range level {
		long := tradeType[i] == 1
		if isStop != long {
			// 空头止损与多头止盈都在价格上行时触发
			if bar.High[i] < level[i] {
				return false
			}
		} else {
			if bar.Low[i] > level[i] {
				return false
			}
		}
	}
	return true
}

type constantStopState struct {
	EntryPrice []float64 `json:"entry_price"`
	TradeType  []int     `json:"trade_type"`
	Diff       float64   `json:"diff"`
	Level      []float64 `json:"level"`
}

// constantStop 在入场价下方（空头为上方）固定价差处设置止损位。
type constantStop struct {
	entryPrice []float64
	tradeType  []int
	diff       float64
	level      []float64
}

type constantStopParams struct {
	Diff float64 `mapstructure:"diff"`
}

func newConstantStop(params map[string]any, args Args) (Rule, error) {
	var p constantStopParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Diff <= 0 {
		return nil, fmt.Errorf("%w: diff 必须大于0", ErrInvalidParams)
	}
	if len(args.EntryPrice) == 0 || len(args.EntryPrice) != len(args.TradeType) {
		return nil, fmt.Errorf("%w: 入场价格与方向向量长度不一致", ErrInvalidParams)
	}

	level := make([]float64, len(args.EntryPrice))
	for i := range level {
		level[i] = args.EntryPrice[i] - float64(args.TradeType[i])*p.Diff
	}

	return &constantStop{
		entryPrice: append([]float64(nil), args.EntryPrice...),
		tradeType:  append([]int(nil), args.TradeType...),
		diff:       p.Diff,
		level:      level,
	}, nil
}

func restoreConstantStop(payload []byte) (Rule, error) {
	var st constantStopState
	if err := sonic.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("rule: 解析止损状态失败: %w", err)
	}
	return &constantStop{
		entryPrice: st.EntryPrice,
		tradeType:  st.TradeType,
		diff:       st.Diff,
		level:      st.Level,
	}, nil
}

func (s *constantStop) Hit(bar market.Bar) bool {
	return priceHit(s.level, s.tradeType, bar, true)
}

func (s *constantStop) ExitMask(window []market.Bar) []bool {
	return maskOf(s, window)
}

func (s *constantStop) Update(bar market.Bar) {}

func (s *constantStop) State() (State, error) {
	payload, err := sonic.Marshal(constantStopState{
		EntryPrice: s.entryPrice,
		TradeType:  s.tradeType,
		Diff:       s.diff,
		Level:      s.level,
	})
	if err != nil {
		return State{}, fmt.Errorf("rule: 序列化止损状态失败: %w", err)
	}
	return State{Name: StopConstant, Payload: payload}, nil
}

type trailingStopState struct {
	EntryPrice []float64   `json:"entry_price"`
	TradeType  []int       `json:"trade_type"`
	Bps        float64     `json:"bps"`
	Window     int         `json:"window"`
	Pct        float64     `json:"pct"`
	Level      []float64   `json:"level"`
	Buffer     [][]float64 `json:"buffer"`
}

// trailingStop 每累积window个Bar后，依据区间极值重新抬升（空头压低）止损位。
type trailingStop struct {
	entryPrice []float64
	tradeType  []int
	bps        float64
	window     int
	pct        float64
	level      []float64
	buffer     [][]float64
}

type trailingStopParams struct {
	Bps    float64 `mapstructure:"bps"`
	Window int     `mapstructure:"window"`
	Pct    float64 `mapstructure:"pct"`
}

func newTrailingStop(params map[string]any, args Args) (Rule, error) {
	var p trailingStopParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Bps <= 0 {
		return nil, fmt.Errorf("%w: bps 必须大于0", ErrInvalidParams)
	}
	if p.Window <= 1 {
		return nil, fmt.Errorf("%w: window 必须大于1", ErrInvalidParams)
	}
	if p.Pct < 0 || p.Pct > 1 {
		return nil, fmt.Errorf("%w: pct 必须位于[0,1]", ErrInvalidParams)
	}
	if len(args.EntryPrice) == 0 || len(args.EntryPrice) != len(args.TradeType) {
		return nil, fmt.Errorf("%w: 入场价格与方向向量长度不一致", ErrInvalidParams)
	}

	level := make([]float64, len(args.EntryPrice))
	for i := range level {
		level[i] = args.EntryPrice[i] * (1 - float64(args.TradeType[i])*p.Bps/10000)
	}

	return &trailingStop{
		entryPrice: append([]float64(nil), args.EntryPrice...),
		tradeType:  append([]int(nil), args.TradeType...),
		bps:        p.Bps,
		window:     p.Window,
		pct:        p.Pct,
		level:      level,
	}, nil
}

func restoreTrailingStop(payload []byte) (Rule, error) {
	var st trailingStopState
	if err := sonic.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("rule: 解析移动止损状态失败: %w", err)
	}
	return &trailingStop{
		entryPrice: st.EntryPrice,
		tradeType:  st.TradeType,
		bps:        st.Bps,
		window:     st.Window,
		pct:        st.Pct,
		level:      st.Level,
		buffer:     st.Buffer,
	}, nil
}

func (s *trailingStop) Hit(bar market.Bar) bool {
	return priceHit(s.level, s.tradeType, bar, true)
}

func (s *trailingStop) ExitMask(window []market.Bar) []bool {
	return maskOf(s, window)
}

// Update 累积收盘价，满窗后按区间极值重算止损位并清空缓冲。
func (s *trailingStop) Update(bar market.Bar) {
	if len(bar.Close) < len(s.entryPrice) {
		return
	}
	s.buffer = append(s.buffer, append([]float64(nil), bar.Close[:len(s.entryPrice)]...))
	if len(s.buffer) < s.window {
		return
	}

	ref := s.buffer[0]
	for i := range s.level {
		extreme := s.buffer[0][i]
		for _, closes := range s.buffer[1:] {
			if s.tradeType[i] == 1 {
				if closes[i] > extreme {
					extreme = closes[i]
				}
			} else {
				if closes[i] < extreme {
					extreme = closes[i]
				}
			}
		}
		s.level[i] = extreme*(1-float64(s.tradeType[i])*s.bps/10000) + s.pct*(extreme-ref[i])
	}
	s.buffer = s.buffer[:0]
}

func (s *trailingStop) State() (State, error) {
	payload, err := sonic.Marshal(trailingStopState{
		EntryPrice: s.entryPrice,
		TradeType:  s.tradeType,
		Bps:        s.bps,
		Window:     s.window,
		Pct:        s.pct,
		Level:      s.level,
		Buffer:     s.buffer,
	})
	if err != nil {
		return State{}, fmt.Errorf("rule: 序列化移动止损状态失败: %w", err)
	}
	return State{Name: StopTrailing, Payload: payload}, nil
}
