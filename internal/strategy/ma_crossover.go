package strategy

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"github.com/markcheno/go-talib"

	"github.com/rjm263/tradekit/internal/market"
)

// NameMACrossover 是内置均线交叉策略的注册名。
const NameMACrossover = "ma_crossover"

type maCrossoverParams struct {
	Fast    int           `mapstructure:"fast"`
	Slow    int           `mapstructure:"slow"`
	Capital float64       `mapstructure:"capital"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// maCrossover 在首个标的的收盘价上计算快慢均线，
// 金叉开多、死叉开空，资金在全部标的上均分。
type maCrossover struct {
	symbols []string
	params  maCrossoverParams

	prevFast float64
	prevSlow float64
	seeded   bool
}

type maCrossoverState struct {
	PrevFast float64 `json:"prev_fast"`
	PrevSlow float64 `json:"prev_slow"`
	Seeded   bool    `json:"seeded"`
}

func newMACrossover(cfg Config) (Strategy, error) {
	var p maCrossoverParams
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("strategy: 创建参数解码器失败: %w", err)
	}
	if err := decoder.Decode(cfg.Params); err != nil {
		return nil, fmt.Errorf("strategy: 解析 %s 参数失败: %w", NameMACrossover, err)
	}

	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("strategy: %s 需要至少一个标的", NameMACrossover)
	}
	if p.Fast <= 0 || p.Slow <= 0 || p.Fast >= p.Slow {
		return nil, fmt.Errorf("strategy: %s 均线周期非法 fast=%d slow=%d", NameMACrossover, p.Fast, p.Slow)
	}
	if p.Capital <= 0 {
		return nil, fmt.Errorf("strategy: %s capital 必须为正", NameMACrossover)
	}

	return &maCrossover{
		symbols: append([]string(nil), cfg.Symbols...),
		params:  p,
	}, nil
}

func (s *maCrossover) Name() string {
	return NameMACrossover
}

func (s *maCrossover) Symbols() []string {
	return append([]string(nil), s.symbols...)
}

func (s *maCrossover) Window() int {
	return s.params.Slow + 1
}

func (s *maCrossover) signalAt(ts time.Time, tradeType int) Signal {
	n := len(s.symbols)
	types := make([]int, n)
	capital := make([]float64, n)
	per := s.params.Capital / float64(n)
	for i := range types {
		types[i] = tradeType
		capital[i] = per
	}
	return Signal{
		ID:        uuid.NewString(),
		Symbols:   append([]string(nil), s.symbols...),
		TradeType: types,
		Capital:   capital,
		EntryTS:   ts,
		Timeout:   s.params.Timeout,
	}
}

// Signals 在完整序列上一次性找出全部交叉点。
func (s *maCrossover) Signals(series market.Series) ([]Signal, error) {
	closes := series.Closes(0)
	if len(closes) <= s.params.Slow {
		return nil, nil
	}

	fastMA := talib.Sma(closes, s.params.Fast)
	slowMA := talib.Sma(closes, s.params.Slow)

	var signals []Signal
	for i := s.params.Slow; i < len(closes); i++ {
		prevDiff := fastMA[i-1] - slowMA[i-1]
		curDiff := fastMA[i] - slowMA[i]
		switch {
		case prevDiff <= 0 && curDiff > 0:
			signals = append(signals, s.signalAt(series.Bars[i].Ts, 1))
		case prevDiff >= 0 && curDiff < 0:
			signals = append(signals, s.signalAt(series.Bars[i].Ts, -1))
		}
	}
	return signals, nil
}

// OnBar 基于滚动窗口增量判断交叉，上一Bar的均线值保存在策略状态里。
func (s *maCrossover) OnBar(ts time.Time, bar market.Bar, history []market.Bar) ([]Signal, error) {
	if len(history) < s.params.Slow {
		return nil, nil
	}

	closes := make([]float64, len(history))
	for i, b := range history {
		if b.NumSymbols() == 0 {
			return nil, fmt.Errorf("strategy: %s 收到空Bar", NameMACrossover)
		}
		closes[i] = b.Close[0]
	}

	fastMA := talib.Sma(closes, s.params.Fast)
	slowMA := talib.Sma(closes, s.params.Slow)
	curFast := fastMA[len(fastMA)-1]
	curSlow := slowMA[len(slowMA)-1]

	var signals []Signal
	if s.seeded {
		prevDiff := s.prevFast - s.prevSlow
		curDiff := curFast - curSlow
		switch {
		case prevDiff <= 0 && curDiff > 0:
			signals = append(signals, s.signalAt(ts, 1))
		case prevDiff >= 0 && curDiff < 0:
			signals = append(signals, s.signalAt(ts, -1))
		}
	}

	s.prevFast = curFast
	s.prevSlow = curSlow
	s.seeded = true
	return signals, nil
}

// State 导出增量判断所需的均线状态。
func (s *maCrossover) State() ([]byte, error) {
	payload, err := sonic.Marshal(maCrossoverState{
		PrevFast: s.prevFast,
		PrevSlow: s.prevSlow,
		Seeded:   s.seeded,
	})
	if err != nil {
		return nil, fmt.Errorf("strategy: 序列化 %s 状态失败: %w", NameMACrossover, err)
	}
	return payload, nil
}

// RestoreState 从检查点还原均线状态。
func (s *maCrossover) RestoreState(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var st maCrossoverState
	if err := sonic.Unmarshal(payload, &st); err != nil {
		return fmt.Errorf("strategy: 还原 %s 状态失败: %w", NameMACrossover, err)
	}
	s.prevFast = st.PrevFast
	s.prevSlow = st.PrevSlow
	s.seeded = st.Seeded
	return nil
}
