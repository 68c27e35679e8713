package strategy

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/rjm263/tradekit/internal/market"
)

// ErrInvalidSignal 表示开仓信号字段非法。
var ErrInvalidSignal = errors.New("strategy: 信号非法")

// Signal 是策略产出的开仓指令，逐标的向量长度必须与 Symbols 一致。
type Signal struct {
	ID        string        `json:"id"`
	Symbols   []string      `json:"symbols"`
	TradeType []int         `json:"trade_type"`
	Capital   []float64     `json:"capital"`
	EntryTS   time.Time     `json:"entry_ts"`
	Timeout   time.Duration `json:"timeout"`
}

// Validate 校验信号的结构完整性，汇总全部问题后一次返回。
func (s Signal) Validate() error {
	var errs error
	if s.ID == "" {
		errs = multierr.Append(errs, fmt.Errorf("%w: id 为空", ErrInvalidSignal))
	}
	n := len(s.Symbols)
	if n == 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: symbols 为空", ErrInvalidSignal))
	}
	if len(s.TradeType) != n {
		errs = multierr.Append(errs, fmt.Errorf("%w: trade_type 长度 %d 与 symbols 长度 %d 不一致", ErrInvalidSignal, len(s.TradeType), n))
	}
	if len(s.Capital) != n {
		errs = multierr.Append(errs, fmt.Errorf("%w: capital 长度 %d 与 symbols 长度 %d 不一致", ErrInvalidSignal, len(s.Capital), n))
	}
	for i, tt := range s.TradeType {
		if tt != 1 && tt != -1 {
			errs = multierr.Append(errs, fmt.Errorf("%w: trade_type[%d]=%d 只允许 1 或 -1", ErrInvalidSignal, i, tt))
		}
	}
	for i, c := range s.Capital {
		if c <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("%w: capital[%d]=%f 必须为正", ErrInvalidSignal, i, c))
		}
	}
	if s.EntryTS.IsZero() {
		errs = multierr.Append(errs, fmt.Errorf("%w: entry_ts 为零值", ErrInvalidSignal))
	}
	return errs
}

// Strategy 是所有策略的公共元信息。
type Strategy interface {
	// Name 返回策略注册名。
	Name() string
	// Symbols 返回策略交易的标的集合。
	Symbols() []string
	// Window 返回策略决策所需的最小历史Bar数。
	Window() int
}

// VectorStrategy 一次性在完整历史序列上产出全部信号，用于批量回测。
type VectorStrategy interface {
	Strategy
	Signals(series market.Series) ([]Signal, error)
}

// BarStrategy 逐Bar决策，history 为到当前Bar为止的滚动窗口。
type BarStrategy interface {
	Strategy
	OnBar(ts time.Time, bar market.Bar, history []market.Bar) ([]Signal, error)
}

// Stateful 支持检查点快照的策略需实现该接口，
// 无内部状态的策略可以不实现，快照时记空即可。
type Stateful interface {
	State() ([]byte, error)
	RestoreState(payload []byte) error
}
