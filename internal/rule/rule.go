package rule

import (
	"encoding/json"
	"fmt"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"

	"github.com/rjm263/tradekit/internal/market"
)

// Kind 标识规则类别。
type Kind string

const (
	KindStop     Kind = "stop"
	KindProfit   Kind = "profit"
	KindDatetime Kind = "datetime"
	KindEvent    Kind = "event"
	KindVolume   Kind = "volume"
)

// Spec 描述一条规则的配置：注册名加参数表。
type Spec struct {
	Name   string         `mapstructure:"name" json:"name"`
	Params map[string]any `mapstructure:"params" json:"params"`
}

// SpecSet 汇总一笔交易涉及的全部规则配置。
type SpecSet struct {
	Stop   Spec   `mapstructure:"stop" json:"stop"`
	Profit Spec   `mapstructure:"profit" json:"profit"`
	Dates  []Spec `mapstructure:"dates" json:"dates"`
	Events []Spec `mapstructure:"events" json:"events"`
	Vols   []Spec `mapstructure:"vols" json:"vols"`
}

// Args 提供构造规则实例所需的入场上下文，各向量按标的下标对齐。
type Args struct {
	EntryPrice []float64
	EntryVol   []float64
	TradeType  []int
}

// Rule 是五类规则共享的能力契约。
//
// 布尔约定（全局统一）：限制类规则(datetime/event/volume)的 Hit 返回 true
// 表示当前Bar允许进行退出评估，false 表示禁评；价格类规则(stop/profit)的
// Hit 返回 true 表示价位被触发。ExitMask 在任意窗口上必须与逐条调用 Hit
// 的结果逐位一致。阈值状态只能通过 Update 改变。
type Rule interface {
	Hit(bar market.Bar) bool
	ExitMask(window []market.Bar) []bool
	Update(bar market.Bar)
	State() (State, error)
}

// State 是规则的序列化形态，Name 用于在注册表中反查还原器。
type State struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// maskOf 用逐Bar调用 Hit 的方式生成掩码，保证与 Hit 的逐位一致性。
func maskOf(r Rule, window []market.Bar) []bool {
	mask := make([]bool, len(window))
	for i, bar := range window {
		mask[i] = r.Hit(bar)
	}
	return mask
}

// decodeParams 把参数表解码到具体规则的选项结构体。
func decodeParams(params map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return fmt.Errorf("rule: 构造参数解码器失败: %w", err)
	}
	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// broadcast 把标量或向量参数展开为与标的数量等长的向量。
// 向量长度与标的数量不一致属于配置错误，不回退到标量。
func broadcast(values []float64, scalar float64, n int) ([]float64, error) {
	if len(values) > 0 {
		if len(values) != n {
			return nil, fmt.Errorf("%w: diffs 长度 %d 与标的数量 %d 不一致", ErrInvalidParams, len(values), n)
		}
		return append([]float64(nil), values...), nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = scalar
	}
	return out, nil
}
