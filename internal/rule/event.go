package rule

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/rjm263/tradekit/internal/market"
)

// EventCalendar 在配置的事件日（如财报日）禁止退出评估。
// 事件日历的查询属于外部协作方，日期以参数形式注入。
const EventCalendar = "calendar"

const eventDateLayout = "2006-01-02"

type calendarEventState struct {
	Dates []string `json:"dates"`
}

type calendarEventRule struct {
	raw   []string
	dates map[string]struct{}
}

type calendarEventParams struct {
	Dates []string `mapstructure:"dates"`
}

func newCalendarEventRule(params map[string]any, _ Args) (Rule, error) {
	var p calendarEventParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return buildCalendarEventRule(p.Dates)
}

func buildCalendarEventRule(raw []string) (Rule, error) {
	dates := make(map[string]struct{}, len(raw))
	for _, d := range raw {
		if _, err := time.Parse(eventDateLayout, d); err != nil {
			return nil, fmt.Errorf("%w: 事件日期 %q 格式应为 YYYY-MM-DD", ErrInvalidParams, d)
		}
		dates[d] = struct{}{}
	}
	return &calendarEventRule{raw: raw, dates: dates}, nil
}

func restoreCalendarEventRule(payload []byte) (Rule, error) {
	var st calendarEventState
	if err := sonic.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("rule: 解析事件限制状态失败: %w", err)
	}
	return buildCalendarEventRule(st.Dates)
}

// Hit 返回 true 表示当前Bar允许退出评估。
func (r *calendarEventRule) Hit(bar market.Bar) bool {
	_, blocked := r.dates[bar.Ts.UTC().Format(eventDateLayout)]
	return !blocked
}

func (r *calendarEventRule) ExitMask(window []market.Bar) []bool {
	return maskOf(r, window)
}

func (r *calendarEventRule) Update(bar market.Bar) {}

func (r *calendarEventRule) State() (State, error) {
	payload, err := sonic.Marshal(calendarEventState{Dates: r.raw})
	if err != nil {
		return State{}, fmt.Errorf("rule: 序列化事件限制状态失败: %w", err)
	}
	return State{Name: EventCalendar, Payload: payload}, nil
}
