package rule

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/rjm263/tradekit/internal/market"
)

const (
	// DatetimeWeekday 按星期屏蔽退出评估。
	DatetimeWeekday = "weekday"
	// DatetimeTimeInterval 按日内时间区间屏蔽退出评估。
	DatetimeTimeInterval = "time_interval"
)

type weekdayRuleState struct {
	Days []int `json:"days"`
}

// weekdayRule 在配置的星期内禁止退出评估。
type weekdayRule struct {
	days map[time.Weekday]struct{}
}

type weekdayRuleParams struct {
	Days []int `mapstructure:"days"`
}

func newWeekdayRule(params map[string]any, _ Args) (Rule, error) {
	var p weekdayRuleParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p.Days) == 0 {
		return nil, fmt.Errorf("%w: days 不能为空", ErrInvalidParams)
	}
	days := make(map[time.Weekday]struct{}, len(p.Days))
	for _, d := range p.Days {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("%w: 星期 %d 必须位于[0,6]", ErrInvalidParams, d)
		}
		days[time.Weekday(d)] = struct{}{}
	}
	return &weekdayRule{days: days}, nil
}

func restoreWeekdayRule(payload []byte) (Rule, error) {
	var st weekdayRuleState
	if err := sonic.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("rule: 解析星期限制状态失败: %w", err)
	}
	days := make(map[time.Weekday]struct{}, len(st.Days))
	for _, d := range st.Days {
		days[time.Weekday(d)] = struct{}{}
	}
	return &weekdayRule{days: days}, nil
}

// Hit 返回 true 表示当前Bar允许退出评估。
func (r *weekdayRule) Hit(bar market.Bar) bool {
	_, blocked := r.days[bar.Ts.UTC().Weekday()]
	return !blocked
}

func (r *weekdayRule) ExitMask(window []market.Bar) []bool {
	return maskOf(r, window)
}

func (r *weekdayRule) Update(bar market.Bar) {}

func (r *weekdayRule) State() (State, error) {
	days := make([]int, 0, len(r.days))
	for d := range r.days {
		days = append(days, int(d))
	}
	payload, err := sonic.Marshal(weekdayRuleState{Days: days})
	if err != nil {
		return State{}, fmt.Errorf("rule: 序列化星期限制状态失败: %w", err)
	}
	return State{Name: DatetimeWeekday, Payload: payload}, nil
}

type timeInterval struct {
	Start string `mapstructure:"start" json:"start"`
	End   string `mapstructure:"end" json:"end"`
}

type timeIntervalRuleState struct {
	Intervals []timeInterval `json:"intervals"`
}

type secondsInterval struct {
	start int
	end   int
}

// timeIntervalRule 在配置的日内时间区间内禁止退出评估，支持跨午夜区间。
type timeIntervalRule struct {
	raw       []timeInterval
	intervals []secondsInterval
}

type timeIntervalRuleParams struct {
	Intervals []timeInterval `mapstructure:"intervals"`
}

func newTimeIntervalRule(params map[string]any, _ Args) (Rule, error) {
	var p timeIntervalRuleParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p.Intervals) == 0 {
		return nil, fmt.Errorf("%w: intervals 不能为空", ErrInvalidParams)
	}
	return buildTimeIntervalRule(p.Intervals)
}

func buildTimeIntervalRule(raw []timeInterval) (Rule, error) {
	intervals := make([]secondsInterval, 0, len(raw))
	for _, iv := range raw {
		start, err := parseDaySeconds(iv.Start)
		if err != nil {
			return nil, err
		}
		end, err := parseDaySeconds(iv.End)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, secondsInterval{start: start, end: end})
	}
	return &timeIntervalRule{raw: raw, intervals: intervals}, nil
}

func restoreTimeIntervalRule(payload []byte) (Rule, error) {
	var st timeIntervalRuleState
	if err := sonic.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("rule: 解析时间区间状态失败: %w", err)
	}
	return buildTimeIntervalRule(st.Intervals)
}

func parseDaySeconds(value string) (int, error) {
	t, err := time.Parse("15:04:05", value)
	if err != nil {
		return 0, fmt.Errorf("%w: 时间 %q 格式应为 HH:MM:SS", ErrInvalidParams, value)
	}
	return t.Hour()*3600 + t.Minute()*60 + t.Second(), nil
}

// Hit 返回 true 表示当前Bar允许退出评估。
func (r *timeIntervalRule) Hit(bar market.Bar) bool {
	ts := bar.Ts.UTC()
	sec := ts.Hour()*3600 + ts.Minute()*60 + ts.Second()
	for _, iv := range r.intervals {
		if iv.start <= iv.end {
			if sec >= iv.start && sec <= iv.end {
				return false
			}
		} else {
			// 跨午夜区间
			if sec >= iv.start || sec <= iv.end {
				return false
			}
		}
	}
	return true
}

func (r *timeIntervalRule) ExitMask(window []market.Bar) []bool {
	return maskOf(r, window)
}

func (r *timeIntervalRule) Update(bar market.Bar) {}

func (r *timeIntervalRule) State() (State, error) {
	payload, err := sonic.Marshal(timeIntervalRuleState{Intervals: r.raw})
	if err != nil {
		return State{}, fmt.Errorf("rule: 序列化时间区间状态失败: %w", err)
	}
	return State{Name: DatetimeTimeInterval, Payload: payload}, nil
}
