package rule

import "go.uber.org/multierr"

// RegisterBuiltins 把内置规则实现注册进给定注册表组。
// 这是显式的启动步骤：注册表在此之后只读。
func RegisterBuiltins(set *RegistrySet) error {
	var err error

	err = multierr.Append(err, set.Stop.Register(StopConstant, newConstantStop, restoreConstantStop))
	err = multierr.Append(err, set.Stop.Register(StopTrailing, newTrailingStop, restoreTrailingStop))
	err = multierr.Append(err, set.Profit.Register(ProfitConstant, newConstantProfit, restoreConstantProfit))
	err = multierr.Append(err, set.Datetime.Register(DatetimeWeekday, newWeekdayRule, restoreWeekdayRule))
	err = multierr.Append(err, set.Datetime.Register(DatetimeTimeInterval, newTimeIntervalRule, restoreTimeIntervalRule))
	err = multierr.Append(err, set.Event.Register(EventCalendar, newCalendarEventRule, restoreCalendarEventRule))
	err = multierr.Append(err, set.Volume.Register(VolumeInterval, newVolumeIntervalRule, restoreVolumeIntervalRule))

	return err
}

// NewBuiltinRegistrySet 创建并填充一组内置规则注册表。
func NewBuiltinRegistrySet() (*RegistrySet, error) {
	set := NewRegistrySet()
	if err := RegisterBuiltins(set); err != nil {
		return nil, err
	}
	return set, nil
}
