package rule

import (
	"errors"
	"testing"
	"time"

	"github.com/rjm263/tradekit/internal/market"
)

func makeBar(ts time.Time, high, low, close, volume float64) market.Bar {
	return market.Bar{
		Ts:     ts,
		Open:   []float64{close},
		High:   []float64{high},
		Low:    []float64{low},
		Close:  []float64{close},
		Volume: []float64{volume},
	}
}

func longArgs(entry float64) Args {
	return Args{
		EntryPrice: []float64{entry},
		EntryVol:   []float64{1000},
		TradeType:  []int{1},
	}
}

func shortArgs(entry float64) Args {
	return Args{
		EntryPrice: []float64{entry},
		EntryVol:   []float64{1000},
		TradeType:  []int{-1},
	}
}

func mustCreate(t *testing.T, reg *Registry, spec Spec, args Args) Rule {
	t.Helper()
	r, err := reg.Create(spec, args)
	if err != nil {
		t.Fatalf("Create(%s) returned error: %v", spec.Name, err)
	}
	return r
}

func builtinSet(t *testing.T) *RegistrySet {
	t.Helper()
	set, err := NewBuiltinRegistrySet()
	if err != nil {
		t.Fatalf("NewBuiltinRegistrySet returned error: %v", err)
	}
	return set
}

func TestRegistryUnknownName(t *testing.T) {
	set := builtinSet(t)

	_, err := set.Stop.Create(Spec{Name: "missing"}, longArgs(100))
	if err == nil || !errors.Is(err, ErrUnknownRule) {
		t.Fatalf("expected ErrUnknownRule, got %v", err)
	}
}

func TestRegistryDuplicateRegister(t *testing.T) {
	set := builtinSet(t)

	err := set.Stop.Register(StopConstant, newConstantStop, restoreConstantStop)
	if err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestConstantStopLongHit(t *testing.T) {
	set := builtinSet(t)
	stop := mustCreate(t, set.Stop, Spec{Name: StopConstant, Params: map[string]any{"diff": 5.0}}, longArgs(100))

	ts := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	// level = 95，Low 触及即命中
	if stop.Hit(makeBar(ts, 101, 96, 99, 500)) {
		t.Errorf("expected no hit above stop level")
	}
	if !stop.Hit(makeBar(ts, 101, 95, 99, 500)) {
		t.Errorf("expected hit when low touches stop level")
	}
	if !stop.Hit(makeBar(ts, 101, 90, 92, 500)) {
		t.Errorf("expected hit when low crosses stop level")
	}
}

func TestConstantStopShortHit(t *testing.T) {
	set := builtinSet(t)
	stop := mustCreate(t, set.Stop, Spec{Name: StopConstant, Params: map[string]any{"diff": 5.0}}, shortArgs(100))

	ts := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	// 空头 level = 105，High 触及即命中
	if stop.Hit(makeBar(ts, 104, 99, 101, 500)) {
		t.Errorf("expected no hit below short stop level")
	}
	if !stop.Hit(makeBar(ts, 105, 99, 101, 500)) {
		t.Errorf("expected hit when high touches short stop level")
	}
}

func TestConstantProfitLongHit(t *testing.T) {
	set := builtinSet(t)
	profit := mustCreate(t, set.Profit, Spec{Name: ProfitConstant, Params: map[string]any{"diff": 10.0}}, longArgs(100))

	ts := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	// level = 110，High 触及即命中
	if profit.Hit(makeBar(ts, 109, 100, 105, 500)) {
		t.Errorf("expected no hit below profit level")
	}
	if !profit.Hit(makeBar(ts, 110, 100, 108, 500)) {
		t.Errorf("expected hit when high touches profit level")
	}
}

func TestConstantProfitInvalidParams(t *testing.T) {
	set := builtinSet(t)

	_, err := set.Profit.Create(Spec{Name: ProfitConstant, Params: map[string]any{"diff": -1.0}}, longArgs(100))
	if err == nil || !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}

func TestTrailingStopLevelMoves(t *testing.T) {
	set := builtinSet(t)
	stop := mustCreate(t, set.Stop, Spec{
		Name:   StopTrailing,
		Params: map[string]any{"bps": 100.0, "window": 2, "pct": 0.0},
	}, longArgs(100))

	ts := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	// 初始 level = 100*(1-0.01) = 99
	if stop.Hit(makeBar(ts, 101, 99.5, 100, 500)) {
		t.Errorf("expected no hit above initial trailing level")
	}

	// 两根上涨Bar后满窗，极值110 → level = 110*0.99 = 108.9
	stop.Update(makeBar(ts, 106, 104, 105, 500))
	stop.Update(makeBar(ts.Add(time.Hour), 111, 109, 110, 500))

	if !stop.Hit(makeBar(ts.Add(2*time.Hour), 112, 108, 109, 500)) {
		t.Errorf("expected hit after trailing level moved up")
	}
}

func TestWeekdayRulePolarity(t *testing.T) {
	set := builtinSet(t)
	// 2024-03-04 是周一(1)
	r := mustCreate(t, set.Datetime, Spec{Name: DatetimeWeekday, Params: map[string]any{"days": []int{1}}}, longArgs(100))

	monday := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	if r.Hit(makeBar(monday, 100, 99, 100, 500)) {
		t.Errorf("expected embargo on configured weekday")
	}
	if !r.Hit(makeBar(tuesday, 100, 99, 100, 500)) {
		t.Errorf("expected permit outside configured weekdays")
	}
}

func TestTimeIntervalRuleWrapAround(t *testing.T) {
	set := builtinSet(t)
	r := mustCreate(t, set.Datetime, Spec{
		Name: DatetimeTimeInterval,
		Params: map[string]any{
			"intervals": []map[string]any{{"start": "22:00:00", "end": "02:00:00"}},
		},
	}, longArgs(100))

	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	if r.Hit(makeBar(day.Add(23*time.Hour), 100, 99, 100, 500)) {
		t.Errorf("expected embargo inside wrap-around interval (23:00)")
	}
	if r.Hit(makeBar(day.Add(1*time.Hour), 100, 99, 100, 500)) {
		t.Errorf("expected embargo inside wrap-around interval (01:00)")
	}
	if !r.Hit(makeBar(day.Add(12*time.Hour), 100, 99, 100, 500)) {
		t.Errorf("expected permit outside interval (12:00)")
	}
}

func TestVolumeIntervalRule(t *testing.T) {
	set := builtinSet(t)
	r := mustCreate(t, set.Volume, Spec{
		Name: VolumeInterval,
		Params: map[string]any{
			"intervals": []map[string]any{{"min": 100.0, "max": 1000.0}},
		},
	}, longArgs(100))

	ts := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	if !r.Hit(makeBar(ts, 100, 99, 100, 500)) {
		t.Errorf("expected permit when volume inside band")
	}
	if r.Hit(makeBar(ts, 100, 99, 100, 50)) {
		t.Errorf("expected embargo when volume below band")
	}
	if r.Hit(makeBar(ts, 100, 99, 100, 2000)) {
		t.Errorf("expected embargo when volume above band")
	}
}

func TestCalendarEventRule(t *testing.T) {
	set := builtinSet(t)
	r := mustCreate(t, set.Event, Spec{
		Name:   EventCalendar,
		Params: map[string]any{"dates": []string{"2024-03-05"}},
	}, longArgs(100))

	if r.Hit(makeBar(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), 100, 99, 100, 500)) {
		t.Errorf("expected embargo on event date")
	}
	if !r.Hit(makeBar(time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC), 100, 99, 100, 500)) {
		t.Errorf("expected permit outside event dates")
	}
}

func TestExitMaskMatchesHit(t *testing.T) {
	set := builtinSet(t)
	args := longArgs(100)

	rules := []Rule{
		mustCreate(t, set.Stop, Spec{Name: StopConstant, Params: map[string]any{"diff": 5.0}}, args),
		mustCreate(t, set.Stop, Spec{Name: StopTrailing, Params: map[string]any{"bps": 100.0, "window": 3, "pct": 0.5}}, args),
		mustCreate(t, set.Profit, Spec{Name: ProfitConstant, Params: map[string]any{"diff": 10.0}}, args),
		mustCreate(t, set.Datetime, Spec{Name: DatetimeWeekday, Params: map[string]any{"days": []int{0, 6}}}, args),
		mustCreate(t, set.Datetime, Spec{Name: DatetimeTimeInterval, Params: map[string]any{
			"intervals": []map[string]any{{"start": "09:00:00", "end": "10:00:00"}},
		}}, args),
		mustCreate(t, set.Volume, Spec{Name: VolumeInterval, Params: map[string]any{
			"intervals": []map[string]any{{"min": 100.0, "max": 800.0}},
		}}, args),
		mustCreate(t, set.Event, Spec{Name: EventCalendar, Params: map[string]any{"dates": []string{"2024-03-04"}}}, args),
	}

	base := time.Date(2024, 3, 3, 8, 0, 0, 0, time.UTC)
	window := []market.Bar{
		makeBar(base, 104, 96, 100, 500),
		makeBar(base.Add(26*time.Hour), 112, 103, 108, 900),
		makeBar(base.Add(49*time.Hour), 101, 93, 95, 300),
		makeBar(base.Add(73*time.Hour), 118, 107, 112, 700),
	}

	for idx, r := range rules {
		mask := r.ExitMask(window)
		if len(mask) != len(window) {
			t.Fatalf("rule %d mask length mismatch: got %d want %d", idx, len(mask), len(window))
		}
		for i, bar := range window {
			if mask[i] != r.Hit(bar) {
				t.Errorf("rule %d mask[%d]=%v differs from Hit=%v", idx, i, mask[i], r.Hit(bar))
			}
		}
	}
}

func TestStateRoundTrip(t *testing.T) {
	set := builtinSet(t)
	args := longArgs(100)

	specs := []struct {
		reg  *Registry
		spec Spec
	}{
		{set.Stop, Spec{Name: StopConstant, Params: map[string]any{"diff": 5.0}}},
		{set.Stop, Spec{Name: StopTrailing, Params: map[string]any{"bps": 100.0, "window": 3, "pct": 0.5}}},
		{set.Profit, Spec{Name: ProfitConstant, Params: map[string]any{"diff": 10.0}}},
		{set.Datetime, Spec{Name: DatetimeWeekday, Params: map[string]any{"days": []int{1}}}},
		{set.Datetime, Spec{Name: DatetimeTimeInterval, Params: map[string]any{
			"intervals": []map[string]any{{"start": "09:00:00", "end": "10:00:00"}},
		}}},
		{set.Volume, Spec{Name: VolumeInterval, Params: map[string]any{
			"intervals": []map[string]any{{"min": 100.0, "max": 800.0}},
		}}},
		{set.Event, Spec{Name: EventCalendar, Params: map[string]any{"dates": []string{"2024-03-04"}}}},
	}

	base := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	probes := []market.Bar{
		makeBar(base, 104, 96, 100, 500),
		makeBar(base.Add(time.Hour), 112, 94, 108, 900),
		makeBar(base.Add(25*time.Hour), 101, 93, 95, 50),
	}

	for _, tc := range specs {
		original := mustCreate(t, tc.reg, tc.spec, args)
		// 推入部分Bar以产生可变状态
		original.Update(probes[0])

		state, err := original.State()
		if err != nil {
			t.Fatalf("State(%s) returned error: %v", tc.spec.Name, err)
		}

		restored, err := tc.reg.Restore(state)
		if err != nil {
			t.Fatalf("Restore(%s) returned error: %v", tc.spec.Name, err)
		}

		for i, bar := range probes {
			if got, want := restored.Hit(bar), original.Hit(bar); got != want {
				t.Errorf("%s restored Hit(probe %d)=%v, original=%v", tc.spec.Name, i, got, want)
			}
		}
	}
}

func TestTrailingStopStateKeepsBuffer(t *testing.T) {
	set := builtinSet(t)
	spec := Spec{Name: StopTrailing, Params: map[string]any{"bps": 100.0, "window": 3, "pct": 0.0}}

	original := mustCreate(t, set.Stop, spec, longArgs(100))
	continued := mustCreate(t, set.Stop, spec, longArgs(100))

	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	warm := []market.Bar{
		makeBar(base, 106, 104, 105, 500),
		makeBar(base.Add(time.Hour), 109, 107, 108, 500),
	}
	for _, bar := range warm {
		original.Update(bar)
		continued.Update(bar)
	}

	state, err := original.State()
	if err != nil {
		t.Fatalf("State returned error: %v", err)
	}
	restored, err := set.Stop.Restore(state)
	if err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}

	// 第三根满窗：还原实例必须与未中断实例得到同一止损位
	final := makeBar(base.Add(2*time.Hour), 111, 109, 110, 500)
	restored.Update(final)
	continued.Update(final)

	probe := makeBar(base.Add(3*time.Hour), 110, 108.8, 109, 500)
	if restored.Hit(probe) != continued.Hit(probe) {
		t.Errorf("restored trailing stop diverged from uninterrupted instance")
	}
}

func TestStaticRuleUpdateIdempotent(t *testing.T) {
	set := builtinSet(t)

	stop := mustCreate(t, set.Stop, Spec{Name: StopConstant, Params: map[string]any{"diff": 5.0}}, longArgs(100))
	profit := mustCreate(t, set.Profit, Spec{Name: ProfitConstant, Params: map[string]any{"diff": 10.0}}, longArgs(100))

	ts := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	probe := makeBar(ts.Add(time.Hour), 110.5, 94.5, 100, 500)

	wantStop := stop.Hit(probe)
	wantProfit := profit.Hit(probe)

	// 常量规则的阈值不随行情移动：任意次 Update 后判定不变
	for i := 0; i < 5; i++ {
		bar := makeBar(ts.Add(time.Duration(i)*time.Hour), 130, 70, 100+float64(i), 500)
		stop.Update(bar)
		profit.Update(bar)
	}

	if got := stop.Hit(probe); got != wantStop {
		t.Errorf("constant stop changed after updates: got %v want %v", got, wantStop)
	}
	if got := profit.Hit(probe); got != wantProfit {
		t.Errorf("constant profit changed after updates: got %v want %v", got, wantProfit)
	}
}

func TestConstantProfitDiffsLengthMismatch(t *testing.T) {
	set := builtinSet(t)

	args := Args{
		EntryPrice: []float64{100, 200},
		EntryVol:   []float64{1000, 1000},
		TradeType:  []int{1, 1},
	}

	// 三个diff对两个标的：必须报参数错误，而非退回标量
	_, err := set.Profit.Create(Spec{
		Name:   ProfitConstant,
		Params: map[string]any{"diff": 5.0, "diffs": []float64{5.0, 6.0, 7.0}},
	}, args)
	if err == nil || !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for mismatched diffs, got %v", err)
	}

	// 等长向量正常生效
	profit := mustCreate(t, set.Profit, Spec{
		Name:   ProfitConstant,
		Params: map[string]any{"diffs": []float64{10.0, 20.0}},
	}, args)

	ts := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	hit := market.Bar{
		Ts:     ts,
		Open:   []float64{100, 200},
		High:   []float64{110, 220},
		Low:    []float64{99, 199},
		Close:  []float64{105, 210},
		Volume: []float64{500, 500},
	}
	if !profit.Hit(hit) {
		t.Errorf("expected hit when every symbol touches its own level")
	}
}
