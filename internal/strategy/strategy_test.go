package strategy

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/rjm263/tradekit/internal/market"
)

func makeSeries(start time.Time, closes ...float64) market.Series {
	bars := make([]market.Bar, 0, len(closes))
	for i, c := range closes {
		bars = append(bars, market.Bar{
			Ts:     start.Add(time.Duration(i) * time.Hour),
			Open:   []float64{c},
			High:   []float64{c + 1},
			Low:    []float64{c - 1},
			Close:  []float64{c},
			Volume: []float64{100},
		})
	}
	return market.Series{Symbols: []string{"BTC/USDT:USDT"}, Bars: bars}
}

func TestSignalValidate(t *testing.T) {
	valid := Signal{
		ID:        "sig-1",
		Symbols:   []string{"BTC/USDT:USDT"},
		TradeType: []int{1},
		Capital:   []float64{1000},
		EntryTS:   time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid signal rejected: %v", err)
	}

	bad := Signal{
		Symbols:   []string{"BTC/USDT:USDT"},
		TradeType: []int{2},
		Capital:   []float64{-5},
	}
	err := bad.Validate()
	if err == nil || !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("expected ErrInvalidSignal, got %v", err)
	}
	// 全部问题一次汇总：id、方向、资金、入场时间
	if got := len(multierr.Errors(err)); got < 4 {
		t.Errorf("expected aggregated validation errors, got %d: %v", got, err)
	}
}

func TestRegistryUnknownStrategy(t *testing.T) {
	reg, err := NewBuiltinRegistry()
	if err != nil {
		t.Fatalf("NewBuiltinRegistry returned error: %v", err)
	}

	_, err = reg.Create("missing", Config{})
	if err == nil || !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func newTestCrossover(t *testing.T) Strategy {
	t.Helper()
	reg, err := NewBuiltinRegistry()
	if err != nil {
		t.Fatalf("NewBuiltinRegistry returned error: %v", err)
	}
	strat, err := reg.Create(NameMACrossover, Config{
		Symbols: []string{"BTC/USDT:USDT"},
		Params: map[string]any{
			"fast":    2,
			"slow":    3,
			"capital": 10000.0,
			"timeout": "72h",
		},
	})
	if err != nil {
		t.Fatalf("Create(%s) returned error: %v", NameMACrossover, err)
	}
	return strat
}

func TestMACrossoverInvalidParams(t *testing.T) {
	reg, err := NewBuiltinRegistry()
	if err != nil {
		t.Fatalf("NewBuiltinRegistry returned error: %v", err)
	}

	cases := []map[string]any{
		{"fast": 3, "slow": 2, "capital": 1000.0},
		{"fast": 0, "slow": 3, "capital": 1000.0},
		{"fast": 2, "slow": 3, "capital": 0.0},
	}
	for i, params := range cases {
		if _, err := reg.Create(NameMACrossover, Config{Symbols: []string{"X"}, Params: params}); err == nil {
			t.Errorf("case %d: expected parameter error", i)
		}
	}
}

func TestMACrossoverSignals(t *testing.T) {
	strat := newTestCrossover(t)
	vs, ok := strat.(VectorStrategy)
	if !ok {
		t.Fatalf("ma_crossover must implement VectorStrategy")
	}

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	series := makeSeries(start, 10, 9, 8, 7, 10, 13, 14)

	signals, err := vs.Signals(series)
	if err != nil {
		t.Fatalf("Signals returned error: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("expected 1 cross-up signal, got %d", len(signals))
	}

	sig := signals[0]
	if sig.TradeType[0] != 1 {
		t.Errorf("expected long signal, got type %d", sig.TradeType[0])
	}
	if !sig.EntryTS.Equal(start.Add(4 * time.Hour)) {
		t.Errorf("expected entry at bar 4, got %s", sig.EntryTS)
	}
	if sig.ID == "" {
		t.Errorf("signal id must be set")
	}
	if sig.Timeout != 72*time.Hour {
		t.Errorf("expected timeout 72h, got %s", sig.Timeout)
	}
	if err := sig.Validate(); err != nil {
		t.Errorf("generated signal failed validation: %v", err)
	}
}

func TestMACrossoverOnBarMatchesSignals(t *testing.T) {
	vectorStrat := newTestCrossover(t)
	barStrat := newTestCrossover(t)

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	series := makeSeries(start, 10, 9, 8, 7, 10, 13, 14)

	vectorSignals, err := vectorStrat.(VectorStrategy).Signals(series)
	if err != nil {
		t.Fatalf("Signals returned error: %v", err)
	}

	bs := barStrat.(BarStrategy)
	window := barStrat.Window()
	var barSignals []Signal
	for i, bar := range series.Bars {
		from := i + 1 - window
		if from < 0 {
			from = 0
		}
		batch, err := bs.OnBar(bar.Ts, bar, series.Bars[from:i+1])
		if err != nil {
			t.Fatalf("OnBar returned error: %v", err)
		}
		barSignals = append(barSignals, batch...)
	}

	if len(barSignals) != len(vectorSignals) {
		t.Fatalf("signal count mismatch: bar=%d vector=%d", len(barSignals), len(vectorSignals))
	}
	for i := range barSignals {
		if !barSignals[i].EntryTS.Equal(vectorSignals[i].EntryTS) {
			t.Errorf("signal %d entry mismatch: bar=%s vector=%s", i, barSignals[i].EntryTS, vectorSignals[i].EntryTS)
		}
		if barSignals[i].TradeType[0] != vectorSignals[i].TradeType[0] {
			t.Errorf("signal %d type mismatch", i)
		}
	}
}

func TestMACrossoverStateRoundTrip(t *testing.T) {
	full := newTestCrossover(t).(BarStrategy)
	resumed := newTestCrossover(t).(BarStrategy)

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	series := makeSeries(start, 10, 9, 8, 7, 10, 13, 14)
	window := full.Window()

	feedBars := func(s BarStrategy, from, to int) []Signal {
		var out []Signal
		for i := from; i < to; i++ {
			lo := i + 1 - window
			if lo < 0 {
				lo = 0
			}
			batch, err := s.OnBar(series.Bars[i].Ts, series.Bars[i], series.Bars[lo:i+1])
			if err != nil {
				t.Fatalf("OnBar returned error: %v", err)
			}
			out = append(out, batch...)
		}
		return out
	}

	// 前半段
	fullSignals := feedBars(full, 0, 4)
	feedBars(resumed, 0, 4)

	// 中断并恢复
	state, err := resumed.(Stateful).State()
	if err != nil {
		t.Fatalf("State returned error: %v", err)
	}
	fresh := newTestCrossover(t).(BarStrategy)
	if err := fresh.(Stateful).RestoreState(state); err != nil {
		t.Fatalf("RestoreState returned error: %v", err)
	}

	// 后半段：恢复实例与未中断实例产出一致
	fullSignals = append(fullSignals, feedBars(full, 4, len(series.Bars))...)
	freshSignals := feedBars(fresh, 4, len(series.Bars))

	if len(freshSignals) != 1 || len(fullSignals) != 1 {
		t.Fatalf("expected single cross-up from both paths, got fresh=%d full=%d", len(freshSignals), len(fullSignals))
	}
	if !freshSignals[0].EntryTS.Equal(fullSignals[0].EntryTS) {
		t.Errorf("restored strategy diverged: fresh=%s full=%s", freshSignals[0].EntryTS, fullSignals[0].EntryTS)
	}
}
