package market

import (
	"testing"
	"time"
)

func hourlyBars(start time.Time, closes ...float64) []Bar {
	bars := make([]Bar, 0, len(closes))
	for i, c := range closes {
		bars = append(bars, Bar{
			Ts:     start.Add(time.Duration(i) * time.Hour),
			Open:   []float64{c},
			High:   []float64{c + 1},
			Low:    []float64{c - 1},
			Close:  []float64{c},
			Volume: []float64{100},
		})
	}
	return bars
}

func TestSeriesIndexOf(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	s := Series{Symbols: []string{"BTC/USDT:USDT"}, Bars: hourlyBars(start, 100, 101, 102, 103)}

	idx, ok := s.IndexOf(start.Add(2 * time.Hour))
	if !ok || idx != 2 {
		t.Fatalf("IndexOf exact match: got (%d, %v), want (2, true)", idx, ok)
	}

	if _, ok := s.IndexOf(start.Add(90 * time.Minute)); ok {
		t.Errorf("IndexOf should miss between bars")
	}
	if _, ok := s.IndexOf(start.Add(10 * time.Hour)); ok {
		t.Errorf("IndexOf should miss beyond series end")
	}
}

func TestSeriesSearchTimeout(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	s := Series{Bars: hourlyBars(start, 100, 101, 102, 103)}

	if idx := s.SearchTimeout(start.Add(2 * time.Hour)); idx != 2 {
		t.Errorf("SearchTimeout exact: got %d want 2", idx)
	}
	if idx := s.SearchTimeout(start.Add(90 * time.Minute)); idx != 2 {
		t.Errorf("SearchTimeout between bars: got %d want 2", idx)
	}
	// 超出序列末尾时收敛到最后一根
	if idx := s.SearchTimeout(start.Add(100 * time.Hour)); idx != 3 {
		t.Errorf("SearchTimeout beyond end: got %d want 3", idx)
	}
}

func TestSeriesCloses(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	s := Series{Bars: hourlyBars(start, 100, 101, 102)}

	closes := s.Closes(0)
	want := []float64{100, 101, 102}
	if len(closes) != len(want) {
		t.Fatalf("Closes length: got %d want %d", len(closes), len(want))
	}
	for i := range want {
		if closes[i] != want[i] {
			t.Errorf("Closes[%d]: got %f want %f", i, closes[i], want[i])
		}
	}
}

func TestBufferEviction(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	bars := hourlyBars(start, 100, 101, 102, 103, 104)

	buf := NewBuffer(3)
	buf.Fill(bars)

	if buf.Len() != 3 {
		t.Fatalf("buffer length after fill: got %d want 3", buf.Len())
	}

	kept := buf.Bars()
	if kept[0].Close[0] != 102 || kept[2].Close[0] != 104 {
		t.Errorf("buffer should keep newest bars, got first=%f last=%f", kept[0].Close[0], kept[2].Close[0])
	}
}

func TestBufferBarsReturnsCopy(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	buf := NewBuffer(3)
	buf.Fill(hourlyBars(start, 100, 101))

	snapshot := buf.Bars()
	buf.Push(hourlyBars(start.Add(2*time.Hour), 102)[0])

	if len(snapshot) != 2 {
		t.Errorf("snapshot should be unaffected by later pushes, got %d bars", len(snapshot))
	}
}
