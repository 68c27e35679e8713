package journal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rjm263/tradekit/internal/config"
	"github.com/rjm263/tradekit/internal/store"
	"github.com/rjm263/tradekit/internal/strategy"
)

func newTestEvents(t *testing.T) *Events {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	events, err := NewEvents(st, nil)
	if err != nil {
		t.Fatalf("NewEvents returned error: %v", err)
	}
	return events
}

func TestEventsRecordAndList(t *testing.T) {
	events := newTestEvents(t)
	ctx := context.Background()

	signal := strategy.Signal{
		ID:        "sig-1",
		Symbols:   []string{"BTC/USDT"},
		TradeType: []int{1},
		Capital:   []float64{10000},
		EntryTS:   time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		Timeout:   72 * time.Hour,
	}
	events.RecordOpen(ctx, signal)
	events.RecordExit(ctx, sampleRecord("sig-1"))
	events.RecordError(ctx, "拉取行情失败", errors.New("boom"), map[string]interface{}{"symbol": "BTC/USDT"})

	all, err := events.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}

	exits, err := events.List(ctx, EventTradeExit, 10)
	if err != nil {
		t.Fatalf("List by type returned error: %v", err)
	}
	if len(exits) != 1 {
		t.Fatalf("expected 1 exit event, got %d", len(exits))
	}

	raw, ok := exits[0].Payload.(json.RawMessage)
	if !ok {
		t.Fatalf("expected raw JSON payload, got %T", exits[0].Payload)
	}
	var payload TradeExitPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("parse exit payload: %v", err)
	}
	if payload.Record.SignalID != "sig-1" {
		t.Errorf("exit payload signal id: got %q", payload.Record.SignalID)
	}
}

func TestEventsListNewestFirst(t *testing.T) {
	events := newTestEvents(t)
	ctx := context.Background()

	events.RecordExit(ctx, sampleRecord("sig-1"))
	events.RecordExit(ctx, sampleRecord("sig-2"))

	exits, err := events.List(ctx, EventTradeExit, 1)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(exits) != 1 {
		t.Fatalf("expected 1 event, got %d", len(exits))
	}

	var payload TradeExitPayload
	if err := json.Unmarshal(exits[0].Payload.(json.RawMessage), &payload); err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload.Record.SignalID != "sig-2" {
		t.Errorf("expected newest event first, got %q", payload.Record.SignalID)
	}
}
