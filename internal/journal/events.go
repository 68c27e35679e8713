package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rjm263/tradekit/internal/store"
	"github.com/rjm263/tradekit/internal/strategy"
	"github.com/rjm263/tradekit/internal/trade"
)

// EventType 表示引擎事件类型。
type EventType string

const (
	EventTradeOpen EventType = "trade_open"
	EventTradeExit EventType = "trade_exit"
	EventError     EventType = "error"
)

// Event 封装通用引擎事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TradeOpenPayload 记录开仓信号。
type TradeOpenPayload struct {
	Signal strategy.Signal `json:"signal"`
}

// TradeExitPayload 记录关单明细。
type TradeExitPayload struct {
	Record trade.ClosedRecord `json:"record"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Events 把引擎事件持久化到 SQLite，供复查和排障。
type Events struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEvents 初始化事件流水，创建所需表结构。
func NewEvents(store *store.Store, logger *zap.Logger) (*Events, error) {
	if store == nil {
		return nil, fmt.Errorf("journal: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Events{
		db:     store.DB(),
		logger: logger,
	}

	if err := e.initSchema(); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Events) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS engine_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_engine_events_type ON engine_events(event_type);
`
	if _, err := e.db.Exec(stmt); err != nil {
		return fmt.Errorf("journal: 初始化事件表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (e *Events) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("journal: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = e.db.ExecContext(ctx,
		`INSERT INTO engine_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: 写入事件失败: %w", err)
	}

	return nil
}

// RecordOpen 记录开仓事件，失败只告警不中断。
func (e *Events) RecordOpen(ctx context.Context, signal strategy.Signal) {
	if err := e.Record(ctx, Event{
		Type:      EventTradeOpen,
		Timestamp: time.Now().UTC(),
		Payload:   TradeOpenPayload{Signal: signal},
	}); err != nil {
		e.logger.Warn("记录开仓事件失败", zap.Error(err))
	}
}

// RecordExit 记录关单事件，失败只告警不中断。
func (e *Events) RecordExit(ctx context.Context, record trade.ClosedRecord) {
	if err := e.Record(ctx, Event{
		Type:      EventTradeExit,
		Timestamp: time.Now().UTC(),
		Payload:   TradeExitPayload{Record: record},
	}); err != nil {
		e.logger.Warn("记录关单事件失败", zap.Error(err))
	}
}

// RecordError 记录异常事件，失败只告警不中断。
func (e *Events) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Context: ctxMap,
	}
	if err != nil {
		payload.Error = err.Error()
	}
	if recErr := e.Record(ctx, Event{
		Type:      EventError,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}); recErr != nil {
		e.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// List 按类型检索最近事件，payload 以原始JSON返回。
func (e *Events) List(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, payload, created_at FROM engine_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("journal: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: 读取事件失败: %w", err)
	}

	return events, nil
}
