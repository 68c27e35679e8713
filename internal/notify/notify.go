package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// TypeTradeExit 表示交易关闭事件。
const TypeTradeExit = "trade_exit"

// Event 是推送给通知端的事件。
type Event struct {
	Type    string      `json:"type"`
	Source  string      `json:"source"`
	TS      time.Time   `json:"ts"`
	Payload interface{} `json:"payload"`
}

// Notifier 把事件投递到某个终端。
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier 把事件写进结构化日志。
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 构造日志通知端。
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify 输出一条事件日志。
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	n.logger.Info("引擎事件",
		zap.String("type", event.Type),
		zap.String("source", event.Source),
		zap.Time("ts", event.TS),
		zap.Any("payload", event.Payload),
	)
	return nil
}

// WebhookNotifier 以JSON POST方式把事件推送到外部地址。
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier 构造Webhook通知端。
func NewWebhookNotifier(url string, timeout time.Duration) (*WebhookNotifier, error) {
	if url == "" {
		return nil, fmt.Errorf("notify: webhook 地址不能为空")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Notify 推送事件，非2xx响应视为失败。
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	body, err := sonic.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: 序列化事件失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: 构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: 推送事件失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook 返回异常状态 %d", resp.StatusCode)
	}
	return nil
}

// Dispatch 把事件广播到全部通知端，单个失败只记日志不中断。
func Dispatch(ctx context.Context, logger *zap.Logger, notifiers []Notifier, event Event) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, n := range notifiers {
		if err := n.Notify(ctx, event); err != nil {
			logger.Warn("事件通知失败",
				zap.String("type", event.Type),
				zap.Error(err),
			)
		}
	}
}
