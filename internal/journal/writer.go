package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/rjm263/tradekit/internal/trade"
)

// Writer 把关单记录逐行追加到 <dir>/<name>_trades.jsonl，
// 每行一个JSON对象，崩溃时已写入的行不受影响。
type Writer struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewWriter 打开（必要时创建）成交记录文件。
func NewWriter(dir, name string) (*Writer, error) {
	if name == "" {
		return nil, fmt.Errorf("journal: 记录文件名不能为空")
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: 创建目录 %q 失败: %w", dir, err)
		}
	}

	path := filepath.Join(dir, name+"_trades.jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: 打开记录文件 %q 失败: %w", path, err)
	}

	return &Writer{path: path, file: file}, nil
}

// Path 返回记录文件路径。
func (w *Writer) Path() string {
	return w.path
}

// Append 追加一条关单记录。
func (w *Writer) Append(record trade.ClosedRecord) error {
	line, err := sonic.Marshal(record)
	if err != nil {
		return fmt.Errorf("journal: 序列化关单记录失败: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("journal: 写入关单记录失败: %w", err)
	}
	return nil
}

// AppendAll 按顺序追加多条关单记录。
func (w *Writer) AppendAll(records []trade.ClosedRecord) error {
	for _, record := range records {
		if err := w.Append(record); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭记录文件。
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
