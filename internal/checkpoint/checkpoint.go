package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"

	"github.com/rjm263/tradekit/internal/market"
	"github.com/rjm263/tradekit/internal/trade"
)

// Snapshot 是实盘求值器的完整运行时快照：策略内部状态、滚动窗口、
// 全部活跃交易（含每条规则的阈值状态）以及数据源游标。
type Snapshot struct {
	Strategy json.RawMessage  `json:"strategy,omitempty"`
	Buffer   []market.Bar     `json:"buffer"`
	Trades   []trade.Snapshot `json:"trades"`
	Cursor   time.Time        `json:"cursor"`
	SavedAt  time.Time        `json:"saved_at"`
}

// Save 原子地写入检查点：先写临时文件，再整体改名替换。
// 任意时刻磁盘上要么是旧的完整快照，要么是新的完整快照。
func Save(path string, snap Snapshot) error {
	if path == "" {
		return fmt.Errorf("checkpoint: 路径不能为空")
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}

	payload, err := sonic.Marshal(snap)
	if err != nil {
		return fmt.Errorf("checkpoint: 序列化快照失败: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("checkpoint: 创建目录 %q 失败: %w", dir, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("checkpoint: 写入临时文件失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("checkpoint: 替换检查点失败: %w", err)
	}
	return nil
}

// Load 读取检查点。文件不存在时返回 os.ErrNotExist，
// 调用方据此决定冷启动。
func Load(path string) (Snapshot, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	if err := sonic.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("checkpoint: 解析快照失败: %w", err)
	}
	return snap, nil
}
