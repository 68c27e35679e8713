package forward

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/rjm263/tradekit/internal/checkpoint"
	"github.com/rjm263/tradekit/internal/config"
	"github.com/rjm263/tradekit/internal/feed"
	"github.com/rjm263/tradekit/internal/strategy"
)

// Engine 驱动实盘增量求值循环：轮询数据源、逐Bar求值、周期性落盘检查点。
type Engine struct {
	cfg    config.EngineConfig
	source feed.Feed
	eval   *Evaluator
	strat  strategy.Strategy
	logger *zap.Logger
}

// NewEngine 构建实盘引擎。
func NewEngine(cfg config.EngineConfig, source feed.Feed, eval *Evaluator, strat strategy.Strategy, logger *zap.Logger) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("forward: 数据源不能为空")
	}
	if eval == nil {
		return nil, fmt.Errorf("forward: 求值器不能为空")
	}
	if strat == nil {
		return nil, fmt.Errorf("forward: 策略不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:    cfg,
		source: source,
		eval:   eval,
		strat:  strat,
		logger: logger,
	}, nil
}

// resume 尝试从检查点恢复运行状态。
// 检查点缺失或损坏不是致命错误，记日志后冷启动。
func (e *Engine) resume() {
	snap, err := checkpoint.Load(e.cfg.CheckpointPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			e.logger.Info("未找到检查点，冷启动", zap.String("path", e.cfg.CheckpointPath))
		} else {
			e.logger.Warn("检查点不可用，冷启动", zap.String("path", e.cfg.CheckpointPath), zap.Error(err))
		}
		return
	}

	if len(snap.Strategy) > 0 {
		if stateful, ok := e.strat.(strategy.Stateful); ok {
			if err := stateful.RestoreState(snap.Strategy); err != nil {
				e.logger.Warn("还原策略状态失败，冷启动", zap.Error(err))
				return
			}
		}
	}
	if err := e.eval.RestoreTrades(snap.Trades); err != nil {
		e.logger.Warn("还原活跃交易失败，冷启动", zap.Error(err))
		return
	}
	e.eval.Buffer().Fill(snap.Buffer)
	e.source.SetCursor(snap.Cursor)

	e.logger.Info("已从检查点恢复",
		zap.Time("saved_at", snap.SavedAt),
		zap.Time("cursor", snap.Cursor),
		zap.Int("active_trades", e.eval.ActiveCount()),
		zap.Int("buffer_bars", len(snap.Buffer)),
	)
}

// warmUp 在滚动窗口不足时用历史数据回填。
func (e *Engine) warmUp(ctx context.Context) error {
	window := e.eval.Buffer().Window()
	if e.eval.Buffer().Len() >= window {
		return nil
	}

	series, err := e.source.History(ctx, window)
	if err != nil {
		if errors.Is(err, feed.ErrNoData) {
			e.logger.Warn("历史数据为空，跳过预热")
			return nil
		}
		return fmt.Errorf("forward: 预热拉取历史失败: %w", err)
	}

	e.eval.Buffer().Fill(series.Bars)
	if last, ok := series.Last(); ok {
		if last.Ts.After(e.source.Cursor()) {
			e.source.SetCursor(last.Ts)
		}
	}
	e.logger.Info("滚动窗口预热完成", zap.Int("bars", e.eval.Buffer().Len()))
	return nil
}

func (e *Engine) saveCheckpoint() {
	snap := checkpoint.Snapshot{
		Buffer:  e.eval.Buffer().Bars(),
		Cursor:  e.source.Cursor(),
		SavedAt: time.Now().UTC(),
	}

	if stateful, ok := e.strat.(strategy.Stateful); ok {
		state, err := stateful.State()
		if err != nil {
			e.logger.Warn("导出策略状态失败", zap.Error(err))
		} else {
			snap.Strategy = state
		}
	}

	trades, err := e.eval.Snapshots()
	if err != nil {
		e.logger.Error("导出交易快照失败，跳过本次检查点", zap.Error(err))
		return
	}
	snap.Trades = trades

	if err := checkpoint.Save(e.cfg.CheckpointPath, snap); err != nil {
		e.logger.Error("写入检查点失败", zap.Error(err))
		return
	}
	e.logger.Debug("检查点已落盘",
		zap.Time("cursor", snap.Cursor),
		zap.Int("active_trades", len(snap.Trades)),
	)
}

// Run 执行实盘循环直至退出信号、最大运行时长或不可恢复错误。
// 每条退出路径都会落一次最终检查点。
func (e *Engine) Run(ctx context.Context) (runErr error) {
	e.resume()

	defer e.saveCheckpoint()

	if err := e.warmUp(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			e.logger.Info("收到退出信号，正在停止")
			return nil
		}
		return err
	}

	start := time.Now()
	barsSinceCheckpoint := 0

	for {
		if err := ctx.Err(); err != nil {
			e.logger.Info("收到退出信号，正在停止")
			return nil
		}
		if e.cfg.MaxRuntime > 0 && time.Since(start) >= e.cfg.MaxRuntime {
			e.logger.Info("达到最大运行时长，正在停止", zap.Duration("max_runtime", e.cfg.MaxRuntime))
			return nil
		}

		bars, err := e.source.Poll(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				e.logger.Info("收到退出信号，正在停止")
				return nil
			}
			e.logger.Error("轮询行情失败，停止运行", zap.Error(err))
			return err
		}

		for _, bar := range bars {
			if ctxErr := ctx.Err(); ctxErr != nil {
				e.logger.Info("收到退出信号，正在停止")
				return nil
			}
			if err := e.eval.HandleBar(ctx, bar); err != nil {
				e.logger.Error("处理Bar失败，停止运行", zap.Time("ts", bar.Ts), zap.Error(err))
				return err
			}
			barsSinceCheckpoint++
			if barsSinceCheckpoint >= e.cfg.CheckpointEvery {
				e.saveCheckpoint()
				barsSinceCheckpoint = 0
			}
		}

		if err := e.sleep(ctx); err != nil {
			e.logger.Info("收到退出信号，正在停止")
			return nil
		}
	}
}

// sleep 睡到下一个轮询周期边界，期间监听退出信号。
func (e *Engine) sleep(ctx context.Context) error {
	interval := e.cfg.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	now := time.Now()
	wait := now.Truncate(interval).Add(interval).Sub(now)
	if wait <= 0 || wait > interval {
		wait = interval
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
