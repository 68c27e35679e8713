package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rjm263/tradekit/internal/backtest"
	"github.com/rjm263/tradekit/internal/config"
	"github.com/rjm263/tradekit/internal/feed"
	"github.com/rjm263/tradekit/internal/forward"
	"github.com/rjm263/tradekit/internal/journal"
	"github.com/rjm263/tradekit/internal/notify"
	"github.com/rjm263/tradekit/internal/rule"
	"github.com/rjm263/tradekit/internal/store"
	"github.com/rjm263/tradekit/internal/strategy"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

func (a *App) buildCore() (*rule.RegistrySet, strategy.Strategy, error) {
	reg, err := rule.NewBuiltinRegistrySet()
	if err != nil {
		return nil, nil, err
	}

	strategies, err := strategy.NewBuiltinRegistry()
	if err != nil {
		return nil, nil, err
	}

	strat, err := strategies.Create(a.cfg.Strategy.Name, strategy.Config{
		Symbols: a.cfg.Strategy.Symbols,
		Params:  a.cfg.Strategy.Params,
	})
	if err != nil {
		return nil, nil, err
	}

	return reg, strat, nil
}

func (a *App) buildFeed() (*feed.CCXTFeed, error) {
	client, err := feed.NewClient(a.cfg.Feed, a.logger)
	if err != nil {
		return nil, err
	}
	return feed.NewCCXTFeed(client, a.cfg.Feed.Markets, a.cfg.Feed.Timeframe, a.logger)
}

// RunBacktest 拉取历史序列并执行批量回测。
func (a *App) RunBacktest(ctx context.Context) error {
	a.logger.Info("回测模式启动",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("strategy", a.cfg.Strategy.Name),
		zap.Strings("markets", a.cfg.Feed.Markets),
	)

	reg, strat, err := a.buildCore()
	if err != nil {
		return err
	}

	source, err := a.buildFeed()
	if err != nil {
		return err
	}

	series, err := source.History(ctx, a.cfg.Backtest.Lookback)
	if err != nil {
		return fmt.Errorf("拉取回测历史失败: %w", err)
	}

	writer, err := journal.NewWriter(a.cfg.Backtest.OutputDir, a.cfg.Backtest.OutputName)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil {
			a.logger.Warn("关闭成交记录文件失败", zap.Error(closeErr))
		}
	}()

	engine, err := backtest.NewEngine(
		backtest.Config{Workers: a.cfg.Backtest.Workers},
		strat, a.cfg.Rules, reg, writer, a.logger,
	)
	if err != nil {
		return err
	}

	records, err := engine.Run(ctx, series)
	if err != nil {
		return err
	}

	a.logger.Info("回测结果已落盘",
		zap.Int("trades", len(records)),
		zap.String("path", writer.Path()),
	)
	return nil
}

// RunLive 启动实盘增量求值循环。
func (a *App) RunLive(ctx context.Context) error {
	a.logger.Info("实盘模式启动",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("strategy", a.cfg.Strategy.Name),
		zap.Strings("markets", a.cfg.Feed.Markets),
	)

	reg, strat, err := a.buildCore()
	if err != nil {
		return err
	}

	source, err := a.buildFeed()
	if err != nil {
		return err
	}

	writer, err := journal.NewWriter(a.cfg.Engine.OutputDir, a.cfg.Engine.OutputName)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil {
			a.logger.Warn("关闭成交记录文件失败", zap.Error(closeErr))
		}
	}()

	events, err := journal.NewEvents(a.store, a.logger)
	if err != nil {
		return err
	}

	var notifiers []notify.Notifier
	if a.cfg.Notify.LogSink {
		notifiers = append(notifiers, notify.NewLogNotifier(a.logger))
	}
	for _, url := range a.cfg.Notify.Webhooks {
		hook, err := notify.NewWebhookNotifier(url, a.cfg.Notify.Timeout)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, hook)
	}

	eval, err := forward.NewEvaluator(strat, a.cfg.Rules, reg, forward.Options{
		Source:    a.cfg.App.Name,
		Window:    a.cfg.Engine.Window,
		Writer:    writer,
		Events:    events,
		Notifiers: notifiers,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}

	engine, err := forward.NewEngine(a.cfg.Engine, source, eval, strat, a.logger)
	if err != nil {
		return err
	}

	return engine.Run(ctx)
}
