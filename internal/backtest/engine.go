package backtest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rjm263/tradekit/internal/journal"
	"github.com/rjm263/tradekit/internal/market"
	"github.com/rjm263/tradekit/internal/rule"
	"github.com/rjm263/tradekit/internal/strategy"
	"github.com/rjm263/tradekit/internal/trade"
)

// Config 控制批量回测行为。
type Config struct {
	Workers int
}

func (c Config) normalize() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// Engine 串联策略、规则与并行求值。
type Engine struct {
	cfg    Config
	strat  strategy.Strategy
	specs  rule.SpecSet
	reg    *rule.RegistrySet
	writer *journal.Writer
	logger *zap.Logger
}

// NewEngine 构建回测引擎，writer 可为空（不落盘）。
func NewEngine(cfg Config, strat strategy.Strategy, specs rule.SpecSet, reg *rule.RegistrySet, writer *journal.Writer, logger *zap.Logger) (*Engine, error) {
	if strat == nil {
		return nil, fmt.Errorf("backtest: 策略不能为空")
	}
	if reg == nil {
		return nil, fmt.Errorf("backtest: 规则注册表不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		cfg:    cfg.normalize(),
		strat:  strat,
		specs:  specs,
		reg:    reg,
		writer: writer,
		logger: logger,
	}, nil
}

// collectSignals 按策略形态收集信号：优先向量接口，否则逐Bar驱动。
func (e *Engine) collectSignals(series market.Series) ([]strategy.Signal, error) {
	if vs, ok := e.strat.(strategy.VectorStrategy); ok {
		e.logger.Debug("使用向量接口收集信号", zap.String("strategy", e.strat.Name()))
		return vs.Signals(series)
	}

	bs, ok := e.strat.(strategy.BarStrategy)
	if !ok {
		return nil, fmt.Errorf("backtest: 策略 %s 未实现任何信号接口", e.strat.Name())
	}

	e.logger.Debug("使用逐Bar接口收集信号", zap.String("strategy", e.strat.Name()))

	window := e.strat.Window()
	if window <= 0 {
		window = 1
	}

	var signals []strategy.Signal
	for i, bar := range series.Bars {
		from := i + 1 - window
		if from < 0 {
			from = 0
		}
		history := series.Bars[from : i+1]
		batch, err := bs.OnBar(bar.Ts, bar, history)
		if err != nil {
			return nil, fmt.Errorf("backtest: 策略 %s 处理Bar失败: %w", e.strat.Name(), err)
		}
		signals = append(signals, batch...)
	}
	return signals, nil
}

// Run 在给定序列上执行完整回测，结果按信号原始顺序返回。
func (e *Engine) Run(ctx context.Context, series market.Series) ([]trade.ClosedRecord, error) {
	signals, err := e.collectSignals(series)
	if err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, fmt.Errorf("%w: strategy=%s", ErrNoSignals, e.strat.Name())
	}

	for _, sig := range signals {
		if err := sig.Validate(); err != nil {
			return nil, err
		}
	}

	e.logger.Info("开始批量回测",
		zap.String("strategy", e.strat.Name()),
		zap.Int("signals", len(signals)),
		zap.Int("workers", e.cfg.Workers),
		zap.Int("bars", series.Len()),
	)

	records := make([]trade.ClosedRecord, len(signals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, sig := range signals {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			record, err := EvaluateSignal(sig, series, e.specs, e.reg)
			if err != nil {
				return err
			}
			records[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if e.writer != nil {
		if err := e.writer.AppendAll(records); err != nil {
			return nil, err
		}
	}

	e.logger.Info("批量回测完成", zap.Int("trades", len(records)))
	return records, nil
}
