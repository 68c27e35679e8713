package config

import (
	"errors"
	"time"

	"go.uber.org/multierr"

	"github.com/rjm263/tradekit/internal/rule"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Rules    rule.SpecSet   `mapstructure:"rules"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Database DatabaseConfig `mapstructure:"database"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// FeedConfig 描述行情数据源连接信息。
type FeedConfig struct {
	Exchange   string      `mapstructure:"exchange"`
	Markets    []string    `mapstructure:"markets"`
	Timeframe  string      `mapstructure:"timeframe"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	APIPass    string      `mapstructure:"api_password"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// StrategyConfig 描述策略选择与参数。
type StrategyConfig struct {
	Name    string         `mapstructure:"name"`
	Symbols []string       `mapstructure:"symbols"`
	Params  map[string]any `mapstructure:"params"`
}

// BacktestConfig 控制批量回测行为。
type BacktestConfig struct {
	Lookback   int    `mapstructure:"lookback"`
	Workers    int    `mapstructure:"workers"`
	OutputDir  string `mapstructure:"output_dir"`
	OutputName string `mapstructure:"output_name"`
}

// EngineConfig 控制实盘增量求值循环。
type EngineConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	Window          int           `mapstructure:"window"`
	CheckpointEvery int           `mapstructure:"checkpoint_every"`
	CheckpointPath  string        `mapstructure:"checkpoint_path"`
	MaxRuntime      time.Duration `mapstructure:"max_runtime"`
	OutputDir       string        `mapstructure:"output_dir"`
	OutputName      string        `mapstructure:"output_name"`
}

// DatabaseConfig 管理事件流水数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// NotifyConfig 控制关单事件通知。
type NotifyConfig struct {
	Webhooks []string      `mapstructure:"webhooks"`
	LogSink  bool          `mapstructure:"log_sink"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Name == "" {
		err = multierr.Append(err, errors.New("app.name 不能为空"))
	}
	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Feed.Exchange == "" {
		err = multierr.Append(err, errors.New("feed.exchange 不能为空"))
	}
	if len(c.Feed.Markets) == 0 {
		err = multierr.Append(err, errors.New("feed.markets 不能为空"))
	}
	if c.Feed.Timeframe == "" {
		err = multierr.Append(err, errors.New("feed.timeframe 不能为空"))
	}
	if c.Feed.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("feed.retry.max_attempts 必须大于0"))
	}
	if c.Feed.Retry.MinDelay <= 0 || c.Feed.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("feed.retry.delay 必须为正"))
	}
	if c.Feed.Retry.MinDelay > c.Feed.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("feed.retry.min_delay 不能大于 max_delay"))
	}
	if c.Strategy.Name == "" {
		err = multierr.Append(err, errors.New("strategy.name 不能为空"))
	}
	if len(c.Strategy.Symbols) == 0 {
		err = multierr.Append(err, errors.New("strategy.symbols 不能为空"))
	}
	if c.Rules.Stop.Name == "" {
		err = multierr.Append(err, errors.New("rules.stop.name 不能为空"))
	}
	if c.Rules.Profit.Name == "" {
		err = multierr.Append(err, errors.New("rules.profit.name 不能为空"))
	}
	if c.Backtest.Lookback <= 0 {
		err = multierr.Append(err, errors.New("backtest.lookback 必须大于0"))
	}
	if c.Backtest.Workers <= 0 {
		err = multierr.Append(err, errors.New("backtest.workers 必须大于0"))
	}
	if c.Backtest.OutputDir == "" {
		err = multierr.Append(err, errors.New("backtest.output_dir 不能为空"))
	}
	if c.Engine.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("engine.poll_interval 必须大于0"))
	}
	if c.Engine.Window <= 0 {
		err = multierr.Append(err, errors.New("engine.window 必须大于0"))
	}
	if c.Engine.CheckpointEvery <= 0 {
		err = multierr.Append(err, errors.New("engine.checkpoint_every 必须大于0"))
	}
	if c.Engine.CheckpointPath == "" {
		err = multierr.Append(err, errors.New("engine.checkpoint_path 不能为空"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Notify.Timeout <= 0 {
		err = multierr.Append(err, errors.New("notify.timeout 必须大于0"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}

	return err
}
