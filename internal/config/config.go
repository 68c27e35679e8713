package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "tradekit"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tradekit")
	v.SetDefault("app.environment", "development")

	v.SetDefault("feed.exchange", "binanceusdm")
	v.SetDefault("feed.markets", []string{"BTC/USDT:USDT"})
	v.SetDefault("feed.timeframe", "1h")
	v.SetDefault("feed.use_sandbox", false)
	v.SetDefault("feed.retry.max_attempts", 5)
	v.SetDefault("feed.retry.min_delay", "500ms")
	v.SetDefault("feed.retry.max_delay", "5s")

	v.SetDefault("strategy.name", "ma_crossover")

	v.SetDefault("backtest.lookback", 500)
	v.SetDefault("backtest.workers", 4)
	v.SetDefault("backtest.output_dir", "data")
	v.SetDefault("backtest.output_name", "backtest")

	v.SetDefault("engine.poll_interval", "1m")
	v.SetDefault("engine.window", 30)
	v.SetDefault("engine.checkpoint_every", 10)
	v.SetDefault("engine.checkpoint_path", "data/checkpoint.json")
	v.SetDefault("engine.max_runtime", "0s")
	v.SetDefault("engine.output_dir", "data")
	v.SetDefault("engine.output_name", "live")

	v.SetDefault("database.path", "data/tradekit.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("notify.log_sink", true)
	v.SetDefault("notify.timeout", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
