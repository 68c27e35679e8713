package strategy

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownStrategy 表示注册表中不存在对应名称的策略。
var ErrUnknownStrategy = errors.New("strategy: 未注册的策略名称")

// Config 是从配置文件映射出的策略构造参数。
type Config struct {
	Symbols []string       `mapstructure:"symbols" json:"symbols"`
	Params  map[string]any `mapstructure:"params" json:"params"`
}

// Factory 从配置构造策略实例。
type Factory func(cfg Config) (Strategy, error)

// Registry 维护策略 name -> factory 的映射。
type Registry struct {
	entries map[string]Factory
}

// NewRegistry 创建空策略注册表。
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Factory)}
}

// Register 注册策略实现，名称重复时报错。
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("strategy: 注册名不能为空")
	}
	if factory == nil {
		return fmt.Errorf("strategy: 策略 %q 缺少构造函数", name)
	}
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("strategy: 策略 %q 已存在", name)
	}
	r.entries[name] = factory
	return nil
}

// Names 返回已注册策略名称，按字典序排序。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create 按名称构造策略实例，未知名称返回 ErrUnknownStrategy。
func (r *Registry) Create(name string, cfg Config) (Strategy, error) {
	factory, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	s, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("strategy: 构造策略 %s 失败: %w", name, err)
	}
	return s, nil
}

// NewBuiltinRegistry 创建并注册全部内置策略。
func NewBuiltinRegistry() (*Registry, error) {
	r := NewRegistry()
	if err := r.Register(NameMACrossover, newMACrossover); err != nil {
		return nil, err
	}
	return r, nil
}
