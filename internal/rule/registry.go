package rule

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRule 表示注册表中不存在对应名称的规则。
	ErrUnknownRule = errors.New("rule: 未注册的规则名称")
	// ErrInvalidParams 表示规则参数缺失或非法。
	ErrInvalidParams = errors.New("rule: 规则参数非法")
)

// Factory 从参数表和入场上下文构造新的规则实例，需对参数做校验。
type Factory func(params map[string]any, args Args) (Rule, error)

// Restorer 从序列化状态直接还原规则实例，不重新校验参数。
type Restorer func(payload []byte) (Rule, error)

type entry struct {
	factory Factory
	restore Restorer
}

// Registry 维护某一类规则的 name -> factory 映射。
// 生命周期：启动时一次性注册，运行期间只读；测试可通过 NewRegistrySet 重建。
type Registry struct {
	kind    Kind
	entries map[string]entry
}

// NewRegistry 创建指定类别的空注册表。
func NewRegistry(kind Kind) *Registry {
	return &Registry{
		kind:    kind,
		entries: make(map[string]entry),
	}
}

// Register 向注册表追加一个规则实现，名称重复时报错。
func (r *Registry) Register(name string, factory Factory, restore Restorer) error {
	if name == "" {
		return fmt.Errorf("rule: %s 规则注册名不能为空", r.kind)
	}
	if factory == nil || restore == nil {
		return fmt.Errorf("rule: %s 规则 %q 缺少构造或还原函数", r.kind, name)
	}
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("rule: %s 规则 %q 已存在", r.kind, name)
	}
	r.entries[name] = entry{factory: factory, restore: restore}
	return nil
}

// Names 返回当前已注册的规则名称。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Create 按配置构造新的规则实例，未知名称返回 ErrUnknownRule。
func (r *Registry) Create(spec Spec, args Args) (Rule, error) {
	e, ok := r.entries[spec.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownRule, r.kind, spec.Name)
	}
	instance, err := e.factory(spec.Params, args)
	if err != nil {
		return nil, fmt.Errorf("rule: 构造 %s/%s 失败: %w", r.kind, spec.Name, err)
	}
	return instance, nil
}

// Restore 从序列化状态还原规则实例。
func (r *Registry) Restore(state State) (Rule, error) {
	e, ok := r.entries[state.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownRule, r.kind, state.Name)
	}
	instance, err := e.restore(state.Payload)
	if err != nil {
		return nil, fmt.Errorf("rule: 还原 %s/%s 失败: %w", r.kind, state.Name, err)
	}
	return instance, nil
}

// RegistrySet 聚合五类规则的注册表。
type RegistrySet struct {
	Stop     *Registry
	Profit   *Registry
	Datetime *Registry
	Event    *Registry
	Volume   *Registry
}

// NewRegistrySet 创建一组空注册表。
func NewRegistrySet() *RegistrySet {
	return &RegistrySet{
		Stop:     NewRegistry(KindStop),
		Profit:   NewRegistry(KindProfit),
		Datetime: NewRegistry(KindDatetime),
		Event:    NewRegistry(KindEvent),
		Volume:   NewRegistry(KindVolume),
	}
}
