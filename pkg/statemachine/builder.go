package statemachine

import (
	"errors"
	"fmt"
)

// Builder 累积状态和转换声明，构建只读的Definition。
// 构建阶段是单线程的，必须在任何实例派发事件之前完成。
type Builder struct {
	reg    *Registry
	def    *Definition
	errs   []error
	sealed bool
}

// BuilderOption 构建选项
type BuilderOption func(*Builder)

// WithName 设置定义名称，用于日志
func WithName(name string) BuilderOption {
	return func(b *Builder) {
		b.def.name = name
	}
}

// NewBuilder 创建构建器，回调名通过reg解析
func NewBuilder(reg *Registry, opts ...BuilderOption) *Builder {
	if reg == nil {
		reg = NewRegistry()
	}
	b := &Builder{reg: reg, def: newDefinition("fsm")}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DeclareState 声明状态。状态已存在时不做任何事，保留原有回调；
// 需要替换回调请使用OverwriteState。
func (b *Builder) DeclareState(name State, hooks ...StateHooks) error {
	if b.sealed {
		return ErrBuilderSealed
	}
	if len(hooks) > 1 {
		return b.fail(&ConfigurationError{Op: "declare state", State: name, Reason: "more than one hook set"})
	}
	if name == "" {
		return b.fail(&ConfigurationError{Op: "declare state", Reason: "missing state name"})
	}
	if b.def.HasState(name) {
		return nil
	}

	entry := &stateEntry{name: name}
	if len(hooks) == 1 {
		if err := b.resolveHooks(entry, hooks[0]); err != nil {
			return b.fail(err)
		}
	}
	b.addState(entry)
	return nil
}

// OverwriteState 替换状态的回调，状态保持原有的声明位置；不存在时新建
func (b *Builder) OverwriteState(name State, hooks StateHooks) error {
	if b.sealed {
		return ErrBuilderSealed
	}
	if name == "" {
		return b.fail(&ConfigurationError{Op: "overwrite state", Reason: "missing state name"})
	}

	entry := &stateEntry{name: name}
	if err := b.resolveHooks(entry, hooks); err != nil {
		return b.fail(err)
	}
	if old, ok := b.def.index[name]; ok {
		*old = *entry
		return nil
	}
	b.addState(entry)
	return nil
}

// DeclareTransition 声明转换。源状态和目标状态不存在时自动创建，
// 与已有转换完全相同时忽略。
func (b *Builder) DeclareTransition(spec TransitionSpec) error {
	if b.sealed {
		return ErrBuilderSealed
	}
	if spec.Event == "" {
		return b.fail(&ConfigurationError{Op: "declare transition", State: spec.From, Reason: "missing event"})
	}
	if spec.From == "" {
		return b.fail(&ConfigurationError{Op: "declare transition", Event: spec.Event, Reason: "missing source state"})
	}

	spec = cloneSpec(spec)
	t := &transition{spec: spec}
	if err := b.resolveTransition(t); err != nil {
		return b.fail(err)
	}

	b.ensureState(spec.From)
	for _, existing := range b.def.transitions[spec.From] {
		if existing.matches(spec) {
			return nil
		}
	}

	b.def.transitions[spec.From] = append(b.def.transitions[spec.From], t)
	if spec.To != "" {
		b.ensureState(spec.To)
	}
	if !b.def.HasEvent(spec.Event) {
		b.def.eventSet[spec.Event] = struct{}{}
		b.def.events = append(b.def.events, spec.Event)
	}
	return nil
}

// Errors 返回目前收集到的定义错误
func (b *Builder) Errors() []error {
	return append([]error(nil), b.errs...)
}

// Build 完成构建。存在任何定义错误时返回合并后的错误；
// 成功后构建器被封存，再次声明返回ErrBuilderSealed。
func (b *Builder) Build() (*Definition, error) {
	if b.sealed {
		return nil, ErrBuilderSealed
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if len(b.def.states) == 0 {
		return nil, ErrEmptyDefinition
	}
	b.sealed = true
	return b.def, nil
}

// MustBuild 同Build，失败时panic，用于包级变量初始化
func (b *Builder) MustBuild() *Definition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

func (b *Builder) fail(err error) error {
	b.errs = append(b.errs, err)
	return err
}

func (b *Builder) addState(entry *stateEntry) {
	b.def.states = append(b.def.states, entry)
	b.def.index[entry.name] = entry
}

func (b *Builder) ensureState(name State) {
	if !b.def.HasState(name) {
		b.addState(&stateEntry{name: name})
	}
}

func (b *Builder) resolveHooks(entry *stateEntry, hooks StateHooks) error {
	entry.hooks = hooks
	if hooks.Enter != "" {
		fn, ok := b.reg.action(hooks.Enter)
		if !ok {
			return unknownCallback("declare state", entry.name, "", "enter hook", hooks.Enter)
		}
		entry.enter = &namedAction{kind: "enter", name: hooks.Enter, fn: fn}
	}
	if hooks.Exit != "" {
		fn, ok := b.reg.action(hooks.Exit)
		if !ok {
			return unknownCallback("declare state", entry.name, "", "exit hook", hooks.Exit)
		}
		entry.exit = &namedAction{kind: "exit", name: hooks.Exit, fn: fn}
	}
	return nil
}

func (b *Builder) resolveTransition(t *transition) error {
	groups := []struct {
		names []string
		dst   *[]namedGuard
	}{
		{t.spec.Guard.And, &t.guard.and},
		{t.spec.Guard.Or, &t.guard.or},
		{t.spec.Guard.Not, &t.guard.not},
	}
	for _, g := range groups {
		for _, name := range g.names {
			fn, ok := b.reg.guard(name)
			if !ok {
				return unknownCallback("declare transition", t.spec.From, t.spec.Event, "guard", name)
			}
			*g.dst = append(*g.dst, namedGuard{name: name, fn: fn})
		}
	}

	for _, name := range t.spec.Actions {
		fn, ok := b.reg.action(name)
		if !ok {
			return unknownCallback("declare transition", t.spec.From, t.spec.Event, "action", name)
		}
		t.actions = append(t.actions, namedAction{kind: "action", name: name, fn: fn})
	}
	return nil
}

func unknownCallback(op string, state State, event Event, kind, name string) error {
	return &ConfigurationError{
		Op:     op,
		State:  state,
		Event:  event,
		Reason: fmt.Sprintf("unknown %s %q", kind, name),
	}
}
