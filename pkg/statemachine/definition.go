package statemachine

import "slices"

type stateEntry struct {
	name  State
	hooks StateHooks
	enter *namedAction
	exit  *namedAction
}

type transition struct {
	spec    TransitionSpec
	guard   guard
	actions []namedAction
}

// matches 按全部字段判断是否为同一条转换，回调按名称比较
func (t *transition) matches(spec TransitionSpec) bool {
	return t.spec.From == spec.From &&
		t.spec.Event == spec.Event &&
		t.spec.To == spec.To &&
		slices.Equal(t.spec.Guard.And, spec.Guard.And) &&
		slices.Equal(t.spec.Guard.Or, spec.Guard.Or) &&
		slices.Equal(t.spec.Guard.Not, spec.Guard.Not) &&
		slices.Equal(t.spec.Actions, spec.Actions)
}

// Definition 状态机类型的定义：状态、按源状态索引的转换和事件集合。
// 由Builder构建，构建完成后只读，可被多个实例并发共享。
type Definition struct {
	name        string
	states      []*stateEntry
	index       map[State]*stateEntry
	transitions map[State][]*transition
	events      []Event
	eventSet    map[Event]struct{}
}

func newDefinition(name string) *Definition {
	return &Definition{
		name:        name,
		index:       make(map[State]*stateEntry),
		transitions: make(map[State][]*transition),
		eventSet:    make(map[Event]struct{}),
	}
}

// Name 定义名称
func (d *Definition) Name() string { return d.name }

// Initial 第一个声明（或第一次出现）的状态
func (d *Definition) Initial() State {
	if len(d.states) == 0 {
		return ""
	}
	return d.states[0].name
}

// States 按声明顺序返回所有状态
func (d *Definition) States() []State {
	out := make([]State, len(d.states))
	for i, s := range d.states {
		out[i] = s.name
	}
	return out
}

// HasState 状态是否存在
func (d *Definition) HasState(name State) bool {
	_, ok := d.index[name]
	return ok
}

// Hooks 返回状态的进入/退出回调名
func (d *Definition) Hooks(name State) (StateHooks, bool) {
	s, ok := d.index[name]
	if !ok {
		return StateHooks{}, false
	}
	return s.hooks, true
}

// Events 按首次出现顺序返回所有事件
func (d *Definition) Events() []Event {
	return slices.Clone(d.events)
}

// HasEvent 定义中是否有转换使用该事件
func (d *Definition) HasEvent(event Event) bool {
	_, ok := d.eventSet[event]
	return ok
}

// Transitions 按声明顺序返回源状态的转换
func (d *Definition) Transitions(from State) []TransitionSpec {
	list := d.transitions[from]
	out := make([]TransitionSpec, len(list))
	for i, t := range list {
		out[i] = cloneSpec(t.spec)
	}
	return out
}

// EventsFor 返回源状态可响应的事件（去重，保持顺序）
func (d *Definition) EventsFor(from State) []Event {
	var out []Event
	for _, t := range d.transitions[from] {
		if !slices.Contains(out, t.spec.Event) {
			out = append(out, t.spec.Event)
		}
	}
	return out
}

func (d *Definition) lookup(name State) (*stateEntry, error) {
	s, ok := d.index[name]
	if !ok {
		return nil, &UnknownStateError{State: name}
	}
	return s, nil
}

func (d *Definition) stateResponds(from State, event Event) bool {
	for _, t := range d.transitions[from] {
		if t.spec.Event == event {
			return true
		}
	}
	return false
}

func cloneSpec(spec TransitionSpec) TransitionSpec {
	spec.Guard = GuardSpec{
		And: slices.Clone(spec.Guard.And),
		Or:  slices.Clone(spec.Guard.Or),
		Not: slices.Clone(spec.Guard.Not),
	}
	spec.Actions = slices.Clone(spec.Actions)
	return spec
}
