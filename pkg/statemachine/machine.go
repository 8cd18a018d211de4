package statemachine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/junbin-yang/go-simplefsm/pkg/logger"
)

// Record 一次派发的结果，传给观察者
type Record struct {
	MachineID string    `json:"machine_id"`
	Event     Event     `json:"event"`
	From      State     `json:"from"`
	To        State     `json:"to"`
	Matched   bool      `json:"matched"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer 派发成功完成后被调用（无论是否匹配到转换）
type Observer func(Record)

// Option 状态机实例选项
type Option func(*Machine)

// WithID 指定实例ID，默认使用UUID
func WithID(id string) Option {
	return func(m *Machine) {
		m.id = id
	}
}

// WithPersister 设置外部状态读写钩子
func WithPersister(p Persister) Option {
	return func(m *Machine) {
		if p != nil {
			m.persister = p
		}
	}
}

// WithLogger 设置日志
func WithLogger(l *logger.Logger) Option {
	return func(m *Machine) {
		m.log = l
	}
}

// WithObserver 添加派发观察者
func WithObserver(o Observer) Option {
	return func(m *Machine) {
		m.observers = append(m.observers, o)
	}
}

// Machine 状态机实例，只持有当前状态的引用，定义由同类实例共享。
//
// Run/Reset/Fire/Restore 由实例内的互斥锁串行化；回调中可以调用
// Current/State，但不能对同一实例再次调用Fire，否则会死锁。
type Machine struct {
	id        string
	def       *Definition
	mu        sync.Mutex
	current   atomic.Pointer[stateEntry]
	persister Persister
	log       *logger.Logger
	observers []Observer
	host      interface{}
}

var _ StateMachine = (*Machine)(nil)

// NewMachine 基于定义创建实例，实例需要Run之后才有当前状态
func (d *Definition) NewMachine(opts ...Option) *Machine {
	m := &Machine{
		def:       d,
		persister: Passthrough{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.id == "" {
		m.id = uuid.NewString()
	}
	if m.log == nil {
		m.log = logger.Default()
	}
	m.log = m.log.With(logger.String("fsm", d.name), logger.String("machine", m.id))
	return m
}

// ID 实例ID
func (m *Machine) ID() string { return m.id }

// Definition 实例使用的定义
func (m *Machine) Definition() *Definition { return m.def }

// Current 返回当前状态，未启动时为空
func (m *Machine) Current() State {
	if s := m.current.Load(); s != nil {
		return s.name
	}
	return ""
}

// State 返回当前状态，未启动时返回ErrNotStarted
func (m *Machine) State() (State, error) {
	s := m.current.Load()
	if s == nil {
		return "", ErrNotStarted
	}
	return s.name, nil
}

// Started 是否已有当前状态
func (m *Machine) Started() bool {
	return m.current.Load() != nil
}

// Can 当前状态下是否存在该事件的转换（不求值守卫）
func (m *Machine) Can(event Event) bool {
	s := m.current.Load()
	return s != nil && m.def.stateResponds(s.name, event)
}

// RespondsTo 定义中是否存在该事件
func (m *Machine) RespondsTo(event Event) bool {
	return m.def.HasEvent(event)
}

// AvailableEvents 当前状态可响应的事件
func (m *Machine) AvailableEvents() []Event {
	s := m.current.Load()
	if s == nil {
		return nil
	}
	return m.def.EventsFor(s.name)
}

// Run 启动状态机：未启动时进入初始状态并以args调用其进入回调，
// 再把初始状态写入Persister；已启动时不做任何事。
func (m *Machine) Run(ctx context.Context, args ...interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Load() != nil {
		return nil
	}
	return m.enterInitial(m.hostContext(ctx), normalizeArgs(args))
}

// Reset 无条件回到初始状态并调用其进入回调，不调用当前状态的退出回调。
// 与Run一样，成功后写入Persister，之后的派发不会被旧的存储状态覆盖。
func (m *Machine) Reset(ctx context.Context, args ...interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enterInitial(m.hostContext(ctx), normalizeArgs(args))
}

// Restore 直接设置当前状态，不触发任何回调，用于从快照恢复。
// 新状态同时写入Persister。
func (m *Machine) Restore(state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.def.lookup(state)
	if err != nil {
		return err
	}
	m.current.Store(entry)
	return m.save(m.hostContext(context.Background()), Args{})
}

// Fire 派发事件。
//
// 按声明顺序找到当前状态下第一条守卫通过的转换，依次执行动作，
// 有目标状态时再执行退出回调、切换状态、执行进入回调。没有匹配的
// 转换不是错误，返回false且状态不变。回调错误直接返回，不回滚；
// 进入回调执行前状态已经切换。
func (m *Machine) Fire(ctx context.Context, event Event, args ...interface{}) (bool, error) {
	if !m.def.HasEvent(event) {
		return false, fmt.Errorf("%w: %q", ErrEventNotFound, event)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ctx = m.hostContext(ctx)
	a := normalizeArgs(args)
	if err := m.prepare(ctx, a); err != nil {
		return false, err
	}

	from := m.current.Load()
	if from == nil {
		return false, ErrNotStarted
	}

	t, err := m.match(ctx, from.name, event, a)
	if err != nil {
		return false, err
	}

	matched := t != nil
	if matched {
		if err := m.apply(ctx, from, t, a); err != nil {
			m.log.Debug("transition failed",
				logger.String("event", string(event)),
				logger.String("from", string(from.name)),
				logger.Err(err))
			return false, err
		}
	}

	to := m.Current()
	if err := m.save(ctx, a); err != nil {
		return matched, err
	}

	if matched {
		m.log.Debug("event fired",
			logger.String("event", string(event)),
			logger.String("from", string(from.name)),
			logger.String("to", string(to)))
	} else {
		m.log.Debug("no transition matched",
			logger.String("event", string(event)),
			logger.String("state", string(from.name)))
	}

	m.notify(Record{
		MachineID: m.id,
		Event:     event,
		From:      from.name,
		To:        to,
		Matched:   matched,
		Timestamp: time.Now(),
	})
	return matched, nil
}

func (m *Machine) enterInitial(ctx context.Context, args Args) error {
	initial := m.def.states[0]
	m.current.Store(initial)
	m.log.Debug("machine started", logger.String("state", string(initial.name)))

	if initial.enter != nil {
		if err := initial.enter.call(ctx, args); err != nil {
			return err
		}
	}
	return m.save(ctx, args)
}

func (m *Machine) save(ctx context.Context, args Args) error {
	if err := m.persister.SaveState(ctx, m.id, m.Current(), args); err != nil {
		return fmt.Errorf("statemachine: save state: %w", err)
	}
	return nil
}

// prepare 调用外部存储钩子，可能替换当前状态
func (m *Machine) prepare(ctx context.Context, args Args) error {
	current := m.Current()
	state, err := m.persister.PrepareState(ctx, m.id, current, args)
	if err != nil {
		return fmt.Errorf("statemachine: prepare state: %w", err)
	}
	if state == "" || state == current {
		return nil
	}

	entry, err := m.def.lookup(state)
	if err != nil {
		return err
	}
	m.current.Store(entry)
	return nil
}

// match 返回第一条守卫通过的候选转换，没有时返回nil
func (m *Machine) match(ctx context.Context, from State, event Event, args Args) (*transition, error) {
	for _, t := range m.def.transitions[from] {
		if t.spec.Event != event {
			continue
		}
		if t.guard.empty() {
			return t, nil
		}
		ok, err := t.guard.evaluate(ctx, args)
		if err != nil {
			return nil, err
		}
		if ok {
			return t, nil
		}
	}
	return nil, nil
}

func (m *Machine) apply(ctx context.Context, from *stateEntry, t *transition, args Args) error {
	if err := runActions(ctx, t.actions, args); err != nil {
		return err
	}

	// 无目标状态：只执行动作
	if t.spec.To == "" {
		return nil
	}

	next, err := m.def.lookup(t.spec.To)
	if err != nil {
		return err
	}
	if from.exit != nil {
		if err := from.exit.call(ctx, args); err != nil {
			return err
		}
	}
	m.current.Store(next)
	if next.enter != nil {
		return next.enter.call(ctx, args)
	}
	return nil
}

func (m *Machine) notify(r Record) {
	for _, o := range m.observers {
		o(r)
	}
}
