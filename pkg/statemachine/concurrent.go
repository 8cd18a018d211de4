package statemachine

import (
	"context"
	"sort"
	"sync"
)

// Group 管理共享同一定义的多个命名实例
type Group struct {
	mu       sync.RWMutex
	def      *Definition
	machines map[string]*Machine
}

// NewGroup 创建实例组
func NewGroup(def *Definition) *Group {
	return &Group{
		def:      def,
		machines: make(map[string]*Machine),
	}
}

// Spawn 以name为实例ID创建并加入一个实例
func (g *Group) Spawn(name string, opts ...Option) (*Machine, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.machines[name]; exists {
		return nil, ErrMachineExists
	}
	m := g.def.NewMachine(append(opts[:len(opts):len(opts)], WithID(name))...)
	g.machines[name] = m
	return m, nil
}

// Remove 移除实例
func (g *Group) Remove(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.machines, name)
}

// Get 获取实例
func (g *Group) Get(name string) (*Machine, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.machines[name]
	return m, ok
}

// Names 按名称排序返回所有实例名
func (g *Group) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.machines))
	for name := range g.machines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count 返回实例数量
func (g *Group) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.machines)
}

// Fire 向指定实例派发事件
func (g *Group) Fire(ctx context.Context, name string, event Event, args ...interface{}) (bool, error) {
	m, ok := g.Get(name)
	if !ok {
		return false, ErrMachineNotFound
	}
	return m.Fire(ctx, event, args...)
}

// FireAll 并发地向所有实例派发同一事件
func (g *Group) FireAll(ctx context.Context, event Event, args ...interface{}) map[string]Result {
	machines := g.snapshot()

	results := make(map[string]Result, len(machines))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, machine := range machines {
		wg.Add(1)
		go func(n string, m *Machine) {
			defer wg.Done()
			matched, err := m.Fire(ctx, event, args...)
			mu.Lock()
			results[n] = Result{Event: event, Matched: matched, Err: err}
			mu.Unlock()
		}(name, machine)
	}

	wg.Wait()
	return results
}

// RunAll 启动所有实例
func (g *Group) RunAll(ctx context.Context, args ...interface{}) map[string]error {
	results := make(map[string]error)
	for name, m := range g.snapshot() {
		results[name] = m.Run(ctx, args...)
	}
	return results
}

// ResetAll 把所有实例重置到初始状态
func (g *Group) ResetAll(ctx context.Context) map[string]error {
	results := make(map[string]error)
	for name, m := range g.snapshot() {
		results[name] = m.Reset(ctx)
	}
	return results
}

// States 返回所有实例的当前状态
func (g *Group) States() map[string]State {
	g.mu.RLock()
	defer g.mu.RUnlock()

	states := make(map[string]State, len(g.machines))
	for name, m := range g.machines {
		states[name] = m.Current()
	}
	return states
}

func (g *Group) snapshot() map[string]*Machine {
	g.mu.RLock()
	defer g.mu.RUnlock()

	machines := make(map[string]*Machine, len(g.machines))
	for name, m := range g.machines {
		machines[name] = m
	}
	return machines
}
