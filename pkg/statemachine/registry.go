package statemachine

import (
	"context"
	"sync"
)

// Registry 按名称登记宿主回调，定义中通过名称引用
type Registry struct {
	mu      sync.RWMutex
	guards  map[string]GuardFunc
	actions map[string]ActionFunc
}

// NewRegistry 创建回调注册表
func NewRegistry() *Registry {
	return &Registry{
		guards:  make(map[string]GuardFunc),
		actions: make(map[string]ActionFunc),
	}
}

// Guard 登记守卫
func (r *Registry) Guard(name string, fn GuardFunc) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guards[name] = fn
	return r
}

// Predicate 登记不会失败的守卫
func (r *Registry) Predicate(name string, fn func(args Args) bool) *Registry {
	return r.Guard(name, func(_ context.Context, args Args) (bool, error) {
		return fn(args), nil
	})
}

// Action 登记动作或进入/退出回调
func (r *Registry) Action(name string, fn ActionFunc) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = fn
	return r
}

// Do 登记不会失败的动作
func (r *Registry) Do(name string, fn func(args Args)) *Registry {
	return r.Action(name, func(_ context.Context, args Args) error {
		fn(args)
		return nil
	})
}

func (r *Registry) guard(name string) (GuardFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.guards[name]
	return fn, ok
}

func (r *Registry) action(name string) (ActionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actions[name]
	return fn, ok
}
