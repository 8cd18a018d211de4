package statemachine

import "context"

type hostKey struct{}

// ContextWithHost 把宿主对象放入context，回调通过HostFrom取回
func ContextWithHost(ctx context.Context, host interface{}) context.Context {
	return context.WithValue(ctx, hostKey{}, host)
}

// HostFrom 返回派发时实例的宿主对象，没有时为nil
func HostFrom(ctx context.Context) interface{} {
	return ctx.Value(hostKey{})
}

// WithHost 设置实例的宿主对象，派发时放入传给回调的context
func WithHost(host interface{}) Option {
	return func(m *Machine) {
		m.host = host
	}
}

// hostContext nil的ctx按context.Background()处理
func (m *Machine) hostContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.host == nil {
		return ctx
	}
	return ContextWithHost(ctx, m.host)
}

// Host 返回实例的宿主对象
func (m *Machine) Host() interface{} { return m.host }
