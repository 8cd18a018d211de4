package statemachine

import (
	"context"
	"fmt"
	"reflect"
)

// Bind 将宿主对象的导出方法按方法名登记为回调。
//
// 支持的方法签名：
//
//	func(context.Context, Args) error        动作/回调
//	func(Args) error                         动作/回调
//	func(Args)                               动作/回调
//	func(context.Context, Args) (bool, error) 守卫
//	func(Args) bool                          守卫
//
// 其它签名的方法被忽略。没有任何可登记的方法时返回错误。
func (r *Registry) Bind(host interface{}) error {
	if host == nil {
		return fmt.Errorf("statemachine: bind nil host")
	}

	v := reflect.ValueOf(host)
	t := v.Type()
	bound := 0
	for i := 0; i < t.NumMethod(); i++ {
		name := t.Method(i).Name
		switch fn := v.Method(i).Interface().(type) {
		case func(context.Context, Args) error:
			r.Action(name, fn)
		case func(Args) error:
			r.Action(name, func(_ context.Context, args Args) error { return fn(args) })
		case func(Args):
			r.Do(name, fn)
		case func(context.Context, Args) (bool, error):
			r.Guard(name, fn)
		case func(Args) bool:
			r.Predicate(name, fn)
		default:
			continue
		}
		bound++
	}

	if bound == 0 {
		return fmt.Errorf("statemachine: %T has no bindable methods", host)
	}
	return nil
}

var (
	ctxType  = reflect.TypeOf((*context.Context)(nil)).Elem()
	argsType = reflect.TypeOf(Args(nil))
	errType  = reflect.TypeOf((*error)(nil)).Elem()
	boolType = reflect.TypeOf(false)
)

// methodShape 描述方法签名（不含接收者）
type methodShape struct {
	withCtx bool
	guard   bool
	withErr bool
}

func shapeOf(ft reflect.Type) (methodShape, bool) {
	var s methodShape
	in := make([]reflect.Type, 0, ft.NumIn()-1)
	for i := 1; i < ft.NumIn(); i++ {
		in = append(in, ft.In(i))
	}
	switch {
	case len(in) == 2 && in[0] == ctxType && in[1] == argsType:
		s.withCtx = true
	case len(in) == 1 && in[0] == argsType:
	default:
		return s, false
	}

	switch ft.NumOut() {
	case 0:
		return s, !s.withCtx
	case 1:
		switch ft.Out(0) {
		case errType:
			s.withErr = true
			return s, true
		case boolType:
			s.guard = true
			return s, !s.withCtx
		}
	case 2:
		if ft.Out(0) == boolType && ft.Out(1) == errType {
			s.guard, s.withErr = true, true
			return s, s.withCtx
		}
	}
	return s, false
}

// BindType 按类型登记方法：prototype只用于取得类型（可以是nil指针），
// 调用时从context中取出实例的宿主对象（见WithHost）作为接收者。
// 这样一个定义可以被多个宿主对象的实例共享。支持的签名同Bind。
func (r *Registry) BindType(prototype interface{}) error {
	t := reflect.TypeOf(prototype)
	if t == nil {
		return fmt.Errorf("statemachine: bind nil type")
	}

	bound := 0
	for i := 0; i < t.NumMethod(); i++ {
		method := t.Method(i)
		shape, ok := shapeOf(method.Type)
		if !ok {
			continue
		}

		call := reflectCall(t, method, shape)
		if shape.guard {
			r.Guard(method.Name, func(ctx context.Context, args Args) (bool, error) {
				out, err := call(ctx, args)
				if err != nil {
					return false, err
				}
				if shape.withErr && !out[1].IsNil() {
					return false, out[1].Interface().(error)
				}
				return out[0].Bool(), nil
			})
		} else {
			r.Action(method.Name, func(ctx context.Context, args Args) error {
				out, err := call(ctx, args)
				if err != nil {
					return err
				}
				if shape.withErr && !out[0].IsNil() {
					return out[0].Interface().(error)
				}
				return nil
			})
		}
		bound++
	}

	if bound == 0 {
		return fmt.Errorf("statemachine: %s has no bindable methods", t)
	}
	return nil
}

func reflectCall(t reflect.Type, method reflect.Method, shape methodShape) func(context.Context, Args) ([]reflect.Value, error) {
	return func(ctx context.Context, args Args) ([]reflect.Value, error) {
		host := HostFrom(ctx)
		hv := reflect.ValueOf(host)
		if !hv.IsValid() || hv.Type() != t {
			return nil, fmt.Errorf("statemachine: method %s needs host of type %s, got %T", method.Name, t, host)
		}

		in := []reflect.Value{hv}
		if shape.withCtx {
			in = append(in, reflect.ValueOf(&ctx).Elem())
		}
		in = append(in, reflect.ValueOf(args))
		return method.Func.Call(in), nil
	}
}
