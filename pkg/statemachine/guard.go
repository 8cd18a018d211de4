package statemachine

import "context"

type namedGuard struct {
	name string
	fn   GuardFunc
}

// guard 已解析的三组守卫
type guard struct {
	and []namedGuard
	or  []namedGuard
	not []namedGuard
}

func (g *guard) empty() bool {
	return len(g.and) == 0 && len(g.or) == 0 && len(g.not) == 0
}

// evaluate 依次检查And、Or、Not组，空组不构成约束。
// 每次派发都重新求值，不缓存结果。
func (g *guard) evaluate(ctx context.Context, args Args) (bool, error) {
	for _, p := range g.and {
		ok, err := p.call(ctx, args)
		if err != nil || !ok {
			return false, err
		}
	}

	if len(g.or) > 0 {
		passed := false
		for _, p := range g.or {
			ok, err := p.call(ctx, args)
			if err != nil {
				return false, err
			}
			if ok {
				passed = true
				break
			}
		}
		if !passed {
			return false, nil
		}
	}

	for _, p := range g.not {
		ok, err := p.call(ctx, args)
		if err != nil || ok {
			return false, err
		}
	}
	return true, nil
}

func (p namedGuard) call(ctx context.Context, args Args) (bool, error) {
	ok, err := p.fn(ctx, args)
	if err != nil {
		return false, &CallbackError{Kind: "guard", Name: p.name, Err: err}
	}
	return ok, nil
}
