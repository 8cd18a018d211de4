package statemachine

import "context"

type namedAction struct {
	kind string
	name string
	fn   ActionFunc
}

func (a *namedAction) call(ctx context.Context, args Args) error {
	if err := a.fn(ctx, args); err != nil {
		return &CallbackError{Kind: a.kind, Name: a.name, Err: err}
	}
	return nil
}

// runActions 按声明顺序执行动作，遇到错误立即返回，已执行的动作不回滚
func runActions(ctx context.Context, actions []namedAction, args Args) error {
	for i := range actions {
		if err := actions[i].call(ctx, args); err != nil {
			return err
		}
	}
	return nil
}
