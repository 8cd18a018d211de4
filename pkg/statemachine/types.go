package statemachine

import "context"

// State 状态名
type State string

// Event 触发状态转换的事件名
type Event string

// Args 事件参数，按调用顺序传给守卫、动作和进入/退出回调
type Args []interface{}

// GuardFunc 守卫谓词，返回true表示允许转换
type GuardFunc func(ctx context.Context, args Args) (bool, error)

// ActionFunc 转换动作，也用作状态的进入/退出回调
type ActionFunc func(ctx context.Context, args Args) error

// StateHooks 状态的进入/退出回调名，为空表示无回调
type StateHooks struct {
	Enter string
	Exit  string
}

// GuardSpec 三组守卫：And全部为真，Or至少一个为真，Not全部为假
type GuardSpec struct {
	And []string
	Or  []string
	Not []string
}

// IsZero 是否没有任何守卫
func (g GuardSpec) IsZero() bool {
	return len(g.And) == 0 && len(g.Or) == 0 && len(g.Not) == 0
}

// TransitionSpec 声明一条转换，To为空表示不改变状态
type TransitionSpec struct {
	From    State
	Event   Event
	To      State
	Guard   GuardSpec
	Actions []string
}

// StateMachine 状态机实例的核心接口
type StateMachine interface {
	// Run 启动状态机，已启动时不做任何事
	Run(ctx context.Context, args ...interface{}) error

	// Fire 派发事件，返回是否有转换被执行
	Fire(ctx context.Context, event Event, args ...interface{}) (bool, error)

	// Current 返回当前状态，未启动时为空
	Current() State

	// Can 当前状态下是否存在该事件的转换
	Can(event Event) bool
}

// normalizeArgs 保证回调拿到的参数不为nil
func normalizeArgs(args []interface{}) Args {
	if len(args) == 0 {
		return Args{}
	}
	out := make(Args, len(args))
	copy(out, args)
	return out
}
