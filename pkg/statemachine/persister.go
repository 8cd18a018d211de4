package statemachine

import "context"

// Persister 让宿主把状态放在外部存储中。
// PrepareState 在每次派发开始时调用，返回非空且与current不同的状态时，
// 该状态直接成为当前状态（不触发回调）；SaveState 在派发成功结束后调用。
type Persister interface {
	PrepareState(ctx context.Context, id string, current State, args Args) (State, error)
	SaveState(ctx context.Context, id string, current State, args Args) error
}

// Passthrough 默认实现，不读写任何外部状态
type Passthrough struct{}

func (Passthrough) PrepareState(_ context.Context, _ string, current State, _ Args) (State, error) {
	return current, nil
}

func (Passthrough) SaveState(context.Context, string, State, Args) error {
	return nil
}
