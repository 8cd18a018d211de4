package statemachine

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration 定义错误，errors.Is 匹配所有 *ConfigurationError
	ErrConfiguration = errors.New("statemachine: configuration error")

	// ErrUnknownState errors.Is 匹配所有 *UnknownStateError
	ErrUnknownState = errors.New("statemachine: unknown state")

	// ErrEventNotFound 定义中没有任何转换使用该事件
	ErrEventNotFound = errors.New("statemachine: event not found")

	// ErrNotStarted 状态机尚未Run
	ErrNotStarted = errors.New("statemachine: machine not started")

	// ErrBuilderSealed Build之后不能再声明
	ErrBuilderSealed = errors.New("statemachine: builder already built")

	// ErrEmptyDefinition 定义中没有任何状态
	ErrEmptyDefinition = errors.New("statemachine: definition has no states")

	// ErrMachineNotFound 管理器中不存在该状态机
	ErrMachineNotFound = errors.New("statemachine: machine not found")

	// ErrMachineExists 管理器中已存在同名状态机
	ErrMachineExists = errors.New("statemachine: machine already exists")

	// ErrStopped 异步状态机已停止
	ErrStopped = errors.New("statemachine: async machine stopped")
)

// ConfigurationError 构建定义时发现的编程错误
type ConfigurationError struct {
	Op     string
	State  State
	Event  Event
	Reason string
}

func (e *ConfigurationError) Error() string {
	msg := "statemachine: " + e.Op
	if e.State != "" {
		msg += fmt.Sprintf(" state %q", e.State)
	}
	if e.Event != "" {
		msg += fmt.Sprintf(" event %q", e.Event)
	}
	return msg + ": " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// UnknownStateError 引用的状态在定义中不存在
type UnknownStateError struct {
	State State
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("statemachine: unknown state %q", e.State)
}

func (e *UnknownStateError) Is(target error) bool {
	return target == ErrUnknownState
}

// CallbackError 宿主回调返回的错误
type CallbackError struct {
	Kind string // guard, action, enter, exit
	Name string
	Err  error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("statemachine: %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }
