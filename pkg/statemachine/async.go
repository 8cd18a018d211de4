package statemachine

import (
	"context"
	"fmt"
	"sync"

	"github.com/junbin-yang/go-simplefsm/pkg/logger"
)

// Result 异步派发的结果
type Result struct {
	Event   Event
	Matched bool
	Err     error
}

type asyncEvent struct {
	ctx   context.Context
	event Event
	args  []interface{}
	reply chan Result
}

// AsyncOption 异步状态机选项
type AsyncOption func(*AsyncMachine)

// WithResultHandler 每个异步事件处理完后回调，在工作协程中执行。
// 回调中不要向同一个实例入队，队列满时会阻塞工作协程。
func WithResultHandler(fn func(Result)) AsyncOption {
	return func(a *AsyncMachine) {
		a.onResult = fn
	}
}

// AsyncMachine 通过事件队列和单个工作协程串行派发事件。
//
// 入队持有读锁，Stop持有写锁关闭stopCh，因此Stop返回前成功入队的
// 事件都会被处理，Stop之后的入队返回ErrStopped。
type AsyncMachine struct {
	*Machine
	eventQueue chan asyncEvent
	stopCh     chan struct{}
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopMu     sync.RWMutex
	stopped    bool
	onResult   func(Result)
}

// NewAsyncMachine 包装实例，queueSize为队列容量
func NewAsyncMachine(m *Machine, queueSize int, opts ...AsyncOption) *AsyncMachine {
	a := &AsyncMachine{
		Machine:    m,
		eventQueue: make(chan asyncEvent, queueSize),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start 启动工作协程
func (a *AsyncMachine) Start() {
	a.startOnce.Do(func() {
		a.wg.Add(1)
		go a.processEvents()
	})
}

// Stop 停止接收新事件，处理完队列中已有的事件后返回。
// 未Start时会先启动工作协程，保证已入队的事件得到处理。
func (a *AsyncMachine) Stop() {
	a.Start()

	a.stopMu.Lock()
	if !a.stopped {
		a.stopped = true
		close(a.stopCh)
	}
	a.stopMu.Unlock()

	a.wg.Wait()
}

// FireAsync 将事件放入队列，不等待处理结果
func (a *AsyncMachine) FireAsync(ctx context.Context, event Event, args ...interface{}) error {
	return a.enqueue(ctx, asyncEvent{ctx: ctx, event: event, args: args})
}

// FireWait 将事件放入队列并等待处理结果
func (a *AsyncMachine) FireWait(ctx context.Context, event Event, args ...interface{}) (bool, error) {
	reply := make(chan Result, 1)
	if err := a.enqueue(ctx, asyncEvent{ctx: ctx, event: event, args: args, reply: reply}); err != nil {
		return false, err
	}

	select {
	case r := <-reply:
		return r.Matched, r.Err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// QueueLength 返回队列长度
func (a *AsyncMachine) QueueLength() int {
	return len(a.eventQueue)
}

func (a *AsyncMachine) enqueue(ctx context.Context, ev asyncEvent) error {
	if !a.def.HasEvent(ev.event) {
		return fmt.Errorf("%w: %q", ErrEventNotFound, ev.event)
	}

	a.stopMu.RLock()
	defer a.stopMu.RUnlock()
	if a.stopped {
		return ErrStopped
	}

	// 持有读锁期间stopCh不会关闭，工作协程仍在消费队列
	select {
	case a.eventQueue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AsyncMachine) processEvents() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopCh:
			a.drain()
			return
		case ev := <-a.eventQueue:
			a.handle(ev)
		}
	}
}

func (a *AsyncMachine) drain() {
	for {
		select {
		case ev := <-a.eventQueue:
			a.handle(ev)
		default:
			return
		}
	}
}

func (a *AsyncMachine) handle(ev asyncEvent) {
	r := Result{Event: ev.event}
	if err := ev.ctx.Err(); err != nil {
		r.Err = err
	} else {
		r.Matched, r.Err = a.Machine.Fire(ev.ctx, ev.event, ev.args...)
	}

	if r.Err != nil && ev.reply == nil {
		a.log.Warn("async event failed", logger.String("event", string(ev.event)), logger.Err(r.Err))
	}
	if ev.reply != nil {
		ev.reply <- r
	}
	if a.onResult != nil {
		a.onResult(r)
	}
}
