package statemachine

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"
)

// worker 对应文档中的 Resting/Working 场景
type worker struct {
	counter int
	calls   []string
	args    []Args
}

func (w *worker) record(name string, args Args) {
	w.calls = append(w.calls, name)
	w.args = append(w.args, args)
}

func (w *worker) count(name string) int {
	n := 0
	for _, c := range w.calls {
		if c == name {
			n++
		}
	}
	return n
}

func newWorkerDefinition(t *testing.T, w *worker) *Definition {
	t.Helper()

	reg := NewRegistry().
		Do("log", func(args Args) { w.record("log", args) }).
		Do("checkin", func(args Args) { w.record("checkin", args); w.counter-- }).
		Do("checkout", func(args Args) { w.record("checkout", args) }).
		Do("print_msg", func(args Args) { w.record("print_msg", args) }).
		Predicate("counter_positive", func(Args) bool { return w.counter > 0 })

	b := NewBuilder(reg, WithName("worker"))
	_ = b.DeclareState("resting", StateHooks{Enter: "log"})
	_ = b.DeclareState("working", StateHooks{Enter: "checkin", Exit: "checkout"})
	_ = b.DeclareTransition(TransitionSpec{
		From: "resting", Event: "work", To: "working",
		Guard: GuardSpec{And: []string{"counter_positive"}},
	})
	_ = b.DeclareTransition(TransitionSpec{
		From: "resting", Event: "work", Actions: []string{"print_msg"},
	})
	_ = b.DeclareTransition(TransitionSpec{From: "working", Event: "rest", To: "resting"})

	def, err := b.Build()
	if err != nil {
		t.Fatalf("构建定义失败: %v", err)
	}
	return def
}

// mustBuild 按顺序声明转换并构建
func mustBuild(t *testing.T, reg *Registry, states map[State]StateHooks, specs ...TransitionSpec) *Definition {
	t.Helper()

	b := NewBuilder(reg)
	for _, spec := range specs {
		if hooks, ok := states[spec.From]; ok {
			if err := b.DeclareState(spec.From, hooks); err != nil {
				t.Fatalf("声明状态失败: %v", err)
			}
		}
		if hooks, ok := states[spec.To]; ok && spec.To != "" {
			if err := b.DeclareState(spec.To, hooks); err != nil {
				t.Fatalf("声明状态失败: %v", err)
			}
		}
		if err := b.DeclareTransition(spec); err != nil {
			t.Fatalf("声明转换失败: %v", err)
		}
	}
	def, err := b.Build()
	if err != nil {
		t.Fatalf("构建定义失败: %v", err)
	}
	return def
}

func mustRun(t *testing.T, m *Machine, args ...interface{}) {
	t.Helper()
	if err := m.Run(context.Background(), args...); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
}

func mustFire(t *testing.T, m *Machine, event Event, args ...interface{}) bool {
	t.Helper()
	ok, err := m.Fire(context.Background(), event, args...)
	if err != nil {
		t.Fatalf("派发 %s 失败: %v", event, err)
	}
	return ok
}

func TestMachine_WorkerScenario(t *testing.T) {
	w := &worker{counter: 1}
	m := newWorkerDefinition(t, w).NewMachine()

	mustRun(t, m)
	if m.Current() != "resting" || w.count("log") != 1 {
		t.Fatalf("启动后应进入resting并调用一次log: state=%v log=%d", m.Current(), w.count("log"))
	}

	if !mustFire(t, m, "work", "hammer") || m.Current() != "working" {
		t.Fatalf("work应进入working: state=%v", m.Current())
	}
	if w.count("checkin") != 1 {
		t.Errorf("checkin调用次数: got %d, want 1", w.count("checkin"))
	}
	if got := w.args[len(w.args)-1]; !reflect.DeepEqual(got, Args{"hammer"}) {
		t.Errorf("进入回调参数错误: got %v", got)
	}

	if mustFire(t, m, "work") {
		t.Error("working 没有 work 转换，不应匹配")
	}
	if m.Current() != "working" {
		t.Errorf("状态不应改变: got %v", m.Current())
	}

	if !mustFire(t, m, "rest") || m.Current() != "resting" {
		t.Fatalf("rest应回到resting: state=%v", m.Current())
	}
	if w.count("checkout") != 1 || w.count("log") != 2 {
		t.Errorf("退出/进入回调次数错误: checkout=%d log=%d", w.count("checkout"), w.count("log"))
	}

	w.counter = 0
	if !mustFire(t, m, "work") {
		t.Error("次数用完时应匹配只打印提示的转换")
	}
	if m.Current() != "resting" {
		t.Errorf("状态不应改变: got %v", m.Current())
	}
	if w.count("print_msg") != 1 {
		t.Errorf("print_msg调用次数: got %d, want 1", w.count("print_msg"))
	}
	if w.count("log") != 2 || w.count("checkout") != 1 {
		t.Errorf("无目标状态的转换不应调用进入/退出回调: log=%d checkout=%d", w.count("log"), w.count("checkout"))
	}
}

func TestMachine_RunIsIdempotent(t *testing.T) {
	w := &worker{counter: 1}
	m := newWorkerDefinition(t, w).NewMachine()

	mustRun(t, m, "first")
	mustFire(t, m, "work")
	mustRun(t, m)

	if m.Current() != "working" {
		t.Errorf("再次Run不应改变状态: got %v", m.Current())
	}
	if w.count("log") != 1 {
		t.Errorf("再次Run不应调用进入回调: log=%d", w.count("log"))
	}
	if !reflect.DeepEqual(w.args[0], Args{"first"}) {
		t.Errorf("Run参数应传给进入回调: got %v", w.args[0])
	}
}

func TestMachine_Reset(t *testing.T) {
	w := &worker{counter: 1}
	m := newWorkerDefinition(t, w).NewMachine()

	mustRun(t, m)
	mustFire(t, m, "work")
	if err := m.Reset(context.Background()); err != nil {
		t.Fatalf("Reset失败: %v", err)
	}

	if m.Current() != "resting" {
		t.Errorf("Reset后应回到初始状态: got %v", m.Current())
	}
	if w.count("log") != 2 {
		t.Errorf("Reset应调用初始状态的进入回调: log=%d", w.count("log"))
	}
	if w.count("checkout") != 0 {
		t.Error("Reset不调用退出回调")
	}
}

func TestMachine_NotStarted(t *testing.T) {
	m := newWorkerDefinition(t, &worker{}).NewMachine()

	if _, err := m.State(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("期望 ErrNotStarted, got %v", err)
	}
	if m.Current() != "" || m.Started() || m.Can("work") || m.AvailableEvents() != nil {
		t.Error("未启动的实例不应有状态")
	}

	ok, err := m.Fire(context.Background(), "work")
	if ok || !errors.Is(err, ErrNotStarted) {
		t.Errorf("未启动时派发: ok=%v err=%v", ok, err)
	}
}

func TestMachine_UnknownEvent(t *testing.T) {
	m := newWorkerDefinition(t, &worker{}).NewMachine()
	mustRun(t, m)

	ok, err := m.Fire(context.Background(), "sleep")
	if ok || !errors.Is(err, ErrEventNotFound) {
		t.Errorf("未知事件: ok=%v err=%v", ok, err)
	}
	if m.RespondsTo("sleep") || !m.RespondsTo("rest") {
		t.Error("RespondsTo 结果错误")
	}
}

func TestMachine_Queries(t *testing.T) {
	m := newWorkerDefinition(t, &worker{counter: 1}).NewMachine(WithID("joe"))
	mustRun(t, m)

	if m.ID() != "joe" {
		t.Errorf("ID错误: got %v", m.ID())
	}
	if !m.Can("work") || m.Can("rest") {
		t.Error("Can 结果错误")
	}
	if got := m.AvailableEvents(); !slices.Equal(got, []Event{"work"}) {
		t.Errorf("AvailableEvents: got %v", got)
	}
	if st, err := m.State(); err != nil || st != "resting" {
		t.Errorf("State: got %v, %v", st, err)
	}
}

func TestMachine_DefaultIDIsUnique(t *testing.T) {
	def := newWorkerDefinition(t, &worker{})
	a, b := def.NewMachine(), def.NewMachine()
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("默认ID应唯一: %q %q", a.ID(), b.ID())
	}
}

func TestMachine_FirstMatchWins(t *testing.T) {
	var evaluated, applied []string
	reg := NewRegistry().
		Predicate("no", func(Args) bool { evaluated = append(evaluated, "no"); return false }).
		Predicate("yes", func(Args) bool { evaluated = append(evaluated, "yes"); return true }).
		Do("second", func(Args) { applied = append(applied, "second") }).
		Do("third", func(Args) { applied = append(applied, "third") })

	def := mustBuild(t, reg, nil,
		TransitionSpec{From: "a", Event: "go", To: "x", Guard: GuardSpec{And: []string{"no"}}},
		TransitionSpec{From: "a", Event: "go", To: "y", Guard: GuardSpec{And: []string{"yes"}}, Actions: []string{"second"}},
		TransitionSpec{From: "a", Event: "go", To: "z", Actions: []string{"third"}},
	)

	for i := 0; i < 3; i++ {
		evaluated, applied = nil, nil
		m := def.NewMachine()
		mustRun(t, m)

		if !mustFire(t, m, "go") || m.Current() != "y" {
			t.Fatalf("应匹配第二条转换: state=%v", m.Current())
		}
		if !slices.Equal(evaluated, []string{"no", "yes"}) {
			t.Errorf("守卫求值顺序: got %v", evaluated)
		}
		if !slices.Equal(applied, []string{"second"}) {
			t.Errorf("只执行匹配转换的动作: got %v", applied)
		}
	}
}

func TestMachine_NoMatchLeavesStateAndHooks(t *testing.T) {
	var calls []string
	reg := NewRegistry().
		Predicate("never", func(Args) bool { return false }).
		Do("exit", func(Args) { calls = append(calls, "exit") }).
		Do("enter", func(Args) { calls = append(calls, "enter") })

	def := mustBuild(t, reg, map[State]StateHooks{"a": {Exit: "exit"}, "b": {Enter: "enter"}},
		TransitionSpec{From: "a", Event: "go", To: "b", Guard: GuardSpec{Or: []string{"never"}}},
	)
	m := def.NewMachine()
	mustRun(t, m)

	if mustFire(t, m, "go") {
		t.Error("守卫不通过时不应匹配")
	}
	if m.Current() != "a" || len(calls) != 0 {
		t.Errorf("不匹配时状态和回调都不应变化: state=%v calls=%v", m.Current(), calls)
	}
}

func TestMachine_CallbackOrder(t *testing.T) {
	var calls []string
	rec := func(name string) func(Args) {
		return func(Args) { calls = append(calls, name) }
	}
	reg := NewRegistry().
		Do("exit_a", rec("exit_a")).
		Do("enter_b", rec("enter_b")).
		Do("act1", rec("act1")).
		Do("act2", rec("act2"))

	def := mustBuild(t, reg, map[State]StateHooks{"a": {Exit: "exit_a"}, "b": {Enter: "enter_b"}},
		TransitionSpec{From: "a", Event: "go", To: "b", Actions: []string{"act1", "act2"}},
	)
	m := def.NewMachine()
	mustRun(t, m)
	mustFire(t, m, "go")

	if want := []string{"act1", "act2", "exit_a", "enter_b"}; !slices.Equal(calls, want) {
		t.Errorf("回调顺序: got %v, want %v", calls, want)
	}
}

func TestMachine_ExplicitSelfTargetRunsHooks(t *testing.T) {
	var calls []string
	reg := NewRegistry().
		Do("exit", func(Args) { calls = append(calls, "exit") }).
		Do("enter", func(Args) { calls = append(calls, "enter") })

	def := mustBuild(t, reg, map[State]StateHooks{"a": {Enter: "enter", Exit: "exit"}},
		TransitionSpec{From: "a", Event: "again", To: "a"},
	)
	m := def.NewMachine()
	mustRun(t, m)
	mustFire(t, m, "again")

	if want := []string{"enter", "exit", "enter"}; !slices.Equal(calls, want) {
		t.Errorf("显式自转换应调用退出和进入回调: got %v", calls)
	}
}

func TestMachine_ActionErrorStopsDispatch(t *testing.T) {
	boom := errors.New("boom")
	var calls []string
	reg := NewRegistry().
		Do("first", func(Args) { calls = append(calls, "first") }).
		Action("fail", func(context.Context, Args) error { return boom }).
		Do("never", func(Args) { calls = append(calls, "never") })

	def := mustBuild(t, reg, nil,
		TransitionSpec{From: "a", Event: "go", To: "b", Actions: []string{"first", "fail", "never"}},
	)
	m := def.NewMachine()
	mustRun(t, m)

	ok, err := m.Fire(context.Background(), "go")
	if ok || !errors.Is(err, boom) {
		t.Fatalf("动作出错: ok=%v err=%v", ok, err)
	}
	var cbErr *CallbackError
	if !errors.As(err, &cbErr) || cbErr.Kind != "action" || cbErr.Name != "fail" {
		t.Errorf("错误应带上动作名: %v", err)
	}
	if !slices.Equal(calls, []string{"first"}) {
		t.Errorf("已执行的动作不回滚，后续动作不执行: got %v", calls)
	}
	if m.Current() != "a" {
		t.Errorf("状态不应改变: got %v", m.Current())
	}
}

func TestMachine_EnterErrorLeavesNewState(t *testing.T) {
	boom := errors.New("enter failed")
	reg := NewRegistry().Action("enter_b", func(context.Context, Args) error { return boom })

	def := mustBuild(t, reg, map[State]StateHooks{"a": {}, "b": {Enter: "enter_b"}},
		TransitionSpec{From: "a", Event: "go", To: "b"},
	)
	m := def.NewMachine()
	mustRun(t, m)

	if _, err := m.Fire(context.Background(), "go"); !errors.Is(err, boom) {
		t.Errorf("期望进入回调错误, got %v", err)
	}
	if m.Current() != "b" {
		t.Errorf("进入回调执行前状态已切换: got %v", m.Current())
	}
}

func TestMachine_GuardErrorPropagates(t *testing.T) {
	boom := errors.New("guard exploded")
	reg := NewRegistry().Guard("bad", func(context.Context, Args) (bool, error) { return false, boom })

	def := mustBuild(t, reg, nil, TransitionSpec{From: "a", Event: "go", To: "b", Guard: GuardSpec{And: []string{"bad"}}})
	m := def.NewMachine()
	mustRun(t, m)

	if _, err := m.Fire(context.Background(), "go"); !errors.Is(err, boom) {
		t.Errorf("期望守卫错误, got %v", err)
	}
	if m.Current() != "a" {
		t.Errorf("状态不应改变: got %v", m.Current())
	}
}

func TestMachine_ArgsNormalized(t *testing.T) {
	var got Args
	reg := NewRegistry().Do("act", func(args Args) { got = args })

	m := mustBuild(t, reg, nil, TransitionSpec{From: "a", Event: "go", Actions: []string{"act"}}).NewMachine()
	mustRun(t, m)

	mustFire(t, m, "go")
	if got == nil || len(got) != 0 {
		t.Errorf("无参数时应传入空的Args: got %#v", got)
	}

	mustFire(t, m, "go", "drill", "hammer")
	if !reflect.DeepEqual(got, Args{"drill", "hammer"}) {
		t.Errorf("参数顺序错误: got %v", got)
	}
}

func TestMachine_CallbacksCanReadState(t *testing.T) {
	var m *Machine
	var seen State
	reg := NewRegistry().Do("peek", func(Args) { seen = m.Current() })

	m = mustBuild(t, reg, nil, TransitionSpec{From: "a", Event: "go", Actions: []string{"peek"}}).NewMachine()
	mustRun(t, m)
	mustFire(t, m, "go")

	if seen != "a" {
		t.Errorf("回调中读取状态: got %v, want a", seen)
	}
}

func TestMachine_NilContext(t *testing.T) {
	var hostSeen interface{}
	reg := NewRegistry().Action("act", func(ctx context.Context, _ Args) error {
		hostSeen = HostFrom(ctx)
		return nil
	})
	host := &worker{}
	m := mustBuild(t, reg, nil, TransitionSpec{From: "a", Event: "go", Actions: []string{"act"}}).NewMachine(WithHost(host))

	// nil ctx按Background处理
	if err := m.Run(nil); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	if _, err := m.Fire(nil, "go"); err != nil {
		t.Fatalf("派发失败: %v", err)
	}
	if hostSeen != host {
		t.Errorf("回调应拿到宿主对象: got %v", hostSeen)
	}
}

func TestMachine_Restore(t *testing.T) {
	m := newWorkerDefinition(t, &worker{}).NewMachine()

	if err := m.Restore("working"); err != nil {
		t.Fatalf("Restore失败: %v", err)
	}
	if m.Current() != "working" {
		t.Errorf("Restore后状态: got %v", m.Current())
	}

	err := m.Restore("sleeping")
	var unknown *UnknownStateError
	if !errors.As(err, &unknown) || unknown.State != "sleeping" || !errors.Is(err, ErrUnknownState) {
		t.Errorf("期望 UnknownStateError, got %v", err)
	}
}

func TestMachine_Observer(t *testing.T) {
	var records []Record
	w := &worker{counter: 1}
	m := newWorkerDefinition(t, w).NewMachine(WithObserver(func(r Record) { records = append(records, r) }))
	mustRun(t, m)

	mustFire(t, m, "work")
	mustFire(t, m, "work")

	if len(records) != 2 {
		t.Fatalf("观察者调用次数: got %d, want 2", len(records))
	}
	want := Record{MachineID: m.ID(), Event: "work", From: "resting", To: "working", Matched: true, Timestamp: records[0].Timestamp}
	if records[0] != want {
		t.Errorf("第一条记录: got %+v", records[0])
	}
	if records[1].Matched || records[1].To != "working" {
		t.Errorf("第二条记录应为未匹配: got %+v", records[1])
	}
}
