package state

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 刷新任务状态常量
const (
	StateIdle       = "idle"
	StateRefreshing = "refreshing"
)

// 事件常量
const (
	EventStart  = "start"
	EventFinish = "finish"
)

// RunState 刷新任务状态
type RunState struct {
	CurrentState string    `json:"state"`
	Since        time.Time `json:"since"`
	Runs         int       `json:"runs"`
	LastStarted  time.Time `json:"last_started,omitempty"`
	LastFinished time.Time `json:"last_finished,omitempty"`
	LastVehicles int       `json:"last_vehicles"`
	LastError    string    `json:"last_error,omitempty"`
}

// Machine 刷新任务状态机，同一时刻只允许一次刷新
type Machine struct {
	mu            sync.Mutex
	fsm           *fsm.FSM
	state         RunState
	now           func() time.Time
	onStateChange func(from, to string)
}

// NewMachine 创建状态机
func NewMachine(onStateChange func(from, to string)) *Machine {
	m := &Machine{
		now:           time.Now,
		onStateChange: onStateChange,
	}
	m.state = RunState{
		CurrentState: StateIdle,
		Since:        m.now(),
	}

	m.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventStart, Src: []string{StateIdle}, Dst: StateRefreshing},
			{Name: EventFinish, Src: []string{StateRefreshing}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// TryStart 尝试进入 refreshing 状态，已在刷新时返回 false
func (m *Machine) TryStart() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fsm.Can(EventStart) {
		return false
	}
	if err := m.fsm.Event(context.Background(), EventStart); err != nil {
		return false
	}

	now := m.now()
	m.state.CurrentState = m.fsm.Current()
	m.state.Since = now
	m.state.LastStarted = now
	m.state.Runs++
	return true
}

// Finish 结束本次刷新并记录结果
func (m *Machine) Finish(vehicles int, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Event(context.Background(), EventFinish); err != nil {
		return
	}

	now := m.now()
	m.state.CurrentState = m.fsm.Current()
	m.state.Since = now
	m.state.LastFinished = now
	if runErr != nil {
		m.state.LastError = runErr.Error()
		return
	}
	m.state.LastError = ""
	m.state.LastVehicles = vehicles
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsm.Current()
}

// GetState 获取完整状态副本
func (m *Machine) GetState() RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
