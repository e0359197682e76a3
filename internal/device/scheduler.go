package device

import (
	"sort"
	"sync"
	"time"
)

// Handle 已调度任务的句柄
type Handle interface {
	// Stop 取消尚未执行的任务，返回是否成功取消
	Stop() bool
}

// Scheduler 延迟执行抽象，测试中用 ManualScheduler 模拟时间
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Handle
}

// TimerScheduler 基于 time.AfterFunc 的实现
type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(d time.Duration, f func()) Handle {
	return time.AfterFunc(d, f)
}

// ManualScheduler 手动推进的虚拟时钟
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	tasks []*manualTask
}

type manualTask struct {
	s   *ManualScheduler
	at  time.Time
	seq uint64
	f   func()
}

func (t *manualTask) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i, x := range t.s.tasks {
		if x == t {
			t.s.tasks = append(t.s.tasks[:i], t.s.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// NewManualScheduler 以 start 为起点创建虚拟时钟
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

// Now 当前虚拟时间
func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTask{s: s, at: s.now.Add(d), seq: s.seq, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

// Pending 尚未执行的任务数
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Advance 推进虚拟时间并按 (到期时间, 调度顺序) 执行到期任务
// 执行中新调度且在窗口内到期的任务同样会被执行；返回执行数量
func (s *ManualScheduler) Advance(d time.Duration) int {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	fired := 0
	for {
		s.mu.Lock()
		sort.SliceStable(s.tasks, func(i, j int) bool {
			if s.tasks[i].at.Equal(s.tasks[j].at) {
				return s.tasks[i].seq < s.tasks[j].seq
			}
			return s.tasks[i].at.Before(s.tasks[j].at)
		})
		if len(s.tasks) == 0 || s.tasks[0].at.After(target) {
			s.now = target
			s.mu.Unlock()
			return fired
		}
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.now = t.at
		s.mu.Unlock()

		t.f()
		fired++
	}
}
