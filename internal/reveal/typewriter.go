// Package reveal 实现逐字符显现的打字机动画。
//
// 每个 Typewriter 只持有一个定时器：每次 tick 显现一个字符后重新挂上
// 下一次 tick，所以取消只有一个入口。所有方法都必须在同一个调度线程
// （loop）上调用。
package reveal

import (
	"strings"
	"time"

	"auditor-cli/internal/loop"
)

// MinDelay 是 tick 间隔的下限。delay<=0 时仍然每个字符让出一次调度。
const MinDelay = time.Millisecond

// Timer 是一次性定时任务的取消句柄。
type Timer interface {
	Stop() bool
}

// Scheduler 在 d 之后于调度线程上执行 fn。
type Scheduler interface {
	Schedule(d time.Duration, fn func()) Timer
}

// LoopScheduler 把 loop.Loop 适配成 Scheduler。
type LoopScheduler struct {
	Loop *loop.Loop
}

// Schedule 实现 Scheduler。
func (s LoopScheduler) Schedule(d time.Duration, fn func()) Timer {
	return s.Loop.AfterFunc(d, fn)
}

// StepFunc 在每次显现后被调用，prefix 是当前已显现的前缀，done 表示已全部显现。
type StepFunc func(prefix string, done bool)

// Typewriter 是单个条目的显现状态机，不可重启。
type Typewriter struct {
	runes  []rune
	delay  time.Duration
	cursor int
	shown  strings.Builder

	sched     Scheduler
	timer     Timer
	onStep    StepFunc
	started   bool
	cancelled bool
}

// New 创建一个尚未开始的 Typewriter。
func New(source string, delay time.Duration) *Typewriter {
	if delay < MinDelay {
		delay = MinDelay
	}
	return &Typewriter{
		runes: []rune(source),
		delay: delay,
	}
}

// Start 开始显现。空文本立即完成且不产生 tick。
// 对已开始、已取消的实例调用无效果。
func (tw *Typewriter) Start(sched Scheduler, onStep StepFunc) {
	if tw.started || tw.cancelled {
		return
	}
	tw.started = true
	tw.sched = sched
	tw.onStep = onStep
	if len(tw.runes) == 0 {
		tw.notify(true)
		return
	}
	tw.timer = sched.Schedule(tw.delay, tw.tick)
}

func (tw *Typewriter) tick() {
	if tw.cancelled || tw.Done() {
		return
	}
	tw.shown.WriteRune(tw.runes[tw.cursor])
	tw.cursor++
	done := tw.Done()
	if done {
		tw.timer = nil
	} else {
		tw.timer = tw.sched.Schedule(tw.delay, tw.tick)
	}
	tw.notify(done)
}

// Complete 立即显现剩余全部字符，并停止定时器。
func (tw *Typewriter) Complete() {
	if tw.cancelled || !tw.started || tw.Done() {
		return
	}
	tw.stopTimer()
	tw.shown.WriteString(string(tw.runes[tw.cursor:]))
	tw.cursor = len(tw.runes)
	tw.notify(true)
}

// Cancel 停止定时器；之后不会再有任何 step 回调。
func (tw *Typewriter) Cancel() {
	if tw.cancelled {
		return
	}
	tw.cancelled = true
	tw.stopTimer()
}

func (tw *Typewriter) stopTimer() {
	if tw.timer != nil {
		tw.timer.Stop()
		tw.timer = nil
	}
}

func (tw *Typewriter) notify(done bool) {
	if tw.onStep != nil {
		tw.onStep(tw.shown.String(), done)
	}
}

// Prefix 返回已显现的前缀。
func (tw *Typewriter) Prefix() string { return tw.shown.String() }

// Revealed 返回已显现的字符数。
func (tw *Typewriter) Revealed() int { return tw.cursor }

// Len 返回源文本的字符数。
func (tw *Typewriter) Len() int { return len(tw.runes) }

// Source 返回完整源文本。
func (tw *Typewriter) Source() string { return string(tw.runes) }

// Delay 返回实际使用的 tick 间隔。
func (tw *Typewriter) Delay() time.Duration { return tw.delay }

// Done 报告是否已全部显现。
func (tw *Typewriter) Done() bool { return tw.cursor >= len(tw.runes) }

// Cancelled 报告是否已被取消。
func (tw *Typewriter) Cancelled() bool { return tw.cancelled }

// Pending 报告是否仍有定时器挂起。
func (tw *Typewriter) Pending() bool { return tw.timer != nil }
