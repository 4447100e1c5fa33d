// Package loop 提供单线程协作式调度：所有任务（定时器回调、推送事件、
// 请求完成回调）都被投递到同一个 worker 上串行执行，互不重叠。
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auditor-cli/internal/logger"

	"github.com/jonboulle/clockwork"
)

var (
	// ErrClosed 表示 loop 已关闭，不再接受任务。
	ErrClosed = errors.New("loop closed")
)

// Task 是在 loop 上执行的一个不可分割的步骤。
type Task func()

// Options 定义 loop 参数。
type Options struct {
	Capacity int
	Clock    clockwork.Clock
	Logger   *logger.LogEntry
}

func (o Options) withDefaults() Options {
	if o.Capacity <= 0 {
		o.Capacity = 256
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = logger.Named("loop")
	}
	return o
}

// Loop 是有界任务队列加单个 worker。
type Loop struct {
	tasks chan Task
	clock clockwork.Clock
	log   *logger.LogEntry

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New 创建 loop；需要调用 Start 后任务才会执行。
func New(opts Options) *Loop {
	opts = opts.withDefaults()
	return &Loop{
		tasks: make(chan Task, opts.Capacity),
		clock: opts.Clock,
		log:   opts.Logger,
		done:  make(chan struct{}),
	}
}

// Start 启动唯一的 worker。重复调用无效果。
func (l *Loop) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		l.cancel = cancel
		l.wg.Add(1)
		go l.worker(runCtx)
	})
}

// Close 停止 worker 并等待当前任务结束。队列中尚未执行的任务被丢弃。
func (l *Loop) Close() {
	l.stopOnce.Do(func() {
		close(l.done)
		if l.cancel != nil {
			l.cancel()
		}
		l.wg.Wait()
	})
}

// Clock 返回 loop 使用的时钟。
func (l *Loop) Clock() clockwork.Clock {
	return l.clock
}

// Len 返回排队中的任务数。
func (l *Loop) Len() int {
	return len(l.tasks)
}

// Post 把任务放入队列；队列满时等待空位或取消。
func (l *Loop) Post(ctx context.Context, task Task) error {
	if task == nil {
		return nil
	}
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	case l.tasks <- task:
		return nil
	}
}

// Do 投递任务并等待其执行完毕。不能在 loop 自身的任务里调用，否则死锁。
func (l *Loop) Do(ctx context.Context, task Task) error {
	finished := make(chan struct{})
	if err := l.Post(ctx, func() {
		defer close(finished)
		task()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	}
}

// AfterFunc 在 d 之后把 task 投递到 loop。返回的 Timer 被 Stop 后，
// 即便回调已经排进队列也不会再执行。
func (l *Loop) AfterFunc(d time.Duration, task Task) *Timer {
	t := &Timer{}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inner = l.clock.AfterFunc(d, func() {
		if err := l.Post(context.Background(), func() {
			if t.fire() {
				task()
			}
		}); err != nil && !errors.Is(err, ErrClosed) {
			l.log.Warnf("failed to post timer task: %v", err)
		}
	})
	return t
}

func (l *Loop) worker(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-l.tasks:
			l.run(task)
		}
	}
}

func (l *Loop) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("panic", fmt.Sprint(r)).Error("loop task panicked")
		}
	}()
	task()
}

// Timer 是 loop 上的一次性定时任务。
type Timer struct {
	mu      sync.Mutex
	inner   clockwork.Timer
	stopped bool
	fired   bool
}

// Stop 取消定时任务，返回任务是否仍处于待执行状态。
// 在 loop 上调用时保证回调之后不会再执行。
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	if t.inner != nil {
		t.inner.Stop()
	}
	return true
}

// Stopped 报告定时器是否已被取消。
func (t *Timer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *Timer) fire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.fired = true
	return true
}
