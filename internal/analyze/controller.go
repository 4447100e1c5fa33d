// Package analyze 实现提交控制：清空 transcript、发出一次分析请求，
// 并在失败时用固定的错误条目替换 transcript。
package analyze

import (
	"context"
	"errors"
	"sync"
	"time"

	"auditor-cli/internal/logger"
	"auditor-cli/internal/loop"
	"auditor-cli/internal/transcript"

	"github.com/google/uuid"
)

// ErrorMessage 是请求失败时显示的固定文本。
const ErrorMessage = "An error occurred while processing your request.\n"

// DefaultDelay 是错误条目的显现节奏。
const DefaultDelay = 10 * time.Millisecond

// Generation 区分先后提交；只有最新一代的完成回调会生效。
type Generation uint64

// State 是提交状态机。
type State int

const (
	Idle State = iota
	Submitting
	IdleWithError
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case IdleWithError:
		return "error"
	default:
		return "unknown"
	}
}

// Status 是当前一代提交的状态快照。
type Status struct {
	Generation Generation
	ID         string
	State      State
	Err        error
}

// Sink 是 controller 对 transcript 的写入面，只在 loop 上调用。
type Sink interface {
	Clear() int
	Replace(source string, delay time.Duration) transcript.Item
}

// Options 定义 controller 参数。
type Options struct {
	// Delay 为 0 时由显现器按最小间隔处理，负值使用 DefaultDelay。
	Delay        time.Duration
	ErrorMessage string
	// OnState 在 loop 上、状态每次变化后调用。
	OnState func(Status)
}

func (o Options) withDefaults() Options {
	if o.Delay < 0 {
		o.Delay = DefaultDelay
	}
	if o.ErrorMessage == "" {
		o.ErrorMessage = ErrorMessage
	}
	if o.OnState == nil {
		o.OnState = func(Status) {}
	}
	return o
}

// Controller 是 Submission Controller。提交不会被串行化；
// 新提交使旧提交的完成回调失效。
type Controller struct {
	loop   *loop.Loop
	sink   Sink
	client Client
	opts   Options
	log    *logger.LogEntry

	// 以下字段只在 loop 上读写。
	gen Generation

	statusMu sync.Mutex
	status   Status

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController 创建 controller。
func NewController(l *loop.Loop, sink Sink, client Client, opts Options, log *logger.LogEntry) *Controller {
	if log == nil {
		log = logger.Named("analyze")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		loop:   l,
		sink:   sink,
		client: client,
		opts:   opts.withDefaults(),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit 在 loop 上同步清空 transcript 并进入新一代，然后在后台发出请求。
// ctx 在任务执行前被取消时不会产生任何状态变化。不能在 loop 任务内部调用。
func (c *Controller) Submit(ctx context.Context, question, sourceCode string) (Generation, error) {
	if c.client == nil {
		return 0, errors.New("analyze client is not configured")
	}
	if err := c.ctx.Err(); err != nil {
		return 0, loop.ErrClosed
	}
	req := Request{Question: question, SourceCode: sourceCode}
	id := uuid.NewString()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var gen Generation
	err := c.loop.Do(context.Background(), func() {
		if ctx.Err() != nil {
			return
		}
		discarded := c.sink.Clear()
		c.gen++
		gen = c.gen
		c.log.WithFields(logger.Fields{
			"generation": gen,
			"submission": id,
			"discarded":  discarded,
		}).Info("submitting analysis request")
		c.setStatus(Status{Generation: gen, ID: id, State: Submitting})
	})
	if err != nil {
		return 0, err
	}
	if gen == 0 {
		return 0, ctx.Err()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		start := time.Now()
		reqErr := c.client.Analyze(c.ctx, req)
		elapsed := time.Since(start)
		postErr := c.loop.Post(context.Background(), func() {
			c.complete(gen, id, reqErr, elapsed)
		})
		if postErr != nil {
			c.log.WithField("generation", gen).Debugf("dropping completion: %v", postErr)
		}
	}()
	return gen, nil
}

// Status 返回最新一代的状态，可在任意 goroutine 调用。
func (c *Controller) Status() Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// Retire 使当前一代失效，之后到达的完成回调都按过期处理。
// 仍在 Submitting 的状态回到 Idle。只能在 loop 上调用。
func (c *Controller) Retire() {
	c.gen++
	if c.Status().State == Submitting {
		c.setStatus(Status{Generation: c.gen, State: Idle})
	}
}

// Close 取消进行中的请求并等待其 goroutine 退出。
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) complete(gen Generation, id string, err error, elapsed time.Duration) {
	entry := c.log.WithFields(logger.Fields{
		"generation": gen,
		"submission": id,
		"elapsed":    elapsed.Round(time.Millisecond).String(),
	})
	if gen != c.gen {
		if err != nil {
			entry.WithField("error", err.Error()).Info("ignoring stale analysis failure")
		}
		return
	}
	if err == nil {
		entry.Info("analysis request accepted")
		c.setStatus(Status{Generation: gen, ID: id, State: Idle})
		return
	}
	entry.WithField("error", err.Error()).Warn("analysis request failed")
	c.sink.Replace(c.opts.ErrorMessage, c.opts.Delay)
	c.setStatus(Status{Generation: gen, ID: id, State: IdleWithError, Err: err})
}

func (c *Controller) setStatus(s Status) {
	c.statusMu.Lock()
	c.status = s
	c.statusMu.Unlock()
	c.opts.OnState(s)
}
