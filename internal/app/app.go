// Package app 持有进程级上下文：推送连接、loop、transcript、订阅与提交控制器。
// 启动时 Init，退出时 Shutdown；测试可以注入假的连接和客户端。
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"auditor-cli/internal/analyze"
	"auditor-cli/internal/config"
	"auditor-cli/internal/events"
	"auditor-cli/internal/logger"
	"auditor-cli/internal/loop"
	"auditor-cli/internal/reveal"
	"auditor-cli/internal/stream"
	"auditor-cli/internal/transcript"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Options 允许替换外部协作者。
type Options struct {
	// Conn 为空时按配置拨号 websocket。
	Conn stream.Connection
	// Client 为空时使用 HTTP 客户端。
	Client analyze.Client
	Clock  clockwork.Clock
	// Logger 为空时使用 logger.Named("app")。
	Logger *logger.LogEntry
	// StreamLogger 用于推送连接与订阅，为空时使用 Logger。
	StreamLogger *logger.LogEntry
	// EQLogger 为非空时记录 EQ 发布的调试日志。
	EQLogger *logger.LogEntry
	// UpdateBuffer 是每个 Updates 订阅者的缓冲。
	UpdateBuffer int
}

// App 是进程级上下文。
type App struct {
	cfg  config.Config
	log  *logger.LogEntry
	loop *loop.Loop
	eq   *events.EventQueue
	conn stream.Connection
	tr   *transcript.Transcript
	sub  *stream.Subscriber
	ctrl *analyze.Controller

	mu      sync.Mutex
	mounted bool

	seq          atomic.Uint64
	shutdownOnce sync.Once
	shutdownErr  error
}

// Init 构建进程级上下文并打开推送连接。
func Init(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Named("app")
	}
	streamLog := opts.StreamLogger
	if streamLog == nil {
		streamLog = log
	}

	a := &App{
		cfg: cfg,
		log: log,
		eq:  events.NewEventQueue(opts.UpdateBuffer),
	}
	if opts.EQLogger != nil {
		a.eq.SetLogger(opts.EQLogger)
	}
	a.loop = loop.New(loop.Options{Clock: opts.Clock, Logger: log.WithField("component", "loop")})
	a.loop.Start(context.Background())

	conn := opts.Conn
	if conn == nil {
		url, err := cfg.ResolvedStreamURL()
		if err != nil {
			a.loop.Close()
			return nil, fmt.Errorf("resolve stream url: %w", err)
		}
		ws, err := stream.Dial(ctx, url, stream.DialOptions{
			Framing:  stream.Framing(cfg.Framing()),
			Logger:   streamLog,
			OnStatus: a.publishStreamStatus,
		})
		if err != nil {
			a.loop.Close()
			return nil, err
		}
		conn = ws
	}
	a.conn = conn

	if err := a.loop.Do(ctx, func() {
		a.tr = transcript.New(reveal.LoopScheduler{Loop: a.loop}, func() {
			a.publish(events.EventTranscriptChanged, nil)
		})
	}); err != nil {
		a.conn.Close()
		a.loop.Close()
		return nil, err
	}

	client := opts.Client
	if client == nil {
		client = analyze.NewHTTPClient(cfg.AnalyzeURL(), cfg.RequestTimeout())
	}
	a.sub = stream.NewSubscriber(conn, a.loop, a.tr, stream.Options{
		Channel: stream.ChannelLog,
		Delay:   cfg.RevealDelay(),
	}, streamLog)
	a.ctrl = analyze.NewController(a.loop, a.tr, client, analyze.Options{
		Delay: cfg.RevealDelay(),
		OnState: func(s analyze.Status) {
			a.publish(events.EventSubmissionState, s.State.String())
		},
	}, log.WithField("component", "analyze"))

	log.WithField("analyze_url", cfg.AnalyzeURL()).Info("app initialized")
	return a, nil
}

// Config 返回启动时的配置。
func (a *App) Config() config.Config {
	return a.cfg
}

// Mount 开始消费推送事件。重复调用无效果。
func (a *App) Mount(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mounted {
		return nil
	}
	if err := a.sub.Activate(ctx); err != nil {
		return fmt.Errorf("activate stream subscription: %w", err)
	}
	a.mounted = true
	return nil
}

// Unmount 注销推送处理器，使进行中的提交失效，然后清空 transcript，
// 取消所有进行中的动画。
func (a *App) Unmount() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.mounted {
		return
	}
	a.mounted = false
	err := a.loop.Do(context.Background(), func() {
		a.sub.Deactivate()
		a.ctrl.Retire()
		a.tr.Clear()
	})
	if err != nil {
		// loop 已关闭，没有任务会再执行，直接注销即可。
		a.sub.Deactivate()
	}
}

// Mounted 报告推送处理器是否已注册。
func (a *App) Mounted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mounted
}

// Submit 提交一次分析请求。
func (a *App) Submit(ctx context.Context, question, sourceCode string) (analyze.Generation, error) {
	return a.ctrl.Submit(ctx, question, sourceCode)
}

// Status 返回最新一次提交的状态。
func (a *App) Status() analyze.Status {
	return a.ctrl.Status()
}

// Snapshot 返回 transcript 当前的派生视图。
func (a *App) Snapshot(ctx context.Context) ([]transcript.Line, error) {
	var lines []transcript.Line
	err := a.loop.Do(ctx, func() {
		lines = a.tr.Snapshot()
	})
	return lines, err
}

// Animating 返回仍在显现的条目数。
func (a *App) Animating(ctx context.Context) (int, error) {
	var n int
	err := a.loop.Do(ctx, func() {
		n = a.tr.Animating()
	})
	return n, err
}

// CompleteAll 立即显现所有条目的剩余字符。
func (a *App) CompleteAll(ctx context.Context) error {
	return a.loop.Do(ctx, func() {
		a.tr.CompleteAll()
	})
}

// Updates 订阅状态变化通知。返回的取消函数会关闭通道。
func (a *App) Updates() (<-chan events.Event, func()) {
	ch := a.eq.Subscribe()
	return ch, func() { a.eq.Unsubscribe(ch) }
}

// StreamStats 返回推送订阅的计数。
func (a *App) StreamStats() stream.Stats {
	return a.sub.Stats()
}

// Shutdown 依次卸载、停止请求与连接、关闭 loop。可重复调用。
func (a *App) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.Unmount()

		var g errgroup.Group
		g.Go(func() error {
			a.ctrl.Close()
			return nil
		})
		g.Go(func() error {
			if err := a.conn.Close(); err != nil {
				return fmt.Errorf("close stream connection: %w", err)
			}
			return nil
		})
		a.shutdownErr = g.Wait()

		a.loop.Close()
		a.eq.Close()
		if a.shutdownErr != nil {
			a.log.Warnf("shutdown finished with error: %v", a.shutdownErr)
		} else {
			a.log.Info("app shut down")
		}
	})
	return a.shutdownErr
}

func (a *App) publish(typ events.EventType, payload any) {
	err := a.eq.Publish(context.Background(), events.Event{
		Type:       typ,
		Generation: a.seq.Add(1),
		Timestamp:  time.Now(),
		Payload:    payload,
	})
	if err != nil && !errors.Is(err, events.ErrEventDropped) && !errors.Is(err, events.ErrEventQueueClosed) {
		a.log.Warnf("failed to publish %s: %v", typ, err)
	}
}

func (a *App) publishStreamStatus(connected bool, err error) {
	status := events.StreamStatus{Connected: connected}
	if err != nil {
		status.Error = err.Error()
	}
	a.publish(events.EventStreamStatus, status)
}
