package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"auditor-cli/internal/logger"
	"auditor-cli/internal/loop"
	"auditor-cli/internal/transcript"
)

// DefaultDelay 是推送日志行的固定显现节奏。
const DefaultDelay = 10 * time.Millisecond

// Appender 接收推送日志行，只在 loop 线程上调用。
type Appender interface {
	Append(source string, delay time.Duration) transcript.Item
}

// Options 定义订阅参数。
type Options struct {
	Channel string
	// Delay 为 0 时由显现器按最小间隔处理，负值使用 DefaultDelay。
	Delay   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Channel == "" {
		o.Channel = ChannelLog
	}
	if o.Delay < 0 {
		o.Delay = DefaultDelay
	}
	return o
}

// Stats 是订阅期间的计数。
type Stats struct {
	Received uint64
	Applied  uint64
	Dropped  uint64
	Stale    uint64
}

func (s Stats) String() string {
	if s.Received == 0 {
		return ""
	}
	return fmt.Sprintf("received=%d applied=%d dropped=%d stale=%d", s.Received, s.Applied, s.Dropped, s.Stale)
}

// Subscriber 是 Stream Subscription Manager：把推送通道上的事件
// 按到达顺序追加到 transcript。
type Subscriber struct {
	conn Connection
	loop *loop.Loop
	sink Appender
	opts Options
	log  *logger.LogEntry

	mu          sync.Mutex
	unsubscribe Unsubscribe
	ctx         context.Context
	cancel      context.CancelFunc

	// generation 每次 Activate/Deactivate 都会递增；只有与当前值相同的
	// 事件才能落到 transcript。
	generation atomic.Uint64

	received atomic.Uint64
	applied  atomic.Uint64
	dropped  atomic.Uint64
	stale    atomic.Uint64
}

// NewSubscriber 创建未激活的订阅。
func NewSubscriber(conn Connection, l *loop.Loop, sink Appender, opts Options, log *logger.LogEntry) *Subscriber {
	if log == nil {
		log = logger.Named("stream")
	}
	return &Subscriber{
		conn: conn,
		loop: l,
		sink: sink,
		opts: opts.withDefaults(),
		log:  log,
	}
}

// Activate 在通道上注册处理器。已激活时直接返回。
func (s *Subscriber) Activate(ctx context.Context) error {
	if s.conn == nil || s.loop == nil || s.sink == nil {
		return errors.New("stream subscriber is not fully configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		return nil
	}
	gen := s.generation.Add(1)
	runCtx, cancel := context.WithCancel(ctx)
	unsubscribe, err := s.conn.On(s.opts.Channel, func(ev Event) {
		s.handle(runCtx, gen, ev)
	})
	if err != nil {
		cancel()
		s.generation.Add(1)
		return err
	}
	s.unsubscribe = unsubscribe
	s.ctx = runCtx
	s.cancel = cancel
	s.log.WithField("channel", s.opts.Channel).Infof("stream handler registered (mount %d)", gen)
	return nil
}

// Deactivate 注销处理器。之后投递的事件，包括已经排进 loop 的事件，
// 都不会再修改 transcript。重复调用无效果。
func (s *Subscriber) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe == nil {
		return
	}
	s.generation.Add(1)
	s.unsubscribe()
	s.unsubscribe = nil
	s.cancel()
	s.ctx, s.cancel = nil, nil
	s.log.WithField("channel", s.opts.Channel).Info("stream handler deregistered")
}

// Active 报告处理器是否已注册。
func (s *Subscriber) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribe != nil
}

// Stats 返回计数快照。
func (s *Subscriber) Stats() Stats {
	return Stats{
		Received: s.received.Load(),
		Applied:  s.applied.Load(),
		Dropped:  s.dropped.Load(),
		Stale:    s.stale.Load(),
	}
}

func (s *Subscriber) handle(ctx context.Context, gen uint64, ev Event) {
	s.received.Add(1)
	if s.generation.Load() != gen {
		s.stale.Add(1)
		return
	}
	text, ok := ev.Data()
	if !ok {
		s.dropped.Add(1)
		s.log.WithField("payload", string(ev.Payload)).Warn("ignoring stream event without string data")
		return
	}
	err := s.loop.Post(ctx, func() {
		if s.generation.Load() != gen {
			s.stale.Add(1)
			return
		}
		s.sink.Append(text+"\n", s.opts.Delay)
		s.applied.Add(1)
	})
	if err != nil {
		s.stale.Add(1)
		if !errors.Is(err, context.Canceled) && !errors.Is(err, loop.ErrClosed) {
			s.log.Warnf("failed to post stream event: %v", err)
		}
	}
}
