package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"auditor-cli/internal/logger"

	"github.com/coder/websocket"
)

// DialOptions 定义 websocket 连接参数。
type DialOptions struct {
	Framing     Framing
	Header      http.Header
	HTTPClient  *http.Client
	ReadLimit   int64
	Logger      *logger.LogEntry
	OnStatus    func(connected bool, err error)
	DialTimeout time.Duration
	// Wire 记录收发的原始帧，为空时使用 logger.Wire()。
	Wire logger.WireLogger
}

func (o DialOptions) withDefaults() DialOptions {
	if o.Framing == "" {
		o.Framing = FramingSocketIO
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	if o.Logger == nil {
		o.Logger = logger.Named("stream")
	}
	if o.OnStatus == nil {
		o.OnStatus = func(bool, error) {}
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.Wire == nil {
		o.Wire = logger.Wire()
	}
	return o
}

// WSConn 是基于 websocket 的推送连接。读取 goroutine 按到达顺序
// 把事件分发给已注册的处理器。断线后不重连。
type WSConn struct {
	conn *websocket.Conn
	reg  *registry
	opts DialOptions
	log  *logger.LogEntry

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial 建立连接并启动读取 goroutine。
func Dial(ctx context.Context, url string, opts DialOptions) (*WSConn, error) {
	opts = opts.withDefaults()
	switch opts.Framing {
	case FramingSocketIO, FramingJSON:
	default:
		return nil, fmt.Errorf("unknown stream framing %q", opts.Framing)
	}
	dialCtx, cancelDial := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancelDial()
	conn, resp, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{
		HTTPClient: opts.HTTPClient,
		HTTPHeader: opts.Header,
	})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial stream %s: %w", url, err)
	}
	conn.SetReadLimit(opts.ReadLimit)

	runCtx, cancel := context.WithCancel(context.Background())
	c := &WSConn{
		conn:   conn,
		reg:    newRegistry(),
		opts:   opts,
		log:    opts.Logger.WithField("url", url),
		ctx:    runCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.readLoop()
	c.log.WithField("framing", string(opts.Framing)).Info("stream connection opened")
	if opts.Framing == FramingJSON {
		opts.OnStatus(true, nil)
	}
	return c, nil
}

// On 实现 Connection。
func (c *WSConn) On(channel string, h Handler) (Unsubscribe, error) {
	return c.reg.on(channel, h)
}

// Close 关闭连接并等待读取 goroutine 退出。
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.reg.close()
		err = c.conn.Close(websocket.StatusNormalClosure, "")
		c.cancel()
		<-c.done
		if errors.Is(err, net.ErrClosed) || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			err = nil
		}
	})
	return err
}

// Done 在读取 goroutine 退出后关闭。
func (c *WSConn) Done() <-chan struct{} {
	return c.done
}

// Err 返回导致读取结束的错误，正常关闭时为 nil。
func (c *WSConn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *WSConn) readLoop() {
	defer close(c.done)
	for {
		typ, msg, err := c.conn.Read(c.ctx)
		if err != nil {
			c.finish(err)
			return
		}
		if typ != websocket.MessageText {
			c.log.Debug("ignoring binary stream frame")
			continue
		}
		c.opts.Wire.Frame("<-", string(msg))
		c.handleFrame(msg)
	}
}

func (c *WSConn) handleFrame(msg []byte) {
	f := decodeFrame(c.opts.Framing, msg)
	switch f.kind {
	case frameEvent:
		n := c.reg.dispatch(f.event)
		c.log.WithField("channel", f.event.Channel).Debugf("stream event dispatched to %d handlers", n)
	case frameOpen:
		c.log.WithField("handshake", f.info).Debug("engine.io open")
		if err := c.write("40"); err != nil {
			c.log.Warnf("failed to send socket.io connect: %v", err)
		}
	case framePing:
		if err := c.write("3"); err != nil {
			c.log.Warnf("failed to send pong: %v", err)
		}
	case frameConnected:
		c.log.Info("socket.io namespace connected")
		c.opts.OnStatus(true, nil)
	case frameConnectError:
		err := fmt.Errorf("socket.io connect error: %s", f.info)
		c.log.Warn(err.Error())
		c.opts.OnStatus(false, err)
	case frameDisconnected:
		c.log.Infof("stream disconnected by server: %s", f.info)
		c.opts.OnStatus(false, nil)
	case frameMalformed:
		c.log.WithField("frame", string(msg)).Warnf("ignoring malformed stream frame: %s", f.info)
	}
}

func (c *WSConn) write(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	c.opts.Wire.Frame("->", text)
	return c.conn.Write(ctx, websocket.MessageText, []byte(text))
}

func (c *WSConn) finish(err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || c.ctx.Err() != nil {
		c.log.Info("stream connection closed")
		c.opts.OnStatus(false, nil)
		return
	}
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
	c.log.Warnf("stream connection lost: %v", err)
	c.opts.OnStatus(false, err)
}
