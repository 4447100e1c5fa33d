// Package stream 消费远端分析服务的推送事件流。
package stream

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// ChannelLog 是分析服务推送日志行所用的通道名。
const ChannelLog = "log"

var (
	// ErrClosed 表示连接已关闭，不能再注册处理器。
	ErrClosed = errors.New("stream connection closed")
)

// Event 是推送通道上的一条消息，Payload 为原始 JSON。
type Event struct {
	Channel string
	Payload []byte
}

// Data 返回 payload 中的 data 字段；字段缺失或不是字符串时 ok 为 false。
func (e Event) Data() (string, bool) {
	if !gjson.ValidBytes(e.Payload) {
		return "", false
	}
	res := gjson.GetBytes(e.Payload, "data")
	if res.Type != gjson.String {
		return "", false
	}
	return res.String(), true
}

// Handler 处理一条推送事件，在传输层的投递 goroutine 上调用。
type Handler func(Event)

// Unsubscribe 注销处理器，可重复调用。
type Unsubscribe func()

// Connection 是进程级的推送连接。
type Connection interface {
	On(channel string, h Handler) (Unsubscribe, error)
	Close() error
}

// registry 按通道保存处理器，供各种 Connection 实现复用。
type registry struct {
	mu     sync.RWMutex
	subs   map[string]map[string]Handler
	order  map[string][]string
	closed bool
}

func newRegistry() *registry {
	return &registry{
		subs:  map[string]map[string]Handler{},
		order: map[string][]string{},
	}
}

func (r *registry) on(channel string, h Handler) (Unsubscribe, error) {
	if h == nil {
		return nil, errors.New("nil stream handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	id := uuid.NewString()
	if r.subs[channel] == nil {
		r.subs[channel] = map[string]Handler{}
	}
	r.subs[channel][id] = h
	r.order[channel] = append(r.order[channel], id)

	var once sync.Once
	return func() {
		once.Do(func() { r.off(channel, id) })
	}, nil
}

func (r *registry) off(channel, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs[channel], id)
	ids := r.order[channel]
	for i, v := range ids {
		if v == id {
			r.order[channel] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

// dispatch 按注册顺序调用通道上的处理器，返回调用数。
func (r *registry) dispatch(ev Event) int {
	r.mu.RLock()
	handlers := make([]Handler, 0, len(r.order[ev.Channel]))
	for _, id := range r.order[ev.Channel] {
		if h, ok := r.subs[ev.Channel][id]; ok {
			handlers = append(handlers, h)
		}
	}
	r.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
	return len(handlers)
}

func (r *registry) count(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[channel])
}

func (r *registry) close() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.closed = true
	r.subs = map[string]map[string]Handler{}
	r.order = map[string][]string{}
	return true
}
