package events

import (
	"context"
	"errors"
	"sync"

	"auditor-cli/internal/logger"
)

var (
	// ErrEventQueueClosed 表示事件队列已关闭。
	ErrEventQueueClosed = errors.New("event queue closed")
	// ErrEventDropped 表示事件被慢消费者丢弃。
	ErrEventDropped = errors.New("event dropped by slow subscriber")
)

// EventQueue 是 EQ，负责把 loop 上的状态变化广播给 UI。
// Publish 从不阻塞 loop：订阅者缓冲满时直接丢弃。
type EventQueue struct {
	mu     sync.Mutex
	subs   []chan Event
	buffer int
	closed bool
	log    *logger.LogEntry
}

// NewEventQueue 创建事件队列，buffer 是每个订阅者的缓存大小。
func NewEventQueue(buffer int) *EventQueue {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventQueue{buffer: buffer}
}

// SetLogger 设置发布日志的输出位置。
func (q *EventQueue) SetLogger(entry *logger.LogEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.log = entry
}

// Subscribe 订阅事件流。通道会在 Close 时关闭。
func (q *EventQueue) Subscribe() <-chan Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	ch := make(chan Event, q.buffer)
	q.subs = append(q.subs, ch)
	return ch
}

// Unsubscribe 移除订阅并关闭其通道。
func (q *EventQueue) Unsubscribe(sub <-chan Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, ch := range q.subs {
		if ch == sub {
			q.subs = append(q.subs[:i], q.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish 发布事件到所有订阅者。若存在丢弃，则返回 ErrEventDropped。
// 发送是非阻塞的，因此在锁内完成，避免与 Unsubscribe/Close 竞争。
func (q *EventQueue) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrEventQueueClosed
	}
	if q.log != nil && q.log.Logger.IsLevelEnabled(logger.DebugLevel) {
		q.log.WithFields(logger.Fields{
			"type":       event.Type,
			"generation": event.Generation,
			"payload":    encodePayload(event.Payload),
		}).Debug("published event into EQ")
	}

	dropped := false
	for _, ch := range q.subs {
		select {
		case ch <- event:
		default:
			dropped = true
		}
	}
	if dropped {
		return ErrEventDropped
	}
	return nil
}

// Close 关闭事件队列和所有订阅通道。
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, ch := range q.subs {
		close(ch)
	}
	q.subs = nil
}

// SubscriberCount 返回当前订阅者数量。
func (q *EventQueue) SubscriberCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.subs)
}
