package stream

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"
)

// MemoryConn 是进程内的推送连接，Emit 在调用方 goroutine 上同步投递。
// 用于测试和离线模式。
type MemoryConn struct {
	reg *registry
}

// NewMemoryConn 创建进程内连接。
func NewMemoryConn() *MemoryConn {
	return &MemoryConn{reg: newRegistry()}
}

// On 实现 Connection。
func (c *MemoryConn) On(channel string, h Handler) (Unsubscribe, error) {
	return c.reg.on(channel, h)
}

// Close 实现 Connection。
func (c *MemoryConn) Close() error {
	c.reg.close()
	return nil
}

// Emit 向通道投递一条事件。payload 为 []byte 时视为原始 JSON，否则编码为 JSON。
func (c *MemoryConn) Emit(channel string, payload any) (int, error) {
	var raw []byte
	switch v := payload.(type) {
	case []byte:
		raw = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return 0, fmt.Errorf("encode payload: %w", err)
		}
		raw = data
	}
	return c.reg.dispatch(Event{Channel: channel, Payload: raw}), nil
}

// EmitLog 以服务端相同的格式 {"data": text} 投递一行日志。
func (c *MemoryConn) EmitLog(text string) (int, error) {
	raw, err := sjson.SetBytes([]byte(`{}`), "data", text)
	if err != nil {
		return 0, err
	}
	return c.Emit(ChannelLog, raw)
}

// Handlers 返回通道上已注册的处理器数量。
func (c *MemoryConn) Handlers(channel string) int {
	return c.reg.count(channel)
}
