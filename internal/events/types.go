package events

import "time"

// EventType 描述 EQ 中分发的事件类型。
type EventType string

const (
	// EventTranscriptChanged 在 transcript 追加、清空或任一条目前进一个字符后发出。
	EventTranscriptChanged EventType = "transcript.changed"
	// EventSubmissionState 在提交控制器状态变化时发出，Payload 为状态名。
	EventSubmissionState EventType = "submission.state"
	// EventStreamStatus 在推送连接建立/断开时发出，Payload 为 StreamStatus。
	EventStreamStatus EventType = "stream.status"
)

// StreamStatus 描述推送连接的状态变化。
type StreamStatus struct {
	Connected bool
	Error     string
}

// Event 是 EQ 中传递的唯一消息格式。
// UI 只把它当作刷新信号，真实状态总是从快照读取，所以丢弃是安全的。
type Event struct {
	Type       EventType
	Generation uint64
	Timestamp  time.Time
	Payload    any
}
