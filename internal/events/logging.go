package events

import (
	"encoding/json"
	"fmt"
	"io"

	"auditor-cli/internal/logger"
)

// DefaultEQLogPath 是 EQ 独立日志文件的默认路径。
const DefaultEQLogPath = "logs/eq.log"

// log 复用全局 logger，标记事件组件。
var log = logger.Named("events")

// NewQueueLogger 为 EQ 创建独立的文件日志；失败时回落到全局 logger。
func NewQueueLogger(path string) (*logger.LogEntry, io.Closer) {
	if path == "" {
		return logger.Named("eq"), nil
	}
	entry, closer, _, err := logger.SetupComponentFile("eq", path)
	if err != nil {
		log.Warnf("failed to set up eq log file (%s): %v", path, err)
		return logger.Named("eq"), nil
	}
	return entry, closer
}

func encodePayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}
