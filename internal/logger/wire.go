package logger

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// maxFrameLog 是单条帧日志保留的最大字符数。
const maxFrameLog = 512

// WireLogger 记录与分析服务之间的原始交互：analyze 请求与推送帧。
type WireLogger interface {
	Request(method, url string, bodyBytes int)
	Response(url string, status int, elapsed time.Duration)
	Frame(direction, text string)
	Error(url string, err error, elapsed time.Duration)
}

// WireLog 是全局唯一的交互日志器。
var WireLog WireLogger = NewWireLogger(nil)

// SetGlobalWireLogger 覆盖全局交互日志器，传入 nil 重置为默认实现。
func SetGlobalWireLogger(l WireLogger) {
	if l == nil {
		l = NewWireLogger(nil)
	}
	WireLog = l
}

// Wire 返回全局交互日志器。
func Wire() WireLogger {
	if WireLog == nil {
		return NoopWireLogger{}
	}
	return WireLog
}

// StdWireLogger 使用 logrus 输出，帧与请求体只在 debug 级别展开。
type StdWireLogger struct {
	logger *logrus.Entry
}

// NewWireLogger 构造写入 l 的交互日志器；l 为空时写入全局 logger。
func NewWireLogger(l *Logger) *StdWireLogger {
	if l == nil {
		l = root()
	}
	return &StdWireLogger{logger: logrus.NewEntry(l).WithField("component", "wire")}
}

func (l *StdWireLogger) Request(method, url string, bodyBytes int) {
	l.printf(logrus.InfoLevel, "-> %s %s bytes=%d", method, url, bodyBytes)
}

func (l *StdWireLogger) Response(url string, status int, elapsed time.Duration) {
	l.printf(logrus.InfoLevel, "<- %d %s elapsed=%s", status, url, elapsed.Round(time.Millisecond))
}

func (l *StdWireLogger) Frame(direction, text string) {
	l.printf(logrus.DebugLevel, "%s frame %s", direction, sanitize(text))
}

func (l *StdWireLogger) Error(url string, err error, elapsed time.Duration) {
	l.printf(logrus.WarnLevel, "!! %s err=%v elapsed=%s", url, err, elapsed.Round(time.Millisecond))
}

// NoopWireLogger 忽略所有输出。
type NoopWireLogger struct{}

func (NoopWireLogger) Request(string, string, int)         {}
func (NoopWireLogger) Response(string, int, time.Duration) {}
func (NoopWireLogger) Frame(string, string)                {}
func (NoopWireLogger) Error(string, error, time.Duration)  {}

func (l *StdWireLogger) printf(level logrus.Level, format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	if !l.logger.Logger.IsLevelEnabled(level) {
		return
	}
	entry := l.logger
	if caller := findCaller(); caller != "" {
		entry = entry.WithField("caller", caller)
	}
	entry.Log(level, fmt.Sprintf(format, args...))
}

func sanitize(text string) string {
	if r := []rune(text); len(r) > maxFrameLog {
		text = string(r[:maxFrameLog]) + "…"
	}
	text = strings.ReplaceAll(text, "\n", `\n`)
	text = strings.ReplaceAll(text, "\r", `\r`)
	return text
}

// findCaller 跳过本文件，定位真正发起交互的调用点。
func findCaller() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.File != "" && !strings.HasSuffix(frame.File, "logger/wire.go") {
			return fmt.Sprintf("%s:%d", shortenFilePath(frame.File), frame.Line)
		}
		if !more {
			break
		}
	}
	return ""
}
