package tui

import (
	"fmt"
	"time"

	"auditor-cli/internal/tui/render"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// StatusIndicatorState 枚举了状态指示器可显示的所有状态。
type StatusIndicatorState int

const (
	// StatusSubmitting 表示分析请求已发出、尚未完成，计时器持续累加。
	StatusSubmitting StatusIndicatorState = iota
	// StatusRevealing 表示请求已被接受，日志仍在推送或显现，计时器持续累加。
	StatusRevealing
	// StatusError 表示最近一次请求失败。
	StatusError
	// StatusOffline 表示推送连接已断开。
	StatusOffline
	// StatusIdle 表示空闲，不显示状态行。
	StatusIdle
)

func (s StatusIndicatorState) String() string {
	switch s {
	case StatusSubmitting:
		return "submitting"
	case StatusRevealing:
		return "revealing"
	case StatusError:
		return "error"
	case StatusOffline:
		return "offline"
	case StatusIdle:
		return "idle"
	default:
		return "unknown"
	}
}

func (s StatusIndicatorState) defaultHeader() string {
	switch s {
	case StatusSubmitting:
		return "Submitting"
	case StatusRevealing:
		return "Streaming analysis"
	case StatusError:
		return "Request failed"
	case StatusOffline:
		return "Stream disconnected"
	default:
		return ""
	}
}

func (s StatusIndicatorState) tracksElapsed() bool {
	return s == StatusSubmitting || s == StatusRevealing
}

func (s StatusIndicatorState) visible() bool {
	return s != StatusIdle
}

func (s StatusIndicatorState) valid() bool {
	switch s {
	case StatusSubmitting, StatusRevealing, StatusError, StatusOffline, StatusIdle:
		return true
	default:
		return false
	}
}

// StatusIndicatorOptions 控制指示器的初始化行为。
type StatusIndicatorOptions struct {
	State             StatusIndicatorState
	Header            string
	AnimationsEnabled bool
	Clock             func() time.Time
}

// StatusIndicatorWidget 渲染与管理状态行（spinner + 标题 + 计时/详情）。
type StatusIndicatorWidget struct {
	header            string
	detail            string
	state             StatusIndicatorState
	animationsEnabled bool

	elapsedRunning time.Duration
	lastResumeAt   time.Time
	paused         bool

	clock func() time.Time
}

// NewStatusIndicatorWidget 构造状态指示器，默认处于 Idle。
func NewStatusIndicatorWidget(opts StatusIndicatorOptions) *StatusIndicatorWidget {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	state := opts.State
	if !state.valid() {
		state = StatusIdle
	}

	header := opts.Header
	if header == "" {
		header = state.defaultHeader()
	}

	w := &StatusIndicatorWidget{
		header:            header,
		state:             state,
		animationsEnabled: opts.AnimationsEnabled,
		clock:             clock,
		lastResumeAt:      clock(),
	}
	if !state.tracksElapsed() {
		w.paused = true
	}
	return w
}

// State 返回当前状态。
func (w *StatusIndicatorWidget) State() StatusIndicatorState {
	if w == nil {
		return StatusIdle
	}
	return w.state
}

// SetState 更新状态并根据状态是否计时自动处理计时器。
// 从非计时状态进入 Submitting 时计时从零开始。
func (w *StatusIndicatorWidget) SetState(state StatusIndicatorState) {
	if w == nil || !state.valid() {
		return
	}
	now := w.now()
	if state == StatusSubmitting && w.state != StatusSubmitting {
		w.elapsedRunning = 0
		w.paused = true
	}
	w.syncTimerForState(now, state)
	w.state = state
	w.header = state.defaultHeader()
	w.detail = ""
}

// SetDetail 设置标题后的附加说明，例如错误原因。
func (w *StatusIndicatorWidget) SetDetail(detail string) {
	if w == nil {
		return
	}
	w.detail = detail
}

// ElapsedSeconds 返回累计秒数。
func (w *StatusIndicatorWidget) ElapsedSeconds() uint64 {
	if w == nil {
		return 0
	}
	return w.elapsedSecondsAt(w.now())
}

// DesiredHeight 满足 render.Renderable。
func (w *StatusIndicatorWidget) DesiredHeight(_ int) int {
	if w == nil || !w.state.visible() {
		return 0
	}
	return 1
}

// CursorPos 满足 render.Renderable。
func (w *StatusIndicatorWidget) CursorPos(render.Rect) *render.CursorPos {
	return nil
}

// Render 绘制状态行：spinner + 标题 + 计时/详情。
func (w *StatusIndicatorWidget) Render(area render.Rect, buf *render.Buffer) {
	if w == nil || buf == nil || area.Height <= 0 || area.Width <= 0 || !w.state.visible() {
		return
	}

	now := w.now()
	spans := []render.Span{
		{Text: w.spinnerFrame(now)},
	}
	if w.header != "" {
		spans = append(spans, render.Span{Text: " "}, render.Span{Text: w.header})
	}

	hint := formatHint(w.state, fmtElapsedCompact(w.elapsedSecondsAt(now)), w.detail)
	if hint != "" {
		spans = append(spans, render.Span{Text: " "}, render.Span{
			Text:  hint,
			Style: lipgloss.NewStyle().Faint(true),
		})
	}

	clamped := clampSpans(spans, area.Width)
	if len(clamped) == 0 {
		return
	}
	buf.WriteLine(render.Line{Spans: clamped})
}

func (w *StatusIndicatorWidget) now() time.Time {
	if w.clock != nil {
		return w.clock()
	}
	return time.Now()
}

func (w *StatusIndicatorWidget) syncTimerForState(now time.Time, next StatusIndicatorState) {
	if next.tracksElapsed() && w.paused {
		w.resumeTimerAt(now)
		return
	}
	if !next.tracksElapsed() && !w.paused {
		w.pauseTimerAt(now)
	}
}

func (w *StatusIndicatorWidget) pauseTimerAt(now time.Time) {
	if w.paused {
		return
	}
	w.elapsedRunning += now.Sub(w.lastResumeAt)
	w.paused = true
}

func (w *StatusIndicatorWidget) resumeTimerAt(now time.Time) {
	if !w.paused {
		return
	}
	w.lastResumeAt = now
	w.paused = false
}

func (w *StatusIndicatorWidget) elapsedDurationAt(now time.Time) time.Duration {
	if w.paused {
		return w.elapsedRunning
	}
	return w.elapsedRunning + now.Sub(w.lastResumeAt)
}

func (w *StatusIndicatorWidget) elapsedSecondsAt(now time.Time) uint64 {
	return uint64(w.elapsedDurationAt(now).Seconds())
}

func (w *StatusIndicatorWidget) spinnerFrame(now time.Time) string {
	switch w.state {
	case StatusError:
		return "!"
	case StatusOffline:
		return "×"
	case StatusIdle:
		return ""
	}
	if w.animationsEnabled {
		frames := []string{"-", "\\", "|", "/"}
		idx := int(now.UnixMilli()/120) % len(frames)
		return frames[idx]
	}
	return "•"
}

func formatHint(state StatusIndicatorState, elapsed, detail string) string {
	switch {
	case state.tracksElapsed() && detail != "":
		return fmt.Sprintf("(%s • %s)", elapsed, detail)
	case state.tracksElapsed():
		return fmt.Sprintf("(%s)", elapsed)
	case detail != "":
		return fmt.Sprintf("(%s)", detail)
	default:
		return ""
	}
}

// fmtElapsedCompact 将秒数格式化为友好字符串。
func fmtElapsedCompact(elapsedSecs uint64) string {
	switch {
	case elapsedSecs < 60:
		return fmt.Sprintf("%ds", elapsedSecs)
	case elapsedSecs < 3600:
		minutes := elapsedSecs / 60
		seconds := elapsedSecs % 60
		return fmt.Sprintf("%dm %02ds", minutes, seconds)
	default:
		hours := elapsedSecs / 3600
		minutes := (elapsedSecs % 3600) / 60
		seconds := elapsedSecs % 60
		return fmt.Sprintf("%dh %02dm %02ds", hours, minutes, seconds)
	}
}

func clampSpans(spans []render.Span, width int) []render.Span {
	if width <= 0 {
		return nil
	}
	remaining := width
	out := make([]render.Span, 0, len(spans))
	for _, sp := range spans {
		if remaining <= 0 {
			break
		}
		tw := runewidth.StringWidth(sp.Text)
		if tw <= remaining {
			out = append(out, sp)
			remaining -= tw
			continue
		}
		text := runewidth.Truncate(sp.Text, remaining, "")
		if text != "" {
			sp.Text = text
			out = append(out, sp)
			remaining = 0
		}
	}
	return out
}
