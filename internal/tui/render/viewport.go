package render

import (
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Viewport 包装 bubbles viewport：内容未变时跳过重绘，
// 已在底部时追加内容后保持贴底。
type Viewport struct {
	viewport.Model
	lastLines []string
}

// NewViewport 创建视口。
func NewViewport(width, height int) Viewport {
	return Viewport{Model: viewport.New(width, height)}
}

// Resize 更新宽高。宽度变化时丢弃缓存，下次 SetLines 必然重绘。
func (v *Viewport) Resize(width, height int) {
	if v == nil {
		return
	}
	if v.Width != width {
		v.lastLines = nil
	}
	v.Width = width
	v.Height = height
}

// HandleUpdate 代理 bubbles 的 Update（鼠标滚轮等）。
func (v *Viewport) HandleUpdate(msg tea.Msg) tea.Cmd {
	if v == nil {
		return nil
	}
	var cmd tea.Cmd
	v.Model, cmd = v.Model.Update(msg)
	return cmd
}

// SetLines 更新内容，返回内容是否发生变化。
func (v *Viewport) SetLines(lines []string) bool {
	if v == nil {
		return false
	}
	if v.lastLines != nil && slices.Equal(lines, v.lastLines) {
		return false
	}
	stickToBottom := v.AtBottom()
	v.lastLines = append([]string{}, lines...)
	v.SetContent(strings.Join(lines, "\n"))
	if stickToBottom {
		v.GotoBottom()
	}
	return true
}

// Lines 返回最近一次设置的内容。
func (v *Viewport) Lines() []string {
	return append([]string(nil), v.lastLines...)
}
