package render

import (
	"fmt"
	"strings"

	"auditor-cli/internal/transcript"

	"github.com/charmbracelet/lipgloss"
)

// Cursor 追加在仍在显现的 transcript 末尾。
const Cursor = "▌"

var (
	logStyle     = lipgloss.NewStyle()
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	idStyle      = lipgloss.NewStyle().Faint(true)
	matchStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB454"))
	emptyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D7A85")).Italic(true)
	emptyMessage = "Submit a question and source code to start an analysis."
)

// RenderTranscript 把各条目已显现的前缀按顺序拼成一段预格式化文本，
// 再按宽度换行。仍有条目在显现时在末尾绘制光标。
func RenderTranscript(lines []transcript.Line, width int) []Line {
	if len(lines) == 0 {
		return []Line{{Spans: []Span{{Text: emptyMessage, Style: emptyStyle}}}}
	}
	text := transcript.Join(lines)
	animating := false
	for _, l := range lines {
		if !l.Done {
			animating = true
			break
		}
	}
	if text == "" && !animating {
		return nil
	}
	wrapWidth := width
	if animating && wrapWidth > 1 {
		wrapWidth--
	}
	wrapped := WrapText(text, wrapWidth)
	if strings.HasSuffix(text, "\n") && animating {
		// 光标落在新的一行。
		wrapped = append(wrapped, "")
	}
	out := make([]Line, 0, len(wrapped))
	for _, l := range wrapped {
		out = append(out, Line{Spans: []Span{{Text: l, Style: logStyle}}})
	}
	if animating && len(out) > 0 {
		last := &out[len(out)-1]
		last.Spans = append(last.Spans, Span{Text: Cursor, Style: cursorStyle})
	}
	return out
}

// RenderFiltered 渲染模糊匹配 pattern 的条目，每条带上条目编号，显示完整源文本。
func RenderFiltered(lines []transcript.Line, pattern string, width int) []Line {
	matches := transcript.Filter(lines, pattern)
	if len(matches) == 0 {
		return []Line{{Spans: []Span{{Text: fmt.Sprintf("No lines match %q.", pattern), Style: emptyStyle}}}}
	}
	out := []Line{}
	for _, m := range matches {
		prefix := fmt.Sprintf("#%d ", m.ID)
		indent := strings.Repeat(" ", len(prefix))
		bodyWidth := width - len(prefix)
		if bodyWidth < 1 {
			bodyWidth = 1
		}
		body := []Line{}
		for _, l := range WrapText(m.Source, bodyWidth) {
			body = append(body, Line{Spans: []Span{{Text: l, Style: matchStyle}}})
		}
		if len(body) == 0 {
			body = append(body, Line{})
		}
		out = append(out, PrefixLines(body, Span{Text: prefix, Style: idStyle}, Span{Text: indent, Style: idStyle})...)
	}
	return out
}
