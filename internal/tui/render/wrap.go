package render

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// WrapText 按显示宽度换行：优先在空白处断开，超宽的词按宽度硬切。
// 空行保留，末尾换行不产生额外的空行。
func WrapText(text string, width int) []string {
	text = strings.TrimSuffix(text, "\n")
	if width <= 0 {
		return strings.Split(text, "\n")
	}
	lines := []string{}
	for _, raw := range strings.Split(text, "\n") {
		raw = expandTabs(raw)
		if raw == "" {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, wrapLine(raw, width)...)
	}
	return lines
}

func expandTabs(line string) string {
	if !strings.Contains(line, "\t") {
		return line
	}
	return strings.ReplaceAll(line, "\t", "    ")
}

func wrapLine(line string, width int) []string {
	if runewidth.StringWidth(line) <= width {
		return []string{line}
	}
	out := []string{}
	current := ""
	currentWidth := 0
	for _, word := range strings.Fields(line) {
		ww := runewidth.StringWidth(word)
		if current == "" {
			if ww > width {
				parts := breakLongWord(word, width)
				out = append(out, parts[:len(parts)-1]...)
				current = parts[len(parts)-1]
				currentWidth = runewidth.StringWidth(current)
				continue
			}
			current, currentWidth = word, ww
			continue
		}
		if currentWidth+1+ww <= width {
			current += " " + word
			currentWidth += 1 + ww
			continue
		}
		out = append(out, current)
		if ww > width {
			parts := breakLongWord(word, width)
			out = append(out, parts[:len(parts)-1]...)
			current = parts[len(parts)-1]
			currentWidth = runewidth.StringWidth(current)
			continue
		}
		current, currentWidth = word, ww
	}
	if current != "" {
		out = append(out, current)
	}
	if len(out) == 0 {
		return []string{""}
	}
	return out
}

func breakLongWord(word string, width int) []string {
	out := []string{}
	var b strings.Builder
	w := 0
	for _, r := range word {
		rw := runewidth.RuneWidth(r)
		if w+rw > width && w > 0 {
			out = append(out, b.String())
			b.Reset()
			w = 0
		}
		b.WriteRune(r)
		w += rw
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
