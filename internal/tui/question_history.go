package tui

import "strings"

// questionHistory 负责问题输入框的历史浏览状态（上下箭头），只保存在内存中。
// cursor == len(entries) 表示当前在“最新输入”（非浏览历史）位置。
type questionHistory struct {
	entries []string
	cursor  int
	draft   string
}

// Add 记录一次已提交的问题；与上一条相同时不重复记录。
func (h *questionHistory) Add(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		h.ResetBrowsing()
		return
	}
	if n := len(h.entries); n == 0 || h.entries[n-1] != text {
		h.entries = append(h.entries, text)
	}
	h.ResetBrowsing()
}

func (h *questionHistory) Browsing() bool {
	return h.cursor < len(h.entries)
}

func (h *questionHistory) ResetBrowsing() {
	h.cursor = len(h.entries)
	h.draft = ""
}

func (h *questionHistory) Prev(current string) (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	if h.cursor == len(h.entries) {
		h.draft = current
	}
	if h.cursor > 0 {
		h.cursor--
	}
	return h.entries[h.cursor], true
}

func (h *questionHistory) Next() (string, bool) {
	if len(h.entries) == 0 || h.cursor == len(h.entries) {
		return "", false
	}
	if h.cursor < len(h.entries)-1 {
		h.cursor++
		return h.entries[h.cursor], true
	}
	h.cursor = len(h.entries)
	return h.draft, true
}
