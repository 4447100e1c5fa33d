// Package transcript 维护按到达顺序排列的显现条目序列。
//
// Transcript 是只追加的事件日志：条目创建后不可变、不重排，只能被 Clear
// 整体丢弃。显示层通过 Snapshot/Text 读取派生视图。所有方法都必须在
// loop 线程上调用。
package transcript

import (
	"sort"
	"strings"
	"time"

	"auditor-cli/internal/reveal"

	"github.com/sahilm/fuzzy"
)

// ItemID 是客户端合成的条目标识，单调递增，跨 Clear 不复用。
type ItemID uint64

// Item 是 transcript 中的一条不可变记录。
type Item struct {
	ID     ItemID
	Source string
	Delay  time.Duration
}

// Line 是条目在某一时刻的派生视图。
type Line struct {
	ID     ItemID
	Text   string
	Source string
	Done   bool
}

type entry struct {
	item Item
	tw   *reveal.Typewriter
}

// Transcript 是 Transcript Accumulator。
type Transcript struct {
	sched   reveal.Scheduler
	notify  func()
	lastID  ItemID
	entries []*entry
}

// New 创建空 transcript。notify 在每次追加、清空以及任一条目显现一步后调用。
func New(sched reveal.Scheduler, notify func()) *Transcript {
	if notify == nil {
		notify = func() {}
	}
	return &Transcript{sched: sched, notify: notify}
}

// Append 在末尾追加一条并启动其动画，已有条目不受影响。
func (t *Transcript) Append(source string, delay time.Duration) Item {
	t.lastID++
	tw := reveal.New(source, delay)
	e := &entry{
		item: Item{ID: t.lastID, Source: source, Delay: tw.Delay()},
		tw:   tw,
	}
	t.entries = append(t.entries, e)
	t.notify()
	tw.Start(t.sched, func(string, bool) {
		t.notify()
	})
	return e.item
}

// Clear 丢弃全部条目并取消所有进行中的动画，返回丢弃的条目数。
func (t *Transcript) Clear() int {
	n := len(t.entries)
	for _, e := range t.entries {
		e.tw.Cancel()
	}
	t.entries = nil
	if n > 0 {
		t.notify()
	}
	return n
}

// Replace 清空后追加唯一一条，作为一个不可分割的步骤。
func (t *Transcript) Replace(source string, delay time.Duration) Item {
	t.Clear()
	return t.Append(source, delay)
}

// CompleteAll 立即显现所有条目的剩余字符。
func (t *Transcript) CompleteAll() {
	for _, e := range t.entries {
		e.tw.Complete()
	}
}

// Len 返回条目数。
func (t *Transcript) Len() int {
	return len(t.entries)
}

// Items 返回条目的副本，按追加顺序。
func (t *Transcript) Items() []Item {
	out := make([]Item, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.item)
	}
	return out
}

// Animating 返回仍有定时器挂起的条目数。
func (t *Transcript) Animating() int {
	n := 0
	for _, e := range t.entries {
		if e.tw.Pending() {
			n++
		}
	}
	return n
}

// Snapshot 返回当前派生视图。
func (t *Transcript) Snapshot() []Line {
	out := make([]Line, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, Line{
			ID:     e.item.ID,
			Text:   e.tw.Prefix(),
			Source: e.item.Source,
			Done:   e.tw.Done(),
		})
	}
	return out
}

// Text 拼接所有已显现的前缀。
func (t *Transcript) Text() string {
	return Join(t.Snapshot())
}

// Join 按顺序拼接视图中各条目已显现的文本。
func Join(lines []Line) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.Text)
	}
	return b.String()
}

type lineSource []Line

func (s lineSource) String(i int) string { return s[i].Source }
func (s lineSource) Len() int            { return len(s) }

// Filter 返回源文本模糊匹配 pattern 的条目，保持 transcript 顺序。
// pattern 为空时原样返回。
func Filter(lines []Line, pattern string) []Line {
	if strings.TrimSpace(pattern) == "" {
		return lines
	}
	matches := fuzzy.FindFrom(pattern, lineSource(lines))
	sort.Slice(matches, func(i, j int) bool { return matches[i].Index < matches[j].Index })
	out := make([]Line, 0, len(matches))
	for _, m := range matches {
		out = append(out, lines[m.Index])
	}
	return out
}
