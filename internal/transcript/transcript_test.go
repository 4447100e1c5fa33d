package transcript

import (
	"testing"
	"time"

	"auditor-cli/internal/reveal"

	"github.com/stretchr/testify/require"
)

// fakeScheduler 记录所有定时任务，由测试按顺序逐个触发。
type fakeScheduler struct {
	queue []*fakeTimer
}

type fakeTimer struct {
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *fakeScheduler) Schedule(_ time.Duration, fn func()) reveal.Timer {
	t := &fakeTimer{fn: fn}
	s.queue = append(s.queue, t)
	return t
}

func (s *fakeScheduler) step() bool {
	for len(s.queue) > 0 {
		t := s.queue[0]
		s.queue = s.queue[1:]
		if t.stopped {
			continue
		}
		t.fired = true
		t.fn()
		return true
	}
	return false
}

func (s *fakeScheduler) drain() int {
	n := 0
	for s.step() {
		n++
	}
	return n
}

func (s *fakeScheduler) live() int {
	n := 0
	for _, t := range s.queue {
		if !t.stopped {
			n++
		}
	}
	return n
}

func TestAppendKeepsArrivalOrderRegardlessOfCompletion(t *testing.T) {
	sched := &fakeScheduler{}
	tr := New(sched, nil)

	a := tr.Append("a much longer line\n", time.Millisecond)
	b := tr.Append("b\n", time.Millisecond)

	// b 会先显现完，但视图中 a 仍排在 b 前面。
	for i := 0; i < 4; i++ {
		sched.step()
	}
	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, a.ID, snap[0].ID)
	require.Equal(t, b.ID, snap[1].ID)
	require.True(t, snap[1].Done)
	require.False(t, snap[0].Done)

	sched.drain()
	require.Equal(t, "a much longer line\nb\n", tr.Text())
}

func TestAppendDoesNotRestartEarlierItems(t *testing.T) {
	sched := &fakeScheduler{}
	tr := New(sched, nil)

	tr.Append("abc", time.Millisecond)
	sched.step()
	sched.step()
	tr.Append("xyz", time.Millisecond)

	snap := tr.Snapshot()
	require.Equal(t, "ab", snap[0].Text)
	require.Equal(t, "", snap[1].Text)
}

func TestClearThenAppendYieldsExactlyOneItem(t *testing.T) {
	sched := &fakeScheduler{}
	tr := New(sched, nil)
	for i := 0; i < 5; i++ {
		tr.Append("line\n", time.Millisecond)
	}
	sched.step()

	discarded := tr.Clear()
	require.Equal(t, 5, discarded)
	require.Equal(t, 0, sched.live(), "clear must cancel every pending timer")

	item := tr.Append("fresh\n", time.Millisecond)
	require.Equal(t, []Item{item}, tr.Items())

	sched.drain()
	require.Equal(t, "fresh\n", tr.Text())
}

func TestClearStopsAllMutation(t *testing.T) {
	sched := &fakeScheduler{}
	changes := 0
	tr := New(sched, func() { changes++ })
	tr.Append("hello", time.Millisecond)
	tr.Append("world", time.Millisecond)
	sched.step()

	tr.Clear()
	before := changes
	require.Equal(t, 0, sched.drain())
	require.Equal(t, before, changes)
	require.Empty(t, tr.Snapshot())
}

func TestIDsAreMonotonicAcrossClear(t *testing.T) {
	tr := New(&fakeScheduler{}, nil)
	first := tr.Append("a", time.Millisecond)
	tr.Clear()
	second := tr.Append("b", time.Millisecond)
	require.Greater(t, second.ID, first.ID)
}

func TestReplaceIsClearPlusAppend(t *testing.T) {
	sched := &fakeScheduler{}
	tr := New(sched, nil)
	tr.Append("stream line\n", time.Millisecond)
	tr.Append("another\n", time.Millisecond)

	item := tr.Replace("An error occurred while processing your request.\n", 10*time.Millisecond)
	require.Equal(t, 1, tr.Len())
	require.Equal(t, item, tr.Items()[0])

	sched.drain()
	require.Equal(t, "An error occurred while processing your request.\n", tr.Text())
}

func TestNotifyFiresPerMutationAndStep(t *testing.T) {
	sched := &fakeScheduler{}
	changes := 0
	tr := New(sched, func() { changes++ })

	tr.Append("ab", time.Millisecond)
	require.Equal(t, 1, changes)
	sched.drain()
	require.Equal(t, 3, changes)

	tr.Clear()
	require.Equal(t, 4, changes)
	tr.Clear()
	require.Equal(t, 4, changes, "clearing an empty transcript is silent")
}

func TestCompleteAllAndAnimating(t *testing.T) {
	sched := &fakeScheduler{}
	tr := New(sched, nil)
	tr.Append("one\n", time.Millisecond)
	tr.Append("two\n", time.Millisecond)
	require.Equal(t, 2, tr.Animating())

	tr.CompleteAll()
	require.Equal(t, 0, tr.Animating())
	require.Equal(t, "one\ntwo\n", tr.Text())
	require.Equal(t, 0, sched.drain())
}

func TestFilterKeepsTranscriptOrder(t *testing.T) {
	lines := []Line{
		{ID: 1, Source: "Build Error Detected. Attempting to Fix...\n"},
		{ID: 2, Source: "Content written to ./src/C.sol\n"},
		{ID: 3, Source: "Build Successful. No further fixes required.\n"},
	}
	got := Filter(lines, "build")
	require.Len(t, got, 2)
	require.Equal(t, ItemID(1), got[0].ID)
	require.Equal(t, ItemID(3), got[1].ID)

	require.Equal(t, lines, Filter(lines, "  "))
}
