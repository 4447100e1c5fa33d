package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"auditor-cli/internal/logger"
	"auditor-cli/internal/loop"
	"auditor-cli/internal/reveal"
	"auditor-cli/internal/transcript"

	"github.com/stretchr/testify/require"
)

// recordingSink 记录追加内容，只在 loop 上被访问。
type recordingSink struct {
	sources []string
	delays  []time.Duration
}

func (s *recordingSink) Append(source string, delay time.Duration) transcript.Item {
	s.sources = append(s.sources, source)
	s.delays = append(s.delays, delay)
	return transcript.Item{ID: transcript.ItemID(len(s.sources)), Source: source, Delay: delay}
}

func newTestLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l := loop.New(loop.Options{Logger: logger.Discard()})
	l.Start(context.Background())
	t.Cleanup(l.Close)
	return l
}

func appended(t *testing.T, l *loop.Loop, sink *recordingSink) []string {
	t.Helper()
	var out []string
	require.NoError(t, l.Do(context.Background(), func() {
		out = append(out, sink.sources...)
	}))
	return out
}

func TestSubscriberAppendsInDeliveryOrder(t *testing.T) {
	l := newTestLoop(t)
	conn := NewMemoryConn()
	sink := &recordingSink{}
	sub := NewSubscriber(conn, l, sink, Options{Delay: -1}, logger.Discard())
	require.NoError(t, sub.Activate(context.Background()))

	for _, line := range []string{"Parsing...", "Analyzing...", "Done."} {
		n, err := conn.EmitLog(line)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}

	require.Equal(t, []string{"Parsing...\n", "Analyzing...\n", "Done.\n"}, appended(t, l, sink))
	require.NoError(t, l.Do(context.Background(), func() {
		for _, d := range sink.delays {
			require.Equal(t, DefaultDelay, d)
		}
	}))
	require.Equal(t, Stats{Received: 3, Applied: 3}, sub.Stats())
}

func TestSubscriberPassesZeroDelayThrough(t *testing.T) {
	l := newTestLoop(t)
	conn := NewMemoryConn()
	sink := &recordingSink{}
	sub := NewSubscriber(conn, l, sink, Options{Delay: 0}, logger.Discard())
	require.NoError(t, sub.Activate(context.Background()))

	_, err := conn.EmitLog("fast")
	require.NoError(t, err)
	require.Equal(t, []string{"fast\n"}, appended(t, l, sink))
	require.NoError(t, l.Do(context.Background(), func() {
		require.Equal(t, []time.Duration{0}, sink.delays)
	}))
}

func TestSubscriberIgnoresMalformedPayloads(t *testing.T) {
	l := newTestLoop(t)
	conn := NewMemoryConn()
	sink := &recordingSink{}
	sub := NewSubscriber(conn, l, sink, Options{}, logger.Discard())
	require.NoError(t, sub.Activate(context.Background()))

	_, err := conn.Emit(ChannelLog, map[string]any{"data": 7})
	require.NoError(t, err)
	_, err = conn.Emit(ChannelLog, []byte(`{"message":"x"}`))
	require.NoError(t, err)
	_, err = conn.EmitLog("ok")
	require.NoError(t, err)

	require.Equal(t, []string{"ok\n"}, appended(t, l, sink))
	require.Equal(t, uint64(2), sub.Stats().Dropped)
}

func TestSubscriberIgnoresOtherChannels(t *testing.T) {
	l := newTestLoop(t)
	conn := NewMemoryConn()
	sink := &recordingSink{}
	sub := NewSubscriber(conn, l, sink, Options{}, logger.Discard())
	require.NoError(t, sub.Activate(context.Background()))

	n, err := conn.Emit("status", map[string]string{"data": "busy"})
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, appended(t, l, sink))
}

func TestDeactivateStopsAllMutation(t *testing.T) {
	l := newTestLoop(t)
	conn := NewMemoryConn()
	sink := &recordingSink{}
	sub := NewSubscriber(conn, l, sink, Options{}, logger.Discard())
	require.NoError(t, sub.Activate(context.Background()))

	_, err := conn.EmitLog("before")
	require.NoError(t, err)
	require.Equal(t, []string{"before\n"}, appended(t, l, sink))

	sub.Deactivate()
	require.False(t, sub.Active())
	require.Zero(t, conn.Handlers(ChannelLog))

	n, err := conn.EmitLog("after")
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, []string{"before\n"}, appended(t, l, sink))
}

func TestDeactivateDropsEventsAlreadyQueued(t *testing.T) {
	l := newTestLoop(t)
	conn := NewMemoryConn()
	sink := &recordingSink{}
	sub := NewSubscriber(conn, l, sink, Options{}, logger.Discard())
	require.NoError(t, sub.Activate(context.Background()))

	// 阻塞 worker，使事件停留在队列里。
	release := make(chan struct{})
	require.NoError(t, l.Post(context.Background(), func() { <-release }))
	_, err := conn.EmitLog("queued")
	require.NoError(t, err)

	sub.Deactivate()
	close(release)

	require.Empty(t, appended(t, l, sink))
	require.Equal(t, uint64(1), sub.Stats().Stale)
}

func TestActivateIsIdempotentAndRepairable(t *testing.T) {
	l := newTestLoop(t)
	conn := NewMemoryConn()
	sink := &recordingSink{}
	sub := NewSubscriber(conn, l, sink, Options{}, logger.Discard())

	require.NoError(t, sub.Activate(context.Background()))
	require.NoError(t, sub.Activate(context.Background()))
	require.Equal(t, 1, conn.Handlers(ChannelLog))

	sub.Deactivate()
	sub.Deactivate()
	require.Zero(t, conn.Handlers(ChannelLog))

	// 新的挂载周期重新注册，且只收到新周期的事件。
	require.NoError(t, sub.Activate(context.Background()))
	require.Equal(t, 1, conn.Handlers(ChannelLog))
	_, err := conn.EmitLog("second mount")
	require.NoError(t, err)
	require.Equal(t, []string{"second mount\n"}, appended(t, l, sink))
}

func TestActivateOnClosedConnection(t *testing.T) {
	l := newTestLoop(t)
	conn := NewMemoryConn()
	require.NoError(t, conn.Close())
	sub := NewSubscriber(conn, l, &recordingSink{}, Options{}, logger.Discard())

	err := sub.Activate(context.Background())
	require.True(t, errors.Is(err, ErrClosed))
	require.False(t, sub.Active())
}

func TestSubscriberFeedsTranscript(t *testing.T) {
	l := newTestLoop(t)
	conn := NewMemoryConn()
	var tr *transcript.Transcript
	require.NoError(t, l.Do(context.Background(), func() {
		tr = transcript.New(reveal.LoopScheduler{Loop: l}, nil)
	}))
	sub := NewSubscriber(conn, l, tr, Options{Delay: time.Millisecond}, logger.Discard())
	require.NoError(t, sub.Activate(context.Background()))

	for _, line := range []string{"Parsing...", "Analyzing...", "Done."} {
		_, err := conn.EmitLog(line)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		var text string
		_ = l.Do(context.Background(), func() { text = tr.Text() })
		return text == "Parsing...\nAnalyzing...\nDone.\n"
	}, 5*time.Second, 5*time.Millisecond)
}
