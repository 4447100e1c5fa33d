package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"auditor-cli/internal/analyze"
	"auditor-cli/internal/events"
	"auditor-cli/internal/logger"
	"auditor-cli/internal/loop"
	"auditor-cli/internal/transcript"
	"auditor-cli/internal/tui/render"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var log = logger.Named("tui")

// Backend 是面板依赖的进程级上下文，*app.App 实现了它。
type Backend interface {
	Mount(ctx context.Context) error
	Unmount()
	Submit(ctx context.Context, question, sourceCode string) (analyze.Generation, error)
	Snapshot(ctx context.Context) ([]transcript.Line, error)
	CompleteAll(ctx context.Context) error
	Status() analyze.Status
	Updates() (<-chan events.Event, func())
}

type Options struct {
	Backend         Backend
	ServiceURL      string
	InitialQuestion string
	InitialSource   string
	// Clipboard 为空时写入系统剪贴板。
	Clipboard  func(string) error
	Clock      func() time.Time
	Animations bool
	// CopyableOutput 为 true 时不进入 alt screen，便于终端原生选择复制。
	CopyableOutput bool
}

type focusField int

const (
	focusQuestion focusField = iota
	focusSource
	focusAction
	focusCount
)

// refreshInterval 是动画进行中兜底刷新快照的间隔，EQ 丢弃通知时依赖它补齐。
const refreshInterval = 50 * time.Millisecond

type updateMsg struct {
	Event events.Event
}

type updatesClosedMsg struct{}

type snapshotMsg struct {
	Lines []transcript.Line
	Err   error
}

type submittedMsg struct {
	Generation analyze.Generation
	Err        error
}

type mountedMsg struct {
	Err error
}

type copiedMsg struct {
	Chars int
	Err   error
}

type refreshTickMsg struct{}

type Model struct {
	backend    Backend
	serviceURL string
	clipboard  func(string) error

	question textinput.Model
	source   textarea.Model
	filter   textinput.Model
	viewport render.Viewport
	spin     spinner.Model
	status   *StatusIndicatorWidget
	history  questionHistory

	updates       <-chan events.Event
	cancelUpdates func()

	focus      focusField
	filtering  bool
	lines      []transcript.Line
	generation analyze.Generation
	connected  bool
	mounted    bool
	err        error
	notice     string

	snapshotPending bool
	snapshotDirty   bool
	tickScheduled   bool
	viewDirty       bool

	width        int
	height       int
	sourceHeight int
}

func New(opts Options) *Model {
	q := textinput.New()
	q.Placeholder = "Ask a question about the contract…"
	q.Prompt = "› "
	q.CharLimit = 0
	q.SetValue(opts.InitialQuestion)
	q.Focus()

	src := textarea.New()
	src.Placeholder = "Paste Solidity source code…"
	src.CharLimit = 0
	src.ShowLineNumbers = true
	src.SetWidth(90)
	src.SetHeight(8)
	src.SetValue(opts.InitialSource)
	src.Blur()

	filter := textinput.New()
	filter.Prompt = "/ "
	filter.Placeholder = "fuzzy filter transcript lines"
	filter.CharLimit = 120

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	clip := opts.Clipboard
	if clip == nil {
		clip = clipboard.WriteAll
	}

	m := &Model{
		backend:    opts.Backend,
		serviceURL: opts.ServiceURL,
		clipboard:  clip,
		question:   q,
		source:     src,
		filter:     filter,
		viewport:   render.NewViewport(90, 12),
		spin:       spin,
		status: NewStatusIndicatorWidget(StatusIndicatorOptions{
			State:             StatusIdle,
			AnimationsEnabled: opts.Animations,
			Clock:             opts.Clock,
		}),
		cancelUpdates: func() {},
		connected:     true,
		viewDirty:     true,
		width:         90,
		height:        36,
		sourceHeight:  8,
	}
	if opts.Backend != nil {
		m.updates, m.cancelUpdates = opts.Backend.Updates()
	}
	m.resize(m.width, m.height)
	return m
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.mountCmd(), m.spin.Tick, textinput.Blink}
	if cmd := m.listenUpdates(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	if cmd := m.requestSnapshot(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m.finish(cmds...)
	case mountedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			m.status.SetState(StatusOffline)
			m.status.SetDetail(msg.Err.Error())
			return m.finish(cmds...)
		}
		m.mounted = true
		return m.finish(cmds...)
	case updateMsg:
		if cmd := m.handleEvent(msg.Event); cmd != nil {
			cmds = append(cmds, cmd)
		}
		if cmd := m.listenUpdates(); cmd != nil {
			cmds = append(cmds, cmd)
		}
		return m.finish(cmds...)
	case updatesClosedMsg:
		m.updates = nil
		return m.finish(cmds...)
	case snapshotMsg:
		if cmd := m.applySnapshot(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}
		return m.finish(cmds...)
	case refreshTickMsg:
		m.tickScheduled = false
		if cmd := m.requestSnapshot(); cmd != nil {
			cmds = append(cmds, cmd)
		}
		return m.finish(cmds...)
	case submittedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			m.status.SetState(StatusError)
			m.status.SetDetail(msg.Err.Error())
			return m.finish(cmds...)
		}
		m.generation = msg.Generation
		return m.finish(cmds...)
	case copiedMsg:
		if msg.Err != nil {
			m.notice = fmt.Sprintf("Copy failed: %v", msg.Err)
		} else {
			m.notice = fmt.Sprintf("Copied %d characters", msg.Chars)
		}
		return m.finish(cmds...)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)
		return m.finish(cmds...)
	case tea.MouseMsg:
		if cmd := m.viewport.HandleUpdate(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}
		return m.finish(cmds...)
	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
			return m.finish(cmds...)
		}
	}

	if cmd := m.updateFocused(msg); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return m.finish(cmds...)
}

func (m *Model) finish(cmds ...tea.Cmd) (tea.Model, tea.Cmd) {
	if m.viewDirty {
		m.flushTranscript()
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		return m.quit(), true
	case "ctrl+s":
		return m.submit(), true
	case "ctrl+y":
		return m.copyTranscript(), true
	case "ctrl+e":
		return m.completeAll(), true
	case "ctrl+f":
		m.toggleFilter()
		return nil, true
	case "pgup":
		m.viewport.ViewUp()
		return nil, true
	case "pgdown":
		m.viewport.ViewDown()
		return nil, true
	}

	if m.filtering {
		switch msg.String() {
		case "esc":
			m.toggleFilter()
			return nil, true
		case "enter":
			return nil, true
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.viewDirty = true
		return cmd, true
	}

	switch msg.String() {
	case "tab":
		return m.setFocus((m.focus + 1) % focusCount), true
	case "shift+tab":
		return m.setFocus((m.focus + focusCount - 1) % focusCount), true
	}

	switch m.focus {
	case focusQuestion:
		switch msg.String() {
		case "up":
			if text, ok := m.history.Prev(m.question.Value()); ok {
				m.question.SetValue(text)
				m.question.CursorEnd()
			}
			return nil, true
		case "down":
			if text, ok := m.history.Next(); ok {
				m.question.SetValue(text)
				m.question.CursorEnd()
			}
			return nil, true
		case "enter":
			return m.setFocus(focusSource), true
		}
	case focusAction:
		switch msg.String() {
		case "enter", " ":
			return m.submit(), true
		}
		return nil, true
	}
	return nil, false
}

func (m *Model) updateFocused(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.focus {
	case focusQuestion:
		m.question, cmd = m.question.Update(msg)
		if _, ok := msg.(tea.KeyMsg); ok && m.history.Browsing() {
			m.history.ResetBrowsing()
		}
	case focusSource:
		m.source, cmd = m.source.Update(msg)
	}
	return cmd
}

func (m *Model) setFocus(f focusField) tea.Cmd {
	m.focus = f
	m.question.Blur()
	m.source.Blur()
	switch f {
	case focusQuestion:
		return m.question.Focus()
	case focusSource:
		return m.source.Focus()
	}
	return nil
}

func (m *Model) toggleFilter() {
	m.filtering = !m.filtering
	if m.filtering {
		m.filter.Focus()
	} else {
		m.filter.Blur()
		m.filter.Reset()
	}
	m.viewDirty = true
	m.resize(m.width, m.height)
}

func (m *Model) submit() tea.Cmd {
	if m.backend == nil {
		m.err = errors.New("analysis backend is not configured")
		return nil
	}
	question := m.question.Value()
	sourceCode := m.source.Value()
	m.history.Add(question)
	m.err = nil
	m.notice = ""
	m.status.SetState(StatusSubmitting)
	backend := m.backend
	return func() tea.Msg {
		gen, err := backend.Submit(context.Background(), question, sourceCode)
		return submittedMsg{Generation: gen, Err: err}
	}
}

func (m *Model) quit() tea.Cmd {
	m.cancelUpdates()
	if m.backend != nil && m.mounted {
		m.backend.Unmount()
		m.mounted = false
	}
	return tea.Quit
}

func (m *Model) copyTranscript() tea.Cmd {
	var b strings.Builder
	for _, l := range m.lines {
		b.WriteString(l.Source)
	}
	text := b.String()
	if text == "" {
		m.notice = "Transcript is empty"
		return nil
	}
	clip := m.clipboard
	return func() tea.Msg {
		return copiedMsg{Chars: len([]rune(text)), Err: clip(text)}
	}
}

func (m *Model) completeAll() tea.Cmd {
	if m.backend == nil {
		return nil
	}
	backend := m.backend
	return func() tea.Msg {
		if err := backend.CompleteAll(context.Background()); err != nil {
			return snapshotMsg{Err: err}
		}
		lines, err := backend.Snapshot(context.Background())
		return snapshotMsg{Lines: lines, Err: err}
	}
}

func (m *Model) mountCmd() tea.Cmd {
	if m.backend == nil {
		return nil
	}
	backend := m.backend
	return func() tea.Msg {
		return mountedMsg{Err: backend.Mount(context.Background())}
	}
}

func (m *Model) listenUpdates() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	ch := m.updates
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return updatesClosedMsg{}
		}
		return updateMsg{Event: ev}
	}
}

// requestSnapshot 合并并发的刷新请求：同一时刻最多一个快照在途。
func (m *Model) requestSnapshot() tea.Cmd {
	if m.backend == nil {
		return nil
	}
	if m.snapshotPending {
		m.snapshotDirty = true
		return nil
	}
	m.snapshotPending = true
	backend := m.backend
	return func() tea.Msg {
		lines, err := backend.Snapshot(context.Background())
		return snapshotMsg{Lines: lines, Err: err}
	}
}

func (m *Model) applySnapshot(msg snapshotMsg) tea.Cmd {
	m.snapshotPending = false
	if msg.Err != nil {
		if !errors.Is(msg.Err, loop.ErrClosed) {
			log.Warnf("failed to read transcript snapshot: %v", msg.Err)
		}
		return nil
	}
	m.lines = msg.Lines
	m.viewDirty = true

	animating := countAnimating(m.lines)
	switch {
	case animating > 0 && m.status.State() == StatusIdle:
		m.status.SetState(StatusRevealing)
	case animating == 0 && m.status.State() == StatusRevealing:
		m.status.SetState(StatusIdle)
	}
	if m.status.State() == StatusRevealing {
		m.status.SetDetail(fmt.Sprintf("%d lines", len(m.lines)))
	}

	var cmds []tea.Cmd
	if m.snapshotDirty {
		m.snapshotDirty = false
		cmds = append(cmds, m.requestSnapshot())
	}
	if animating > 0 && !m.tickScheduled {
		m.tickScheduled = true
		cmds = append(cmds, tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshTickMsg{} }))
	}
	return tea.Batch(cmds...)
}

func (m *Model) handleEvent(ev events.Event) tea.Cmd {
	switch ev.Type {
	case events.EventTranscriptChanged:
		return m.requestSnapshot()
	case events.EventSubmissionState:
		state, _ := ev.Payload.(string)
		m.applySubmissionState(state)
	case events.EventStreamStatus:
		status, ok := ev.Payload.(events.StreamStatus)
		if !ok {
			return nil
		}
		m.connected = status.Connected
		switch {
		case !status.Connected:
			m.status.SetState(StatusOffline)
			m.status.SetDetail(status.Error)
		case m.status.State() == StatusOffline:
			m.status.SetState(StatusIdle)
		}
	}
	return nil
}

func (m *Model) applySubmissionState(state string) {
	switch state {
	case analyze.Submitting.String():
		m.status.SetState(StatusSubmitting)
	case analyze.Idle.String():
		if countAnimating(m.lines) > 0 {
			m.status.SetState(StatusRevealing)
		} else {
			m.status.SetState(StatusIdle)
		}
	case analyze.IdleWithError.String():
		m.status.SetState(StatusError)
		if m.backend != nil {
			if err := m.backend.Status().Err; err != nil {
				m.status.SetDetail(err.Error())
			}
		}
	}
}

func countAnimating(lines []transcript.Line) int {
	n := 0
	for _, l := range lines {
		if !l.Done {
			n++
		}
	}
	return n
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	m.sourceHeight = 8
	switch {
	case height < 28:
		m.sourceHeight = 3
	case height < 40:
		m.sourceHeight = 5
	}

	inner := width - 4 // border + padding
	if inner < 10 {
		inner = 10
	}
	m.question.Width = inner - lipgloss.Width(m.question.Prompt) - 1
	m.source.SetWidth(inner)
	m.source.SetHeight(m.sourceHeight)
	m.filter.Width = inner - lipgloss.Width(m.filter.Prompt) - 1

	fixed := 1 // header
	fixed += 1 + 1 + 2 // question pane: title + body + border
	fixed += m.sourceHeight + 1 + 2
	fixed += 1 + 1 + 1 // action + status + hints
	fixed += 1 + 2     // transcript title + border
	if m.filtering {
		fixed++
	}
	vpHeight := height - fixed
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Resize(inner, vpHeight)
	m.viewDirty = true
}

func (m *Model) flushTranscript() {
	m.viewDirty = false
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	var lines []render.Line
	if m.filtering && strings.TrimSpace(m.filter.Value()) != "" {
		lines = render.RenderFiltered(m.lines, m.filter.Value(), width)
	} else {
		lines = render.RenderTranscript(m.lines, width)
	}
	m.viewport.SetLines(render.LinesToStrings(lines))
}

func (m *Model) View() string {
	sections := []string{renderHeader(m.serviceURL, m.connected, m.width)}

	title := "Transcript"
	if m.filtering {
		title = "Transcript (filtered)"
	}
	body := m.viewport.View()
	if status := m.renderScrollStatus(); status != "" {
		title = title + "  " + status
	}
	sections = append(sections, renderPane(title, body, m.width, false))
	if m.filtering {
		sections = append(sections, lipgloss.NewStyle().Padding(0, 1).Render(m.filter.View()))
	}
	sections = append(sections,
		renderPane("Question", m.question.View(), m.width, m.focus == focusQuestion),
		renderPane("Source code", m.source.View(), m.width, m.focus == focusSource),
		renderButton(m.focus == focusAction, m.status.State() == StatusSubmitting, m.spin.View()),
		m.statusLine(),
		renderHints(m.width),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) statusLine() string {
	buf := render.Buffer{}
	m.status.Render(render.Rect{Width: maxInt(20, m.width-2), Height: 1}, &buf)
	parts := render.LinesToStrings(buf.Lines)
	if m.notice != "" {
		parts = append(parts, m.notice)
	}
	if m.err != nil && m.status.State() != StatusError && m.status.State() != StatusOffline {
		parts = append(parts, fmt.Sprintf("Error: %v", m.err))
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7D7A85")).
		Padding(0, 1).
		Width(maxInt(20, m.width)).
		Render(strings.Join(parts, " • "))
}

func (m *Model) renderScrollStatus() string {
	if m.viewport.TotalLineCount() <= m.viewport.Height {
		return ""
	}
	percent := int(math.Round(m.viewport.ScrollPercent() * 100))
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#7D7A85")).Render(fmt.Sprintf("%3d%%", percent))
}

// Lines 返回面板最近一次读取到的 transcript 视图。
func (m *Model) Lines() []transcript.Line {
	return append([]transcript.Line(nil), m.lines...)
}

// Questions 返回本次会话提交过的问题。
func (m *Model) Questions() []string {
	return append([]string(nil), m.history.entries...)
}

func renderHeader(serviceURL string, connected bool, width int) string {
	left := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Render("auditor")
	state := "stream connected"
	stateColor := lipgloss.Color("#16a34a")
	if !connected {
		state = "stream offline"
		stateColor = lipgloss.Color("#dc2626")
	}
	info := []string{}
	if serviceURL != "" {
		info = append(info, serviceURL)
	}
	right := lipgloss.NewStyle().Foreground(lipgloss.Color("#7D7A85")).Render(strings.Join(info, " • "))
	dot := lipgloss.NewStyle().Foreground(stateColor).Render("● " + state)
	return lipgloss.NewStyle().
		Padding(0, 1).
		Width(maxInt(20, width)).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right, "  ", dot))
}

func renderPane(title string, body string, width int, focused bool) string {
	border := lipgloss.Color("#5E6472")
	if focused {
		border = lipgloss.Color("#7D56F4")
	}
	titleText := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Render(title)
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)
	if width > 2 {
		style = style.Width(width - 2)
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, titleText, body))
}

func renderButton(focused, submitting bool, spin string) string {
	label := "[ Analyze ]"
	if submitting {
		label = "[ Analyze " + spin + "]"
	}
	style := lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#7D7A85"))
	if focused {
		style = style.Bold(true).Foreground(lipgloss.Color("#FFB454"))
	}
	return style.Render(label)
}

func renderHints(width int) string {
	hint := "Tab 切换焦点 • Ctrl+S 提交 • PgUp/PgDn 滚动 • Ctrl+F 过滤 • Ctrl+Y 复制 • Ctrl+E 立即显示 • Ctrl+C 退出"
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7D7A85")).
		Padding(0, 1).
		Width(maxInt(20, width)).
		Render(hint)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
