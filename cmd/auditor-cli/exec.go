package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"auditor-cli/internal/analyze"
	"auditor-cli/internal/app"
	"auditor-cli/internal/logger"
	"auditor-cli/internal/transcript"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// errAnalysisFailed 表示服务拒绝或无法完成本次分析。
var errAnalysisFailed = errors.New("analysis request failed")

type jsonEvent struct {
	Type     string      `json:"type"`
	RunID    string      `json:"run_id,omitempty"`
	Item     *eventItem  `json:"item,omitempty"`
	State    string      `json:"state,omitempty"`
	Error    *eventError `json:"error,omitempty"`
	Received uint64      `json:"received,omitempty"`
}

type eventItem struct {
	ID   uint64 `json:"id"`
	Text string `json:"text"`
}

type eventError struct {
	Message string `json:"message"`
}

type execOptions struct {
	question   string
	sourcePath string
	jsonOutput bool
	idle       time.Duration
	timeout    time.Duration
}

// execDeps 允许测试替换连接、客户端与时钟。
type execDeps struct {
	app   app.Options
	clock clockwork.Clock
	stdin io.Reader
}

type emitter struct {
	mu    sync.Mutex
	out   io.Writer
	json  bool
	runID string
}

func (e *emitter) emit(ev jsonEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev.RunID = e.runID
	if e.json {
		data, _ := json.Marshal(ev)
		fmt.Fprintln(e.out, string(data))
		return
	}
	switch ev.Type {
	case "line":
		if ev.Item != nil {
			fmt.Fprintln(e.out, strings.TrimRight(ev.Item.Text, "\n"))
		}
	case "run.failed":
		if ev.Error != nil {
			fmt.Fprintf(os.Stderr, "error: %s\n", ev.Error.Message)
		}
	}
}

func execMain(root rootArgs, args []string) {
	err := runExec(context.Background(), root, args, os.Stdout, execDeps{stdin: os.Stdin})
	if errors.Is(err, errAnalysisFailed) {
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("exec: %v", err)
	}
}

func parseExecArgs(root rootArgs, args []string) (execOptions, string, []string, error) {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var opts execOptions
	var cfgPath string
	var overrides stringSlice
	var idle time.Duration
	var timeoutSecs int
	fs.StringVar(&cfgPath, "config", "", "Path to config file (default ~/.auditor/config.toml)")
	fs.StringVar(&opts.question, "question", "", "Question to ask about the contract")
	fs.StringVar(&opts.question, "q", "", "Alias for --question")
	fs.StringVar(&opts.sourcePath, "file", "", "Solidity source file, or - for stdin")
	fs.StringVar(&opts.sourcePath, "f", "", "Alias for --file")
	fs.BoolVar(&opts.jsonOutput, "json", false, "Emit JSON lines instead of plain text")
	fs.DurationVar(&idle, "idle", 0, "Exit after this long without new log lines, e.g. 3s (default from config)")
	fs.IntVar(&timeoutSecs, "timeout", 0, "Overall deadline in seconds (default from config)")
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return opts, "", nil, err
	}
	if opts.question == "" && fs.NArg() > 0 {
		opts.question = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(opts.question) == "" {
		return opts, "", nil, errors.New("missing --question")
	}

	merged := prependOverrides(root.overrides, overrides)
	rt := applyRuntimeKVOverrides(defaultRuntimeConfig(), merged)
	opts.idle = rt.execIdle()
	if idle > 0 {
		opts.idle = idle
	}
	opts.timeout = time.Duration(rt.ExecTimeoutSecs) * time.Second
	if timeoutSecs > 0 {
		opts.timeout = time.Duration(timeoutSecs) * time.Second
	}
	return opts, cfgPath, merged, nil
}

// runExec 提交一次分析，并在每行显现完成后输出。
// 服务报错时立即返回 errAnalysisFailed；请求完成后推送静默超过 idle 即结束。
func runExec(ctx context.Context, root rootArgs, args []string, out io.Writer, deps execDeps) error {
	opts, cfgPath, overrides, err := parseExecArgs(root, args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cfgPath, overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt := applyRuntimeKVOverrides(defaultRuntimeConfig(), overrides)
	stdin := deps.stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	source, err := loadSource(opts.sourcePath, stdin, resolveWorkdir(), rt.MaxSourceBytes)
	if err != nil {
		return err
	}
	clock := deps.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	appOpts := deps.app
	if appOpts.Logger == nil {
		appOpts.Logger = logger.Named("exec")
	}
	a, err := app.Init(ctx, cfg, appOpts)
	if err != nil {
		return err
	}
	defer a.Shutdown()
	if err := a.Mount(ctx); err != nil {
		return err
	}
	updates, unsubscribe := a.Updates()
	defer unsubscribe()

	em := &emitter{out: out, json: opts.jsonOutput, runID: uuid.NewString()}
	if _, err := a.Submit(ctx, opts.question, source); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	em.emit(jsonEvent{Type: "run.started", State: analyze.Submitting.String()})

	printed := map[transcript.ItemID]bool{}
	flush := func() (int, error) {
		lines, err := a.Snapshot(ctx)
		if err != nil {
			return 0, err
		}
		n := 0
		for _, l := range lines {
			if !l.Done || printed[l.ID] {
				continue
			}
			printed[l.ID] = true
			n++
			em.emit(jsonEvent{Type: "line", Item: &eventItem{ID: uint64(l.ID), Text: l.Text}})
		}
		return n, nil
	}
	finish := func() error {
		if err := a.CompleteAll(ctx); err != nil {
			return err
		}
		_, err := flush()
		return err
	}

	poll := clock.NewTicker(50 * time.Millisecond)
	defer poll.Stop()
	var idle clockwork.Timer
	idleC := func() <-chan time.Time {
		if idle == nil {
			return nil
		}
		return idle.Chan()
	}
	armIdle := func() {
		if idle == nil {
			idle = clock.NewTimer(opts.idle)
			return
		}
		idle.Reset(opts.idle)
	}
	defer func() {
		if idle != nil {
			idle.Stop()
		}
	}()

	// 状态事件可能因订阅缓冲满被丢弃，所以每次唤醒都直接读取控制器状态。
	step := func() (bool, error) {
		n, err := flush()
		if err != nil {
			return false, err
		}
		st := a.Status()
		switch st.State {
		case analyze.IdleWithError:
			if err := finish(); err != nil {
				return false, err
			}
			msg := "analysis request failed"
			if st.Err != nil {
				msg = st.Err.Error()
			}
			em.emit(jsonEvent{Type: "run.failed", State: st.State.String(), Error: &eventError{Message: msg}})
			return true, fmt.Errorf("%w: %s", errAnalysisFailed, msg)
		case analyze.Idle:
			if idle == nil || n > 0 {
				armIdle()
			}
		}
		return false, nil
	}

	for {
		select {
		case <-ctx.Done():
			_ = finish()
			return fmt.Errorf("exec deadline: %w", ctx.Err())
		case _, ok := <-updates:
			if !ok {
				return nil
			}
			if done, err := step(); done || err != nil {
				return err
			}
		case <-poll.Chan():
			if done, err := step(); done || err != nil {
				return err
			}
		case <-idleC():
			n, err := a.Animating(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				armIdle()
				continue
			}
			if err := finish(); err != nil {
				return err
			}
			em.emit(jsonEvent{Type: "run.completed", State: analyze.Idle.String(), Received: a.StreamStats().Received})
			return nil
		}
	}
}
