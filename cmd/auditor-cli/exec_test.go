package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"auditor-cli/internal/analyze"
	"auditor-cli/internal/app"
	"auditor-cli/internal/config"
	"auditor-cli/internal/logger"
	"auditor-cli/internal/stream"

	"github.com/tidwall/gjson"
)

type clientFunc func(ctx context.Context, req analyze.Request) error

func (f clientFunc) Analyze(ctx context.Context, req analyze.Request) error { return f(ctx, req) }

func execTestArgs(t *testing.T, extra ...string) []string {
	t.Helper()
	t.Setenv(config.EnvServiceURL, "")
	t.Setenv(config.EnvStreamURL, "")
	args := []string{
		"--config", filepath.Join(t.TempDir(), "config.toml"),
		"-c", "reveal_delay_ms=1",
		"--idle", "150ms",
		"--timeout", "10",
	}
	return append(args, extra...)
}

func TestRunExecPrintsRevealedLinesAsJSON(t *testing.T) {
	conn := stream.NewMemoryConn()
	var got analyze.Request
	client := clientFunc(func(ctx context.Context, req analyze.Request) error {
		got = req
		for _, line := range []string{"Parsing contract", "No issues found"} {
			if _, err := conn.EmitLog(line); err != nil {
				return err
			}
		}
		return nil
	})

	var out bytes.Buffer
	err := runExec(context.Background(), rootArgs{}, execTestArgs(t, "--json", "--question", "Is it safe?", "--file", "-"), &out, execDeps{
		app:   app.Options{Conn: conn, Client: client, Logger: logger.Discard()},
		stdin: strings.NewReader("contract Vault {}"),
	})
	if err != nil {
		t.Fatalf("runExec returned error: %v\n%s", err, out.String())
	}
	if got.Question != "Is it safe?" || got.SourceCode != "contract Vault {}" {
		t.Fatalf("unexpected request %+v", got)
	}

	var types, texts []string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		types = append(types, gjson.Get(line, "type").String())
		if text := gjson.Get(line, "item.text"); text.Exists() {
			texts = append(texts, text.String())
		}
		if gjson.Get(line, "run_id").String() == "" {
			t.Fatalf("event without run_id: %s", line)
		}
	}
	wantTypes := []string{"run.started", "line", "line", "run.completed"}
	if strings.Join(types, ",") != strings.Join(wantTypes, ",") {
		t.Fatalf("event types = %v, want %v", types, wantTypes)
	}
	if strings.Join(texts, "|") != "Parsing contract\n|No issues found\n" {
		t.Fatalf("line texts = %q", texts)
	}
}

func TestRunExecFailsOnRequestError(t *testing.T) {
	conn := stream.NewMemoryConn()
	client := clientFunc(func(context.Context, analyze.Request) error {
		return errors.New("connection refused")
	})

	var out bytes.Buffer
	err := runExec(context.Background(), rootArgs{}, execTestArgs(t, "--question", "q"), &out, execDeps{
		app: app.Options{Conn: conn, Client: client, Logger: logger.Discard()},
	})
	if !errors.Is(err, errAnalysisFailed) {
		t.Fatalf("expected errAnalysisFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("error should carry the cause, got %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != strings.TrimSpace(analyze.ErrorMessage) {
		t.Fatalf("plain output = %q, want the synthetic error line", got)
	}
}

func TestParseExecArgs(t *testing.T) {
	opts, cfgPath, overrides, err := parseExecArgs(rootArgs{overrides: []string{"exec_idle_seconds=9"}}, []string{"--config", "/tmp/x.toml", "what", "is", "this?"})
	if err != nil {
		t.Fatalf("parseExecArgs: %v", err)
	}
	if opts.question != "what is this?" {
		t.Fatalf("question = %q", opts.question)
	}
	if opts.idle != 9*time.Second {
		t.Fatalf("idle = %s, want 9s from runtime override", opts.idle)
	}
	if opts.timeout != time.Duration(defaultRuntimeConfig().ExecTimeoutSecs)*time.Second {
		t.Fatalf("timeout = %s", opts.timeout)
	}
	if cfgPath != "/tmp/x.toml" || len(overrides) != 1 {
		t.Fatalf("cfgPath=%q overrides=%v", cfgPath, overrides)
	}

	if _, _, _, err := parseExecArgs(rootArgs{}, []string{"--json"}); err == nil {
		t.Fatalf("expected missing question error")
	}
}
