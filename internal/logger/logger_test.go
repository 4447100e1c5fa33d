package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestPlainFormatter_ComponentAndSortedFields(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	cases := []struct {
		name    string
		data    logrus.Fields
		message string
		want    string
	}{
		{
			name: "with component",
			data: logrus.Fields{
				"component":  "stream",
				"caller":     "x.go:1",
				"generation": 2,
				"channel":    "log",
			},
			message: "dispatched push event",
			want:    "x.go:1 [2025-01-02T03:04:05Z] [INFO] [stream] dispatched push event channel=log generation=2\n",
		},
		{
			name: "without component",
			data: logrus.Fields{
				"caller": "x.go:1",
				"foo":    "bar",
			},
			message: "hello",
			want:    "x.go:1 [2025-01-02T03:04:05Z] [INFO] hello foo=bar\n",
		},
		{
			name:    "no fields",
			data:    logrus.Fields{},
			message: "bare",
			want:    "[2025-01-02T03:04:05Z] [INFO] bare\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := &logrus.Entry{
				Logger:  logrus.New(),
				Time:    ts,
				Level:   logrus.InfoLevel,
				Message: tc.message,
				Data:    tc.data,
			}
			out, err := (PlainFormatter{}).Format(entry)
			if err != nil {
				t.Fatalf("Format() error: %v", err)
			}
			if got := string(out); got != tc.want {
				t.Fatalf("unexpected format:\nwant: %q\ngot:  %q", tc.want, got)
			}
		})
	}
}

func TestShortenFilePath(t *testing.T) {
	cases := map[string]string{
		"/src/auditor-cli/internal/loop/loop.go":   "internal/loop/loop.go",
		"/src/auditor-cli/cmd/auditor-cli/main.go": "cmd/auditor-cli/main.go",
		"/src/auditor-cli/doc.go":                  "doc.go",
		"/elsewhere/file.go":                       "file.go",
	}
	for in, want := range cases {
		if got := shortenFilePath(in); got != want {
			t.Fatalf("shortenFilePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSetupComponentFile_WritesComponentLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stream.log")
	entry, closer, resolved, err := SetupComponentFile("stream", path)
	if err != nil {
		t.Fatalf("SetupComponentFile: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved = %q, want %q", resolved, path)
	}
	entry.Info("connected")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "[stream] connected") {
		t.Fatalf("expected component line, got %q", string(data))
	}
}

func TestWireLoggerLevelsAndTruncation(t *testing.T) {
	var buf strings.Builder
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(PlainFormatter{})
	l.SetLevel(logrus.InfoLevel)
	w := NewWireLogger(l)

	w.Frame("<-", `42["log",{"data":"hidden"}]`)
	if buf.Len() != 0 {
		t.Fatalf("frames must stay hidden below debug, got %q", buf.String())
	}

	w.Request("POST", "http://svc/analyze", 42)
	w.Response("http://svc/analyze", 200, 1500*time.Millisecond)
	out := buf.String()
	if !strings.Contains(out, "[wire] -> POST http://svc/analyze bytes=42") {
		t.Fatalf("missing request line: %q", out)
	}
	if !strings.Contains(out, "<- 200 http://svc/analyze elapsed=1.5s") {
		t.Fatalf("missing response line: %q", out)
	}

	buf.Reset()
	l.SetLevel(logrus.DebugLevel)
	w.Frame("<-", strings.Repeat("x", maxFrameLog+10)+"\n")
	out = buf.String()
	if !strings.Contains(out, "…") || strings.Contains(out, strings.Repeat("x", maxFrameLog+1)) {
		t.Fatalf("frame was not truncated: %q", out)
	}
}

func TestSetGlobalWireLoggerResets(t *testing.T) {
	orig := WireLog
	t.Cleanup(func() { WireLog = orig })

	SetGlobalWireLogger(NoopWireLogger{})
	if _, ok := Wire().(NoopWireLogger); !ok {
		t.Fatalf("expected noop logger, got %T", Wire())
	}
	SetGlobalWireLogger(nil)
	if _, ok := Wire().(*StdWireLogger); !ok {
		t.Fatalf("nil should reset to the default logger, got %T", Wire())
	}
}
