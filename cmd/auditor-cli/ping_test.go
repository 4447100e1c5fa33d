package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"auditor-cli/internal/config"

	"github.com/coder/websocket"
)

// auditService 模拟 analyze 服务：根路径返回 200，/socket.io/ 完成 Engine.IO 握手。
func auditService(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("auditor"))
	})
	mux.HandleFunc("/socket.io/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("EIO") != "4" {
			http.Error(w, "bad engine.io version", http.StatusBadRequest)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		if err := conn.Write(ctx, websocket.MessageText, []byte(`0{"sid":"s1","pingInterval":25000,"pingTimeout":20000}`)); err != nil {
			return
		}
		_, msg, err := conn.Read(ctx)
		if err != nil || string(msg) != "40" {
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, []byte(`40{"sid":"n1"}`)); err != nil {
			return
		}
		_, _, _ = conn.Read(ctx)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPingChecksServiceAndStream(t *testing.T) {
	t.Setenv(config.EnvServiceURL, "")
	t.Setenv(config.EnvStreamURL, "")
	srv := auditService(t)
	cfgPath := filepath.Join(t.TempDir(), "config.toml")

	var out bytes.Buffer
	if err := runPing(rootArgs{}, []string{"--config", cfgPath, "--service-url", srv.URL, "--timeout", "5"}, &out); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "service: ok (200 OK)") {
		t.Fatalf("ping output = %q, want service ok", got)
	}
	if !strings.Contains(got, "stream: ok (ws://") || !strings.Contains(got, "socketio") {
		t.Fatalf("ping output = %q, want stream ok", got)
	}
}

func TestPingReportsUnreachableStream(t *testing.T) {
	t.Setenv(config.EnvServiceURL, "")
	t.Setenv(config.EnvStreamURL, "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	err := runPing(rootArgs{overrides: []string{"service_url=" + srv.URL}}, []string{"--config", filepath.Join(t.TempDir(), "c.toml"), "--timeout", "5"}, &out)
	if err == nil {
		t.Fatalf("expected ping to fail when the stream endpoint rejects the upgrade")
	}
	if !strings.Contains(err.Error(), "stream ") {
		t.Fatalf("error should name the stream endpoint, got %v", err)
	}
	if !strings.Contains(out.String(), "service: ok (404 Not Found)") {
		t.Fatalf("service check should still pass, got %q", out.String())
	}
}
