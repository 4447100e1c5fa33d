package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"auditor-cli/internal/logger"
	"auditor-cli/internal/stream"
)

func pingMain(root rootArgs, args []string) {
	if err := runPing(root, args, os.Stdout); err != nil {
		log.Fatalf("ping failed: %v", err)
	}
}

// runPing 检查 analyze 服务是否响应 HTTP，以及推送端点能否完成 websocket 握手。
func runPing(root rootArgs, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var cfgPath string
	var serviceURL string
	var timeoutSeconds int
	var overrides stringSlice

	fs.StringVar(&cfgPath, "config", "", "Path to config file (default ~/.auditor/config.toml)")
	fs.StringVar(&serviceURL, "service-url", "", "Override service URL (e.g. http://127.0.0.1:5000)")
	fs.IntVar(&timeoutSeconds, "timeout", 0, "Timeout seconds (default from config)")
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	merged := prependOverrides(root.overrides, overrides)
	if strings.TrimSpace(serviceURL) != "" {
		merged = append(merged, "service_url="+strings.TrimSpace(serviceURL))
	}
	cfg, err := loadConfig(cfgPath, merged)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.ServiceURL) == "" {
		return errors.New("missing service url: set AUDITOR_SERVICE_URL or configure service_url in ~/.auditor/config.toml")
	}

	if timeoutSeconds <= 0 {
		timeoutSeconds = applyRuntimeKVOverrides(defaultRuntimeConfig(), merged).PingTimeoutSecs
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	status, err := pingHTTP(ctx, strings.TrimRight(strings.TrimSpace(cfg.ServiceURL), "/")+"/")
	if err != nil {
		return fmt.Errorf("service %s: %w", cfg.ServiceURL, err)
	}
	_, _ = fmt.Fprintf(out, "service: ok (%s)\n", status)

	streamURL, err := cfg.ResolvedStreamURL()
	if err != nil {
		return fmt.Errorf("resolve stream url: %w", err)
	}
	if err := pingStream(ctx, streamURL, stream.Framing(cfg.Framing())); err != nil {
		return fmt.Errorf("stream %s: %w", streamURL, err)
	}
	_, _ = fmt.Fprintf(out, "stream: ok (%s, %s)\n", streamURL, cfg.Framing())
	return nil
}

// pingHTTP 只要求服务有响应，任何状态码都算可达。
func pingHTTP(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.Status, nil
}

// pingStream 拨号并等待连接就绪：socketio 帧需要收到命名空间确认。
func pingStream(ctx context.Context, url string, framing stream.Framing) error {
	ready := make(chan error, 1)
	conn, err := stream.Dial(ctx, url, stream.DialOptions{
		Framing: framing,
		Logger:  logger.Named("ping"),
		OnStatus: func(connected bool, err error) {
			switch {
			case connected:
				err = nil
			case err == nil:
				err = errors.New("connection closed before it was ready")
			}
			select {
			case ready <- err:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer conn.Close()
	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for handshake: %w", ctx.Err())
	}
}
