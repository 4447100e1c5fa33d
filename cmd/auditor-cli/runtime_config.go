package main

import (
	"strconv"
	"strings"
	"time"
)

// runtimeConfig 保存只影响命令行前端、不写入配置文件的参数。
type runtimeConfig struct {
	ExecIdleSecs    int
	ExecTimeoutSecs int
	PingTimeoutSecs int
	MaxSourceBytes  int64
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		ExecIdleSecs:    5,
		ExecTimeoutSecs: 600,
		PingTimeoutSecs: 10,
		MaxSourceBytes:  4 << 20,
	}
}

func (r runtimeConfig) execIdle() time.Duration {
	return time.Duration(r.ExecIdleSecs) * time.Second
}

func applyRuntimeKVOverrides(cfg runtimeConfig, overrides []string) runtimeConfig {
	for _, raw := range overrides {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "exec_idle_seconds", "idle":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				cfg.ExecIdleSecs = n
			}
		case "exec_timeout_seconds":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				cfg.ExecTimeoutSecs = n
			}
		case "ping_timeout_seconds":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				cfg.PingTimeoutSecs = n
			}
		case "max_source_bytes":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil && n > 0 {
				cfg.MaxSourceBytes = n
			}
		}
	}
	return cfg
}
