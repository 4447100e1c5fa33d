package config

import (
	"strconv"
	"strings"
)

// ApplyKVOverrides applies free-form -c key=value overrides.
func ApplyKVOverrides(cfg Config, overrides []string) Config {
	for _, raw := range overrides {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "service_url", "url":
			cfg.ServiceURL = val
		case "stream_url":
			cfg.StreamURL = val
		case "stream_framing", "framing":
			cfg.StreamFraming = val
		case "reveal_delay_ms", "delay":
			if n, err := strconv.Atoi(val); err == nil && n >= 0 {
				cfg.RevealDelayMs = n
			}
		case "request_timeout_seconds", "timeout":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				cfg.RequestTimeoutSeconds = n
			}
		case "log_level":
			cfg.LogLevel = val
		}
	}
	return cfg
}
