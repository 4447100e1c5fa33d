package config

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// 环境变量覆盖，优先级高于配置文件。
const (
	EnvServiceURL = "AUDITOR_SERVICE_URL"
	EnvStreamURL  = "AUDITOR_STREAM_URL"
)

// 推送通道的帧格式。
const (
	FramingSocketIO = "socketio"
	FramingJSON     = "json"
)

// Config 是唯一持久化的配置文件结构。
type Config struct {
	ServiceURL            string `toml:"service_url"`
	StreamURL             string `toml:"stream_url,omitempty"`
	StreamFraming         string `toml:"stream_framing"`
	RevealDelayMs         int    `toml:"reveal_delay_ms"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	LogLevel              string `toml:"log_level,omitempty"`
	Source                string `toml:"-"`
}

func Default() Config {
	return Config{
		ServiceURL:            "http://127.0.0.1:5000",
		StreamFraming:         FramingSocketIO,
		RevealDelayMs:         10,
		RequestTimeoutSeconds: 120,
	}
}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".auditor", "config.toml")
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, errors.New("config path is empty and $HOME is not set")
	}
	cfg.Source = path

	content, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	if err == nil {
		if err := toml.Unmarshal(content, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if env := strings.TrimSpace(os.Getenv(EnvServiceURL)); env != "" {
		cfg.ServiceURL = env
	}
	if env := strings.TrimSpace(os.Getenv(EnvStreamURL)); env != "" {
		cfg.StreamURL = env
	}
}

// AnalyzeURL 返回 analyze 端点的完整地址。
func (c Config) AnalyzeURL() string {
	return strings.TrimRight(strings.TrimSpace(c.ServiceURL), "/") + "/analyze"
}

// ResolvedStreamURL 返回推送通道的 websocket 地址。
// 未显式配置时由 service_url 推导：http→ws，https→wss；
// socketio 帧格式追加 Engine.IO 握手路径。
func (c Config) ResolvedStreamURL() (string, error) {
	if raw := strings.TrimSpace(c.StreamURL); raw != "" {
		return raw, nil
	}
	u, err := url.Parse(strings.TrimSpace(c.ServiceURL))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if c.Framing() == FramingSocketIO {
		u.Path = strings.TrimRight(u.Path, "/") + "/socket.io/"
		u.RawQuery = "EIO=4&transport=websocket"
	}
	return u.String(), nil
}

// Framing 返回规范化后的帧格式，未知值回落到 socketio。
func (c Config) Framing() string {
	switch strings.ToLower(strings.TrimSpace(c.StreamFraming)) {
	case FramingJSON:
		return FramingJSON
	default:
		return FramingSocketIO
	}
}

// RevealDelay 返回每个字符的显现间隔。0 交给显现器按最小间隔处理，负值回落到默认值。
func (c Config) RevealDelay() time.Duration {
	if c.RevealDelayMs < 0 {
		return time.Duration(Default().RevealDelayMs) * time.Millisecond
	}
	return time.Duration(c.RevealDelayMs) * time.Millisecond
}

// RequestTimeout 返回 analyze 请求超时。
func (c Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return time.Duration(Default().RequestTimeoutSeconds) * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
