package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"auditor-cli/internal/config"

	"github.com/pelletier/go-toml/v2"
)

func configMain(root rootArgs, args []string) {
	if err := runConfig(root, args, os.Stdout); err != nil {
		log.Fatalf("config: %v", err)
	}
}

// runConfig 实现 `config show` 与 `config set key=value...`。
func runConfig(root rootArgs, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: auditor-cli config show|set key=value... [--config path]")
	}
	action := args[0]
	fs := flag.NewFlagSet("config "+action, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var cfgPath string
	fs.StringVar(&cfgPath, "config", "", "Path to config file (default ~/.auditor/config.toml)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	switch action {
	case "show":
		cfg, err := loadConfig(cfgPath, root.overrides)
		if err != nil {
			return err
		}
		data, err := toml.Marshal(cfg)
		if err != nil {
			return err
		}
		streamURL, err := cfg.ResolvedStreamURL()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "# %s\n%s# analyze: %s\n# stream: %s\n", cfg.Source, data, cfg.AnalyzeURL(), streamURL)
		return nil
	case "set":
		pairs := fs.Args()
		if len(pairs) == 0 {
			return errors.New("config set needs at least one key=value")
		}
		for _, p := range pairs {
			if !strings.Contains(p, "=") {
				return fmt.Errorf("invalid override %q (want key=value)", p)
			}
		}
		// 只写文件里的值，环境变量不落盘。
		cfg, err := loadFileOnly(cfgPath)
		if err != nil {
			return err
		}
		cfg = config.ApplyKVOverrides(cfg, pairs)
		if err := config.Save(cfg.Source, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintf(out, "saved %s\n", cfg.Source)
		return nil
	default:
		return fmt.Errorf("unknown config action %q", action)
	}
}

func loadFileOnly(path string) (config.Config, error) {
	if path == "" {
		path = config.DefaultPath()
	}
	cfg := config.Default()
	cfg.Source = path
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
