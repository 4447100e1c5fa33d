package main

import (
	"flag"
	"fmt"
	"strings"
)

type rootArgs struct {
	overrides []string
	logLevel  string
}

func parseRootArgs(args []string) (rootArgs, []string, error) {
	fs := flag.NewFlagSet("auditor-cli", flag.ContinueOnError)
	var overrides stringSlice
	var logLevel string
	var debug bool
	fs.Var(&overrides, "c", "Override config value key=value (repeatable, applied before subcommand overrides)")
	fs.StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error). Equivalent to -c log_level=<level>")
	fs.BoolVar(&debug, "debug", false, "Alias for --log-level=debug")
	rootTokens, rest := splitRootArgs(args)
	if err := fs.Parse(rootTokens); err != nil {
		return rootArgs{}, nil, err
	}

	all := append([]string{}, overrides...)
	if debug {
		logLevel = "debug"
	}
	if lvl := strings.TrimSpace(logLevel); lvl != "" {
		if !knownLogLevel(lvl) {
			return rootArgs{}, nil, fmt.Errorf("unknown log level: %s", lvl)
		}
		all = append(all, "log_level="+lvl)
	}
	return rootArgs{overrides: all, logLevel: logLevel}, rest, nil
}

// splitRootArgs 在第一个位置参数之前挑出根级 flag，其余参数原样留给子命令或面板。
func splitRootArgs(args []string) ([]string, []string) {
	var root, rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" || !strings.HasPrefix(arg, "-") {
			rest = append(rest, args[i:]...)
			break
		}
		name := strings.TrimLeft(arg, "-")
		value := ""
		hasValue := false
		if idx := strings.Index(name, "="); idx >= 0 {
			name, value, hasValue = name[:idx], name[idx+1:], true
		}
		switch name {
		case "c", "log-level":
			if hasValue {
				root = append(root, "-"+name+"="+value)
				continue
			}
			root = append(root, "-"+name)
			if i+1 < len(args) {
				root = append(root, args[i+1])
				i++
			}
		case "debug":
			root = append(root, arg)
		default:
			rest = append(rest, arg)
		}
	}
	return root, rest
}

func prependOverrides(root []string, overrides []string) []string {
	merged := append([]string{}, root...)
	return append(merged, overrides...)
}

func knownLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}
