package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"auditor-cli/internal/analyze"
	"auditor-cli/internal/app"
	"auditor-cli/internal/config"
	"auditor-cli/internal/events"
	"auditor-cli/internal/logger"
	"auditor-cli/internal/stream"
	"auditor-cli/internal/tui"
)

var log = logger.Named("main")

func main() {
	root, rest, err := parseRootArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse args: %v\n", err)
		os.Exit(2)
	}
	logger.Configure(root.logLevel)
	if logFile, _, err := logger.SetupFile(logger.DefaultLogPath); err != nil {
		log.Warnf("failed to initialize log file: %v", err)
	} else {
		defer logFile.Close()
	}

	if len(rest) > 0 {
		switch rest[0] {
		case "exec":
			execMain(root, rest[1:])
			return
		case "ping":
			pingMain(root, rest[1:])
			return
		case "config":
			configMain(root, rest[1:])
			return
		case "completion":
			completionMain(rest[1:])
			return
		}
	}

	runInteractive(root, rest)
}

func runInteractive(root rootArgs, args []string) {
	fs, cli := newInteractiveFlagSet("auditor-cli")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse args: %v", err)
	}
	cli.finalizeQuestion(fs)
	cli.configOverrides = stringSlice(prependOverrides(root.overrides, []string(cli.configOverrides)))

	cfg, err := loadConfig(cli.cfgPath, cli.configOverrides)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	rt := applyRuntimeKVOverrides(defaultRuntimeConfig(), cli.configOverrides)

	source, err := loadSource(cli.sourcePath, os.Stdin, resolveWorkdir(), rt.MaxSourceBytes)
	if err != nil {
		log.Fatalf("failed to load source: %v", err)
	}

	streamLog := logger.Named("stream")
	if entry, closer, _, err := logger.SetupComponentFile("stream", logger.DefaultStreamLogPath); err != nil {
		log.Warnf("failed to initialize stream log (%s): %v", logger.DefaultStreamLogPath, err)
	} else {
		streamLog = entry
		if closer != nil {
			defer closer.Close()
		}
	}

	appOpts := app.Options{StreamLogger: streamLog}
	if logger.Root().IsLevelEnabled(logger.DebugLevel) {
		eqLog, closer := events.NewQueueLogger(events.DefaultEQLogPath)
		if closer != nil {
			defer closer.Close()
		}
		appOpts.EQLogger = eqLog
	}
	a, err := app.Init(context.Background(), cfg, appOpts)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer func() {
		if err := a.Shutdown(); err != nil {
			log.Warnf("shutdown: %v", err)
		}
	}()

	result, err := tui.Run(tui.Options{
		Backend:         a,
		ServiceURL:      strings.TrimSpace(cfg.ServiceURL),
		InitialQuestion: cli.question,
		InitialSource:   source,
		Animations:      !cli.noAnimation,
		CopyableOutput:  cli.copyableOutput,
	})
	if err != nil {
		log.Fatalf("program exit: %v", err)
	}
	printExitSummary(result, a.StreamStats())
}

func loadConfig(path string, overrides []string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	cfg = config.ApplyKVOverrides(cfg, overrides)
	logger.Configure(cfg.LogLevel)
	return cfg, nil
}

func printExitSummary(result tui.Result, stats stream.Stats) {
	lines := []string{}
	if n := len(result.Questions); n > 0 {
		lines = append(lines, fmt.Sprintf("Submitted %d question(s); transcript had %d line(s).", n, len(result.Lines)))
	}
	if result.LastStatus.State == analyze.IdleWithError && result.LastStatus.Err != nil {
		lines = append(lines, fmt.Sprintf("Last request failed: %v", result.LastStatus.Err))
	}
	if s := stats.String(); s != "" {
		lines = append(lines, "Stream: "+s)
	}
	for _, line := range lines {
		fmt.Println(line)
	}
}
