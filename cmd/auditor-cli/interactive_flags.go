package main

import (
	"flag"
	"strings"
)

// interactiveArgs captures flags of the interactive panel.
type interactiveArgs struct {
	cfgPath         string
	question        string
	sourcePath      string
	configOverrides stringSlice
	copyableOutput  bool
	noAnimation     bool
}

func newInteractiveFlagSet(name string) (*flag.FlagSet, *interactiveArgs) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	args := &interactiveArgs{}

	fs.StringVar(&args.cfgPath, "config", "", "Path to config file (default ~/.auditor/config.toml)")
	fs.StringVar(&args.question, "question", "", "Prefill the question field")
	fs.StringVar(&args.question, "q", "", "Alias for --question")
	fs.StringVar(&args.sourcePath, "file", "", "Prefill the source field from a Solidity file")
	fs.StringVar(&args.sourcePath, "f", "", "Alias for --file")
	fs.Var(&args.configOverrides, "c", "Override config value key=value (repeatable)")
	fs.BoolVar(&args.copyableOutput, "copyable-output", false, "Disable alt screen to allow mouse selection/copy")
	fs.BoolVar(&args.noAnimation, "no-animation", false, "Use a static status indicator")

	return fs, args
}

func (i *interactiveArgs) finalizeQuestion(fs *flag.FlagSet) {
	if i.question == "" && fs.NArg() > 0 {
		i.question = strings.Join(fs.Args(), " ")
	}
}
