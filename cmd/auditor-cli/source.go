package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var errSourceTooLarge = errors.New("source file is too large")

// loadSource 读取 Solidity 源码；path 为 "-" 时读取 stdin。
func loadSource(path string, stdin io.Reader, workdir string, limit int64) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	var r io.Reader
	name := path
	if path == "-" {
		r = stdin
		name = "stdin"
	} else {
		if !filepath.IsAbs(path) && workdir != "" {
			path = filepath.Join(workdir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open source %s: %w", name, err)
		}
		defer f.Close()
		r = f
	}
	if limit <= 0 {
		limit = defaultRuntimeConfig().MaxSourceBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("read source %s: %w", name, err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", errSourceTooLarge, name, limit)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("source %s is not valid UTF-8", name)
	}
	if filepath.Ext(path) != ".sol" && path != "-" {
		log.Warnf("source %s does not have a .sol extension", name)
	}
	return string(data), nil
}

func resolveWorkdir() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}
