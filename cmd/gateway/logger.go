package main

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// newLogger monta o logger do processo. format: "json" (padrão) ou "console".
func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	var zcfg zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		zcfg = zap.NewProductionConfig()
	case "console":
		zcfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("LOG_FORMAT: unknown format %q", format)
	}
	zcfg.Level = lvl
	return zcfg.Build()
}
