package provider

import (
	"io"

	"github.com/rs/zerolog"

	"genworker/internal/infra"
)

func ensureLogger(l *infra.Logger) *infra.Logger {
	if l != nil {
		return l
	}
	discard := zerolog.New(io.Discard)
	logger := infra.Logger(discard)
	return &logger
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
