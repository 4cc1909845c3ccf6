package connection

import (
	"io"

	"github.com/hashicorp/go-hclog"
)

// NewLogger builds the root logger from the configured level and format.
// An unknown level falls back to info.
func NewLogger(name, level string, jsonFormat bool, out io.Writer) hclog.Logger {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      lvl,
		Output:     out,
		JSONFormat: jsonFormat,
	})
}
