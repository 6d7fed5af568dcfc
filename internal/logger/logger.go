package logger

import (
	"go.uber.org/zap"
)

// New builds the process logger at the given verbosity. vramfs runs as a
// foreground daemon, so logs go to stderr where the FUSE session's terminal
// can see them.
func New(verbosity string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level
	config.OutputPaths = []string{"stderr"}
	return config.Build()
}
