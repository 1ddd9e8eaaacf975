package env

import (
	"go.uber.org/zap"
	"golang.org/x/net/bpf"
)

// Config defines parameters to create the process environment
type Config struct {
	// WorkDir is the working directory of every child
	WorkDir string

	// Seccomp is the assembled filter loaded into each child, nil disables it
	Seccomp []bpf.RawInstruction

	Logger *zap.Logger
}
