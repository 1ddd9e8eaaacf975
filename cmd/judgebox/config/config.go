// Package config loads the judgebox configuration from struct tags,
// environment variables and flags.
package config

import (
	"os"
	"time"

	"github.com/criyle/judgebox/envexec"
	"github.com/google/shlex"
	"github.com/koding/multiconfig"
)

// Transports accepted by the control endpoint
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// Config defines judgebox configuration
type Config struct {
	// artifacts
	ArtifactRoot    string `flagUsage:"specifies the directory compiled artifacts are loaded from" default:"."`
	RotateThreshold int    `flagUsage:"number of artifact loads before the loader generation is replaced" default:"5"`
	TmpDir          string `flagUsage:"specifies directory for path based artifacts (os temp dir by default)"`

	// runner
	WorkDir          string        `flagUsage:"specifies working directory of each test case process"`
	DeadlineSlack    time.Duration `flagUsage:"specifies the time added to each time limit before kill" default:"2ms"`
	MemoryInterval   time.Duration `flagUsage:"specifies how often a running case's peak memory is checked" default:"5ms"`
	ExtraArgs        string        `flagUsage:"extra arguments appended to every invocation (shell quoted)"`
	ExtraMemoryLimit *envexec.Size `flagUsage:"specifies extra memory buffer for check memory limit" default:"16k"`
	OutputLimit      *envexec.Size `flagUsage:"specifies max captured output for each test case" default:"64m"`
	StackLimit       *envexec.Size `flagUsage:"specifies stack rlimit for each test case (inherited if not set)"`

	// capability
	ExitCode       int    `flagUsage:"exit status permitted to the sandbox and returned on close" default:"0"`
	PolicyConf     string `flagUsage:"specifies capability policy file" default:"policy.yaml"`
	SeccompConf    string `flagUsage:"specifies seccomp filter" default:"seccomp.yaml"`
	DisableSeccomp bool   `flagUsage:"do not load seccomp filter into test case processes"`

	// control connection
	ControlAddr string `flagUsage:"specifies the control connection binding address" default:":5060"`
	Transport   string `flagUsage:"control transport, tcp or websocket" default:"tcp"`

	// server config
	EnableGRPC    bool   `flagUsage:"enable gRPC health endpoint"`
	GRPCAddr      string `flagUsage:"specifies the grpc binding address" default:":5061"`
	MonitorAddr   string `flagUsage:"specifies the metrics binding address" default:":5062"`
	EnableDebug   bool   `flagUsage:"enable debug endpoint"`
	EnableMetrics bool   `flagUsage:"enable promethus metrics endpoint"`

	// logger config
	Release bool `flagUsage:"release level of logs"`
	Silent  bool `flagUsage:"do not print logs"`

	// fix for high memory usage
	ForceGCTarget   *envexec.Size `flagUsage:"specifies force GC trigger heap size" default:"20m"`
	ForceGCInterval time.Duration `flagUsage:"specifies force GC trigger interval" default:"5s"`

	// show version and exit
	Version bool `flagUsage:"show version and exit"`
}

// Load loads config from flag & environment variables
func (c *Config) Load() error {
	cl := multiconfig.MultiLoader(
		&multiconfig.TagLoader{},
		&multiconfig.EnvironmentLoader{
			Prefix:    "JB",
			CamelCase: true,
		},
		&multiconfig.FlagLoader{
			CamelCase: true,
			EnvPrefix: "JB",
		},
	)
	if os.Getpid() == 1 {
		c.Release = true
	}
	return cl.Load(c)
}

// Args splits ExtraArgs with shell quoting rules
func (c *Config) Args() ([]string, error) {
	if c.ExtraArgs == "" {
		return nil, nil
	}
	return shlex.Split(c.ExtraArgs)
}

// UseWebSocket reports whether the control endpoint is a WebSocket
func (c *Config) UseWebSocket() bool {
	return c.Transport == TransportWebSocket
}
