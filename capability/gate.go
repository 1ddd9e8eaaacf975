package capability

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/elastic/go-seccomp-bpf"
	"go.uber.org/zap"
)

// ErrInstalled is returned by Install when a gate is already active
var ErrInstalled = errors.New("capability: gate already installed")

// Gate is the process wide decision table. It carries no per submission state.
type Gate struct {
	policy   Policy
	syscalls *seccomp.Policy
	logger   *zap.Logger
	denied   atomic.Uint64
}

// New creates a gate. A nil syscall policy selects the built-in allow list.
func New(p Policy, syscalls *seccomp.Policy, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		policy:   p,
		syscalls: syscalls,
		logger:   logger,
	}
}

// Check returns nil when the request is allowed and a *DeniedError otherwise
func (g *Gate) Check(r Request) error {
	if g.allowed(r) {
		return nil
	}
	g.denied.Add(1)
	g.logger.Debug("capability denied", zap.Stringer("request", r))
	return &DeniedError{Request: r}
}

func (g *Gate) allowed(r Request) bool {
	switch r.Kind {
	case KindFile:
		return r.Action == ActionRead && g.readable(r.Target)
	case KindProperty:
		return r.Action == ActionRead
	case KindExit:
		return r.ExitCode == g.policy.ExitCode
	case KindReflection, KindLogging, KindRuntime:
		return true
	default:
		return false
	}
}

func (g *Gate) readable(p string) bool {
	if len(g.policy.ReadablePrefixes) == 0 {
		return true
	}
	p = filepath.Clean(p)
	for _, prefix := range g.policy.ReadablePrefixes {
		prefix = filepath.Clean(prefix)
		if p == prefix || strings.HasPrefix(p, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Environ keeps the entries of env whose key is listed in the policy and
// passes a property read check
func (g *Gate) Environ(env []string) []string {
	ret := make([]string, 0, len(g.policy.EnvKeys))
	for _, kv := range env {
		k, _, ok := strings.Cut(kv, "=")
		if !ok || !slices.Contains(g.policy.EnvKeys, k) {
			continue
		}
		if g.Check(Request{Kind: KindProperty, Action: ActionRead, Target: k}) != nil {
			continue
		}
		ret = append(ret, kv)
	}
	return ret
}

// ExitCode returns the sentinel exit status
func (g *Gate) ExitCode() int {
	return g.policy.ExitCode
}

// Denied returns the number of refused requests
func (g *Gate) Denied() uint64 {
	return g.denied.Load()
}

var current atomic.Pointer[Gate]

// Install makes g the process wide gate. It may succeed only once.
func Install(g *Gate) error {
	if g == nil {
		return errors.New("capability: install nil gate")
	}
	if !current.CompareAndSwap(nil, g) {
		return ErrInstalled
	}
	g.logger.Info("capability gate installed", zap.Int("exitCode", g.policy.ExitCode))
	return nil
}

// Current returns the installed gate or nil
func Current() *Gate {
	return current.Load()
}
