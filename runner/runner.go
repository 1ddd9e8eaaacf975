package runner

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/criyle/judgebox/capability"
	"github.com/criyle/judgebox/envexec"
	"github.com/criyle/judgebox/iochan"
	"go.uber.org/zap"
)

const (
	defaultSlack        = 2 * time.Millisecond
	defaultDrainTimeout = time.Second
	stderrLimit         = 4 << 10
)

// Config wires the runner to its environment
type Config struct {
	Environment envexec.Environment
	Channels    *iochan.Channels
	Gate        *capability.Gate

	// Slack is added to the time limit before the process is killed
	Slack time.Duration

	// MemoryCheckInterval is how often a running process's peak memory is
	// sampled against its limit
	MemoryCheckInterval time.Duration

	// ExtraArgs are appended to argv of every invocation
	ExtraArgs []string

	// Env is passed to every invocation after filtering by the gate
	Env []string

	OutputLimit      envexec.Size
	ExtraMemoryLimit envexec.Size
	StackLimit       envexec.Size

	// Observer is called with every finished test case
	Observer func(TestCaseResult)

	Logger *zap.Logger
}

// Runner runs test cases
type Runner struct {
	Config
	env    []string
	logger *zap.Logger
}

// New creates a runner
func New(c Config) *Runner {
	if c.Slack <= 0 {
		c.Slack = defaultSlack
	}
	if c.MemoryCheckInterval <= 0 {
		c.MemoryCheckInterval = defaultCheckInterval
	}
	if c.Channels == nil {
		c.Channels = iochan.New(int64(c.OutputLimit))
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	env := c.Env
	if c.Gate != nil {
		env = c.Gate.Environ(c.Env)
	}
	return &Runner{
		Config: c,
		env:    env,
		logger: logger,
	}
}

// RunSubmission runs every input of s concurrently against ep. The result
// has exactly one entry per input, in input order.
func (r *Runner) RunSubmission(ctx context.Context, s Submission, ep EntryPoint) SubmissionResult {
	result := SubmissionResult{
		RunID:   s.RunID,
		Results: make([]TestCaseResult, len(s.Inputs)),
	}
	if len(s.Inputs) == 0 {
		return result
	}

	// collect the previous submission's garbage before the cases start
	runtime.GC()

	var wg sync.WaitGroup
	wg.Add(len(s.Inputs))
	for i, input := range s.Inputs {
		go func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error("test case panicked", zap.String("runId", s.RunID), zap.String("input", input), zap.Any("panic", p))
					result.Results[i] = TestCaseResult{
						Input:   input,
						Status:  envexec.StatusInternalError,
						Message: fmt.Sprintf("%v: %v", envexec.StatusInternalError, p),
					}
				}
			}()
			result.Results[i] = r.RunCase(ctx, CaseParam{
				Entry:       ep,
				Input:       input,
				TimeLimit:   s.TimeLimit,
				MemoryLimit: s.MemoryLimit,
			})
		}()
	}
	wg.Wait()
	return result
}
