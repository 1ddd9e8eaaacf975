package runner

import (
	"context"
	"time"

	"github.com/criyle/judgebox/envexec"
)

const defaultCheckInterval = 5 * time.Millisecond

type waitResult int

const (
	waitDone waitResult = iota
	waitTimeout
	waitMemory
)

type waiter struct {
	timeLimit   time.Duration
	slack       time.Duration
	memoryLimit envexec.Size
	interval    time.Duration
}

// Wait blocks until the process finishes or has to be killed: the deadline
// passed, ctx ended or the sampled peak memory went over the limit
func (w *waiter) Wait(ctx context.Context, p envexec.Process) waitResult {
	timer := time.NewTimer(w.timeLimit + w.slack)
	defer timer.Stop()

	var tick <-chan time.Time
	if w.memoryLimit > 0 {
		if w.overMemory(p) {
			return waitMemory
		}
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-p.Done():
			return waitDone
		case <-ctx.Done():
			return waitTimeout
		case <-timer.C:
			return waitTimeout
		case <-tick:
			if w.overMemory(p) {
				return waitMemory
			}
		}
	}
}

func (w *waiter) overMemory(p envexec.Process) bool {
	return p.Usage().Memory > w.memoryLimit
}
