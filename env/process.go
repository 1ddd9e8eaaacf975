package env

import (
	"sync"
	"time"

	"github.com/criyle/go-sandbox/runner"
	"github.com/criyle/judgebox/envexec"
)

var _ envexec.Process = &process{}

type process struct {
	pid    int
	done   chan struct{}
	result runner.Result

	// sample reads the live child, nil when the platform cannot
	sample func() (envexec.Usage, bool)

	mu     sync.Mutex
	reaped bool
	killed bool
	peak   envexec.Size
	cpu    time.Duration
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) Result() runner.Result {
	<-p.done
	return p.result
}

// Usage samples the child while it runs. Memory is the peak resident size
// seen so far.
func (p *process) Usage() envexec.Usage {
	select {
	case <-p.done:
		return envexec.Usage{Time: p.result.Time, Memory: p.result.Memory}
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// a reaped pid may already belong to someone else
	if !p.reaped && p.sample != nil {
		if u, ok := p.sample(); ok {
			p.peak = max(p.peak, u.Memory)
			p.cpu = u.Time
		}
	}
	return envexec.Usage{Time: p.cpu, Memory: p.peak}
}

// kill marks the child killed and sends SIGKILL unless it was reaped
func (p *process) kill(send func(pid int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.reaped {
		p.killed = true
		send(p.pid)
	}
}

// reap stops sampling and returns whether the child was killed and its
// sampled peak
func (p *process) reap() (killed bool, peak envexec.Size) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reaped = true
	return p.killed, p.peak
}
