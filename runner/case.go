package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/criyle/go-sandbox/runner"
	"github.com/criyle/judgebox/capability"
	"github.com/criyle/judgebox/envexec"
	"github.com/criyle/judgebox/iochan"
	"go.uber.org/zap"
)

// RunCase runs the entry point against one input in a fresh process
func (r *Runner) RunCase(ctx context.Context, p CaseParam) (result TestCaseResult) {
	result.Input = p.Input
	k := iochan.NewKey()
	defer func() {
		if err := r.Channels.Unbind(k); err != nil {
			r.logger.Debug("unbind input", zap.Stringer("key", k), zap.Error(err))
		}
		if r.Observer != nil {
			r.Observer(result)
		}
	}()

	fail := func(s envexec.Status, err error) TestCaseResult {
		result.Status = s
		result.Message = fmt.Sprintf("%v: %v", s, err)
		return result
	}

	if r.Gate != nil {
		if err := r.Gate.Check(capability.Request{
			Kind:   capability.KindFile,
			Action: capability.ActionRead,
			Target: p.Input,
		}); err != nil {
			return fail(envexec.StatusCapabilityDenied, err)
		}
	}
	in, err := os.Open(p.Input)
	if err != nil {
		return fail(envexec.StatusInternalError, err)
	}
	r.Channels.Bind(k, in)
	stdin, err := r.Channels.InputFile(k)
	if err != nil {
		return fail(envexec.StatusInternalError, err)
	}
	stdout, err := r.Channels.Pipe(k)
	if err != nil {
		return fail(envexec.StatusInternalError, err)
	}
	stderrBuf := iochan.NewBuffer(stderrLimit)
	defer stdout.CloseWrite()
	stderr, err := iochan.Collect(stderrBuf)
	if err != nil {
		return fail(envexec.StatusInternalError, err)
	}
	defer stderr.CloseWrite()

	memoryLimit := envexec.MemoryLimit(p.MemoryLimit, r.ExtraMemoryLimit)
	param := envexec.ExecveParam{
		Args:     append([]string{p.Entry.ID()}, r.ExtraArgs...),
		Env:      r.env,
		Files:    []*os.File{stdin, stdout.W, stderr.W},
		ExecFile: p.Entry.ExecFile(),
		ExecPath: p.Entry.Path(),
		Limit: envexec.Limit{
			Time:   p.TimeLimit,
			Memory: memoryLimit,
			Stack:  r.StackLimit,
			Output: r.OutputLimit,
		},
	}

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	proc, err := r.Environment.Execve(execCtx, param)
	// the child holds its own copies
	stdout.CloseWrite()
	stderr.CloseWrite()
	if err != nil {
		return fail(envexec.StatusInternalError, err)
	}

	w := waiter{
		timeLimit:   p.TimeLimit,
		slack:       r.Slack,
		memoryLimit: memoryLimit,
		interval:    r.MemoryCheckInterval,
	}
	waited := w.Wait(ctx, proc)
	if waited != waitDone {
		cancel()
	}
	<-proc.Done()
	elapsed := time.Since(start)
	rt := proc.Result()

	if !stdout.Wait(defaultDrainTimeout) {
		r.logger.Warn("stdout drain timeout", zap.String("input", p.Input))
	}
	stderr.Wait(defaultDrainTimeout)
	output, truncated := r.Channels.RetrieveAndReset(k)

	// a fresh process starts from zero, so its own peak needs no baseline
	result.Time = elapsed
	result.Memory = max(rt.Memory, proc.Usage().Memory)
	result.Output = string(output)
	result.Status, result.Message = classify(rt, waited == waitTimeout, truncated, stderrBuf.Bytes(), memoryLimit)
	if waited == waitMemory || p.MemoryLimit > 0 && result.Memory > p.MemoryLimit {
		result.Status = envexec.StatusMemoryLimitExceeded
		result.Message = envexec.StatusMemoryLimitExceeded.String()
	}
	result.Normal = result.Status == envexec.StatusAccepted

	if ce := r.logger.Check(zap.DebugLevel, "test case finished"); ce != nil {
		ce.Write(
			zap.String("input", p.Input),
			zap.Stringer("status", result.Status),
			zap.Duration("time", result.Time),
			zap.Stringer("memory", result.Memory),
			zap.Duration("cpu", rt.Time),
		)
	}
	return result
}

var oomMarkers = [][]byte{
	[]byte("bad_alloc"),
	[]byte("out of memory"),
	[]byte("Out of memory"),
	[]byte("OutOfMemory"),
	[]byte("MemoryError"),
	[]byte("Cannot allocate memory"),
}

// classify turns the raw process result into a status and message. An empty
// message means the case passed.
func classify(rt envexec.RunnerResult, timedOut, truncated bool, stderr []byte, memoryLimit envexec.Size) (envexec.Status, string) {
	if timedOut {
		return envexec.StatusTimeLimitExceeded, envexec.StatusTimeLimitExceeded.String()
	}
	s := envexec.ConvertStatus(rt.Status)
	if s == envexec.StatusAccepted && truncated {
		s = envexec.StatusOutputLimitExceeded
	}
	switch s {
	case envexec.StatusAccepted:
		return s, ""

	case envexec.StatusRuntimeFailure:
		if isOOM(rt, stderr, memoryLimit) {
			return envexec.StatusOutOfMemory, envexec.StatusOutOfMemory.String()
		}
		msg := exitMessage(rt)
		if tail := bytes.TrimSpace(stderr); len(tail) > 0 {
			msg += "\n" + string(tail)
		}
		return s, msg

	case envexec.StatusCapabilityDenied:
		return s, s.String() + ": disallowed system call"

	case envexec.StatusInternalError:
		if rt.Error != "" {
			return s, s.String() + ": " + rt.Error
		}
		return s, s.String()

	default:
		return s, s.String()
	}
}

func isOOM(rt envexec.RunnerResult, stderr []byte, memoryLimit envexec.Size) bool {
	for _, m := range oomMarkers {
		if bytes.Contains(stderr, m) {
			return true
		}
	}
	return memoryLimit > 0 && rt.Memory >= memoryLimit/10*9
}

func exitMessage(rt envexec.RunnerResult) string {
	if rt.Status == runner.StatusSignalled {
		return "signal: " + syscall.Signal(rt.ExitStatus).String()
	}
	return fmt.Sprintf("exit status %d", rt.ExitStatus)
}

// Summary returns a one line description of a submission result
func (s SubmissionResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:", s.RunID)
	for _, r := range s.Results {
		b.WriteByte(' ')
		if r.Normal {
			b.WriteString("AC")
			continue
		}
		b.WriteString(statusShort[r.Status])
	}
	return b.String()
}

var statusShort = map[envexec.Status]string{
	envexec.StatusInvalid:             "??",
	envexec.StatusAccepted:            "AC",
	envexec.StatusTimeLimitExceeded:   "TLE",
	envexec.StatusMemoryLimitExceeded: "MLE",
	envexec.StatusOutOfMemory:         "OOM",
	envexec.StatusOutputLimitExceeded: "OLE",
	envexec.StatusRuntimeFailure:      "RE",
	envexec.StatusCapabilityDenied:    "CD",
	envexec.StatusInternalError:       "IE",
}
