package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/criyle/judgebox/capability"
	"github.com/criyle/judgebox/loader"
	"github.com/criyle/judgebox/protocol"
	"github.com/criyle/judgebox/runner"
	"github.com/criyle/judgebox/worker"
	"go.uber.org/zap"
)

var (
	// ErrOrchestration is wrapped by every rejected submission
	ErrOrchestration = errors.New("orchestration error")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("orchestrator closed")
)

// Observer receives state changes, all methods may be called concurrently
type Observer interface {
	Rotated(generation uint64)
	Busy(busy bool)
	Judged(r runner.SubmissionResult, d time.Duration)
}

// Emitter sends responses to the host
type Emitter interface {
	Emit(*protocol.Response) error
}

// Config wires the orchestrator
type Config struct {
	Loader  *loader.Loader
	Runner  *runner.Runner
	Gate    *capability.Gate
	Emitter Emitter

	// ExitCode is the sentinel status used on close
	ExitCode int

	// MaxMemory is reported when the runtime has no memory limit
	MaxMemory uint64

	Observer Observer
	Logger   *zap.Logger
}

// Orchestrator accepts submissions and reports their results
type Orchestrator struct {
	conf      Config
	loader    *loader.Loader
	runner    *runner.Runner
	logger    *zap.Logger
	startTime time.Time

	pending atomic.Int64
	judged  atomic.Uint64
	closed  atomic.Bool

	judgeQueue  *worker.Queue
	resultQueue *worker.Queue

	// held while submitting so rotation and busy transitions are ordered
	submitMu sync.Mutex
	cancel   context.CancelFunc
}

// Handle tracks one accepted submission
type Handle struct {
	SignalID   string
	Submission runner.Submission

	accepted time.Time
	done     chan struct{}
	result   runner.SubmissionResult
	err      error
}

// Done is closed when the submission finished
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result waits for the submission and returns its result
func (h *Handle) Result() (runner.SubmissionResult, error) {
	<-h.done
	return h.result, h.err
}

// New creates and starts an orchestrator
func New(c Config) *Orchestrator {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		conf:      c,
		loader:    c.Loader,
		runner:    c.Runner,
		logger:    logger,
		startTime: time.Now(),
	}
	o.judgeQueue = worker.New(worker.Config{Name: "judge", OnPanic: o.reportPanic, Logger: logger})
	o.resultQueue = worker.New(worker.Config{Name: "result", OnPanic: o.reportPanic, Logger: logger})
	o.judgeQueue.Start()
	o.resultQueue.Start()
	return o
}

// IsBusy reports whether a submission is queued or running
func (o *Orchestrator) IsBusy() bool {
	return o.pending.Load() > 0
}

func (o *Orchestrator) markBusy() {
	if o.pending.Add(1) == 1 && o.conf.Observer != nil {
		o.conf.Observer.Busy(true)
	}
}

func (o *Orchestrator) markDone() {
	if o.pending.Add(-1) == 0 && o.conf.Observer != nil {
		o.conf.Observer.Busy(false)
	}
}

func validate(s runner.Submission) error {
	switch {
	case s.ArtifactID == "":
		return errors.New("missing entry point")
	case s.TimeLimit <= 0:
		return fmt.Errorf("invalid time limit %v", s.TimeLimit)
	case s.MemoryLimit <= 0:
		return fmt.Errorf("invalid memory limit %v", s.MemoryLimit)
	}
	for i, in := range s.Inputs {
		if in == "" {
			return fmt.Errorf("empty input path at %d", i)
		}
	}
	return nil
}

type entryPoint struct {
	*loader.Artifact
}

func (e entryPoint) ID() string {
	return e.Artifact.ID
}

// SubmitForJudging resolves the entry point of s and queues it. Errors wrap
// ErrOrchestration for invalid submissions and the loader errors for
// unresolvable entry points; in both cases the orchestrator stays idle.
func (o *Orchestrator) SubmitForJudging(ctx context.Context, signalID string, s runner.Submission) (*Handle, error) {
	if err := validate(s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrchestration, err)
	}
	o.submitMu.Lock()
	defer o.submitMu.Unlock()
	if o.closed.Load() {
		return nil, fmt.Errorf("%w: %w", ErrOrchestration, ErrClosed)
	}

	if o.loader.NeedRotate() {
		gen := o.loader.Rotate()
		if o.conf.Observer != nil {
			o.conf.Observer.Rotated(gen)
		}
	}
	a, err := o.loader.Resolve(s.ArtifactID)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		SignalID:   signalID,
		Submission: s,
		accepted:   time.Now(),
		done:       make(chan struct{}),
	}
	o.markBusy()
	err = o.judgeQueue.Submit(func() {
		defer close(h.done)
		defer a.Release()
		defer func() {
			if p := recover(); p != nil {
				h.err = fmt.Errorf("judge %s panicked: %v", s.RunID, p)
			}
		}()
		h.result = o.runner.RunSubmission(ctx, s, entryPoint{a})
	})
	if err != nil {
		a.Release()
		o.markDone()
		return nil, fmt.Errorf("%w: %w", ErrOrchestration, err)
	}
	if err := o.resultQueue.Submit(func() {
		o.onResultReady(h)
	}); err != nil {
		// the judge job still runs, nobody reports it
		o.logger.Error("result queue rejected handle", zap.String("runId", s.RunID), zap.Error(err))
		o.markDone()
		return nil, fmt.Errorf("%w: %w", ErrOrchestration, err)
	}
	o.logger.Info("submission accepted",
		zap.String("runId", s.RunID),
		zap.String("entry", s.ArtifactID),
		zap.Int("inputs", len(s.Inputs)),
		zap.Uint64("generation", a.Generation()))
	return h, nil
}

func (o *Orchestrator) onResultReady(h *Handle) {
	result, err := h.Result()
	o.markDone()
	o.judged.Add(1)
	if o.conf.Observer != nil && err == nil {
		o.conf.Observer.Judged(result, time.Since(h.accepted))
	}
	if o.closed.Load() {
		return
	}
	if err != nil {
		o.logger.Error("judge failed", zap.String("runId", h.Submission.RunID), zap.Error(err))
		o.emit(protocol.ErrorResponse(h.SignalID, protocol.CommandJudge, err.Error()))
		return
	}
	o.logger.Info("submission judged", zap.String("summary", result.Summary()), zap.Duration("elapsed", time.Since(h.accepted)))
	resp, err := protocol.NewResponse(h.SignalID, protocol.ResponseOK, protocol.CommandJudge, toProblemResult(result))
	if err != nil {
		o.emit(protocol.ErrorResponse(h.SignalID, protocol.CommandJudge, err.Error()))
		return
	}
	o.emit(resp)
	o.emit(&protocol.Response{ResponseCommand: protocol.ResponseIdle})
}

func (o *Orchestrator) reportPanic(p any) {
	o.emit(protocol.ErrorResponse("", "", fmt.Sprint(p)))
}

func (o *Orchestrator) emit(r *protocol.Response) {
	if o.conf.Emitter == nil {
		return
	}
	if err := o.conf.Emitter.Emit(r); err != nil {
		o.logger.Warn("emit response failed", zap.String("response", r.ResponseCommand), zap.Error(err))
	}
}

// Close answers the close request, stops both queues and retires the loader.
// It returns the exit status the process should terminate with.
func (o *Orchestrator) Close(signalID string) int {
	o.emit(&protocol.Response{
		SignalID:        signalID,
		ResponseCommand: protocol.ResponseOK,
		RequestCommand:  protocol.CommandClose,
	})
	o.shutdown()
	return o.exitCode()
}

func (o *Orchestrator) shutdown() {
	o.submitMu.Lock()
	if o.closed.Swap(true) {
		o.submitMu.Unlock()
		return
	}
	cancel := o.cancel
	o.submitMu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.judgeQueue.Shutdown()
	o.resultQueue.Shutdown()
	if err := o.loader.Close(); err != nil {
		o.logger.Warn("close loader", zap.Error(err))
	}
	o.logger.Info("orchestrator closed", zap.Uint64("judged", o.judged.Load()))
}

func (o *Orchestrator) exitCode() int {
	code := o.conf.ExitCode
	if o.conf.Gate != nil {
		if err := o.conf.Gate.Check(capability.Request{Kind: capability.KindExit, ExitCode: code}); err != nil {
			o.logger.Error("exit refused by gate", zap.Error(err))
		}
		code = o.conf.Gate.ExitCode()
	}
	return code
}
