package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/criyle/judgebox/envexec"
	"github.com/criyle/judgebox/protocol"
	"github.com/criyle/judgebox/runner"
	"go.uber.org/zap"
)

// Reader yields control requests
type Reader interface {
	Read() (*protocol.Request, error)
}

// Serve dispatches requests from r until a close request, the end of the
// connection or ctx is done. closed reports whether the host asked to close,
// in which case code is the exit status.
func (o *Orchestrator) Serve(ctx context.Context, r Reader) (code int, closed bool, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.submitMu.Lock()
	o.cancel = cancel
	o.submitMu.Unlock()

	for {
		req, err := r.Read()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) {
				o.logger.Warn("malformed request", zap.Error(err))
				o.emit(protocol.ErrorResponse("", "", err.Error()))
				continue
			}
			o.shutdown()
			if protocol.IsClosed(err) {
				return 0, false, nil
			}
			return 0, false, err
		}
		if ctx.Err() != nil {
			o.shutdown()
			return 0, false, ctx.Err()
		}

		switch req.Command {
		case protocol.CommandJudge:
			o.handleJudge(ctx, req)

		case protocol.CommandStatus:
			resp, err := protocol.NewResponse(req.SignalID, protocol.ResponseOK, protocol.CommandStatus, o.Status().payload())
			if err != nil {
				resp = protocol.ErrorResponse(req.SignalID, protocol.CommandStatus, err.Error())
			}
			o.emit(resp)

		case protocol.CommandIsBusy:
			answer := protocol.ResponseNo
			if o.IsBusy() {
				answer = protocol.ResponseYes
			}
			o.emit(&protocol.Response{SignalID: req.SignalID, ResponseCommand: answer, RequestCommand: protocol.CommandIsBusy})

		case protocol.CommandClose:
			return o.Close(req.SignalID), true, nil

		default:
			o.emit(protocol.ErrorResponse(req.SignalID, req.Command, fmt.Sprintf("unknown command %q", req.Command)))
		}
	}
}

func (o *Orchestrator) handleJudge(ctx context.Context, req *protocol.Request) {
	var p protocol.Problem
	if err := protocol.DecodeData(req.Data, &p); err != nil {
		o.emit(protocol.ErrorResponse(req.SignalID, protocol.CommandJudge, err.Error()))
		return
	}
	if _, err := o.SubmitForJudging(ctx, req.SignalID, toSubmission(p)); err != nil {
		o.logger.Warn("submission rejected", zap.String("runId", p.RunID), zap.Error(err))
		o.emit(protocol.ErrorResponse(req.SignalID, protocol.CommandJudge, err.Error()))
	}
}

func toSubmission(p protocol.Problem) runner.Submission {
	return runner.Submission{
		RunID:       p.RunID,
		ArtifactID:  p.ClassFileName,
		Inputs:      p.InputDataFilePathList,
		TimeLimit:   time.Duration(p.TimeLimit) * time.Millisecond,
		MemoryLimit: envexec.Size(max(p.MemoryLimit, 0)),
	}
}

func toProblemResult(r runner.SubmissionResult) protocol.ProblemResult {
	items := make([]protocol.ResultItem, 0, len(r.Results))
	for _, c := range r.Results {
		items = append(items, protocol.ResultItem{
			Normal:        c.Normal,
			Message:       c.Message,
			Status:        c.Status.String(),
			UseTime:       c.Time.Milliseconds(),
			UseMemory:     int64(c.Memory),
			Result:        c.Output,
			InputFilePath: c.Input,
		})
	}
	return protocol.ProblemResult{
		RunID:       r.RunID,
		ResultItems: items,
	}
}
