package envexec

import (
	"github.com/criyle/go-sandbox/runner"
)

// ConvertStatus maps the process level status into a verdict. The result
// may still be refined by the caller (e.g. OOM detection)
func ConvertStatus(s runner.Status) Status {
	switch s {
	case runner.StatusNormal:
		return StatusAccepted
	case runner.StatusSignalled, runner.StatusNonzeroExitStatus:
		return StatusRuntimeFailure
	case runner.StatusMemoryLimitExceeded:
		return StatusMemoryLimitExceeded
	case runner.StatusTimeLimitExceeded:
		return StatusTimeLimitExceeded
	case runner.StatusOutputLimitExceeded:
		return StatusOutputLimitExceeded
	case runner.StatusDisallowedSyscall:
		return StatusCapabilityDenied
	default:
		return StatusInternalError
	}
}
