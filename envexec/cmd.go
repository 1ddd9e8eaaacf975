package envexec

import (
	"github.com/criyle/go-sandbox/runner"
)

// Size represent data size in bytes
type Size = runner.Size

// RunnerResult represent process finish result
type RunnerResult = runner.Result

// defaultExtraMemoryLimit is added on top of the memory limit for the data
// rlimit so that a program slightly over the limit is reported as MLE
// instead of crashing on allocation failure
const defaultExtraMemoryLimit Size = 16 << 10 // 16k
