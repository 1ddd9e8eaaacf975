package envexec

import (
	"context"
	"os"
	"time"
)

// ExecveParam is parameters to run process inside environment
type ExecveParam struct {
	// Args holds command line arguments
	Args []string

	// Env specifies the environment of the process
	Env []string

	// Files specifies file descriptors for the child process, index is the fd
	// number inside the child
	Files []*os.File

	// ExecFile specifies the executable file used by fexecve
	ExecFile *os.File

	// ExecPath is used when ExecFile is not available (scripts, non-linux)
	ExecPath string

	// Process Limitations
	Limit Limit
}

// Limit defines the process running resource limits
type Limit struct {
	Time   time.Duration // CPU time limit
	Memory Size          // Memory limit
	Stack  Size          // Stack limit
	Output Size          // Output (file size) limit
}

// Usage defines the peak process resource usage
type Usage struct {
	Time   time.Duration
	Memory Size
}

// Process reference to the running process
type Process interface {
	Done() <-chan struct{} // Done returns a channel for wait process to exit
	Result() RunnerResult  // Result wait until done and returns RunnerResult
	Usage() Usage          // Usage retrieves the process usage during the run time
}

// Environment starts processes. Canceling the context passed to Execve must
// terminate the process without its cooperation.
type Environment interface {
	Execve(context.Context, ExecveParam) (Process, error)
}

// MemoryLimit returns the limit enforced on the process, including the extra
// buffer used to tell MLE apart from allocation failures
func MemoryLimit(limit, extra Size) Size {
	if extra == 0 {
		extra = defaultExtraMemoryLimit
	}
	return limit + extra
}
