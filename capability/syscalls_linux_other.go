//go:build linux && !amd64 && !arm64

package capability

var (
	allowedSyscalls []string
	probedSyscalls  []string
	readOnlyOpens   []openSyscall
)
