package capability

import (
	"errors"
	"fmt"
)

// Kind is the category of a privileged operation
type Kind int

// Kinds of privileged operations
const (
	KindOther Kind = iota
	KindFile
	KindProperty
	KindExit
	KindReflection
	KindLogging
	KindRuntime
	KindNetwork
	KindProcess
)

var kindNames = [...]string{"other", "file", "property", "exit", "reflection", "logging", "runtime", "network", "process"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "other"
	}
	return kindNames[k]
}

// Action is what the operation does to its target
type Action int

// Actions on a target
const (
	ActionRead Action = iota
	ActionWrite
	ActionExecute
	ActionDelete
)

var actionNames = [...]string{"read", "write", "execute", "delete"}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return "unknown"
	}
	return actionNames[a]
}

// Request describes one privileged operation
type Request struct {
	Kind   Kind
	Action Action
	Target string

	// ExitCode is meaningful for KindExit only
	ExitCode int
}

func (r Request) String() string {
	if r.Kind == KindExit {
		return fmt.Sprintf("exit(%d)", r.ExitCode)
	}
	return fmt.Sprintf("%v %v %q", r.Kind, r.Action, r.Target)
}

// ErrDenied is matched by every denial
var ErrDenied = errors.New("capability denied")

// DeniedError reports the request that was refused
type DeniedError struct {
	Request Request
}

func (e *DeniedError) Error() string {
	return "capability denied: " + e.Request.String()
}

func (e *DeniedError) Unwrap() error {
	return ErrDenied
}
