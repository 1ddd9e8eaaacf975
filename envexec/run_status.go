package envexec

import (
	"fmt"
)

// Status defines the verdict of a single test case
type Status int

// Defines test case verdicts
const (
	// not initialized status (as error)
	StatusInvalid Status = iota

	// exit normally
	StatusAccepted

	// exit with error
	StatusTimeLimitExceeded   // TLE
	StatusMemoryLimitExceeded // MLE
	StatusOutOfMemory         // allocation failed inside the program
	StatusOutputLimitExceeded // OLE
	StatusRuntimeFailure      // non-zero exit or signal
	StatusCapabilityDenied    // disallowed operation attempted

	// internal error including: input unavailable, exec failed, etc
	StatusInternalError
)

var statusToString = []string{
	"Invalid",
	"Accepted",
	"Time Limit Exceeded",
	"Memory Limit Exceeded",
	"Out Of Memory",
	"Output Limit Exceeded",
	"Runtime Failure",
	"Capability Denied",
	"Internal Error",
}

// stringToStatus map string to corresponding Status
var stringToStatus = make(map[string]Status)

func (s Status) String() string {
	si := int(s)
	if si < 0 || si >= len(statusToString) {
		return statusToString[0] // invalid
	}
	return statusToString[si]
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(b []byte) error {
	v, err := StringToStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// StringToStatus convert string to Status
func StringToStatus(s string) (Status, error) {
	v, ok := stringToStatus[s]
	if !ok {
		return 0, fmt.Errorf("invalid string converting: %s", s)
	}
	return v, nil
}

func init() {
	for i, v := range statusToString {
		stringToStatus[v] = Status(i)
	}
}
