// Package protocol implements the line delimited JSON control protocol
// between the judging host and judgebox.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Request commands
const (
	CommandJudge  = "judge"
	CommandStatus = "status"
	CommandIsBusy = "isBusy"
	CommandClose  = "close"
)

// Response commands
const (
	ResponseOK    = "ok"
	ResponseError = "error"
	ResponseYes   = "yes"
	ResponseNo    = "no"
	ResponseIdle  = "idle"
)

// ErrMalformed is returned for requests that cannot be decoded
var ErrMalformed = errors.New("malformed request")

// Request is one line sent by the host
type Request struct {
	SignalID string          `json:"signalId"`
	Command  string          `json:"command"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Response is one line sent to the host. Data carries a JSON document
// encoded as a string.
type Response struct {
	SignalID        string `json:"signalId,omitempty"`
	ResponseCommand string `json:"responseCommand"`
	RequestCommand  string `json:"requestCommand,omitempty"`
	Data            string `json:"data,omitempty"`
}

// NewResponse creates a response, payload is encoded into Data unless nil.
// A string payload is sent as is.
func NewResponse(signalID, responseCommand, requestCommand string, payload any) (*Response, error) {
	r := &Response{
		SignalID:        signalID,
		ResponseCommand: responseCommand,
		RequestCommand:  requestCommand,
	}
	switch p := payload.(type) {
	case nil:
	case string:
		r.Data = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", requestCommand, err)
		}
		r.Data = string(b)
	}
	return r, nil
}

// ErrorResponse creates an error response carrying message
func ErrorResponse(signalID, requestCommand, message string) *Response {
	return &Response{
		SignalID:        signalID,
		ResponseCommand: ResponseError,
		RequestCommand:  requestCommand,
		Data:            message,
	}
}

// DecodeRequest parses one line
func DecodeRequest(line []byte) (*Request, error) {
	req := new(Request)
	if err := json.Unmarshal(line, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if req.Command == "" {
		return nil, fmt.Errorf("%w: missing command", ErrMalformed)
	}
	return req, nil
}

// DecodeData decodes request data into v. Data may be the document itself
// or the document encoded as a JSON string.
func DecodeData(data json.RawMessage, v any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		data = []byte(s)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Problem is the judge payload
type Problem struct {
	RunID                 string   `json:"runId"`
	ClassFileName         string   `json:"classFileName"`
	InputDataFilePathList []string `json:"inputDataFilePathList"`
	TimeLimit             int64    `json:"timeLimit"`   // ms
	MemoryLimit           int64    `json:"memoryLimit"` // bytes
}

// ProblemResult is the judge result payload
type ProblemResult struct {
	RunID       string       `json:"runId"`
	ResultItems []ResultItem `json:"resultItems"`
}

// ResultItem is the verdict of one input
type ResultItem struct {
	Normal        bool   `json:"normal"`
	Message       string `json:"message,omitempty"`
	Status        string `json:"status"`
	UseTime       int64  `json:"useTime"`   // ms
	UseMemory     int64  `json:"useMemory"` // bytes
	Result        string `json:"result"`
	InputFilePath string `json:"inputFilePath"`
}

// Status is the status payload
type Status struct {
	PID            string `json:"pid"`
	BeginStartTime int64  `json:"beginStartTime"` // ms since epoch
	Busy           bool   `json:"busy"`
	UseMemory      uint64 `json:"useMemory"`
	MaxMemory      uint64 `json:"maxMemory"`
	Generation     uint64 `json:"generation"`
	Judged         uint64 `json:"judged"`
}
