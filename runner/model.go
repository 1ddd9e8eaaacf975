package runner

import (
	"os"
	"time"

	"github.com/criyle/judgebox/envexec"
)

// EntryPoint is a resolved executable
type EntryPoint interface {
	ID() string
	ExecFile() *os.File
	Path() string
}

// Submission is one judge request
type Submission struct {
	RunID       string
	ArtifactID  string
	Inputs      []string
	TimeLimit   time.Duration
	MemoryLimit envexec.Size
}

// CaseParam is the input of RunCase
type CaseParam struct {
	Entry       EntryPoint
	Input       string
	TimeLimit   time.Duration
	MemoryLimit envexec.Size
}

// TestCaseResult is the verdict of one input
type TestCaseResult struct {
	Normal  bool
	Message string
	Status  envexec.Status
	Time    time.Duration
	Memory  envexec.Size
	Output  string
	Input   string
}

// SubmissionResult holds one result per input in input order
type SubmissionResult struct {
	RunID   string
	Results []TestCaseResult
}
