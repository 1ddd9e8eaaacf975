// Package sandbox is the execution orchestrator. It owns the judge state,
// dispatches control requests and runs at most one submission at a time.
//
// Two single goroutine queues do the work: the judge queue runs submissions
// and the result queue waits for each of them and reports back, so the
// dispatch loop never blocks on a running submission.
package sandbox
