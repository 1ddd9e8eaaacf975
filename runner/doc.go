// Package runner executes a submission against its test inputs. RunCase runs
// one input in a fresh process; RunSubmission fans the inputs out and joins
// the results in input order.
package runner
