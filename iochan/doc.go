// Package iochan keeps the standard input and output of concurrent
// invocations apart. Each invocation owns a Key; the input source and the
// output accumulator bound to that key are invisible to every other key.
package iochan
