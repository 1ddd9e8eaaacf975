// Package env provides the process environment used by envexec.
//
// On linux every execution is a fresh child created by fork and fexecve with
// resource limits and an optional seccomp filter loaded before exec.
//
// Other platforms fall back to os/exec and do not enforce memory accounting.
package env
