// Package capability decides which privileged operations untrusted code may
// perform. The decision table is a Gate; it is installed once per process and
// compiled into a seccomp filter loaded into every untrusted child.
package capability
