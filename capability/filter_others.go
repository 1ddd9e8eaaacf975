//go:build !linux

package capability

import (
	"github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"
)

// LoadSyscallPolicy is not supported without seccomp
func LoadSyscallPolicy(string) (*seccomp.Policy, error) {
	return nil, nil
}

// Filter returns no filter on platforms without seccomp
func (g *Gate) Filter() ([]bpf.RawInstruction, error) {
	return nil, nil
}
