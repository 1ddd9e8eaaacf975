package capability

import (
	"fmt"
	"os"

	"github.com/elastic/go-seccomp-bpf"
	"github.com/elastic/go-ucfg/yaml"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// writeOpenFlags are the open flags that may create or modify a file
const writeOpenFlags = unix.O_WRONLY | unix.O_RDWR | unix.O_CREAT | unix.O_TRUNC | unix.O_APPEND

type openSyscall struct {
	name     string
	flagsArg uint32
}

// LoadSyscallPolicy reads a seccomp policy in go-seccomp-bpf YAML form. A
// missing file returns nil so the built-in allow list applies.
func LoadSyscallPolicy(name string) (*seccomp.Policy, error) {
	conf, err := yaml.NewConfigWithFile(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var policy seccomp.Policy
	if err := conf.Unpack(&policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

// DefaultSyscallPolicy kills the process on every syscall outside the allow
// list. Opens are allowed only without write flags. It returns nil on
// architectures without an allow list.
func DefaultSyscallPolicy() *seccomp.Policy {
	if len(allowedSyscalls) == 0 {
		return nil
	}
	opens := make([]seccomp.NameWithConditions, 0, len(readOnlyOpens))
	for _, o := range readOnlyOpens {
		opens = append(opens, seccomp.NameWithConditions{
			Name: o.name,
			Conditions: seccomp.ArgumentConditions{{
				Argument:  o.flagsArg,
				Operation: seccomp.BitsNotSet,
				Value:     writeOpenFlags,
			}},
		})
	}
	return &seccomp.Policy{
		DefaultAction: seccomp.ActionKillProcess,
		Syscalls: []seccomp.SyscallGroup{
			{
				Action:             seccomp.ActionAllow,
				Names:              allowedSyscalls,
				NamesWithCondtions: opens,
			},
			{
				// libc probes these and falls back on failure
				Action: seccomp.ActionErrno,
				Names:  probedSyscalls,
			},
		},
	}
}

// Filter compiles the syscall policy into BPF. A nil result means no filter.
func (g *Gate) Filter() ([]bpf.RawInstruction, error) {
	policy := g.syscalls
	if policy == nil {
		policy = DefaultSyscallPolicy()
	}
	if policy == nil {
		g.logger.Warn("no seccomp allow list for this architecture, filter disabled")
		return nil, nil
	}
	inst, err := policy.Assemble()
	if err != nil {
		return nil, fmt.Errorf("assemble seccomp policy: %w", err)
	}
	raw, err := bpf.Assemble(inst)
	if err != nil {
		return nil, fmt.Errorf("assemble bpf: %w", err)
	}
	return raw, nil
}
