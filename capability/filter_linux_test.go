package capability

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/elastic/go-seccomp-bpf"
	"github.com/elastic/go-seccomp-bpf/arch"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// seccompData lays out a seccomp_data record for the bpf VM. The VM loads
// words big endian, so each word is stored big endian at the offset a
// little endian kernel would read it from.
func seccompData(nr int, id arch.AuditArch, args ...uint64) []byte {
	b := make([]byte, 64)
	binary.BigEndian.PutUint32(b[0:], uint32(nr))
	binary.BigEndian.PutUint32(b[4:], uint32(id))
	for i, a := range args {
		off := 16 + 8*i
		binary.BigEndian.PutUint32(b[off:], uint32(a))
		binary.BigEndian.PutUint32(b[off+4:], uint32(a>>32))
	}
	return b
}

func TestFilterDefault(t *testing.T) {
	if len(allowedSyscalls) == 0 {
		t.Skip("no allow list on this architecture")
	}
	raw, err := New(DefaultPolicy(0), nil, nil).Filter()
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 {
		t.Fatal("empty filter")
	}
}

func TestLoadSyscallPolicy(t *testing.T) {
	dir := t.TempDir()
	p, err := LoadSyscallPolicy(filepath.Join(dir, "missing.yaml"))
	if err != nil || p != nil {
		t.Fatalf("missing file = %v, %v; want nil, nil", p, err)
	}

	name := filepath.Join(dir, "seccomp.yaml")
	conf := "default_action: kill_process\nsyscalls:\n  - action: allow\n    names:\n      - read\n      - write\n      - exit_group\n"
	if err := os.WriteFile(name, []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err = LoadSyscallPolicy(name)
	if err != nil {
		t.Fatal(err)
	}
	if p.DefaultAction != seccomp.ActionKillProcess || len(p.Syscalls) != 1 || len(p.Syscalls[0].Names) != 3 {
		t.Fatalf("policy = %+v", p)
	}
	if len(allowedSyscalls) == 0 {
		return
	}
	raw, err := New(DefaultPolicy(0), p, nil).Filter()
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 {
		t.Fatal("empty filter from file policy")
	}
}

func TestFilterOpenFlags(t *testing.T) {
	if len(readOnlyOpens) == 0 {
		t.Skip("no allow list on this architecture")
	}
	info, err := arch.GetInfo("")
	if err != nil {
		t.Skip(err)
	}
	raw, err := New(DefaultPolicy(0), nil, nil).Filter()
	if err != nil {
		t.Fatal(err)
	}
	insts, ok := bpf.Disassemble(raw)
	if !ok {
		t.Fatal("filter does not disassemble")
	}
	vm, err := bpf.NewVM(insts)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		flags uint64
		want  seccomp.Action
	}{
		{"rdonly", unix.O_RDONLY, seccomp.ActionAllow},
		{"rdonly cloexec", unix.O_RDONLY | unix.O_CLOEXEC | unix.O_NONBLOCK, seccomp.ActionAllow},
		{"directory", unix.O_RDONLY | unix.O_DIRECTORY, seccomp.ActionAllow},
		{"wronly", unix.O_WRONLY, seccomp.ActionKillProcess},
		{"rdwr", unix.O_RDWR, seccomp.ActionKillProcess},
		{"create", unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC, seccomp.ActionKillProcess},
		{"create only", unix.O_CREAT, seccomp.ActionKillProcess},
		{"truncate", unix.O_TRUNC, seccomp.ActionKillProcess},
		{"append", unix.O_WRONLY | unix.O_APPEND, seccomp.ActionKillProcess},
	}
	for _, o := range readOnlyOpens {
		nr, ok := info.SyscallNames[o.name]
		if !ok {
			t.Fatalf("%s unknown on %s", o.name, info.Name)
		}
		for _, tc := range tests {
			t.Run(o.name+"/"+tc.name, func(t *testing.T) {
				args := make([]uint64, 6)
				args[o.flagsArg] = tc.flags
				rtn, err := vm.Run(seccompData(nr, info.ID, args...))
				if err != nil {
					t.Fatal(err)
				}
				if got := seccomp.Action(rtn); got != tc.want {
					t.Fatalf("action = %v, want %v", got, tc.want)
				}
			})
		}
	}

	// an unlisted syscall still hits the default action
	nr := info.SyscallNames["unlinkat"]
	rtn, err := vm.Run(seccompData(nr, info.ID))
	if err != nil {
		t.Fatal(err)
	}
	if seccomp.Action(rtn) != seccomp.ActionKillProcess {
		t.Fatalf("unlinkat action = %v", seccomp.Action(rtn))
	}
}
