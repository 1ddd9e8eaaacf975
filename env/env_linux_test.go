package env

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/criyle/go-sandbox/runner"
	"github.com/criyle/judgebox/capability"
	"github.com/criyle/judgebox/envexec"
	"github.com/prometheus/procfs"
	"go.uber.org/zap"
	"golang.org/x/net/bpf"
)

func TestToSockFprog(t *testing.T) {
	raw := []bpf.RawInstruction{
		{Op: 0x20, K: 4},
		{Op: 0x15, Jt: 1, Jf: 0, K: 0xc000003e},
		{Op: 0x06, K: 0x7fff0000},
	}
	prog := toSockFprog(raw)
	if int(prog.Len) != len(raw) {
		t.Fatalf("len = %d, want %d", prog.Len, len(raw))
	}
	if prog.Filter.Code != 0x20 || prog.Filter.K != 4 {
		t.Fatalf("first instruction = %+v", *prog.Filter)
	}
}

func execTestEnv(t *testing.T, path string) (envexec.Environment, *os.File) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping process execution in short mode")
	}
	if _, err := os.Stat(path); err != nil {
		t.Skipf("%s not available: %v", path, err)
	}
	e, err := New(Config{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { null.Close() })
	return e, null
}

func TestExecveExitStatus(t *testing.T) {
	tests := []struct {
		path string
		want runner.Status
	}{
		{"/bin/true", runner.StatusNormal},
		{"/bin/false", runner.StatusNonzeroExitStatus},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			e, null := execTestEnv(t, tc.path)
			p, err := e.Execve(context.Background(), envexec.ExecveParam{
				Args:     []string{tc.path},
				ExecPath: tc.path,
				Files:    []*os.File{null, null, null},
				Limit:    envexec.Limit{Time: time.Second, Memory: 256 << 20},
			})
			if err != nil {
				t.Fatal(err)
			}
			if r := p.Result(); r.Status != tc.want {
				t.Fatalf("status = %v, want %v (%s)", r.Status, tc.want, r.Error)
			}
		})
	}
}

func TestExecveCancelKills(t *testing.T) {
	e, null := execTestEnv(t, "/bin/sleep")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	p, err := e.Execve(ctx, envexec.ExecveParam{
		Args:     []string{"sleep", "10"},
		ExecPath: "/bin/sleep",
		Files:    []*os.File{null, null, null},
		Limit:    envexec.Limit{Time: 20 * time.Second, Memory: 256 << 20},
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process not killed after context deadline")
	}
	if r := p.Result(); r.Status != runner.StatusTimeLimitExceeded {
		t.Fatalf("status = %v, want %v", r.Status, runner.StatusTimeLimitExceeded)
	}
}

func lookPath(t *testing.T, name string) string {
	t.Helper()
	p, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return p
}

func TestExecveSeccompDeniesWrite(t *testing.T) {
	tee := lookPath(t, "tee")
	truePath := lookPath(t, "true")
	_, null := execTestEnv(t, tee)

	raw, err := capability.New(capability.DefaultPolicy(0), nil, nil).Filter()
	if err != nil {
		t.Fatal(err)
	}
	if raw == nil {
		t.Skip("no seccomp filter on this architecture")
	}
	e, err := New(Config{WorkDir: t.TempDir(), Seccomp: raw})
	if err != nil {
		t.Fatal(err)
	}
	run := func(args ...string) runner.Result {
		t.Helper()
		p, err := e.Execve(context.Background(), envexec.ExecveParam{
			Args:     args,
			ExecPath: args[0],
			Files:    []*os.File{null, null, null},
			Limit:    envexec.Limit{Time: time.Second, Memory: 256 << 20},
		})
		if err != nil {
			t.Fatal(err)
		}
		return p.Result()
	}

	if r := run(truePath); r.Status != runner.StatusNormal {
		t.Fatalf("true under filter = %v (%s)", r.Status, r.Error)
	}

	target := filepath.Join(t.TempDir(), "written")
	if r := run(tee, target); r.Status != runner.StatusDisallowedSyscall {
		t.Fatalf("tee under filter = %v, want %v", r.Status, runner.StatusDisallowedSyscall)
	}
	if _, err := os.Stat(target); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file created under filter: %v", err)
	}
}

func TestExecveMemoryIgnoresHostHeap(t *testing.T) {
	truePath := lookPath(t, "true")
	e, null := execTestEnv(t, truePath)

	// raise the judge's own high-water mark well above the limit
	ballast := make([]byte, 96<<20)
	for i := range ballast {
		ballast[i] = 1
	}
	defer runtime.KeepAlive(ballast)

	limit := envexec.Size(64 << 20)
	p, err := e.Execve(context.Background(), envexec.ExecveParam{
		Args:     []string{truePath},
		ExecPath: truePath,
		Files:    []*os.File{null, null, null},
		Limit:    envexec.Limit{Time: time.Second, Memory: limit},
	})
	if err != nil {
		t.Fatal(err)
	}
	r := p.Result()
	if r.Status != runner.StatusNormal {
		t.Fatalf("status = %v, want %v (memory %v)", r.Status, runner.StatusNormal, r.Memory)
	}
	if r.Memory >= limit {
		t.Fatalf("memory = %v, judge heap leaked into the child", r.Memory)
	}
}

func TestExecveUsageWhileRunning(t *testing.T) {
	e, null := execTestEnv(t, "/bin/sleep")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := e.Execve(ctx, envexec.ExecveParam{
		Args:     []string{"sleep", "10"},
		ExecPath: "/bin/sleep",
		Files:    []*os.File{null, null, null},
		Limit:    envexec.Limit{Time: 20 * time.Second, Memory: 256 << 20},
	})
	if err != nil {
		t.Fatal(err)
	}
	if u := p.Usage(); u.Memory == 0 {
		t.Fatal("no resident memory sampled from a running child")
	}
	cancel()
	<-p.Done()
	if u := p.Usage(); u.Memory != p.Result().Memory {
		t.Fatalf("usage after exit = %v, result = %v", u.Memory, p.Result().Memory)
	}
}

func TestPeakMemory(t *testing.T) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		t.Skip(err)
	}
	e := &environment{proc: fs, logger: zap.NewNop()}
	// a zero maxrss never beats the judge's own peak
	if got := e.peakMemory(0, 5<<20); got != 5<<20 {
		t.Fatalf("inherited maxrss = %v, want sampled", got)
	}
	if got := e.peakMemory(1<<50, 5<<20); got != 1<<50 {
		t.Fatalf("own maxrss = %v, want maxrss", got)
	}
}
