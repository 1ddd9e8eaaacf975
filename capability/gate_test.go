package capability

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestCheck(t *testing.T) {
	g := New(Policy{ExitCode: 7, ReadablePrefixes: []string{"/data/in"}}, nil, nil)
	tests := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"read input", Request{Kind: KindFile, Action: ActionRead, Target: "/data/in/1.in"}, true},
		{"read prefix itself", Request{Kind: KindFile, Action: ActionRead, Target: "/data/in"}, true},
		{"read sibling prefix", Request{Kind: KindFile, Action: ActionRead, Target: "/data/input/1.in"}, false},
		{"read escape", Request{Kind: KindFile, Action: ActionRead, Target: "/data/in/../secret"}, false},
		{"write file", Request{Kind: KindFile, Action: ActionWrite, Target: "/data/in/1.in"}, false},
		{"delete file", Request{Kind: KindFile, Action: ActionDelete, Target: "/data/in/1.in"}, false},
		{"execute file", Request{Kind: KindFile, Action: ActionExecute, Target: "/bin/sh"}, false},
		{"read property", Request{Kind: KindProperty, Action: ActionRead, Target: "PATH"}, true},
		{"write property", Request{Kind: KindProperty, Action: ActionWrite, Target: "PATH"}, false},
		{"exit sentinel", Request{Kind: KindExit, ExitCode: 7}, true},
		{"exit other", Request{Kind: KindExit, ExitCode: 0}, false},
		{"reflection", Request{Kind: KindReflection}, true},
		{"logging", Request{Kind: KindLogging}, true},
		{"runtime", Request{Kind: KindRuntime}, true},
		{"network", Request{Kind: KindNetwork, Action: ActionRead, Target: "127.0.0.1:80"}, false},
		{"process", Request{Kind: KindProcess, Action: ActionExecute}, false},
		{"other", Request{Kind: KindOther}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := g.Check(tc.req)
			if tc.ok && err != nil {
				t.Fatalf("denied: %v", err)
			}
			if !tc.ok {
				if !errors.Is(err, ErrDenied) {
					t.Fatalf("err = %v, want ErrDenied", err)
				}
				var de *DeniedError
				if !errors.As(err, &de) || de.Request != tc.req {
					t.Fatalf("err = %#v, want DeniedError carrying request", err)
				}
			}
		})
	}
}

func TestCheckNoPrefixes(t *testing.T) {
	g := New(DefaultPolicy(0), nil, nil)
	if err := g.Check(Request{Kind: KindFile, Action: ActionRead, Target: "/anything"}); err != nil {
		t.Fatal(err)
	}
	g.Check(Request{Kind: KindNetwork})
	if g.Denied() != 1 {
		t.Fatalf("denied = %d, want 1", g.Denied())
	}
}

func TestEnviron(t *testing.T) {
	g := New(Policy{EnvKeys: []string{"PATH", "TZ"}}, nil, nil)
	got := g.Environ([]string{"PATH=/bin", "HOME=/root", "TZ=UTC", "broken", "SECRET=x"})
	want := []string{"PATH=/bin", "TZ=UTC"}
	if !slices.Equal(got, want) {
		t.Fatalf("environ = %v, want %v", got, want)
	}
}

func TestLoadPolicy(t *testing.T) {
	dir := t.TempDir()

	p, err := LoadPolicy(filepath.Join(dir, "missing.yaml"), 3)
	if err != nil {
		t.Fatal(err)
	}
	if p.ExitCode != 3 || len(p.EnvKeys) == 0 {
		t.Fatalf("default policy = %+v", p)
	}

	name := filepath.Join(dir, "policy.yaml")
	conf := "exitCode: 9\nreadablePrefixes:\n  - /srv/data\nenvKeys:\n  - PATH\n"
	if err := os.WriteFile(name, []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err = LoadPolicy(name, 3)
	if err != nil {
		t.Fatal(err)
	}
	if p.ExitCode != 9 || !slices.Equal(p.ReadablePrefixes, []string{"/srv/data"}) || !slices.Equal(p.EnvKeys, []string{"PATH"}) {
		t.Fatalf("loaded policy = %+v", p)
	}

	if err := os.WriteFile(name, []byte("exitCode: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPolicy(name, 3); err == nil {
		t.Fatal("expected error for malformed policy")
	}
}

func TestInstallOnce(t *testing.T) {
	if Current() != nil {
		t.Fatal("gate installed before test")
	}
	if err := Install(nil); err == nil {
		t.Fatal("install nil gate succeeded")
	}
	g := New(DefaultPolicy(0), nil, nil)
	if err := Install(g); err != nil {
		t.Fatal(err)
	}
	if Current() != g {
		t.Fatal("current gate mismatch")
	}
	if err := Install(New(DefaultPolicy(1), nil, nil)); !errors.Is(err, ErrInstalled) {
		t.Fatalf("second install err = %v, want ErrInstalled", err)
	}
	if Current() != g {
		t.Fatal("second install replaced the gate")
	}
}
