package loader

import (
	"bytes"
	"crypto/sha256"
	"debug/elf"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrArtifactNotFound is returned when no artifact exists under the id
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrArtifactLoadError is returned when the artifact cannot be defined
	ErrArtifactLoadError = errors.New("artifact load error")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("loader closed")
)

// Config defines the artifact root and rotation policy
type Config struct {
	// Root is the directory artifacts are read from
	Root string

	// Threshold is the number of loads after which NeedRotate reports true
	Threshold int

	// TmpDir holds path based artifacts, default os.TempDir
	TmpDir string

	Logger *zap.Logger
}

// Stats is a snapshot of the loader state
type Stats struct {
	Generation   uint64
	GenerationID string
	Loads        int
	Defined      int
	Rotations    uint64
}

// Loader defines artifacts into the current generation
type Loader struct {
	root      string
	tmpDir    string
	threshold int
	logger    *zap.Logger

	mu        sync.Mutex
	current   *Generation
	rotations uint64
	closed    bool
}

// New creates a loader with a fresh generation
func New(c Config) *Loader {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		root:      c.Root,
		tmpDir:    c.TmpDir,
		threshold: c.Threshold,
		logger:    logger,
		current:   newGeneration(1, c.TmpDir, logger),
	}
}

// Resolve defines artifact id into the current generation and returns it
// with a reference held. The caller must Release it.
func (l *Loader) Resolve(id string) (*Artifact, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	g := l.current
	g.acquire()
	l.mu.Unlock()

	a, err := l.define(g, id)
	if err != nil {
		g.release()
		return nil, err
	}
	return a, nil
}

func (l *Loader) define(g *Generation, id string) (*Artifact, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if a, ok := g.artifacts[id]; ok {
		g.loads++
		return a, nil
	}

	if id == "" || !filepath.IsLocal(id) {
		return nil, fmt.Errorf("%w: invalid id %q", ErrArtifactNotFound, id)
	}
	b, err := os.ReadFile(filepath.Join(l.root, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, id)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactLoadError, id, err)
	}
	kind, err := detect(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactLoadError, id, err)
	}

	sum := sha256.Sum256(b)
	a := &Artifact{
		ID:     id,
		Kind:   kind,
		Size:   int64(len(b)),
		SHA256: hex.EncodeToString(sum[:]),
		gen:    g,
	}
	if kind == KindELF {
		a.file, err = sealExec(id, b)
		if err != nil {
			l.logger.Debug("sealed handle unavailable, using path", zap.String("id", id), zap.Error(err))
		}
	}
	if a.file == nil {
		dir, err := g.workDir()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrArtifactLoadError, id, err)
		}
		p := filepath.Join(dir, filepath.Base(id))
		if err := os.WriteFile(p, b, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrArtifactLoadError, id, err)
		}
		a.path = p
	}
	g.artifacts[id] = a
	g.loads++
	l.logger.Debug("artifact defined", zap.String("id", id), zap.Stringer("kind", kind),
		zap.Uint64("generation", g.Seq), zap.Int64("size", a.Size))
	return a, nil
}

func detect(b []byte) (Kind, error) {
	if bytes.HasPrefix(b, []byte("#!")) {
		return KindScript, nil
	}
	f, err := elf.NewFile(bytes.NewReader(b))
	if err != nil {
		return 0, errors.New("not an executable")
	}
	defer f.Close()
	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return 0, fmt.Errorf("elf type %v is not executable", f.Type)
	}
	if m, ok := hostMachine[runtime.GOARCH]; ok && f.Machine != m {
		return 0, fmt.Errorf("elf machine %v does not match host", f.Machine)
	}
	return KindELF, nil
}

var hostMachine = map[string]elf.Machine{
	"amd64":   elf.EM_X86_64,
	"arm64":   elf.EM_AARCH64,
	"386":     elf.EM_386,
	"riscv64": elf.EM_RISCV,
}

// Lookup returns an artifact defined in the current generation
func (l *Loader) Lookup(id string) (*Artifact, bool) {
	l.mu.Lock()
	g := l.current
	l.mu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.artifacts[id]
	return a, ok
}

// NeedRotate reports whether the current generation reached the threshold
func (l *Loader) NeedRotate() bool {
	if l.threshold <= 0 {
		return false
	}
	l.mu.Lock()
	g := l.current
	l.mu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loads >= l.threshold
}

// Rotate retires the current generation and starts a new one. It returns the
// sequence number of the new generation.
func (l *Loader) Rotate() uint64 {
	l.mu.Lock()
	if l.closed {
		seq := l.current.Seq
		l.mu.Unlock()
		return seq
	}
	old := l.current
	l.current = newGeneration(old.Seq+1, l.tmpDir, l.logger)
	l.rotations++
	seq := l.current.Seq
	l.mu.Unlock()

	old.release()
	runtime.GC()
	debug.FreeOSMemory()
	l.logger.Info("loader rotated", zap.Uint64("generation", seq), zap.String("retired", old.ID))
	return seq
}

// Stats returns a snapshot of the current generation
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	g := l.current
	rotations := l.rotations
	l.mu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Generation:   g.Seq,
		GenerationID: g.ID,
		Loads:        g.loads,
		Defined:      len(g.artifacts),
		Rotations:    rotations,
	}
}

// Close retires the current generation. Artifacts still held stay valid
// until released.
func (l *Loader) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	g := l.current
	l.mu.Unlock()

	g.release()
	return nil
}
