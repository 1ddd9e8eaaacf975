package loader

import (
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Generation is the set of artifacts defined since the last rotation
type Generation struct {
	ID  string
	Seq uint64

	mu        sync.Mutex
	tmpDir    string
	dir       string
	artifacts map[string]*Artifact
	loads     int
	refs      int
	closed    bool
	logger    *zap.Logger
}

func newGeneration(seq uint64, tmpDir string, logger *zap.Logger) *Generation {
	return &Generation{
		ID:        uuid.NewString(),
		Seq:       seq,
		tmpDir:    tmpDir,
		artifacts: make(map[string]*Artifact),
		refs:      1, // held while current
		logger:    logger,
	}
}

func (g *Generation) acquire() {
	g.mu.Lock()
	g.refs++
	g.mu.Unlock()
}

func (g *Generation) release() {
	g.mu.Lock()
	g.refs--
	if g.refs > 0 || g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	artifacts := g.artifacts
	g.artifacts = nil
	dir := g.dir
	g.mu.Unlock()

	for _, a := range artifacts {
		a.close()
	}
	if dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			g.logger.Warn("remove generation dir", zap.String("dir", dir), zap.Error(err))
		}
	}
	g.logger.Debug("generation released", zap.String("id", g.ID), zap.Uint64("seq", g.Seq), zap.Int("artifacts", len(artifacts)))
}

// workDir lazily creates the directory holding path based artifacts.
// Must be called with mu held.
func (g *Generation) workDir() (string, error) {
	if g.dir != "" {
		return g.dir, nil
	}
	dir, err := os.MkdirTemp(g.tmpDir, "gen-"+g.ID+"-")
	if err != nil {
		return "", err
	}
	g.dir = dir
	return dir, nil
}
