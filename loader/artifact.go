package loader

import (
	"os"
)

// Kind is the executable format of an artifact
type Kind int

// Artifact formats
const (
	KindELF Kind = iota + 1
	KindScript
)

func (k Kind) String() string {
	switch k {
	case KindELF:
		return "elf"
	case KindScript:
		return "script"
	default:
		return "unknown"
	}
}

// Artifact is an entry point defined in a generation
type Artifact struct {
	ID     string
	Kind   Kind
	Size   int64
	SHA256 string

	file *os.File
	path string
	gen  *Generation
}

// ExecFile returns the sealed executable handle, nil when the artifact is
// executed by path
func (a *Artifact) ExecFile() *os.File {
	return a.file
}

// Path returns the file system path of the artifact copy, empty for sealed
// handles
func (a *Artifact) Path() string {
	return a.path
}

// Generation returns the sequence number of the owning generation
func (a *Artifact) Generation() uint64 {
	return a.gen.Seq
}

// Release drops the reference taken by Loader.Resolve
func (a *Artifact) Release() {
	a.gen.release()
}

func (a *Artifact) close() {
	if a.file != nil {
		a.file.Close()
	}
}
