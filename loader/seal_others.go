//go:build !linux

package loader

import (
	"errors"
	"os"
)

func sealExec(string, []byte) (*os.File, error) {
	return nil, errors.New("memfd not supported")
}
