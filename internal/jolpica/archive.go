package jolpica

import (
	"io"

	"archive/zip"

	"github.com/pkg/errors"
)

// Archive is a handle on the downloaded bulk CSV dump. One archive is fetched
// per run and shared across all pre-season loaders.
type Archive struct {
	zr *zip.Reader
}

// NewArchive wraps an already-open zip reader; tests build archives in memory
// through this.
func NewArchive(zr *zip.Reader) *Archive {
	return &Archive{zr: zr}
}

// Open returns a reader for one CSV inside the dump.
func (a *Archive) Open(name string) (io.ReadCloser, error) {
	if a == nil || a.zr == nil {
		return nil, errors.New("jolpica: nil archive")
	}
	f, err := a.zr.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "jolpica: open %s in dump", name)
	}
	return f, nil
}

// Has reports whether the dump contains name.
func (a *Archive) Has(name string) bool {
	if a == nil || a.zr == nil {
		return false
	}
	for _, f := range a.zr.File {
		if f.Name == name {
			return true
		}
	}
	return false
}
