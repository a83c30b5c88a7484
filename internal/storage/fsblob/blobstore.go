// Package fsblob serves blob references from the local filesystem.
// The core treats blob references as opaque; here they are file paths,
// optionally resolved against a root directory.
package fsblob

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

// Ensure BlobStore implements the interface.
var _ driven.BlobStore = (*BlobStore)(nil)

// BlobStore reads blobs from disk.
type BlobStore struct {
	root string
}

// New creates a filesystem blob store. root may be empty, in which
// case references are used as paths verbatim.
func New(root string) *BlobStore {
	return &BlobStore{root: root}
}

// Fetch reads the file behind the reference.
func (s *BlobStore) Fetch(_ context.Context, ref string) (driven.Blob, error) {
	path := ref
	if s.root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return driven.Blob{}, fmt.Errorf("blob %s: %w", ref, domain.ErrNotFound)
		}
		return driven.Blob{}, fmt.Errorf("blob %s: %w", ref, err)
	}

	return driven.Blob{
		Ref:         ref,
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Data:        data,
	}, nil
}
