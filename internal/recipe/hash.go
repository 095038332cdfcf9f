package recipe

import (
	"os"

	"github.com/go-git/go-git/v5/plumbing"
)

// ContentHasher hashes file contents for change detection.
type ContentHasher interface {
	Hash(data []byte) string
}

// GitBlobHasher computes the git blob object id of the content. The remote
// tree reports the same id for every file, so local and remote hashes compare
// directly.
type GitBlobHasher struct{}

func (GitBlobHasher) Hash(data []byte) string {
	return plumbing.ComputeHash(plumbing.BlobObject, data).String()
}

// DefaultHasher is used when a caller passes no hasher.
var DefaultHasher ContentHasher = GitBlobHasher{}

// HashFile reads path and hashes its bytes.
func HashFile(h ContentHasher, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return h.Hash(data), nil
}
