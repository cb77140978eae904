package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"browsing-data/internal/domain"
)

// DeletionRoot confines file deletions to one directory tree.
type DeletionRoot struct {
	root string // absolute, resolved
}

// NewDeletionRoot creates a guard for the existing directory root.
func NewDeletionRoot(root string) (*DeletionRoot, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve deletion root: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("eval symlinks for deletion root: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat deletion root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("deletion root %q is not a directory", resolved)
	}

	return &DeletionRoot{root: resolved}, nil
}

// Resolve returns the real path of an existing file under the root. Symlinks
// are resolved first, so a directory swapped for a link to elsewhere is
// rejected with ErrPathOutsideRoot. A missing file yields an fs.ErrNotExist error.
func (d *DeletionRoot) Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", domain.NewDomainError("DeletionRoot.Resolve", domain.ErrPathOutsideRoot, err.Error())
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}

	if !d.contains(resolved) {
		return "", domain.NewDomainError("DeletionRoot.Resolve", domain.ErrPathOutsideRoot,
			fmt.Sprintf("resolved %q is outside root %q", resolved, d.root))
	}
	return resolved, nil
}

// Root returns the resolved root directory.
func (d *DeletionRoot) Root() string { return d.root }

// contains excludes the root itself; only entries below it are deletable.
func (d *DeletionRoot) contains(path string) bool {
	return strings.HasPrefix(path, d.root+string(os.PathSeparator))
}
