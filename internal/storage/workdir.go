package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// WorkDir manages the local transient working area. Each media item gets
// one directory named after its ULID, removed by the cleanup stage.
type WorkDir struct {
	root string
}

// NewWorkDir creates a WorkDir rooted at the given path, creating it if needed.
func NewWorkDir(root string) (*WorkDir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir %s: %w", root, err)
	}
	return &WorkDir{root: root}, nil
}

// Root returns the root of the working area.
func (w *WorkDir) Root() string {
	return w.root
}

// ItemDir returns the directory for one media item, creating it if needed.
func (w *WorkDir) ItemDir(itemID string) (string, error) {
	dir := filepath.Join(w.root, itemID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating item dir %s: %w", dir, err)
	}
	return dir, nil
}

// FilePath returns the path of a file inside an item's directory without
// creating anything.
func (w *WorkDir) FilePath(itemID string, name string) string {
	return filepath.Join(w.root, itemID, name)
}

// Remove deletes an item's directory and everything in it.
func (w *WorkDir) Remove(itemID string) error {
	if itemID == "" {
		return fmt.Errorf("refusing to remove empty item dir")
	}
	if err := os.RemoveAll(filepath.Join(w.root, itemID)); err != nil {
		return fmt.Errorf("removing item dir %s: %w", itemID, err)
	}
	return nil
}
