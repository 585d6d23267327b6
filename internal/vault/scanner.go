package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoAccess marks a vault root that cannot be enumerated. It is the
// only scanner failure that aborts a run.
var ErrNoAccess = errors.New("vault root not accessible")

// Scan enumerates Markdown files under root in lexical order, skipping
// directories whose name matches an ignore entry. It reads no file
// contents; unreadable individual files surface later as per-document
// failures when a worker tries to open them.
func Scan(root string, ignoreDirs []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAccess, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", ErrNoAccess, root)
	}

	ignore := make(map[string]bool, len(ignoreDirs))
	for _, d := range ignoreDirs {
		ignore[d] = true
	}

	var files []string
	walkFn := func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return fmt.Errorf("%w: %v", ErrNoAccess, err)
			}
			// unreadable subtree entries are not fatal to the scan
			return fs.SkipDir
		}
		if d.IsDir() {
			if ignore[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".md" || ext == ".markdown" {
			files = append(files, p)
		}
		return nil
	}

	if err := filepath.WalkDir(root, walkFn); err != nil {
		return nil, err
	}
	return files, nil
}
