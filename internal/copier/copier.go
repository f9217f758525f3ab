// Package copier mirrors a source tree into a target directory inside a
// working copy. Copies are additive: overlapping files are overwritten,
// files present only in the target are never removed.
package copier

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bianoble/pubsync/internal/sandbox"
)

// Copier copies trees into a working copy.
type Copier struct {
	// Root confines all writes. Target paths resolving outside Root are
	// rejected before anything touches the disk. Empty means the target
	// directory itself is used as the confinement root.
	Root string
}

// Stats reports what a copy did (or, for a dry run, would have done).
type Stats struct {
	Copied  int // files written because they were new or differed
	Skipped int // files left alone because content already matched
}

// CopyTree mirrors src into dst. Files whose content already matches are
// skipped, everything else is written atomically. When dryRun is set the
// walk runs and Stats are computed but nothing is written.
func (c *Copier) CopyTree(src, dst string, dryRun bool) (Stats, error) {
	var stats Stats

	srcInfo, err := os.Stat(src)
	if err != nil {
		return stats, fmt.Errorf("reading source directory: %w", err)
	}
	if !srcInfo.IsDir() {
		return stats, fmt.Errorf("source %s is not a directory", src)
	}

	root := c.Root
	if root == "" {
		root = dst
	}
	resolvedDst, err := sandbox.ValidatePath(root, dst)
	if err != nil {
		return stats, err
	}

	if !dryRun {
		if err := os.MkdirAll(resolvedDst, 0755); err != nil {
			return stats, fmt.Errorf("creating target directory: %w", err)
		}
	}

	err = filepath.Walk(src, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}

		dstPath := filepath.Join(resolvedDst, rel)

		if fi.IsDir() {
			if dryRun {
				return nil
			}
			return sandbox.SafeMkdirAll(root, dstPath, 0755)
		}

		// Only regular files are mirrored; sockets, devices and symlinks
		// have no place in a published tree.
		if !fi.Mode().IsRegular() {
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("reading %s: %w", path, readErr)
		}

		if existing, exErr := os.ReadFile(dstPath); exErr == nil {
			if hashBytes(existing) == hashBytes(content) {
				stats.Skipped++
				return nil
			}
		}

		stats.Copied++
		if dryRun {
			return nil
		}
		if wErr := sandbox.SafeWrite(root, dstPath, content, fi.Mode().Perm()); wErr != nil {
			return fmt.Errorf("writing %s: %w", dstPath, wErr)
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}

	return stats, nil
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}
