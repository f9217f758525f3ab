// Package state persists the last successful publish for a working copy.
// The record lives outside the worktree so writing it can never dirty the
// tree it just published.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record captures the outcome of the last successful publish.
type Record struct {
	Commit       string    `json:"commit"`
	Branch       string    `json:"branch"`
	Remote       string    `json:"remote"`
	FilesCopied  int       `json:"files_copied"`
	FilesSkipped int       `json:"files_skipped"`
	PublishedAt  time.Time `json:"published_at"`
}

// DefaultPath returns the record path for the working copy at repoDir,
// keyed by a hash of its absolute path. Uses XDG_STATE_HOME if set,
// otherwise ~/.local/state/pubsync.
func DefaultPath(repoDir string) string {
	abs, err := filepath.Abs(repoDir)
	if err != nil {
		abs = repoDir
	}
	sum := sha256.Sum256([]byte(abs))
	name := hex.EncodeToString(sum[:8]) + ".json"

	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "pubsync", name)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "pubsync-state", name)
	}
	return filepath.Join(home, ".local", "state", "pubsync", name)
}

// Load reads the record at path. A missing file returns (nil, nil): a
// working copy that was never published simply has no record.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading publish record %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing publish record %s: %w", path, err)
	}
	return &rec, nil
}

// Save writes the record atomically via a temp file in the same directory.
func Save(path string, rec *Record) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating state directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding publish record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pubsync-state-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing publish record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming publish record into place: %w", err)
	}
	return nil
}
