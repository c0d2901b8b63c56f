package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxResumeBytes caps how much resume text is injected into prompts.
const maxResumeBytes = 64 * 1024

// FileResume serves pre-extracted resume text from a spool directory,
// one <session-id>.txt file per session. A missing file means the
// candidate supplied no resume and is not an error.
type FileResume struct {
	dir string
}

// NewFileResume creates a resume source over dir. The directory must
// already exist.
func NewFileResume(dir string) (*FileResume, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("resume dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("resume dir %s is not a directory", dir)
	}
	return &FileResume{dir: dir}, nil
}

func (f *FileResume) ResumeText(ctx context.Context, sessionID string) (string, error) {
	// Session IDs are UUIDs, but never trust them as path components.
	name := filepath.Base(sessionID) + ".txt"
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read resume for %s: %w", sessionID, err)
	}
	if len(data) > maxResumeBytes {
		data = data[:maxResumeBytes]
	}
	return strings.TrimSpace(string(data)), nil
}
