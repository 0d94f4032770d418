package client

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Identity yields the opaque owner id of this device.
type Identity interface {
	UserID() (string, error)
}

// FileIdentity keeps a generated id in a file so it survives restarts.
type FileIdentity struct {
	Path string

	mu sync.Mutex
	id string
}

func NewFileIdentity(path string) *FileIdentity {
	return &FileIdentity{Path: path}
}

// UserID returns the stored id, creating and persisting one on first use.
func (f *FileIdentity) UserID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.id != "" {
		return f.id, nil
	}
	data, err := os.ReadFile(f.Path)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(data)); id != "" {
			f.id = id
			return id, nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", err
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(f.Path, []byte(id+"\n"), 0o600); err != nil {
		return "", err
	}
	f.id = id
	return id, nil
}

// StaticIdentity is a fixed id.
type StaticIdentity string

func (s StaticIdentity) UserID() (string, error) {
	if s == "" {
		return "", ErrNoIdentity
	}
	return string(s), nil
}
