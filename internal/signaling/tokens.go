package signaling

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// TokenSource supplies the bearer token sent with every signaling call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Refresh is invoked after the backend rejects the current token.
	Refresh(ctx context.Context) error
}

// StaticToken is a fixed token; refreshing it is a no-op.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// Refresh implements TokenSource.
func (s StaticToken) Refresh(context.Context) error {
	return nil
}

// FileToken reads the token from a file that an external login flow keeps
// up to date. The file is read lazily and re-read on Refresh.
type FileToken struct {
	path string

	mu     sync.Mutex
	cached string
	loaded bool
}

// NewFileToken creates a FileToken for path.
func NewFileToken(path string) *FileToken {
	return &FileToken{path: path}
}

// Token implements TokenSource.
func (f *FileToken) Token(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.loaded {
		if err := f.loadLocked(); err != nil {
			return "", err
		}
	}

	return f.cached, nil
}

// Refresh implements TokenSource.
func (f *FileToken) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.loadLocked()
}

func (f *FileToken) loadLocked() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}

	f.cached = strings.TrimSpace(string(data))
	f.loaded = true

	return nil
}
