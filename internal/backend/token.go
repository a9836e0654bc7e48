package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// TokenEnv overrides the token file when set.
const TokenEnv = "STUDYVOICE_TOKEN"

// TokenSource yields the bearer token for each request. An empty token sends
// the request unauthenticated.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns the fixed token.
func (t StaticToken) Token() (string, error) {
	return strings.TrimSpace(string(t)), nil
}

// FileToken reads the token from Path on every call, so a re-login is picked
// up without restarting. TokenEnv takes precedence.
type FileToken struct {
	Path string
}

// Token returns the current token; a missing file yields "".
func (f FileToken) Token() (string, error) {
	if env := strings.TrimSpace(os.Getenv(TokenEnv)); env != "" {
		return env, nil
	}
	path := ExpandHome(f.Path)
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read token file %q: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ExpandHome resolves a leading ~/ against the user's home directory.
func ExpandHome(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(raw, "~"), "/"))
}
