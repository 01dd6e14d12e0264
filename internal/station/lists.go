package station

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/hydro-monitor-service/internal/domain"
)

const (
	whitelistFile = "whitelist.json"
	blacklistFile = "blacklist.json"
)

// CodeSet is a set of station codes.
type CodeSet map[string]struct{}

// Has reports whether code is in the set.
func (s CodeSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Lists reads the whitelist and blacklist files under a data directory.
// Missing files are created as empty arrays.
type Lists struct {
	dir string
}

// NewLists creates Lists rooted at dir.
func NewLists(dir string) *Lists {
	return &Lists{dir: dir}
}

// Load reads both lists. They are re-read on every call so edits apply
// without a restart.
func (l *Lists) Load() (whitelist, blacklist CodeSet, err error) {
	if whitelist, err = l.read(whitelistFile); err != nil {
		return nil, nil, err
	}
	if blacklist, err = l.read(blacklistFile); err != nil {
		return nil, nil, err
	}
	return whitelist, blacklist, nil
}

func (l *Lists) read(name string) (CodeSet, error) {
	path := filepath.Join(l.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := l.create(path); err != nil {
			return nil, err
		}
		return CodeSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	var entries []any
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	set := make(CodeSet, len(entries))
	for _, e := range entries {
		if code, ok := domain.Code(e); ok {
			set[code] = struct{}{}
		}
	}
	return set, nil
}

func (l *Lists) create(path string) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte("[]\n"), 0o644); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	return nil
}
