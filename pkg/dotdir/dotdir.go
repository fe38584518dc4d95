// Package dotdir locates the .relay directory that holds config.toml.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// Name is the directory name looked up in the working directory and $HOME.
const Name = ".relay"

// Source records how a Location was resolved.
type Source int

const (
	SourceNone Source = iota
	SourceOverride
	SourceLocal
	SourceHome
)

func (s Source) String() string {
	switch s {
	case SourceOverride:
		return "override"
	case SourceLocal:
		return "local"
	case SourceHome:
		return "home"
	default:
		return "none"
	}
}

// Location is a resolved relay directory. Dir is empty when Source is
// SourceNone.
type Location struct {
	Dir    string
	Source Source
}

// Found reports whether a directory was resolved.
func (l Location) Found() bool {
	return l.Dir != ""
}

// Join returns a path inside the directory, or "" when nothing was found.
func (l Location) Join(name string) string {
	if !l.Found() {
		return ""
	}
	return filepath.Join(l.Dir, name)
}

// Resolve picks the relay directory. An override wins and is created when
// missing, then ./.relay, then ~/.relay. Nothing is created for the last two.
func Resolve(override string) (Location, error) {
	if override != "" {
		if err := os.MkdirAll(override, 0o755); err != nil {
			return Location{}, fmt.Errorf("creating relay directory %s: %w", override, err)
		}
		abs, err := filepath.Abs(override)
		if err != nil {
			return Location{}, fmt.Errorf("resolving %s: %w", override, err)
		}
		return Location{Dir: abs, Source: SourceOverride}, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return Location{}, fmt.Errorf("getting current directory: %w", err)
	}
	if local := filepath.Join(cwd, Name); isDir(local) {
		return Location{Dir: local, Source: SourceLocal}, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Location{}, fmt.Errorf("getting home directory: %w", err)
	}
	if dir := filepath.Join(home, Name); isDir(dir) {
		return Location{Dir: dir, Source: SourceHome}, nil
	}

	return Location{}, nil
}

// EnsureHome returns ~/.relay, creating it when missing.
func EnsureHome() (Location, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Location{}, fmt.Errorf("getting home directory: %w", err)
	}

	dir := filepath.Join(home, Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Location{}, fmt.Errorf("creating relay directory %s: %w", dir, err)
	}

	return Location{Dir: dir, Source: SourceHome}, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
