// Package home manages the billboard home directory layout.
//
// The home directory owns all persistent state: the configuration
// document tree, static fonts, and the virtual display output.
//
// Layout:
//
//	<root>/
//	  device_id                        (persistent device identity)
//	  storage/                         (configuration document tree)
//	    settings/  plugins/  datasources/  schedules/  schemas/
//	  fonts/                           (static font files)
//	  out/                             (virtual display frames)
package home

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Dir represents a billboard home directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate default location:
//   - Linux:   ~/.config/billboard
//   - macOS:   ~/Library/Application Support/billboard
//   - Windows: %APPDATA%/billboard
func Default() (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "billboard")}, nil
}

// Root returns the home directory path.
func (d Dir) Root() string {
	return d.root
}

// StorageDir returns the configuration document tree root.
func (d Dir) StorageDir() string {
	return filepath.Join(d.root, "storage")
}

// FontsDir returns the static font directory.
func (d Dir) FontsDir() string {
	return filepath.Join(d.root, "fonts")
}

// OutDir returns the virtual display output directory.
func (d Dir) OutDir() string {
	return filepath.Join(d.root, "out")
}

// EnsureExists creates the home directory tree if it doesn't exist.
func (d Dir) EnsureExists() error {
	for _, dir := range []string{d.root, d.StorageDir(), d.FontsDir(), d.OutDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create home directory %s: %w", dir, err)
		}
	}
	return nil
}

// DeviceID reads the persistent device identity from <root>/device_id.
// If the file doesn't exist, a new UUIDv7 is generated and written.
func (d Dir) DeviceID() (string, error) {
	return d.readOrCreate("device_id", func() string {
		return uuid.Must(uuid.NewV7()).String()
	})
}

// readOrCreate reads a single-line value from <root>/<filename>.
// If the file doesn't exist, generate() provides the default which is persisted.
func (d Dir) readOrCreate(filename string, generate func() string) (string, error) {
	p := filepath.Join(d.root, filename)
	data, err := os.ReadFile(p) //nolint:gosec // G304: path is constructed from trusted home dir + constant filename
	if err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			return v, nil
		}
	}
	v := generate()
	if err := os.WriteFile(p, []byte(v+"\n"), 0o640); err != nil { //nolint:gosec // G306: device-id file is not secret, 0640 is intentional
		return "", fmt.Errorf("write %s: %w", filename, err)
	}
	return v, nil
}
