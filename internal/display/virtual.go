package display

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/escape-llc/eink-billboard/internal/logging"
	"github.com/escape-llc/eink-billboard/internal/message"
)

// Virtual defaults, matching a common 7.5" e-ink panel.
const (
	DefaultVirtualWidth  = 800
	DefaultVirtualHeight = 480
)

// CurrentImageName is the file the virtual panel keeps current.
const CurrentImageName = "current_image.png"

// Virtual is a simulated panel persisting each frame as a PNG. The write
// is atomic so a concurrent reader never sees a torn file.
type Virtual struct {
	name   string
	width  int
	height int
	dir    string
	logger *slog.Logger
}

var _ Backend = (*Virtual)(nil)

// VirtualConfig configures a Virtual backend.
type VirtualConfig struct {
	// Name identifies the panel. Defaults to "virtual".
	Name string

	// Width and Height default to 800x480.
	Width  int
	Height int

	// Dir receives current_image.png. Required.
	Dir string

	// Logger for write failures. Nil discards.
	Logger *slog.Logger
}

// NewVirtual creates the backend and ensures its output directory.
func NewVirtual(cfg VirtualConfig) (*Virtual, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("virtual display: output directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("virtual display: create %q: %w", cfg.Dir, err)
	}
	name := cfg.Name
	if name == "" {
		name = "virtual"
	}
	width, height := cfg.Width, cfg.Height
	if width <= 0 || height <= 0 {
		width, height = DefaultVirtualWidth, DefaultVirtualHeight
	}
	return &Virtual{
		name:   name,
		width:  width,
		height: height,
		dir:    cfg.Dir,
		logger: logging.Default(cfg.Logger).With("component", "virtual-display"),
	}, nil
}

// Describe implements Backend.
func (v *Virtual) Describe() message.DisplaySettings {
	return message.DisplaySettings{Name: v.name, Width: v.width, Height: v.height}
}

// Show encodes the frame and writes it atomically over the previous one.
func (v *Virtual) Show(img image.Image, title string, ts time.Time) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("virtual display: encode %q: %w", title, err)
	}
	path := filepath.Join(v.dir, CurrentImageName)
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("virtual display: write %q: %w", path, err)
	}
	v.logger.Debug("frame written", "title", title, "ts", ts, "bytes", buf.Len())
	return nil
}
