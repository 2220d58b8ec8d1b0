// Package folder is a data source producing the images found under a
// directory: OpenList globs the files, Render decodes one and scales it
// to fit the context's dimensions.
package folder

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/image/draw"

	"github.com/escape-llc/eink-billboard/internal/datasource"
	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/logging"
	"github.com/escape-llc/eink-billboard/internal/services"
)

// ID is the stable registry id.
const ID = "folder"

// Describe returns the source descriptor.
func Describe() datasource.Descriptor {
	return datasource.Descriptor{
		ID:   ID,
		Name: "Image Folder",
		Capabilities: datasource.Capabilities{
			List:   true,
			Render: true,
		},
		Defaults: map[string]any{
			"path":           "",
			"timeoutSeconds": 10,
		},
	}
}

// Source lists and renders the images under params["path"].
type Source struct {
	logger *slog.Logger
}

var (
	_ datasource.ListSource = (*Source)(nil)
	_ datasource.Renderer   = (*Source)(nil)
)

// New constructs the source.
func New(logger *slog.Logger) datasource.Source {
	return &Source{logger: logging.Default(logger).With("source", ID)}
}

// Describe implements datasource.Source.
func (s *Source) Describe() datasource.Descriptor { return Describe() }

// OpenList returns the sorted image paths under params["path"].
func (s *Source) OpenList(ctx *services.ExecutionContext, params map[string]any) ([]any, error) {
	dir, _ := params["path"].(string)
	if dir == "" {
		return nil, fmt.Errorf("folder source: path is required: %w", errs.ErrInvalidInput)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("folder source: %q: %w", dir, errs.ErrNotFound)
	}
	matches, err := doublestar.FilepathGlob(filepath.Join(dir, "**", "*.{png,jpg,jpeg,gif}"))
	if err != nil {
		return nil, fmt.Errorf("folder source: scan %q: %w", dir, err)
	}
	sort.Strings(matches)
	items := make([]any, 0, len(matches))
	for _, match := range matches {
		items = append(items, match)
	}
	s.logger.Debug("opened folder", "path", dir, "images", len(items))
	return items, nil
}

// Render decodes the state item (one path from OpenList) and scales it
// onto a white canvas of the context's dimensions, preserving aspect.
func (s *Source) Render(ctx *services.ExecutionContext, params map[string]any, state any) (image.Image, error) {
	path, ok := state.(string)
	if !ok {
		return nil, fmt.Errorf("folder source: state is %T, want a path: %w", state, errs.ErrInvalidInput)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("folder source: open %q: %w", path, err)
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("folder source: decode %q: %w", path, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, ctx.Width, ctx.Height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, fit(src.Bounds(), dst.Bounds()), src, src.Bounds(), draw.Over, nil)
	return dst, nil
}

// fit centers src inside bounds at the largest size preserving aspect.
func fit(src, bounds image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	bw, bh := bounds.Dx(), bounds.Dy()
	if sw == 0 || sh == 0 || bw == 0 || bh == 0 {
		return bounds
	}
	w, h := bw, sh*bw/sw
	if h > bh {
		w, h = sw*bh/sh, bh
	}
	x := (bw - w) / 2
	y := (bh - h) / 2
	return image.Rect(x, y, x+w, y+h)
}
