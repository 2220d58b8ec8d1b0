// Package banner is a data source rendering a line of text onto a solid
// background. It is the fallback content for debug playlists and for
// slots with nothing better to show.
package banner

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/escape-llc/eink-billboard/internal/datasource"
	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/logging"
	"github.com/escape-llc/eink-billboard/internal/services"
)

// ID is the stable registry id.
const ID = "banner"

// Describe returns the source descriptor.
func Describe() datasource.Descriptor {
	return datasource.Descriptor{
		ID:   ID,
		Name: "Text Banner",
		Capabilities: datasource.Capabilities{
			Item:   true,
			Render: true,
		},
		Defaults: map[string]any{
			"text":       "",
			"background": "#ffffff",
			"foreground": "#000000",
		},
	}
}

// Item is the state produced by OpenItem.
type Item struct {
	Text string
}

// Source renders params["text"] centered on a solid canvas.
type Source struct {
	logger *slog.Logger
}

var (
	_ datasource.ItemSource = (*Source)(nil)
	_ datasource.Renderer   = (*Source)(nil)
)

// New constructs the source.
func New(logger *slog.Logger) datasource.Source {
	return &Source{logger: logging.Default(logger).With("source", ID)}
}

// Describe implements datasource.Source.
func (s *Source) Describe() datasource.Descriptor { return Describe() }

// OpenItem resolves the banner text. An empty text parameter falls back
// to the context's logical timestamp.
func (s *Source) OpenItem(ctx *services.ExecutionContext, params map[string]any) (any, error) {
	text, _ := params["text"].(string)
	if text == "" {
		text = ctx.ScheduleTS.Format("Mon Jan 2 15:04")
	}
	return Item{Text: text}, nil
}

// Render draws the item's text centered on the canvas. Lines split on
// newline; each line is centered independently.
func (s *Source) Render(ctx *services.ExecutionContext, params map[string]any, state any) (image.Image, error) {
	item, ok := state.(Item)
	if !ok {
		return nil, fmt.Errorf("banner source: state is %T, want Item: %w", state, errs.ErrInvalidInput)
	}

	bg := parseColor(params, "background", color.White)
	fg := parseColor(params, "foreground", color.Black)

	dst := image.NewRGBA(image.Rect(0, 0, ctx.Width, ctx.Height))
	for y := 0; y < ctx.Height; y++ {
		for x := 0; x < ctx.Width; x++ {
			dst.Set(x, y, bg)
		}
	}

	face := basicfont.Face7x13
	lines := strings.Split(item.Text, "\n")
	lineHeight := face.Metrics().Height.Ceil()
	blockHeight := lineHeight * len(lines)
	y := (ctx.Height-blockHeight)/2 + face.Metrics().Ascent.Ceil()

	for _, line := range lines {
		width := font.MeasureString(face, line).Ceil()
		d := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(fg),
			Face: face,
			Dot:  fixed.P((ctx.Width-width)/2, y),
		}
		d.DrawString(line)
		y += lineHeight
	}
	return dst, nil
}

// parseColor reads a #rrggbb parameter, falling back on malformed input.
func parseColor(params map[string]any, key string, fallback color.Color) color.Color {
	raw, _ := params[key].(string)
	if len(raw) != 7 || raw[0] != '#' {
		return fallback
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(raw[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return fallback
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
