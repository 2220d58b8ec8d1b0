package folder

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/services"
)

func execCtx(w, h int) *services.ExecutionContext {
	return &services.ExecutionContext{Width: w, Height: h, ScheduleTS: time.Now()}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 0x20, G: 0x40, B: 0x60, A: 0xff})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestOpenList_GlobsRecursivelyAndSorts(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(dir, "b.png"), 4, 4)
	writePNG(t, filepath.Join(dir, "a.png"), 4, 4)
	writePNG(t, filepath.Join(dir, "nested", "c.png"), 4, 4)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(nil).(*Source)
	items, err := s.OpenList(execCtx(10, 10), map[string]any{"path": dir})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "nested", "c.png"),
	}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d: %v", len(items), len(want), items)
	}
	for i, item := range items {
		if item.(string) != want[i] {
			t.Errorf("item[%d] = %v, want %v", i, item, want[i])
		}
	}
}

func TestOpenList_Errors(t *testing.T) {
	s := New(nil).(*Source)

	if _, err := s.OpenList(execCtx(10, 10), nil); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("missing path err = %v, want ErrInvalidInput", err)
	}
	if _, err := s.OpenList(execCtx(10, 10), map[string]any{"path": "/no/such/dir"}); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("absent dir err = %v, want ErrNotFound", err)
	}
}

func TestRender_ScalesToContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wide.png")
	writePNG(t, path, 200, 50)

	s := New(nil).(*Source)
	img, err := s.Render(execCtx(100, 100), map[string]any{"path": dir}, path)
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bounds()
	if b.Dx() != 100 || b.Dy() != 100 {
		t.Fatalf("bounds = %v, want 100x100", b)
	}

	// A 4:1 image in a square canvas letterboxes; the top edge stays
	// background white, the center carries image pixels.
	r, g, bl, _ := img.At(50, 2).RGBA()
	if r != 0xffff || g != 0xffff || bl != 0xffff {
		t.Errorf("letterbox pixel = (%d, %d, %d), want white", r, g, bl)
	}
	r, _, _, _ = img.At(50, 50).RGBA()
	if r == 0xffff {
		t.Error("center pixel is background, image not drawn")
	}
}

func TestRender_RejectsForeignState(t *testing.T) {
	s := New(nil).(*Source)
	if _, err := s.Render(execCtx(10, 10), nil, 42); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("Render err = %v, want ErrInvalidInput", err)
	}
}

func TestFit(t *testing.T) {
	cases := []struct {
		name       string
		src, bound image.Rectangle
		want       image.Rectangle
	}{
		{"wide letterboxed", image.Rect(0, 0, 200, 50), image.Rect(0, 0, 100, 100), image.Rect(0, 37, 100, 62)},
		{"tall pillarboxed", image.Rect(0, 0, 50, 200), image.Rect(0, 0, 100, 100), image.Rect(37, 0, 62, 100)},
		{"exact", image.Rect(0, 0, 100, 100), image.Rect(0, 0, 100, 100), image.Rect(0, 0, 100, 100)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := fit(tc.src, tc.bound); got != tc.want {
				t.Errorf("fit = %v, want %v", got, tc.want)
			}
		})
	}
}
