package loader

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/disintegration/imaging"
)

// twoRows is a 1x2 image: red on top, blue below.
func twoRows() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(0, 1, color.NRGBA{B: 255, A: 255})
	return img
}

func writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := imaging.Save(twoRows(), path); err != nil {
		t.Fatalf("save %s: %v", name, err)
	}
	return path
}

func TestLoadTextureAndCache(t *testing.T) {
	l := NewLoader(BackendTypeImage, WithWorkers(1))
	defer l.Release()

	path := writeImage(t, "rows.png")
	tex, err := l.LoadTexture(path)
	if err != nil {
		t.Fatalf("LoadTexture: %v", err)
	}
	if tex.Width != 1 || tex.Height != 2 || tex.Format != model.TextureFormatRGBA32 {
		t.Fatalf("texture = %dx%d format %d", tex.Width, tex.Height, tex.Format)
	}
	if !bytes.Equal(tex.Pixels, []byte{255, 0, 0, 255, 0, 0, 255, 255}) {
		t.Errorf("pixels = %v", tex.Pixels)
	}
	again, err := l.LoadTexture(path)
	if err != nil || again != tex {
		t.Errorf("second load should hit the cache")
	}
	if l.Get(path) != tex || len(l.Textures()) != 1 {
		t.Errorf("cache contents = %v", l.Textures())
	}
}

func TestLoadTextureFlipAndSwizzle(t *testing.T) {
	l := NewLoader(BackendTypeImage, WithFlipVertical(true), WithFormat(model.TextureFormatBGRA32))
	defer l.Release()

	tex, err := l.LoadTexture(writeImage(t, "rows.png"))
	if err != nil {
		t.Fatalf("LoadTexture: %v", err)
	}
	// flipped: blue row first; swizzled: B, G, R, A
	want := []byte{255, 0, 0, 255, 0, 0, 255, 255}
	if !bytes.Equal(tex.Pixels, want) {
		t.Errorf("pixels = %v, want %v", tex.Pixels, want)
	}
	if tex.Format != model.TextureFormatBGRA32 {
		t.Errorf("format = %d, want BGRA32", tex.Format)
	}
}

func TestLoadTexturesParallel(t *testing.T) {
	l := NewLoader(BackendTypeImage, WithWorkers(2))
	defer l.Release()

	paths := []string{writeImage(t, "a.png"), writeImage(t, "b.bmp"), writeImage(t, "c.tiff")}
	texs, err := l.LoadTextures(paths...)
	if err != nil {
		t.Fatalf("LoadTextures: %v", err)
	}
	for i, tex := range texs {
		if tex == nil || tex.Key != paths[i] {
			t.Errorf("texture %d = %+v, want key %s", i, tex, paths[i])
		}
	}

	texs, err = l.LoadTextures(paths[0], filepath.Join(t.TempDir(), "missing.png"), "model.glb")
	if err == nil {
		t.Fatal("expected joined errors")
	}
	if texs[0] == nil || texs[1] != nil || texs[2] != nil {
		t.Errorf("results = %v", texs)
	}
}

func TestLoadReader(t *testing.T) {
	l := NewLoader(BackendTypeImage, WithWorkers(1))
	defer l.Release()

	var buf bytes.Buffer
	if err := png.Encode(&buf, twoRows()); err != nil {
		t.Fatalf("encode: %v", err)
	}
	tex, err := l.LoadReader("embedded", &buf)
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if tex.Key != "embedded" || l.Get("embedded") != tex {
		t.Errorf("reader texture not cached under its name")
	}
	if _, err := l.LoadReader("garbage", bytes.NewReader([]byte("not an image"))); err == nil {
		t.Error("expected decode error")
	}
}
