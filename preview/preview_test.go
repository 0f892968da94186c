package preview

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/b1naryth1ef/cntpack"
	"github.com/b1naryth1ef/cntpack/tilemap"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

// testTileset is two 16x16 tiles: red at x 0, blue at x 16.
func testTileset() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			if x < 16 {
				img.Set(x, y, red)
			} else {
				img.Set(x, y, blue)
			}
		}
	}
	return img
}

func testMap() *tilemap.Map {
	return &tilemap.Map{
		Tileset:  "tiles",
		TileSize: 16,
		Width:    2,
		Height:   1,
		TileLayers: []tilemap.TileLayer{
			{Order: 0, Tiles: []tilemap.Tile{{Index: 0, SourceX: 16}, {Index: 1, SourceX: 0}}},
		},
		CollisionLayers: []tilemap.CollisionLayer{
			{Order: 1, Rects: []tilemap.Rect{{X: 0, Y: 0, W: 16, H: 16}}},
		},
		EntityLayers: []tilemap.EntityLayer{
			{Order: 2, Entities: []tilemap.Entity{{Type: "Player", X: 20, Y: 2, W: 8, H: 8}}},
		},
	}
}

func render(t *testing.T, m *tilemap.Map, tileset image.Image, opts Options) image.Image {
	t.Helper()
	r, err := NewRenderer(m, tileset, opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	img, err := r.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	return img
}

func rgba(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestRender_Tiles(t *testing.T) {
	opts := DefaultOptions()
	opts.Collisions = false
	opts.Entities = false
	img := render(t, testMap(), testTileset(), opts)

	if got := img.Bounds(); got != image.Rect(0, 0, 32, 16) {
		t.Fatalf("bounds = %v", got)
	}
	if got := rgba(img, 5, 5); got != blue {
		t.Fatalf("tile 0 pixel = %v, want blue", got)
	}
	if got := rgba(img, 20, 5); got != red {
		t.Fatalf("tile 1 pixel = %v, want red", got)
	}
}

func TestRender_Overlays(t *testing.T) {
	img := render(t, testMap(), testTileset(), DefaultOptions())

	if got := rgba(img, 5, 5); got == blue {
		t.Fatalf("collision overlay not drawn")
	}
	if got := rgba(img, 24, 6); got == red {
		t.Fatalf("entity overlay not drawn")
	}
	if got := rgba(img, 30, 14); got != red {
		t.Fatalf("pixel outside overlays = %v, want red", got)
	}
}

func TestRender_LayerOrder(t *testing.T) {
	m := testMap()
	m.CollisionLayers = nil
	m.EntityLayers = nil
	m.TileLayers = []tilemap.TileLayer{
		{Order: 1, Tiles: []tilemap.Tile{{Index: 0, SourceX: 0}}},
		{Order: 0, Tiles: []tilemap.Tile{{Index: 0, SourceX: 16}}},
	}
	img := render(t, m, testTileset(), DefaultOptions())

	if got := rgba(img, 5, 5); got != red {
		t.Fatalf("pixel = %v, want red from the higher order layer", got)
	}
}

func TestRender_Scale(t *testing.T) {
	opts := DefaultOptions()
	opts.Scale = 3
	opts.Collisions = false
	img := render(t, testMap(), testTileset(), opts)

	if got := img.Bounds(); got != image.Rect(0, 0, 96, 48) {
		t.Fatalf("bounds = %v", got)
	}
	if got := rgba(img, 47, 47); got != blue {
		t.Fatalf("scaled tile 0 pixel = %v, want blue", got)
	}
	if got := rgba(img, 95, 47); got != red {
		t.Fatalf("scaled tile 1 pixel = %v, want red", got)
	}
}

func TestRender_WithoutTileset(t *testing.T) {
	opts := DefaultOptions()
	opts.Background = color.Transparent
	img := render(t, testMap(), nil, opts)

	if got := rgba(img, 20, 14); got.A == 0 {
		t.Fatalf("swatch not drawn")
	}
}

func TestRender_Errors(t *testing.T) {
	if _, err := NewRenderer(testMap(), nil, Options{Scale: 100}, zerolog.Nop()); err == nil {
		t.Fatalf("NewRenderer accepted scale 100")
	}

	r, err := NewRenderer(&tilemap.Map{}, nil, DefaultOptions(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	if _, err := r.Render(); !errors.Is(err, ErrEmptyMap) {
		t.Fatalf("Render error = %v, want ErrEmptyMap", err)
	}
}

func TestRenderAsset(t *testing.T) {
	var tilesetPNG, mapData bytes.Buffer
	if err := png.Encode(&tilesetPNG, testTileset()); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	if err := testMap().Encode(&mapData); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	path := filepath.Join(t.TempDir(), "game.cnt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	bw, err := cntpack.NewBundleWriter(f)
	if err != nil {
		t.Fatalf("NewBundleWriter: %v", err)
	}
	if err := bw.Add("gfx/tiles", cntpack.ContentPNG, tilesetPNG.Bytes()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := bw.Add("levels/one", cntpack.ContentMap, mapData.Bytes()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	f.Close()

	b, err := cntpack.OpenBundle(path)
	if err != nil {
		t.Fatalf("OpenBundle: %v", err)
	}
	defer b.Close()

	opts := DefaultOptions()
	opts.Collisions = false
	img, err := RenderAsset(b, "levels/one", opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("RenderAsset: %v", err)
	}
	if got := rgba(img, 5, 5); got != blue {
		t.Fatalf("pixel = %v, want blue from the bundled tileset", got)
	}

	if _, err := RenderAsset(b, "gfx/tiles", opts, zerolog.Nop()); !errors.Is(err, cntpack.ErrWrongType) {
		t.Fatalf("RenderAsset on a png error = %v, want ErrWrongType", err)
	}
}
