// Package preview renders compiled map assets to images for inspection.
package preview

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"path"
	"sort"

	"github.com/muesli/gamut"
	"github.com/rs/zerolog"
	"golang.org/x/image/colornames"
	"golang.org/x/image/draw"

	"github.com/b1naryth1ef/cntpack"
	"github.com/b1naryth1ef/cntpack/tilemap"
)

const (
	maxScale      = 16
	overlayAlpha  = 0x70
	outlineAlpha  = 0xff
	outlineDarken = 0.4
)

var ErrEmptyMap = errors.New("preview: map has no size")

type Options struct {
	// Scale is the integer upscale factor, 1 when unset.
	Scale      int
	Collisions bool
	Entities   bool
	Background color.Color
}

func DefaultOptions() Options {
	return Options{
		Scale:      1,
		Collisions: true,
		Entities:   true,
		Background: colornames.Darkslategray,
	}
}

type layer struct {
	order uint16
	draw  func(dst draw.Image)
}

// Renderer draws one map. Tiles and decor are cut from tileset; when tileset
// is nil they are drawn as flat swatches.
type Renderer struct {
	m       *tilemap.Map
	tileset image.Image
	opts    Options
	log     zerolog.Logger

	colors map[string]color.Color
}

func NewRenderer(m *tilemap.Map, tileset image.Image, opts Options, logger zerolog.Logger) (*Renderer, error) {
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if opts.Scale > maxScale {
		return nil, fmt.Errorf("preview: scale %d above %d", opts.Scale, maxScale)
	}
	if opts.Background == nil {
		opts.Background = color.Transparent
	}

	r := &Renderer{
		m:       m,
		tileset: tileset,
		opts:    opts,
		log:     logger.With().Str("component", "preview").Logger(),
	}
	if err := r.buildPalette(); err != nil {
		return nil, err
	}
	return r, nil
}

// buildPalette assigns a colour to every collision layer and entity type.
func (r *Renderer) buildPalette() error {
	keys := []string{}
	seen := map[string]bool{}
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	for i := range r.m.TileLayers {
		add(fmt.Sprintf("tiles:%d", i))
	}
	for i := range r.m.CollisionLayers {
		add(fmt.Sprintf("collision:%d", i))
	}
	for _, l := range r.m.EntityLayers {
		if len(l.Decor) > 0 {
			add("decor")
		}
		for _, e := range l.Entities {
			add("entity:" + e.Type)
		}
	}

	r.colors = make(map[string]color.Color, len(keys))
	if len(keys) == 0 {
		return nil
	}

	colors, err := gamut.Generate(len(keys), gamut.PastelGenerator{})
	if err != nil {
		return fmt.Errorf("preview: generate palette: %w", err)
	}

	sort.Strings(keys)
	for idx, k := range keys {
		r.colors[k] = colors[idx]
	}
	return nil
}

func (r *Renderer) color(key string) color.Color {
	if c, ok := r.colors[key]; ok {
		return c
	}
	return colornames.Magenta
}

// Render draws every layer from order 0 upwards and scales the result.
func (r *Renderer) Render() (image.Image, error) {
	ts := int(r.m.TileSize)
	w, h := int(r.m.Width)*ts, int(r.m.Height)*ts
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyMap
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(r.opts.Background), image.Point{}, draw.Src)

	var layers []layer
	for i := range r.m.TileLayers {
		l := &r.m.TileLayers[i]
		key := fmt.Sprintf("tiles:%d", i)
		layers = append(layers, layer{l.Order, func(dst draw.Image) { r.drawTiles(dst, l, key) }})
	}
	if r.opts.Collisions {
		for i := range r.m.CollisionLayers {
			l := &r.m.CollisionLayers[i]
			key := fmt.Sprintf("collision:%d", i)
			layers = append(layers, layer{l.Order, func(dst draw.Image) { r.drawCollisions(dst, l, key) }})
		}
	}
	for i := range r.m.EntityLayers {
		l := &r.m.EntityLayers[i]
		layers = append(layers, layer{l.Order, func(dst draw.Image) { r.drawEntities(dst, l) }})
	}

	sort.SliceStable(layers, func(i, j int) bool {
		return layers[i].order < layers[j].order
	})
	for _, l := range layers {
		l.draw(canvas)
	}

	if r.opts.Scale == 1 {
		return canvas, nil
	}
	scaled := image.NewRGBA(image.Rect(0, 0, w*r.opts.Scale, h*r.opts.Scale))
	draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), canvas, canvas.Bounds(), draw.Src, nil)
	return scaled, nil
}

func (r *Renderer) sprite(dst draw.Image, at image.Rectangle, src image.Point, swatch color.Color) {
	if r.tileset == nil {
		draw.Draw(dst, at, image.NewUniform(swatch), image.Point{}, draw.Over)
		return
	}
	src = src.Add(r.tileset.Bounds().Min)
	draw.Draw(dst, at, r.tileset, src, draw.Over)
}

func (r *Renderer) drawTiles(dst draw.Image, l *tilemap.TileLayer, key string) {
	ts := int(r.m.TileSize)
	width := int(r.m.Width)
	for _, t := range l.Tiles {
		x, y := int(t.Index)%width, int(t.Index)/width
		if y >= int(r.m.Height) {
			r.log.Debug().Uint32("index", t.Index).Msg("tile outside map")
			continue
		}
		at := image.Rect(x*ts, y*ts, (x+1)*ts, (y+1)*ts)
		r.sprite(dst, at, image.Pt(int(t.SourceX), int(t.SourceY)), r.color(key))
	}
}

func (r *Renderer) drawCollisions(dst draw.Image, l *tilemap.CollisionLayer, key string) {
	fill := withAlpha(r.color(key), overlayAlpha)
	edge := withAlpha(gamut.Darker(r.color(key), outlineDarken), outlineAlpha)
	for _, rect := range l.Rects {
		at := bounds(rect.X, rect.Y, rect.W, rect.H)
		draw.Draw(dst, at, image.NewUniform(fill), image.Point{}, draw.Over)
		outline(dst, at, edge)
	}
}

func (r *Renderer) drawEntities(dst draw.Image, l *tilemap.EntityLayer) {
	for _, d := range l.Decor {
		at := bounds(d.X, d.Y, d.W, d.H)
		r.sprite(dst, at, image.Pt(int(d.SourceX), int(d.SourceY)), r.color("decor"))
	}
	if !r.opts.Entities {
		return
	}
	for _, e := range l.Entities {
		c := r.color("entity:" + e.Type)
		at := bounds(e.X, e.Y, e.W, e.H)
		draw.Draw(dst, at, image.NewUniform(withAlpha(c, overlayAlpha)), image.Point{}, draw.Over)
		outline(dst, at, withAlpha(c, outlineAlpha))
	}
}

func bounds(x, y, w, h uint32) image.Rectangle {
	return image.Rect(int(x), int(y), int(x)+int(w), int(y)+int(h))
}

func outline(dst draw.Image, r image.Rectangle, c color.Color) {
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), src, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), src, image.Point{}, draw.Src)
}

func withAlpha(c color.Color, a uint8) color.NRGBA {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = a
	return n
}

// RenderAsset renders the map asset called name from b. The tileset image is
// looked up by its exact asset name first, then by base name.
func RenderAsset(b *cntpack.Bundle, name string, opts Options, logger zerolog.Logger) (image.Image, error) {
	m, err := b.LoadMap(name)
	if err != nil {
		return nil, err
	}

	var tileset image.Image
	if tilesetName, ok := findTileset(b, m.Tileset); ok {
		tileset, err = b.LoadPNG(tilesetName)
		if err != nil {
			return nil, fmt.Errorf("tileset %s: %w", tilesetName, err)
		}
	} else if m.Tileset != "" {
		logger.Warn().Str("tileset", m.Tileset).Msg("tileset not in bundle, drawing swatches")
	}

	r, err := NewRenderer(m, tileset, opts, logger)
	if err != nil {
		return nil, err
	}
	return r.Render()
}

func findTileset(b *cntpack.Bundle, tileset string) (string, bool) {
	if tileset == "" {
		return "", false
	}
	if e, ok := b.Lookup(tileset); ok && e.Type == cntpack.ContentPNG {
		return e.Name, true
	}
	for _, e := range b.Entries {
		if e.Type == cntpack.ContentPNG && path.Base(e.Name) == tileset {
			return e.Name, true
		}
	}
	return "", false
}
