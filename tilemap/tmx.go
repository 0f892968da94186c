package tilemap

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/lafriks/go-tiled"
	"github.com/rs/zerolog"
)

// gidMask strips the Tiled flip flags from a global tile id.
const gidMask = 0x1FFFFFFF

var (
	ErrMultipleTilesets = errors.New("tilemap: a map may use tiles from only one tileset")
	ErrNonSquareTiles   = errors.New("tilemap: tiles must be square")

	// ErrMapSize also covers infinite maps, whose chunked layer data does not
	// match the declared map size.
	ErrMapSize = errors.New("tilemap: tmx layer data does not match the map size")
)

// FromTMX builds a Map from a Tiled map. baseDir resolves external tilesets.
//
// Tiled draws its first layer at the bottom, so tile layers get render orders
// in file order, followed by object groups. Tile layers without any tiles are
// skipped. Tile layers named Collision* are decomposed into collision
// rectangles instead of being emitted as tiles. Object groups become entity
// layers: tile objects, objects whose class or type is "decor" and objects
// with a true "decor" property are decor. Everything else is an entity typed
// by its name with its custom properties as fields.
func FromTMX(baseDir string, r io.Reader, logger zerolog.Logger) (*Map, error) {
	tm, err := tiled.LoadReader(baseDir, r)
	if err != nil {
		return nil, fmt.Errorf("tilemap: parse tmx: %w", err)
	}
	if tm.Width <= 0 || tm.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrMapSize, tm.Width, tm.Height)
	}
	if tm.TileWidth != tm.TileHeight {
		return nil, fmt.Errorf("%w: %dx%d", ErrNonSquareTiles, tm.TileWidth, tm.TileHeight)
	}

	m := &Map{
		TileSize: uint32(tm.TileWidth),
		Width:    uint32(tm.Width),
		Height:   uint32(tm.Height),
	}

	var tileset *tiled.Tileset
	if len(tm.Tilesets) > 0 {
		tileset = tm.Tilesets[0]
		if tileset.Image != nil && tileset.Image.Source != "" {
			base := path.Base(tileset.Image.Source)
			m.Tileset = strings.TrimSuffix(base, path.Ext(base))
		} else {
			m.Tileset = tileset.Name
		}
	}

	var order uint16
	for _, layer := range tm.Layers {
		if len(layer.Tiles) != tm.Width*tm.Height {
			return nil, fmt.Errorf("%w: layer %q has %d tiles, want %d", ErrMapSize, layer.Name, len(layer.Tiles), tm.Width*tm.Height)
		}
		if strings.HasPrefix(layer.Name, collisionPrefix) {
			rects, err := tmxCollisionLayer(tm, layer)
			if err != nil {
				return nil, fmt.Errorf("tilemap: collision layer %q: %w", layer.Name, err)
			}
			m.CollisionLayers = append(m.CollisionLayers, CollisionLayer{Order: order, Rects: rects})
			order++
			continue
		}

		tiles, err := tmxTileLayer(layer, tileset)
		if err != nil {
			return nil, fmt.Errorf("tilemap: tile layer %q: %w", layer.Name, err)
		}
		if len(tiles) == 0 {
			logger.Debug().Str("layer", layer.Name).Msg("skipping empty tile layer")
			continue
		}
		m.TileLayers = append(m.TileLayers, TileLayer{Order: order, Tiles: tiles})
		order++
	}

	for _, group := range tm.ObjectGroups {
		layer := tmxObjectGroup(tm, group, logger)
		layer.Order = order
		m.EntityLayers = append(m.EntityLayers, layer)
		order++
	}

	if err := m.checkLayerCounts(); err != nil {
		return nil, err
	}
	return m, nil
}

func tmxTileLayer(layer *tiled.Layer, tileset *tiled.Tileset) ([]Tile, error) {
	var tiles []Tile
	for i, t := range layer.Tiles {
		if t == nil || t.IsNil() {
			continue
		}
		if t.Tileset != tileset {
			return nil, ErrMultipleTilesets
		}
		sx, sy := tileSource(tileset, t.ID)
		tiles = append(tiles, Tile{Index: uint32(i), SourceX: sx, SourceY: sy})
	}
	return tiles, nil
}

func tmxCollisionLayer(tm *tiled.Map, layer *tiled.Layer) ([]Rect, error) {
	grid := make([]bool, tm.Width*tm.Height)
	for i, t := range layer.Tiles {
		if i < len(grid) && t != nil && !t.IsNil() {
			grid[i] = true
		}
	}

	rects, err := Decompose(grid, tm.Width, tm.Height, MaxCollisionRects)
	if err != nil {
		return nil, err
	}
	for i := range rects {
		rects[i] = rects[i].Scale(uint32(tm.TileWidth))
	}
	return rects, nil
}

func tmxObjectGroup(tm *tiled.Map, group *tiled.ObjectGroup, logger zerolog.Logger) EntityLayer {
	type slot struct {
		decor bool
		index uint32
	}

	slots := make(map[uint32]slot, len(group.Objects))
	var decorCount, entityCount uint32
	for _, o := range group.Objects {
		if isTMXDecor(o) {
			slots[o.ID] = slot{decor: true, index: decorCount}
			decorCount++
		} else {
			slots[o.ID] = slot{index: entityCount}
			entityCount++
		}
	}

	layer := EntityLayer{
		Decor:    make([]DecorEntity, 0, decorCount),
		Entities: make([]Entity, 0, entityCount),
	}
	for _, o := range group.Objects {
		x, y := pixels(o.X), pixels(o.Y)
		w, h := pixels(o.Width), pixels(o.Height)
		if o.GID != 0 {
			// tile objects are anchored at their bottom-left corner
			y = pixels(o.Y - o.Height)
		}

		if slots[o.ID].decor {
			d := DecorEntity{X: x, Y: y, W: w, H: h}
			if ts, id, ok := tilesetForGID(tm, o.GID); ok {
				d.SourceX, d.SourceY = tileSource(ts, id)
			}
			layer.Decor = append(layer.Decor, d)
			continue
		}

		e := Entity{Type: o.Name, X: x, Y: y, W: w, H: h}
		for _, p := range o.Properties {
			if p.Name == decorTag {
				continue
			}
			value, ok := tmxPropertyValue(p, func(id uint32) (EntityRef, bool) {
				s, ok := slots[id]
				return EntityRef{Decor: s.decor, Index: s.index}, ok
			})
			if !ok {
				logger.Warn().
					Str("object", o.Name).
					Str("property", p.Name).
					Msg("object reference does not resolve in this group, dropping property")
				continue
			}
			e.Fields = append(e.Fields, Field{Name: p.Name, Value: value})
		}
		layer.Entities = append(layer.Entities, e)
	}
	return layer
}

// isTMXDecor reports whether o is purely visual: a tile object, an object
// whose class or type is decor, or one with a true decor property.
func isTMXDecor(o *tiled.Object) bool {
	return o.GID != 0 || o.Class == decorTag || o.Type == decorTag || o.Properties.GetBool(decorTag)
}

func tmxPropertyValue(p *tiled.Property, resolve func(uint32) (EntityRef, bool)) (Value, bool) {
	switch p.Type {
	case "int":
		v, err := strconv.ParseInt(p.Value, 10, 32)
		if err != nil {
			return UnknownValue{}, true
		}
		return IntValue(v), true
	case "float":
		v, err := strconv.ParseFloat(p.Value, 32)
		if err != nil {
			return UnknownValue{}, true
		}
		return FloatValue(v), true
	case "bool":
		if p.Value == "true" {
			return IntValue(1), true
		}
		return IntValue(0), true
	case "object":
		id, err := strconv.ParseUint(p.Value, 10, 32)
		if err != nil || id == 0 {
			return UnknownValue{}, true
		}
		return resolve(uint32(id))
	case "", "string", "file", "color":
		return StringValue(p.Value), true
	}
	return UnknownValue{}, true
}

func tilesetForGID(tm *tiled.Map, gid uint32) (*tiled.Tileset, uint32, bool) {
	gid &= gidMask
	if gid == 0 {
		return nil, 0, false
	}
	var found *tiled.Tileset
	for _, ts := range tm.Tilesets {
		if ts.FirstGID <= gid && (found == nil || ts.FirstGID > found.FirstGID) {
			found = ts
		}
	}
	if found == nil {
		return nil, 0, false
	}
	return found, gid - found.FirstGID, true
}

// tileSource returns the pixel position of a local tile id in a tileset image.
func tileSource(ts *tiled.Tileset, id uint32) (uint32, uint32) {
	if ts == nil || ts.Columns <= 0 {
		return 0, 0
	}
	col := int(id) % ts.Columns
	row := int(id) / ts.Columns
	x := ts.Margin + col*(ts.TileWidth+ts.Spacing)
	y := ts.Margin + row*(ts.TileHeight+ts.Spacing)
	return uint32(x), uint32(y)
}

func pixels(v float64) uint32 {
	if v <= 0 {
		return 0
	}
	return uint32(math.Round(v))
}
