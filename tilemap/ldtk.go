package tilemap

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

const (
	ldtkTiles    = "Tiles"
	ldtkEntities = "Entities"
	ldtkIntGrid  = "IntGrid"

	collisionPrefix = "Collision"
	decorTag        = "decor"
)

type ldtkProject struct {
	Levels []ldtkLevel `json:"levels"`
}

type ldtkLevel struct {
	LayerInstances []ldtkLayer `json:"layerInstances"`
}

type ldtkLayer struct {
	Type            *string      `json:"__type"`
	Identifier      string       `json:"__identifier"`
	CWid            *int         `json:"__cWid"`
	CHei            *int         `json:"__cHei"`
	GridSize        *int         `json:"__gridSize"`
	TilesetRelPath  *string      `json:"__tilesetRelPath"`
	GridTiles       []ldtkTile   `json:"gridTiles"`
	IntGridCSV      []int        `json:"intGridCsv"`
	EntityInstances []ldtkEntity `json:"entityInstances"`
}

type ldtkTile struct {
	Px  []int `json:"px"`
	Src []int `json:"src"`
}

type ldtkTileRect struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type ldtkEntity struct {
	Identifier     string        `json:"__identifier"`
	Tags           []string      `json:"__tags"`
	Iid            string        `json:"iid"`
	Px             []int         `json:"px"`
	Width          *int          `json:"width"`
	Height         *int          `json:"height"`
	Tile           *ldtkTileRect `json:"__tile"`
	FieldInstances []ldtkField   `json:"fieldInstances"`
}

type ldtkField struct {
	Identifier string          `json:"__identifier"`
	Type       string          `json:"__type"`
	Value      json.RawMessage `json:"__value"`
}

type ldtkEntityRef struct {
	EntityIid string `json:"entityIid"`
}

// FromLDtk builds a Map from the first level of an LDtk project export.
//
// Missing levels or layers produce an empty Map rather than an error. Layers
// that do not fit the map established by the first valid tile layer are
// skipped. Structural problems in a layer that is kept are errors.
func FromLDtk(r io.Reader, logger zerolog.Logger) (*Map, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var project ldtkProject
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("tilemap: parse ldtk: %w", err)
	}

	m := &Map{}
	if len(project.Levels) == 0 {
		logger.Warn().Msg("ldtk project has no levels")
		return m, nil
	}
	if len(project.Levels) > 1 {
		logger.Debug().Int("levels", len(project.Levels)).Msg("only the first level is compiled")
	}

	x := ldtkExtractor{m: m, log: logger}
	for i := range project.Levels[0].LayerInstances {
		x.classify(&project.Levels[0].LayerInstances[i])
	}

	m.TileSize = uint32(x.gridSize)
	m.Width = uint32(x.width)
	m.Height = uint32(x.height)

	for i, layer := range x.tiles {
		tiles, err := x.tileLayer(layer)
		if err != nil {
			return nil, fmt.Errorf("tilemap: tile layer %q: %w", layer.Identifier, err)
		}
		m.TileLayers[i].Tiles = tiles
	}
	for i, layer := range x.collisions {
		rects, err := x.collisionLayer(layer)
		if err != nil {
			return nil, fmt.Errorf("tilemap: collision layer %q: %w", layer.Identifier, err)
		}
		m.CollisionLayers[i].Rects = rects
	}
	for i, layer := range x.entities {
		if err := x.entityLayer(layer, &m.EntityLayers[i]); err != nil {
			return nil, fmt.Errorf("tilemap: entity layer %q: %w", layer.Identifier, err)
		}
	}

	m.reverseOrders(x.counter.total)
	if err := m.checkLayerCounts(); err != nil {
		return nil, err
	}
	return m, nil
}

type ldtkExtractor struct {
	m   *Map
	log zerolog.Logger

	counter                 layerCounter
	width, height, gridSize int

	tiles      []*ldtkLayer
	collisions []*ldtkLayer
	entities   []*ldtkLayer
}

// classify assigns layer its render order. Layers that cannot be compiled are
// logged and skipped.
func (x *ldtkExtractor) classify(layer *ldtkLayer) {
	if layer.Type == nil {
		x.log.Debug().Str("layer", layer.Identifier).Msg("skipping layer without a type")
		return
	}

	switch *layer.Type {
	case ldtkTiles:
		w, h, g, ok := layerSize(layer)
		if !ok {
			x.log.Debug().Str("layer", layer.Identifier).Msg("skipping tile layer without a size")
			return
		}
		if x.width == 0 {
			if w <= 0 || h <= 0 || g <= 0 {
				x.log.Debug().Str("layer", layer.Identifier).Msg("skipping tile layer with empty size")
				return
			}
			x.width, x.height, x.gridSize = w, h, g
			if layer.TilesetRelPath != nil {
				base := path.Base(*layer.TilesetRelPath)
				x.m.Tileset = strings.TrimSuffix(base, path.Ext(base))
			}
		} else if w != x.width || h != x.height || g != x.gridSize {
			x.log.Debug().
				Str("layer", layer.Identifier).
				Ints("size", []int{w, h, g}).
				Ints("map", []int{x.width, x.height, x.gridSize}).
				Msg("skipping tile layer with mismatched size")
			return
		}
		x.tiles = append(x.tiles, layer)
		x.m.TileLayers = append(x.m.TileLayers, TileLayer{Order: x.counter.next()})

	case ldtkEntities:
		x.entities = append(x.entities, layer)
		x.m.EntityLayers = append(x.m.EntityLayers, EntityLayer{Order: x.counter.next()})

	case ldtkIntGrid:
		if !strings.HasPrefix(layer.Identifier, collisionPrefix) {
			return
		}
		if layer.CWid == nil || layer.CHei == nil {
			x.log.Debug().Str("layer", layer.Identifier).Msg("skipping collision layer without a size")
			return
		}
		if x.width == 0 || *layer.CWid != x.width || *layer.CHei != x.height {
			x.log.Debug().Str("layer", layer.Identifier).Msg("skipping collision layer with mismatched size")
			return
		}
		x.collisions = append(x.collisions, layer)
		x.m.CollisionLayers = append(x.m.CollisionLayers, CollisionLayer{Order: x.counter.next()})
	}
}

func layerSize(layer *ldtkLayer) (int, int, int, bool) {
	if layer.CWid == nil || layer.CHei == nil || layer.GridSize == nil {
		return 0, 0, 0, false
	}
	return *layer.CWid, *layer.CHei, *layer.GridSize, true
}

func (x *ldtkExtractor) tileLayer(layer *ldtkLayer) ([]Tile, error) {
	tiles := make([]Tile, 0, len(layer.GridTiles))
	size := x.gridSize
	for i, t := range layer.GridTiles {
		px, err := point(t.Px)
		if err != nil {
			return nil, fmt.Errorf("tile %d px: %w", i, err)
		}
		src, err := point(t.Src)
		if err != nil {
			return nil, fmt.Errorf("tile %d src: %w", i, err)
		}
		tiles = append(tiles, Tile{
			Index:   (px[1]/uint32(size))*uint32(x.width) + px[0]/uint32(size),
			SourceX: src[0],
			SourceY: src[1],
		})
	}
	return tiles, nil
}

func (x *ldtkExtractor) collisionLayer(layer *ldtkLayer) ([]Rect, error) {
	if len(layer.IntGridCSV) != x.width*x.height {
		return nil, fmt.Errorf("intGridCsv has %d cells, want %d", len(layer.IntGridCSV), x.width*x.height)
	}

	grid := make([]bool, len(layer.IntGridCSV))
	for i, v := range layer.IntGridCSV {
		grid[i] = v > 0
	}

	rects, err := Decompose(grid, x.width, x.height, MaxCollisionRects)
	if err != nil {
		return nil, err
	}
	for i := range rects {
		rects[i] = rects[i].Scale(uint32(x.gridSize))
	}
	return rects, nil
}

func (x *ldtkExtractor) entityLayer(layer *ldtkLayer, out *EntityLayer) error {
	type slot struct {
		decor bool
		index uint32
	}

	// Pass 1: dense per-family indices, addressable by declaration order.
	iids := make([]string, len(layer.EntityInstances))
	slots := make([]slot, len(layer.EntityInstances))
	var decorCount, entityCount uint32
	for i, e := range layer.EntityInstances {
		iids[i] = e.Iid
		if slices.Contains(e.Tags, decorTag) {
			slots[i] = slot{decor: true, index: decorCount}
			decorCount++
		} else {
			slots[i] = slot{index: entityCount}
			entityCount++
		}
	}

	resolve := func(iid string) (EntityRef, bool) {
		for i, candidate := range iids {
			if candidate == iid {
				return EntityRef{Decor: slots[i].decor, Index: slots[i].index}, true
			}
		}
		return EntityRef{}, false
	}

	// Pass 2: materialize.
	out.Decor = make([]DecorEntity, 0, decorCount)
	out.Entities = make([]Entity, 0, entityCount)
	for i, e := range layer.EntityInstances {
		px, err := point(e.Px)
		if err != nil {
			return fmt.Errorf("entity %q px: %w", e.Identifier, err)
		}
		if e.Width == nil || e.Height == nil || *e.Width < 0 || *e.Height < 0 {
			return fmt.Errorf("entity %q has no valid size", e.Identifier)
		}

		if slots[i].decor {
			d := DecorEntity{X: px[0], Y: px[1], W: uint32(*e.Width), H: uint32(*e.Height)}
			if e.Tile != nil {
				d.SourceX = uint32(max(e.Tile.X, 0))
				d.SourceY = uint32(max(e.Tile.Y, 0))
			}
			out.Decor = append(out.Decor, d)
			continue
		}

		entity := Entity{
			Type: e.Identifier,
			X:    px[0],
			Y:    px[1],
			W:    uint32(*e.Width),
			H:    uint32(*e.Height),
		}
		for _, f := range e.FieldInstances {
			value, err := ldtkFieldValue(f, resolve)
			if errors.Is(err, errDanglingRef) {
				x.log.Warn().
					Str("entity", e.Identifier).
					Str("field", f.Identifier).
					Msg("entity reference does not resolve in this layer, dropping field")
				continue
			}
			if err != nil {
				return fmt.Errorf("entity %q field %q: %w", e.Identifier, f.Identifier, err)
			}
			entity.Fields = append(entity.Fields, Field{Name: f.Identifier, Value: value})
		}
		out.Entities = append(out.Entities, entity)
	}
	return nil
}

var errDanglingRef = errors.New("dangling entity reference")

func ldtkFieldValue(f ldtkField, resolve func(string) (EntityRef, bool)) (Value, error) {
	raw := bytes.TrimSpace(f.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return UnknownValue{}, nil
	}

	switch {
	case f.Type == "Int":
		var v int32
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return IntValue(v), nil
	case f.Type == "Float":
		var v float32
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return FloatValue(v), nil
	case f.Type == "Bool":
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		if v {
			return IntValue(1), nil
		}
		return IntValue(0), nil
	case f.Type == "String", f.Type == "Multilines", f.Type == "FilePath", f.Type == "Color",
		strings.HasPrefix(f.Type, "LocalEnum."), strings.HasPrefix(f.Type, "ExternEnum."):
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return StringValue(v), nil
	case f.Type == "EntityRef":
		var ref ldtkEntityRef
		if err := json.Unmarshal(raw, &ref); err != nil {
			return nil, err
		}
		target, ok := resolve(ref.EntityIid)
		if !ok {
			return nil, errDanglingRef
		}
		return target, nil
	}
	return UnknownValue{}, nil
}

func point(v []int) ([2]uint32, error) {
	if len(v) < 2 {
		return [2]uint32{}, fmt.Errorf("want 2 coordinates, got %d", len(v))
	}
	if v[0] < 0 || v[1] < 0 {
		return [2]uint32{}, fmt.Errorf("negative coordinate %v", v[:2])
	}
	return [2]uint32{uint32(v[0]), uint32(v[1])}, nil
}
