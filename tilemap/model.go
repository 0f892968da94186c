// Package tilemap compiles level-editor exports into the bundle's map asset.
//
// A Map holds three families of layers. Every layer carries an Order, a dense
// render rank shared by all families where 0 is drawn first; it is the reverse
// of the layer's declaration order in the source document.
package tilemap

import "fmt"

// MaxCollisionRects caps the rectangles a single collision layer may produce.
const MaxCollisionRects = 4096

// maxLayers is the largest per-family layer count the u8 header can hold.
const maxLayers = 255

type Map struct {
	// Tileset is the tileset image asset name, without extension.
	Tileset string
	// TileSize is the side of a square tile, in pixels.
	TileSize uint32
	// Width and Height are in tiles.
	Width  uint32
	Height uint32

	TileLayers      []TileLayer
	CollisionLayers []CollisionLayer
	EntityLayers    []EntityLayer
}

type Tile struct {
	// Index is (y / TileSize) * Width + (x / TileSize).
	Index   uint32
	SourceX uint32
	SourceY uint32
}

type TileLayer struct {
	Order uint16
	Tiles []Tile
}

// Rect is an axis-aligned rectangle. Collision layers store it in pixels, the
// decomposer works in tiles.
type Rect struct {
	X, Y, W, H uint32
}

// Scale multiplies every component by s.
func (r Rect) Scale(s uint32) Rect {
	return Rect{X: r.X * s, Y: r.Y * s, W: r.W * s, H: r.H * s}
}

type CollisionLayer struct {
	Order uint16
	Rects []Rect
}

// DecorEntity is purely visual: a tileset source position and a placement.
type DecorEntity struct {
	SourceX, SourceY uint32
	X, Y, W, H       uint32
}

type Entity struct {
	Type       string
	X, Y, W, H uint32
	Fields     []Field
}

type EntityLayer struct {
	Order    uint16
	Decor    []DecorEntity
	Entities []Entity
}

type Field struct {
	Name  string
	Value Value
}

// Kind is the field type tag written to the map asset.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindEntityRef
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindEntityRef:
		return "entity_ref"
	case KindUnknown:
		return "unknown"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is one of IntValue, FloatValue, StringValue, EntityRef or UnknownValue.
type Value interface {
	Kind() Kind
	isValue()
}

type IntValue int32

type FloatValue float32

type StringValue string

// EntityRef points at another entity of the same layer: an index into Decor
// when Decor is set, into Entities otherwise.
type EntityRef struct {
	Decor bool
	Index uint32
}

// UnknownValue stands for a field whose type has no binary payload.
type UnknownValue struct{}

func (IntValue) Kind() Kind     { return KindInt }
func (FloatValue) Kind() Kind   { return KindFloat }
func (StringValue) Kind() Kind  { return KindString }
func (EntityRef) Kind() Kind    { return KindEntityRef }
func (UnknownValue) Kind() Kind { return KindUnknown }

func (IntValue) isValue()     {}
func (FloatValue) isValue()   {}
func (StringValue) isValue()  {}
func (EntityRef) isValue()    {}
func (UnknownValue) isValue() {}

// layerCounter hands out declaration ranks while a document is scanned.
type layerCounter struct {
	total int
}

func (c *layerCounter) next() uint16 {
	o := c.total
	c.total++
	return uint16(o)
}

// reverseOrders turns declaration ranks into render orders, so the last
// declared layer ends up with order 0.
func (m *Map) reverseOrders(total int) {
	flip := func(o uint16) uint16 {
		return uint16(total - int(o) - 1)
	}
	for i := range m.TileLayers {
		m.TileLayers[i].Order = flip(m.TileLayers[i].Order)
	}
	for i := range m.CollisionLayers {
		m.CollisionLayers[i].Order = flip(m.CollisionLayers[i].Order)
	}
	for i := range m.EntityLayers {
		m.EntityLayers[i].Order = flip(m.EntityLayers[i].Order)
	}
}

func (m *Map) checkLayerCounts() error {
	if len(m.TileLayers) > maxLayers {
		return fmt.Errorf("tilemap: %d tile layers, at most %d supported", len(m.TileLayers), maxLayers)
	}
	if len(m.CollisionLayers) > maxLayers {
		return fmt.Errorf("tilemap: %d collision layers, at most %d supported", len(m.CollisionLayers), maxLayers)
	}
	if len(m.EntityLayers) > maxLayers {
		return fmt.Errorf("tilemap: %d entity layers, at most %d supported", len(m.EntityLayers), maxLayers)
	}
	return nil
}
