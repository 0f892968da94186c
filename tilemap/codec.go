package tilemap

import (
	"fmt"
	"io"

	"github.com/b1naryth1ef/cntpack/internal/binio"
)

// preallocLimit bounds slice capacity taken from untrusted counts.
const preallocLimit = 1 << 16

// Encode writes m in the map asset layout.
func (m *Map) Encode(w io.Writer) error {
	if err := m.checkLayerCounts(); err != nil {
		return err
	}

	bw := binio.NewWriter(w)
	bw.String(m.Tileset)
	bw.U32(m.TileSize)
	bw.U32(m.Width)
	bw.U32(m.Height)

	bw.U8(uint8(len(m.TileLayers)))
	for _, layer := range m.TileLayers {
		bw.U16(layer.Order)
		bw.U32(uint32(len(layer.Tiles)))
		for _, tile := range layer.Tiles {
			bw.U32(tile.Index)
			bw.U32(tile.SourceX)
			bw.U32(tile.SourceY)
		}
	}

	bw.U8(uint8(len(m.CollisionLayers)))
	for _, layer := range m.CollisionLayers {
		bw.U16(layer.Order)
		bw.U32(uint32(len(layer.Rects)))
		for _, r := range layer.Rects {
			bw.U32(r.X)
			bw.U32(r.Y)
			bw.U32(r.W)
			bw.U32(r.H)
		}
	}

	bw.U8(uint8(len(m.EntityLayers)))
	for _, layer := range m.EntityLayers {
		bw.U16(layer.Order)
		bw.U32(uint32(len(layer.Decor)))
		for _, d := range layer.Decor {
			bw.U32(d.SourceX)
			bw.U32(d.SourceY)
			bw.U32(d.X)
			bw.U32(d.Y)
			bw.U32(d.W)
			bw.U32(d.H)
		}
		bw.U32(uint32(len(layer.Entities)))
		for _, e := range layer.Entities {
			bw.String(e.Type)
			bw.U32(e.X)
			bw.U32(e.Y)
			bw.U32(e.W)
			bw.U32(e.H)
			bw.U32(uint32(len(e.Fields)))
			for _, f := range e.Fields {
				if err := encodeField(bw, f); err != nil {
					return err
				}
			}
		}
	}

	return bw.Err()
}

func encodeField(bw *binio.Writer, f Field) error {
	value := f.Value
	if value == nil {
		value = UnknownValue{}
	}

	bw.String(f.Name)
	bw.U8(uint8(value.Kind()))
	switch v := value.(type) {
	case IntValue:
		bw.I32(int32(v))
	case FloatValue:
		bw.F32(float32(v))
	case StringValue:
		bw.String(string(v))
	case EntityRef:
		bw.Bool(v.Decor)
		bw.U32(v.Index)
	case UnknownValue:
	default:
		return fmt.Errorf("tilemap: field %q has unsupported value %T", f.Name, value)
	}
	return nil
}

// Decode reads a map asset written by Encode.
func Decode(r io.Reader) (*Map, error) {
	br := binio.NewReader(r)
	m := &Map{
		Tileset:  br.String(),
		TileSize: br.U32(),
		Width:    br.U32(),
		Height:   br.U32(),
	}

	n := int(br.U8())
	m.TileLayers = make([]TileLayer, 0, n)
	for i := 0; i < n && br.Err() == nil; i++ {
		layer := TileLayer{Order: br.U16()}
		count := br.U32()
		layer.Tiles = make([]Tile, 0, min(count, preallocLimit))
		for j := uint32(0); j < count && br.Err() == nil; j++ {
			layer.Tiles = append(layer.Tiles, Tile{Index: br.U32(), SourceX: br.U32(), SourceY: br.U32()})
		}
		m.TileLayers = append(m.TileLayers, layer)
	}

	n = int(br.U8())
	m.CollisionLayers = make([]CollisionLayer, 0, n)
	for i := 0; i < n && br.Err() == nil; i++ {
		layer := CollisionLayer{Order: br.U16()}
		count := br.U32()
		layer.Rects = make([]Rect, 0, min(count, preallocLimit))
		for j := uint32(0); j < count && br.Err() == nil; j++ {
			layer.Rects = append(layer.Rects, Rect{X: br.U32(), Y: br.U32(), W: br.U32(), H: br.U32()})
		}
		m.CollisionLayers = append(m.CollisionLayers, layer)
	}

	n = int(br.U8())
	m.EntityLayers = make([]EntityLayer, 0, n)
	for i := 0; i < n && br.Err() == nil; i++ {
		layer := EntityLayer{Order: br.U16()}
		count := br.U32()
		layer.Decor = make([]DecorEntity, 0, min(count, preallocLimit))
		for j := uint32(0); j < count && br.Err() == nil; j++ {
			layer.Decor = append(layer.Decor, DecorEntity{
				SourceX: br.U32(),
				SourceY: br.U32(),
				X:       br.U32(),
				Y:       br.U32(),
				W:       br.U32(),
				H:       br.U32(),
			})
		}

		count = br.U32()
		layer.Entities = make([]Entity, 0, min(count, preallocLimit))
		for j := uint32(0); j < count && br.Err() == nil; j++ {
			e := Entity{Type: br.String(), X: br.U32(), Y: br.U32(), W: br.U32(), H: br.U32()}
			fields := br.U32()
			e.Fields = make([]Field, 0, min(fields, preallocLimit))
			for k := uint32(0); k < fields && br.Err() == nil; k++ {
				f, err := decodeField(br)
				if err != nil {
					return nil, err
				}
				e.Fields = append(e.Fields, f)
			}
			layer.Entities = append(layer.Entities, e)
		}
		m.EntityLayers = append(m.EntityLayers, layer)
	}

	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("tilemap: decode: %w", err)
	}
	return m, nil
}

func decodeField(br *binio.Reader) (Field, error) {
	f := Field{Name: br.String()}
	switch kind := Kind(br.U8()); kind {
	case KindInt:
		f.Value = IntValue(br.I32())
	case KindFloat:
		f.Value = FloatValue(br.F32())
	case KindString:
		f.Value = StringValue(br.String())
	case KindEntityRef:
		f.Value = EntityRef{Decor: br.Bool(), Index: br.U32()}
	case KindUnknown:
		f.Value = UnknownValue{}
	default:
		if br.Err() == nil {
			return f, fmt.Errorf("tilemap: field %q has invalid type tag %d", f.Name, uint8(kind))
		}
	}
	return f, nil
}
