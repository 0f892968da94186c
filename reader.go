package cntpack

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/b1naryth1ef/cntpack/frameseq"
	"github.com/b1naryth1ef/cntpack/internal/binio"
	"github.com/b1naryth1ef/cntpack/tilemap"
)

const headerSize = 8

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrWrongType     = errors.New("asset has a different content type")
	ErrCorruptBundle = errors.New("corrupt bundle")
)

// Bundle gives read access to the assets of a compiled bundle.
type Bundle struct {
	Entries []Entry

	index  map[string]int
	r      io.ReaderAt
	closer io.Closer
}

func OpenBundle(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	b, err := ReadBundle(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	b.closer = f
	return b, nil
}

// ReadBundle parses the header and content table of the size bytes in r.
func ReadBundle(r io.ReaderAt, size int64) (*Bundle, error) {
	if size < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrCorruptBundle, size)
	}

	header := binio.NewReader(io.NewSectionReader(r, 0, headerSize))
	tableOffset := header.U64()
	if err := header.Err(); err != nil {
		return nil, err
	}
	if tableOffset < headerSize || tableOffset > uint64(size) {
		return nil, fmt.Errorf("%w: table offset %d outside file", ErrCorruptBundle, tableOffset)
	}

	br := binio.NewReader(io.NewSectionReader(r, int64(tableOffset), size-int64(tableOffset)))
	count := br.Word()
	b := &Bundle{
		Entries: make([]Entry, 0, min(count, 1<<16)),
		index:   map[string]int{},
		r:       r,
	}
	for i := uint64(0); i < count && br.Err() == nil; i++ {
		e := Entry{
			Name:   br.String(),
			Type:   ContentType(br.U8()),
			Offset: br.U64(),
			Size:   br.U64(),
		}
		if br.Err() != nil {
			break
		}
		if e.Offset < headerSize || e.Offset > tableOffset || e.Size > tableOffset-e.Offset {
			return nil, fmt.Errorf("%w: asset %q lies outside the data section", ErrCorruptBundle, e.Name)
		}
		b.index[e.Name] = len(b.Entries)
		b.Entries = append(b.Entries, e)
	}
	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("%w: content table: %v", ErrCorruptBundle, err)
	}
	return b, nil
}

func (b *Bundle) Lookup(name string) (Entry, bool) {
	i, ok := b.index[name]
	if !ok {
		return Entry{}, false
	}
	return b.Entries[i], true
}

// Open returns a reader over the blob of the asset called name.
func (b *Bundle) Open(name string) (*io.SectionReader, Entry, error) {
	e, ok := b.Lookup(name)
	if !ok {
		return nil, e, fmt.Errorf("%s: %w", name, ErrAssetNotFound)
	}
	return io.NewSectionReader(b.r, int64(e.Offset), int64(e.Size)), e, nil
}

func (b *Bundle) open(name string, typ ContentType) (*io.SectionReader, error) {
	sr, e, err := b.Open(name)
	if err != nil {
		return nil, err
	}
	if e.Type != typ {
		return nil, fmt.Errorf("%s is %s, not %s: %w", name, e.Type, typ, ErrWrongType)
	}
	return sr, nil
}

func (b *Bundle) LoadRaw(name string) ([]byte, error) {
	sr, _, err := b.Open(name)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(sr)
}

func (b *Bundle) LoadPNG(name string) (image.Image, error) {
	sr, err := b.open(name, ContentPNG)
	if err != nil {
		return nil, err
	}
	return png.Decode(sr)
}

func (b *Bundle) LoadMap(name string) (*tilemap.Map, error) {
	sr, err := b.open(name, ContentMap)
	if err != nil {
		return nil, err
	}
	return tilemap.Decode(sr)
}

func (b *Bundle) LoadFrames(name string) ([]frameseq.Sequence, error) {
	sr, err := b.open(name, ContentFrames)
	if err != nil {
		return nil, err
	}
	return frameseq.Decode(sr)
}

func (b *Bundle) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}
