package cntpack

import (
	"errors"
	"fmt"
	"io"

	"github.com/b1naryth1ef/cntpack/internal/binio"
)

var ErrDuplicateAsset = errors.New("duplicate asset name")

// Entry is one row of the content table.
type Entry struct {
	Name   string      `yaml:"name"`
	Type   ContentType `yaml:"type"`
	Offset uint64      `yaml:"offset"`
	Size   uint64      `yaml:"size"`
}

// BundleWriter appends asset blobs to w and finishes with the content table.
// The first word of the bundle holds the table offset and is patched by
// Close.
type BundleWriter struct {
	w       io.WriteSeeker
	bw      *binio.Writer
	entries []Entry
	names   map[string]struct{}
	closed  bool
}

func NewBundleWriter(w io.WriteSeeker) (*BundleWriter, error) {
	bw := binio.NewWriter(w)
	bw.U64(0)
	if err := bw.Err(); err != nil {
		return nil, err
	}
	return &BundleWriter{
		w:     w,
		bw:    bw,
		names: map[string]struct{}{},
	}, nil
}

// Add appends data as the asset called name.
func (b *BundleWriter) Add(name string, typ ContentType, data []byte) error {
	if b.closed {
		return errors.New("bundle writer is closed")
	}
	if name == "" {
		return errors.New("empty asset name")
	}
	if _, ok := b.names[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrDuplicateAsset)
	}

	offset := uint64(b.bw.Written())
	b.bw.Bytes(data)
	if err := b.bw.Err(); err != nil {
		return err
	}

	b.names[name] = struct{}{}
	b.entries = append(b.entries, Entry{
		Name:   name,
		Type:   typ,
		Offset: offset,
		Size:   uint64(len(data)),
	})
	return nil
}

// Entries returns the content table built so far.
func (b *BundleWriter) Entries() []Entry {
	return b.entries
}

// Close writes the content table and patches its offset into the header. It
// does not close the underlying writer.
func (b *BundleWriter) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	tableOffset := uint64(b.bw.Written())
	b.bw.Word(len(b.entries))
	for _, e := range b.entries {
		b.bw.String(e.Name)
		b.bw.U8(uint8(e.Type))
		b.bw.U64(e.Offset)
		b.bw.U64(e.Size)
	}
	if err := b.bw.Err(); err != nil {
		return err
	}

	if _, err := b.w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	header := binio.NewWriter(b.w)
	header.U64(tableOffset)
	if err := header.Err(); err != nil {
		return err
	}
	_, err := b.w.Seek(0, io.SeekEnd)
	return err
}
