package cntpack

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/b1naryth1ef/cntpack/frameseq"
	"github.com/b1naryth1ef/cntpack/tilemap"
)

// Converter compiles one source file into an asset blob. Convert must only
// write to w; the caller discards w when an error is returned.
type Converter interface {
	ContentType() ContentType
	Convert(path string, r io.Reader, w io.Writer, logger zerolog.Logger) error
}

// DefaultConverters maps lower-case file extensions to their converter.
func DefaultConverters() map[string]Converter {
	return map[string]Converter{
		"png":  PNGConverter{},
		"ldtk": LDtkConverter{},
		"tmx":  TMXConverter{},
		"fst":  FrameSequenceConverter{},
	}
}

// SplitAssetName turns a path relative to the source root into the asset name
// and the lower-case extension used to pick a converter.
func SplitAssetName(rel string) (name, ext string) {
	rel = filepath.ToSlash(rel)
	base := rel[strings.LastIndexByte(rel, '/')+1:]
	dot := strings.LastIndexByte(base, '.')
	if dot < 0 {
		return rel, ""
	}
	return rel[:len(rel)-len(base)+dot], strings.ToLower(base[dot+1:])
}

// PNGConverter copies the image unchanged.
type PNGConverter struct{}

func (PNGConverter) ContentType() ContentType { return ContentPNG }

func (PNGConverter) Convert(path string, r io.Reader, w io.Writer, logger zerolog.Logger) error {
	_, err := io.Copy(w, r)
	return err
}

type LDtkConverter struct{}

func (LDtkConverter) ContentType() ContentType { return ContentMap }

func (LDtkConverter) Convert(path string, r io.Reader, w io.Writer, logger zerolog.Logger) error {
	m, err := tilemap.FromLDtk(r, logger)
	if err != nil {
		return err
	}
	return m.Encode(w)
}

type TMXConverter struct{}

func (TMXConverter) ContentType() ContentType { return ContentMap }

func (TMXConverter) Convert(path string, r io.Reader, w io.Writer, logger zerolog.Logger) error {
	m, err := tilemap.FromTMX(filepath.Dir(path), r, logger)
	if err != nil {
		return err
	}
	return m.Encode(w)
}

// FrameSequenceConverter compiles frame sequence text. Malformed lines are
// reported through logger and do not fail the asset.
type FrameSequenceConverter struct{}

func (FrameSequenceConverter) ContentType() ContentType { return ContentFrames }

func (FrameSequenceConverter) Convert(path string, r io.Reader, w io.Writer, logger zerolog.Logger) error {
	seqs, err := frameseq.Parse(r, logger)
	if err != nil {
		return err
	}
	return frameseq.Encode(w, seqs)
}
