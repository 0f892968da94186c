package frameseq

import (
	"fmt"
	"io"

	"github.com/b1naryth1ef/cntpack/internal/binio"
)

const preallocLimit = 1 << 16

// Encode writes seqs in the frame sequence asset layout.
func Encode(w io.Writer, seqs []Sequence) error {
	bw := binio.NewWriter(w)
	bw.Word(len(seqs))
	for _, seq := range seqs {
		bw.F32(seq.Duration)
		bw.U32(uint32(len(seq.Frames)))
		for _, f := range seq.Frames {
			bw.U32(f.X)
			bw.U32(f.Y)
			bw.U32(f.W)
			bw.U32(f.H)
		}
	}
	return bw.Err()
}

// Decode reads an asset written by Encode.
func Decode(r io.Reader) ([]Sequence, error) {
	br := binio.NewReader(r)
	count := br.Word()
	seqs := make([]Sequence, 0, min(count, preallocLimit))
	for i := uint64(0); i < count && br.Err() == nil; i++ {
		seq := Sequence{Duration: br.F32()}
		frames := br.U32()
		seq.Frames = make([]Frame, 0, min(frames, preallocLimit))
		for j := uint32(0); j < frames && br.Err() == nil; j++ {
			seq.Frames = append(seq.Frames, Frame{X: br.U32(), Y: br.U32(), W: br.U32(), H: br.U32()})
		}
		seqs = append(seqs, seq)
	}
	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("frameseq: decode: %w", err)
	}
	return seqs, nil
}
