// Package binio reads and writes the little-endian records used by bundle
// assets. Both sides keep the first error they hit and turn every later call
// into a no-op, so encoders can write a whole record and check once.
package binio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxString bounds length-prefixed strings read back from a bundle.
const MaxString = 1 << 20

var ErrStringTooLong = errors.New("binio: string length exceeds limit")

type Writer struct {
	w   io.Writer
	buf [8]byte
	n   int64
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(p)
	w.n += int64(n)
	w.err = err
}

func (w *Writer) U8(v uint8) {
	w.buf[0] = v
	w.write(w.buf[:1])
}

func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

func (w *Writer) U16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	w.write(w.buf[:2])
}

func (w *Writer) U32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.write(w.buf[:4])
}

func (w *Writer) I32(v int32) {
	w.U32(uint32(v))
}

func (w *Writer) F32(v float32) {
	w.U32(math.Float32bits(v))
}

func (w *Writer) U64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[:8], v)
	w.write(w.buf[:8])
}

// Word writes a platform word, which is fixed at 64 bits.
func (w *Writer) Word(v int) {
	w.U64(uint64(v))
}

// String writes a word length prefix followed by the raw bytes, no terminator.
func (w *Writer) String(s string) {
	w.Word(len(s))
	if len(s) > 0 {
		w.write([]byte(s))
	}
}

func (w *Writer) Bytes(p []byte) {
	w.write(p)
}

// Written reports how many bytes reached the underlying writer.
func (w *Writer) Written() int64 {
	return w.n
}

func (w *Writer) Err() error {
	return w.err
}

type Reader struct {
	r   io.Reader
	buf [8]byte
	err error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) read(n int) []byte {
	if r.err != nil {
		return nil
	}
	if _, err := io.ReadFull(r.r, r.buf[:n]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		r.err = err
		return nil
	}
	return r.buf[:n]
}

func (r *Reader) U8() uint8 {
	b := r.read(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool() bool {
	return r.U8() != 0
}

func (r *Reader) U16() uint16 {
	b := r.read(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) U32() uint32 {
	b := r.read(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) I32() int32 {
	return int32(r.U32())
}

func (r *Reader) F32() float32 {
	return math.Float32frombits(r.U32())
}

func (r *Reader) U64() uint64 {
	b := r.read(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) Word() uint64 {
	return r.U64()
}

func (r *Reader) String() string {
	n := r.Word()
	if r.err != nil || n == 0 {
		return ""
	}
	if n > MaxString {
		r.err = fmt.Errorf("%w: %d", ErrStringTooLong, n)
		return ""
	}
	p := make([]byte, n)
	if _, err := io.ReadFull(r.r, p); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		r.err = err
		return ""
	}
	return string(p)
}

func (r *Reader) Err() error {
	return r.err
}
