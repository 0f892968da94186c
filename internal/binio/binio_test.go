package binio

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestWriterLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.U8(0x01)
	w.U16(0x0302)
	w.U32(0x07060504)
	w.String("ab")
	if err := w.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []byte{
		0x01,
		0x02, 0x03,
		0x04, 0x05, 0x06, 0x07,
		0x02, 0, 0, 0, 0, 0, 0, 0, 'a', 'b',
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("layout mismatch:\n got %v\nwant %v", buf.Bytes(), want)
	}
	if w.Written() != int64(len(want)) {
		t.Fatalf("Written() = %d, want %d", w.Written(), len(want))
	}
}

func TestReaderValues(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.I32(-7)
	w.F32(1.5)
	w.Bool(true)
	w.String("")
	w.String("tiles")
	w.U64(1 << 40)

	r := NewReader(&buf)
	if v := r.I32(); v != -7 {
		t.Fatalf("I32 = %d", v)
	}
	if v := r.F32(); v != 1.5 {
		t.Fatalf("F32 = %v", v)
	}
	if !r.Bool() {
		t.Fatalf("Bool = false")
	}
	if v := r.String(); v != "" {
		t.Fatalf("empty String = %q", v)
	}
	if v := r.String(); v != "tiles" {
		t.Fatalf("String = %q", v)
	}
	if v := r.U64(); v != 1<<40 {
		t.Fatalf("U64 = %d", v)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2}))
	_ = r.U32()
	if !errors.Is(r.Err(), io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", r.Err())
	}
	if v := r.U8(); v != 0 {
		t.Fatalf("read after error returned %d", v)
	}
}

func TestReaderStringLimit(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.U64(MaxString + 1)

	r := NewReader(&buf)
	_ = r.String()
	if !errors.Is(r.Err(), ErrStringTooLong) {
		t.Fatalf("expected ErrStringTooLong, got %v", r.Err())
	}
}

type failWriter struct{ after int }

func (f *failWriter) Write(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, io.ErrShortWrite
	}
	f.after--
	return len(p), nil
}

func TestWriterStickyError(t *testing.T) {
	w := NewWriter(&failWriter{after: 1})
	w.U32(1)
	w.U32(2)
	w.U32(3)
	if !errors.Is(w.Err(), io.ErrShortWrite) {
		t.Fatalf("expected short write, got %v", w.Err())
	}
	if w.Written() != 4 {
		t.Fatalf("Written() = %d, want 4", w.Written())
	}
}
