package cntpack

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/b1naryth1ef/cntpack/frameseq"
)

func writeTree(t *testing.T, files map[string][]byte) string {
	t.Helper()
	root := t.TempDir()
	for name, data := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return root
}

func sampleTree(t *testing.T) string {
	return writeTree(t, map[string][]byte{
		"tiles.png":          encodedPNG(t),
		"levels/one.ldtk":    []byte(`{"levels": [{"layerInstances": []}]}`),
		"levels/broken.ldtk": []byte(`{"levels": [`),
		"anim/hero.fst":      []byte("width 16\nheight 16\n0.1 (0 0)(16 0)\nbogus line\n"),
		"notes.txt":          []byte("not an asset"),
		"drafts/old.png":     []byte("draft"),
		"skip_me.png":        []byte("skipped"),
	})
}

func pack(t *testing.T, src string, opts PackOpts) (*PackResult, []byte) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "out.cnt")
	f, err := os.Create(out)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	p := NewPacker(DefaultConverters(), zerolog.Nop())
	result, err := p.Pack(context.Background(), src, f, opts)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return result, data
}

func TestPacker_Pack(t *testing.T) {
	src := sampleTree(t)
	result, data := pack(t, src, PackOpts{Concurrency: 4, Exclude: []string{"drafts", "skip_*"}})

	var names []string
	for _, e := range result.Entries {
		names = append(names, e.Name)
	}
	if diff := cmp.Diff([]string{"anim/hero", "levels/one", "tiles"}, names); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}

	if len(result.Failed) != 1 || result.Failed[0].Name != "levels/broken" {
		t.Fatalf("Failed = %v, want levels/broken only", result.Failed)
	}
	if result.Skipped != 1 {
		t.Fatalf("Skipped = %d, want 1", result.Skipped)
	}

	b, err := ReadBundle(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("ReadBundle: %v", err)
	}
	if diff := cmp.Diff(result.Entries, b.Entries); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}

	seqs, err := b.LoadFrames("anim/hero")
	if err != nil {
		t.Fatalf("LoadFrames: %v", err)
	}
	want := []frameseq.Sequence{{Duration: 0.1, Frames: []frameseq.Frame{{X: 0, Y: 0, W: 16, H: 16}, {X: 16, Y: 0, W: 16, H: 16}}}}
	if diff := cmp.Diff(want, seqs); diff != "" {
		t.Fatalf("frames mismatch (-want +got):\n%s", diff)
	}

	if _, err := b.LoadPNG("tiles"); err != nil {
		t.Fatalf("LoadPNG: %v", err)
	}
	if _, err := b.LoadMap("levels/one"); err != nil {
		t.Fatalf("LoadMap: %v", err)
	}
}

func TestPacker_DeterministicAcrossConcurrency(t *testing.T) {
	src := sampleTree(t)
	_, serial := pack(t, src, PackOpts{Concurrency: 1})
	_, parallel := pack(t, src, PackOpts{Concurrency: 8})
	if !bytes.Equal(serial, parallel) {
		t.Fatalf("bundle differs between concurrency 1 and 8")
	}
}

func TestPacker_DuplicateNames(t *testing.T) {
	src := writeTree(t, map[string][]byte{
		"hero.fst": []byte("1 (0 0 1 1)"),
		"hero.png": encodedPNG(t),
	})
	result, _ := pack(t, src, PackOpts{})

	if len(result.Entries) != 1 || result.Entries[0].Type != ContentFrames {
		t.Fatalf("Entries = %v, want hero as frames", result.Entries)
	}
	if len(result.Failed) != 1 || !errors.Is(result.Failed[0], ErrDuplicateAsset) {
		t.Fatalf("Failed = %v, want duplicate error", result.Failed)
	}
}

func TestPacker_Cancelled(t *testing.T) {
	src := sampleTree(t)
	f, err := os.Create(filepath.Join(t.TempDir(), "out.cnt"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPacker(DefaultConverters(), zerolog.Nop())
	if _, err := p.Pack(ctx, src, f, PackOpts{Concurrency: 1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Pack error = %v, want context.Canceled", err)
	}
}

func TestPacker_MissingSource(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.cnt"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	p := NewPacker(DefaultConverters(), zerolog.Nop())
	if _, err := p.Pack(context.Background(), filepath.Join(t.TempDir(), "nope"), f, PackOpts{}); err == nil {
		t.Fatalf("Pack succeeded on a missing directory")
	}
}

func TestSplitAssetName(t *testing.T) {
	tests := []struct {
		rel, name, ext string
	}{
		{"tiles.png", "tiles", "png"},
		{"dir/Level.LDTK", "dir/Level", "ldtk"},
		{"a/b/c.tar.fst", "a/b/c.tar", "fst"},
		{"noext", "noext", ""},
		{"dir.v2/file", "dir.v2/file", ""},
		{".hidden", "", "hidden"},
	}
	for _, tt := range tests {
		name, ext := SplitAssetName(tt.rel)
		if name != tt.name || ext != tt.ext {
			t.Errorf("SplitAssetName(%q) = (%q, %q), want (%q, %q)", tt.rel, name, ext, tt.name, tt.ext)
		}
	}
}

func TestManifest_RoundTrip(t *testing.T) {
	want := &Manifest{
		Bundle:  "game",
		BuiltAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Assets: []Entry{
			{Name: "tiles", Type: ContentPNG, Offset: 8, Size: 100},
			{Name: "levels/one", Type: ContentMap, Offset: 108, Size: 20},
			{Name: "anim/hero", Type: ContentFrames, Offset: 128, Size: 4},
		},
	}

	var buf bytes.Buffer
	if err := want.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("type: map")) {
		t.Fatalf("manifest does not name content types:\n%s", buf.String())
	}

	got, err := ReadManifest(&buf)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("manifest mismatch (-want +got):\n%s", diff)
	}
}
