package cntpack

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseConfig(t *testing.T) {
	src := `
concurrency = 3
log_level   = "debug"

bundle "game" {
  source   = "assets"
  output   = "build/${env.BUNDLE}.cnt"
  manifest = "build/game.yaml"
  exclude  = ["*.tmp", "drafts/*"]
}

bundle "tools" {
  source = "/abs/tools"
  output = upper("tools.cnt")
}
`
	cfg, err := ParseConfig("project/cntpack.hcl", []byte(src), []string{"BUNDLE=game", "EMPTY="})
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	want := &Config{
		Concurrency: 3,
		LogLevel:    "debug",
		Bundles: []*BundleConfigBlock{
			{
				Name:     "game",
				Source:   filepath.Join("project", "assets"),
				Output:   filepath.Join("project", "build", "game.cnt"),
				Manifest: filepath.Join("project", "build", "game.yaml"),
				Exclude:  []string{"*.tmp", "drafts/*"},
			},
			{
				Name:   "tools",
				Source: "/abs/tools",
				Output: filepath.Join("project", "TOOLS.CNT"),
			},
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	if cfg.Bundle("tools") != cfg.Bundles[1] {
		t.Fatalf("Bundle(tools) did not return the second block")
	}
	if cfg.Bundle("nope") != nil {
		t.Fatalf("Bundle(nope) returned a block")
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	src := `
bundle "game" {
  source = "assets"
  output = "game.cnt"
}
`
	cfg, err := ParseConfig("cntpack.hcl", []byte(src), nil)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Concurrency != runtime.GOMAXPROCS(0) {
		t.Fatalf("Concurrency = %d, want GOMAXPROCS", cfg.Concurrency)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `bundle "a" {`},
		{"missing output", `bundle "a" { source = "x" }`},
		{"unknown attribute", `colour = "red"`},
		{"duplicate bundle", `
bundle "a" {
  source = "x"
  output = "y"
}
bundle "a" {
  source = "x"
  output = "z"
}`},
		{"empty source", `
bundle "a" {
  source = ""
  output = "y"
}`},
		{"bad exclude pattern", `
bundle "a" {
  source  = "x"
  output  = "y"
  exclude = ["[a-"]
}`},
		{"unset env", `
bundle "a" {
  source = env.MISSING
  output = "y"
}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig("cntpack.hcl", []byte(tt.src), nil); err == nil {
				t.Fatalf("ParseConfig succeeded")
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cntpack.hcl")
	src := "bundle \"game\" {\n  source = \"assets\"\n  output = \"out/game.cnt\"\n}\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got, want := cfg.Bundles[0].Source, filepath.Join(dir, "assets"); got != want {
		t.Fatalf("Source = %q, want %q", got, want)
	}
}
