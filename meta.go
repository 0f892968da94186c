package cntpack

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

type PackOpts struct {
	Concurrency int
	// Exclude holds path.Match patterns tested against the source-relative
	// path and its base name. A matching directory is skipped entirely.
	Exclude []string
}

type PackResult struct {
	Entries []Entry
	Failed  []AssetError
	// Skipped counts files without a converter.
	Skipped int
}

type AssetError struct {
	Name string
	Path string
	Err  error
}

func (e AssetError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Name, e.Path, e.Err)
}

func (e AssetError) Unwrap() error {
	return e.Err
}

// Manifest is the YAML description of a bundle's content table.
type Manifest struct {
	Bundle  string    `yaml:"bundle"`
	BuiltAt time.Time `yaml:"built_at,omitempty"`
	Assets  []Entry   `yaml:"assets"`
}

func (m *Manifest) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return err
	}
	return enc.Close()
}

func ReadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}
