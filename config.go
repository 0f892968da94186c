package cntpack

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

const DefaultConfigPath = "cntpack.hcl"

type Config struct {
	Concurrency int                  `hcl:"concurrency,optional"`
	LogLevel    string               `hcl:"log_level,optional"`
	Bundles     []*BundleConfigBlock `hcl:"bundle,block"`
}

type BundleConfigBlock struct {
	Name     string   `hcl:"name,label"`
	Source   string   `hcl:"source"`
	Output   string   `hcl:"output"`
	Manifest string   `hcl:"manifest,optional"`
	Exclude  []string `hcl:"exclude,optional"`
}

func newHCLEvalContext(environ []string) *hcl.EvalContext {
	env := map[string]cty.Value{}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		env[name] = cty.StringVal(value)
	}

	envVal := cty.MapValEmpty(cty.String)
	if len(env) > 0 {
		envVal = cty.MapVal(env)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": envVal,
		},
		Functions: map[string]function.Function{
			"lower":  stdlib.LowerFunc,
			"upper":  stdlib.UpperFunc,
			"join":   stdlib.JoinFunc,
			"format": stdlib.FormatFunc,
		},
	}
}

// LoadConfig decodes the config file at filename. Relative bundle paths are
// resolved against the directory holding the file.
func LoadConfig(filename string) (*Config, error) {
	var cfg Config
	evalCtx := newHCLEvalContext(os.Environ())
	err := hclsimple.DecodeFile(filename, evalCtx, &cfg)
	if err != nil {
		return nil, err
	}

	cfg.resolve(filepath.Dir(filename))
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &cfg, nil
}

// ParseConfig decodes src as if it were read from filename, using environ
// for the env variable.
func ParseConfig(filename string, src []byte, environ []string) (*Config, error) {
	var cfg Config
	err := hclsimple.Decode(filename, src, newHCLEvalContext(environ), &cfg)
	if err != nil {
		return nil, err
	}

	cfg.resolve(filepath.Dir(filename))
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &cfg, nil
}

func (c *Config) resolve(dir string) {
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.GOMAXPROCS(0)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	for _, b := range c.Bundles {
		b.Source = resolvePath(dir, b.Source)
		b.Output = resolvePath(dir, b.Output)
		if b.Manifest != "" {
			b.Manifest = resolvePath(dir, b.Manifest)
		}
	}
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func (c *Config) validate() error {
	seen := map[string]bool{}
	for _, b := range c.Bundles {
		if seen[b.Name] {
			return fmt.Errorf("bundle %q declared twice", b.Name)
		}
		seen[b.Name] = true

		if b.Source == "" {
			return fmt.Errorf("bundle %q: source is empty", b.Name)
		}
		if b.Output == "" {
			return fmt.Errorf("bundle %q: output is empty", b.Name)
		}
		for _, pattern := range b.Exclude {
			if _, err := path.Match(pattern, ""); err != nil {
				return fmt.Errorf("bundle %q: exclude %q: %w", b.Name, pattern, err)
			}
		}
	}
	return nil
}

// Bundle returns the bundle block called name, or nil.
func (c *Config) Bundle(name string) *BundleConfigBlock {
	for _, b := range c.Bundles {
		if b.Name == name {
			return b
		}
	}
	return nil
}
