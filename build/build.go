package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/b1naryth1ef/cntpack"
)

var ErrAssetsFailed = errors.New("assets failed to convert")

type BuildOpts struct {
	// Bundle limits the build to the named bundle when set.
	Bundle string
	Logger zerolog.Logger
}

func ensureDirectory(path string) error {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModePerm)
	}
	return err
}

func selectBundles(config *cntpack.Config, name string) ([]*cntpack.BundleConfigBlock, error) {
	if name == "" {
		if len(config.Bundles) == 0 {
			return nil, errors.New("no bundles configured")
		}
		return config.Bundles, nil
	}
	b := config.Bundle(name)
	if b == nil {
		return nil, fmt.Errorf("unknown bundle %q", name)
	}
	return []*cntpack.BundleConfigBlock{b}, nil
}

// buildBundle packs one bundle into a temporary file next to its output and
// renames it into place, so readers never observe a half written bundle.
func buildBundle(ctx context.Context, config *cntpack.Config, bundleCfg *cntpack.BundleConfigBlock, logger zerolog.Logger) (*cntpack.PackResult, error) {
	outDir := filepath.Dir(bundleCfg.Output)
	if err := ensureDirectory(outDir); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(outDir, "."+filepath.Base(bundleCfg.Output)+"-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	packer := cntpack.NewPacker(cntpack.DefaultConverters(), logger.With().Str("bundle", bundleCfg.Name).Logger())
	result, err := packer.Pack(ctx, bundleCfg.Source, tmp, cntpack.PackOpts{
		Concurrency: config.Concurrency,
		Exclude:     bundleCfg.Exclude,
	})
	if err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), bundleCfg.Output); err != nil {
		return nil, err
	}

	if bundleCfg.Manifest != "" {
		if err := writeManifest(bundleCfg, result); err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
	}
	return result, nil
}

func writeManifest(bundleCfg *cntpack.BundleConfigBlock, result *cntpack.PackResult) error {
	if err := ensureDirectory(filepath.Dir(bundleCfg.Manifest)); err != nil {
		return err
	}

	fd, err := os.Create(bundleCfg.Manifest)
	if err != nil {
		return err
	}
	defer fd.Close()

	manifest := cntpack.Manifest{
		Bundle:  bundleCfg.Name,
		BuiltAt: time.Now().UTC(),
		Assets:  result.Entries,
	}
	if err := manifest.Write(fd); err != nil {
		return err
	}
	return fd.Close()
}

// Build packs every selected bundle. Bundles whose assets partly failed are
// still written; the returned error then wraps ErrAssetsFailed.
func Build(ctx context.Context, config *cntpack.Config, opts BuildOpts) error {
	bundles, err := selectBundles(config, opts.Bundle)
	if err != nil {
		return err
	}

	failed := 0
	for _, bundleCfg := range bundles {
		n, err := runBundle(ctx, config, bundleCfg, opts.Logger)
		if err != nil {
			return fmt.Errorf("bundle %s: %w", bundleCfg.Name, err)
		}
		failed += n
	}

	if failed > 0 {
		return fmt.Errorf("%d %w", failed, ErrAssetsFailed)
	}
	return nil
}

func runBundle(ctx context.Context, config *cntpack.Config, bundleCfg *cntpack.BundleConfigBlock, logger zerolog.Logger) (int, error) {
	start := time.Now()
	result, err := buildBundle(ctx, config, bundleCfg, logger)
	if err != nil {
		return 0, err
	}

	logger.Info().
		Str("bundle", bundleCfg.Name).
		Str("output", bundleCfg.Output).
		Int("assets", len(result.Entries)).
		Int("failed", len(result.Failed)).
		Int("skipped", result.Skipped).
		Int64("ms", time.Since(start).Milliseconds()).
		Msg("finished packing")
	return len(result.Failed), nil
}
