package cntpack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"
)

// Packer compiles a source directory into a bundle.
type Packer struct {
	converters map[string]Converter
	log        zerolog.Logger
}

func NewPacker(converters map[string]Converter, logger zerolog.Logger) *Packer {
	return &Packer{
		converters: converters,
		log:        logger.With().Str("component", "packer").Logger(),
	}
}

type packJob struct {
	path string
	name string
	conv Converter

	done chan struct{}
	data []byte
	err  error
}

// Pack converts every supported file below src and writes the bundle to w.
// Up to opts.Concurrency assets are converted at once; they are appended to
// the bundle in walk order whatever order they finish in.
func (p *Packer) Pack(ctx context.Context, src string, w io.WriteSeeker, opts PackOpts) (*PackResult, error) {
	jobs, skipped, err := p.collect(src, opts.Exclude)
	if err != nil {
		return nil, err
	}

	bw, err := NewBundleWriter(w)
	if err != nil {
		return nil, err
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	guard := make(chan struct{}, concurrency)

	go func() {
		for i, job := range jobs {
			select {
			case guard <- struct{}{}:
			case <-ctx.Done():
				for _, rest := range jobs[i:] {
					rest.err = ctx.Err()
					close(rest.done)
				}
				return
			}

			go func(job *packJob) {
				defer close(job.done)
				defer func() {
					<-guard
				}()
				job.data, job.err = p.convert(job)
			}(job)
		}
	}()

	result := &PackResult{Skipped: skipped}
	for _, job := range jobs {
		<-job.done
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if job.err == nil {
			job.err = bw.Add(job.name, job.conv.ContentType(), job.data)
		}
		if job.err != nil {
			p.log.Error().Err(job.err).Str("asset", job.name).Msg("failed to convert asset")
			result.Failed = append(result.Failed, AssetError{Name: job.name, Path: job.path, Err: job.err})
			continue
		}
		p.log.Debug().Str("asset", job.name).Int("size", len(job.data)).Msg("added asset")
	}

	if err := bw.Close(); err != nil {
		return nil, err
	}
	result.Entries = bw.Entries()
	return result, nil
}

func (p *Packer) convert(job *packJob) ([]byte, error) {
	f, err := os.Open(job.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	logger := p.log.With().Str("asset", job.name).Logger()
	if err := job.conv.Convert(job.path, f, &buf, logger); err != nil {
		return nil, fmt.Errorf("%s: %w", job.name, err)
	}
	return buf.Bytes(), nil
}

// collect walks src in lexical order and returns one job per supported file.
func (p *Packer) collect(src string, exclude []string) ([]*packJob, int, error) {
	var jobs []*packJob
	skipped := 0

	err := filepath.WalkDir(src, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if file == src {
			return nil
		}

		rel, err := filepath.Rel(src, file)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if Excluded(rel, exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		name, ext := SplitAssetName(rel)
		conv, ok := p.converters[ext]
		if !ok || name == "" {
			p.log.Debug().Str("file", rel).Msg("unsupported file type, skipping")
			skipped++
			return nil
		}

		jobs = append(jobs, &packJob{
			path: file,
			name: name,
			conv: conv,
			done: make(chan struct{}),
		})
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return jobs, skipped, nil
}

// Excluded reports whether the source-relative path rel, or its base name,
// matches one of the patterns.
func Excluded(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := path.Match(pattern, path.Base(rel)); ok {
			return true
		}
	}
	return false
}
