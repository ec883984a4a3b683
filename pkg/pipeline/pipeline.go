// Package pipeline optimizes the program image of packaged archives and
// splices the new digest into their catalogs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/libforge/pkg/archive"
	"github.com/odvcencio/libforge/pkg/catalog"
	"github.com/odvcencio/libforge/pkg/optimize"
	"github.com/odvcencio/libforge/pkg/project"
)

// OptimizedKind is the attachment kind of the optimized program image.
const OptimizedKind = "swf"

// Stage names one step of the pipeline.
type Stage string

const (
	StageExtract  Stage = "extract"
	StageOptimize Stage = "optimize"
	StageDigest   Stage = "digest"
	StageReplace  Stage = "replace"
	StageExport   Stage = "export"
	StagePublish  Stage = "publish"
)

// StageError reports the stage and archive a pipeline run failed in.
type StageError struct {
	Stage   Stage
	Archive string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Archive, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrLibraryNotFound is returned when the archive to optimize does not exist.
var ErrLibraryNotFound = errors.New("library file not found")

// Digester computes a digest record over a program image.
type Digester interface {
	Digest(ctx context.Context, data []byte, signed bool) (archive.Digest, error)
}

// Attacher records secondary artifacts.
type Attacher interface {
	Attach(kind, classifier, path string)
}

// Target is one archive to process.
type Target struct {
	Archive   string
	Packaging string
	// Output is where the optimized program image is written.
	Output string
	Signed bool
}

// TargetFor returns the target of p's primary archive.
func TargetFor(p *project.Project) Target {
	return Target{
		Archive:   p.Output(),
		Packaging: p.Packaging,
		Output:    p.OptimizedOutput(),
		Signed:    p.Optimize.Signed,
	}
}

// Result describes a finished run.
type Result struct {
	Archive   string
	Optimized string
	Digest    archive.Digest
	Skipped   bool
}

// Pipeline runs extract, optimize, digest, replace, export and publish for
// each target. Any failure aborts the run of that target with no retries.
type Pipeline struct {
	Cache     *catalog.Cache
	Optimizer optimize.Optimizer
	Digester  Digester
	Publisher Attacher
	Logger    *log.Logger
	// Timeout bounds each optimize and digest call. Zero means no bound.
	Timeout time.Duration
	// ScratchDir is the parent of per-run extraction directories. Empty uses
	// the system temp directory.
	ScratchDir string
}

func (p *Pipeline) logger() *log.Logger {
	if p.Logger == nil {
		return log.New(io.Discard)
	}
	return p.Logger
}

// Run processes one target.
func (p *Pipeline) Run(ctx context.Context, t Target) (*Result, error) {
	logger := p.logger().With("archive", filepath.Base(t.Archive))
	if t.Packaging != "" && t.Packaging != project.PackagingLibrary {
		logger.Warn("optimizer can only be used on library projects", "packaging", t.Packaging)
		return &Result{Archive: t.Archive, Skipped: true}, nil
	}
	if st, err := os.Stat(t.Archive); err != nil || st.IsDir() {
		return nil, &StageError{Stage: StageExtract, Archive: t.Archive, Err: ErrLibraryNotFound}
	}

	logger.Info("extracting " + archive.LibraryName)
	image, err := p.extract(t.Archive)
	if err != nil {
		return nil, &StageError{Stage: StageExtract, Archive: t.Archive, Err: err}
	}

	logger.Info("optimizing library", "size", len(image))
	optimized, err := bounded(ctx, p.Timeout, func(ctx context.Context) ([]byte, error) {
		return p.Optimizer.Optimize(ctx, image)
	})
	if err != nil {
		return nil, &StageError{Stage: StageOptimize, Archive: t.Archive, Err: err}
	}

	logger.Info("computing optimized digest", "size", len(optimized), "signed", t.Signed)
	rec, err := bounded(ctx, p.Timeout, func(ctx context.Context) (archive.Digest, error) {
		return p.Digester.Digest(ctx, optimized, t.Signed)
	})
	if err != nil {
		return nil, &StageError{Stage: StageDigest, Archive: t.Archive, Err: err}
	}
	logger.Debug("digest", "type", rec.Type, "value", rec.Value)

	// The image goes into place before the catalog changes and is rolled
	// back if the catalog cannot be written, so the published image and the
	// recorded digest always match.
	staged, err := stageFile(t.Output, optimized)
	if err != nil {
		return nil, &StageError{Stage: StagePublish, Archive: t.Archive, Err: err}
	}
	defer os.Remove(staged)
	commit, rollback, err := swapIn(staged, t.Output)
	if err != nil {
		return nil, &StageError{Stage: StagePublish, Archive: t.Archive, Err: err}
	}

	logger.Info("updating digest")
	if err := p.Cache.SetDigest(t.Archive, archive.LibraryName, rec); err != nil {
		rollback()
		return nil, &StageError{Stage: StageReplace, Archive: t.Archive, Err: err}
	}
	if err := p.Cache.Export(t.Archive); err != nil {
		rollback()
		return nil, &StageError{Stage: StageExport, Archive: t.Archive, Err: fmt.Errorf("unable to update digest information: %w", err)}
	}
	commit()

	if p.Publisher != nil {
		p.Publisher.Attach(OptimizedKind, "", t.Output)
	}
	return &Result{Archive: t.Archive, Optimized: t.Output, Digest: rec}, nil
}

// RunAll processes independent targets with at most jobs runs in flight,
// sharing one catalog cache. Results are returned in target order.
func (p *Pipeline) RunAll(ctx context.Context, targets []Target, jobs int) ([]*Result, error) {
	results := make([]*Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, t := range targets {
		g.Go(func() error {
			res, err := p.Run(gctx, t)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// extract unpacks the archive into a scratch directory and returns the
// program image. The scratch directory is removed before returning.
func (p *Pipeline) extract(path string) ([]byte, error) {
	scratch, err := os.MkdirTemp(p.ScratchDir, "libforge-extract-*")
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := archive.Extract(path, scratch); err != nil {
		return nil, err
	}
	image, err := os.ReadFile(filepath.Join(scratch, archive.LibraryName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s not found in archive", archive.LibraryName)
		}
		return nil, err
	}
	return image, nil
}

// stageFile writes data to a temp file next to dest and returns its name.
func stageFile(dest string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("stage %s: mkdir: %w", dest, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".optimized-tmp-*")
	if err != nil {
		return "", fmt.Errorf("stage %s: tmpfile: %w", dest, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("stage %s: write: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("stage %s: close: %w", dest, err)
	}
	return tmpName, nil
}

// swapIn renames staged over dest. A previous dest is kept aside until
// commit drops it or rollback restores it.
func swapIn(staged, dest string) (commit, rollback func(), err error) {
	var backup string
	if _, statErr := os.Stat(dest); statErr == nil {
		prev, err := os.CreateTemp(filepath.Dir(dest), ".optimized-prev-*")
		if err != nil {
			return nil, nil, fmt.Errorf("publish %s: backup: %w", dest, err)
		}
		backup = prev.Name()
		prev.Close()
		if err := os.Rename(dest, backup); err != nil {
			os.Remove(backup)
			return nil, nil, fmt.Errorf("publish %s: backup: %w", dest, err)
		}
	}

	restore := func() {
		if backup != "" {
			os.Rename(backup, dest)
			return
		}
		os.Remove(dest)
	}
	if err := os.Rename(staged, dest); err != nil {
		restore()
		return nil, nil, fmt.Errorf("publish %s: %w", dest, err)
	}

	commit = func() {
		if backup != "" {
			os.Remove(backup)
		}
	}
	return commit, restore, nil
}

// bounded runs fn under timeout and returns as soon as the deadline passes,
// even if fn ignores its context.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{v: v, err: err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
