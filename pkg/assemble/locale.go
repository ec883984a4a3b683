package assemble

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/libforge/pkg/archive"
	"github.com/odvcencio/libforge/pkg/artifact"
	"github.com/odvcencio/libforge/pkg/compiler"
)

// AttachmentKind is the kind under which locale archives are published;
// their classifier is the locale code.
const AttachmentKind = "resource-bundle"

// LocaleBundleRequest asks for one resource-only archive for a locale.
type LocaleBundleRequest struct {
	Locale  string
	Bundles []string
	Output  string
}

// Attacher records secondary artifacts.
type Attacher interface {
	Attach(kind, classifier, path string)
}

// LocaleRequests derives one request per runtime locale of the project.
// Bundle names come from bundles when given; otherwise they are the
// .properties files found in each locale directory.
func (o *Orchestrator) LocaleRequests(locales, bundles []string) ([]LocaleBundleRequest, error) {
	p := o.Project
	reqs := make([]LocaleBundleRequest, 0, len(locales))
	for _, locale := range locales {
		names := bundles
		if len(names) == 0 {
			found, err := discoverBundles(p.LocalePath(locale))
			if err != nil {
				return nil, err
			}
			names = found
		}
		reqs = append(reqs, LocaleBundleRequest{
			Locale:  locale,
			Bundles: names,
			Output:  p.LocaleOutput(locale),
		})
	}
	return reqs, nil
}

func discoverBundles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ConfigError{Op: "discover resource bundles", Value: dir, Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".properties") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".properties"))
	}
	sort.Strings(names)
	return names, nil
}

// GenerateLocale builds the resource-bundle archive of one locale against the
// already packaged primary archive and the project's declared locale
// libraries. It reads only those inputs and writes only req.Output, so
// independent requests may run concurrently.
func (o *Orchestrator) GenerateLocale(ctx context.Context, primary string, req LocaleBundleRequest) (artifact.Attachment, error) {
	o.logger().Info("generating resource bundle", "locale", req.Locale, "output", req.Output)

	if _, err := os.Stat(primary); err != nil {
		return artifact.Attachment{}, &ConfigError{Op: "generate resource bundle", Value: primary, Err: err}
	}

	b := archive.NewBuilder()
	for _, rb := range req.Bundles {
		b.AddResourceBundle(rb)
	}

	libraries := append([]string{primary}, o.Project.LocaleLibraryPaths(req.Locale)...)

	spec := &compiler.Spec{
		Entries:       b,
		Output:        req.Output,
		SourcePaths:   []string{o.Project.LocalePath(req.Locale)},
		LibraryPaths:  libraries,
		Locales:       []string{req.Locale},
		Debug:         o.Project.Debug,
		ComputeDigest: o.Project.ComputeDigest,
	}
	out, err := o.Compiler.Build(ctx, spec)
	if err != nil {
		return artifact.Attachment{}, fmt.Errorf("generate resource bundle %s: %w", req.Locale, err)
	}
	return artifact.Attachment{Kind: AttachmentKind, Classifier: req.Locale, Path: out}, nil
}

// GenerateLocales runs every request with at most jobs builds in flight and
// attaches the results in request order once all of them succeeded. The
// first failure cancels the remaining builds and nothing is attached.
func (o *Orchestrator) GenerateLocales(ctx context.Context, primary string, reqs []LocaleBundleRequest, jobs int, pub Attacher) ([]artifact.Attachment, error) {
	results := make([]artifact.Attachment, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, req := range reqs {
		g.Go(func() error {
			a, err := o.GenerateLocale(gctx, primary, req)
			if err != nil {
				return err
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if pub != nil {
		for _, a := range results {
			pub.Attach(a.Kind, a.Classifier, a.Path)
		}
	}
	return results, nil
}
