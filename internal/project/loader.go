package project

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"smalidiff/internal/crawler"
	"smalidiff/internal/smali"
)

// Loader turns the entries of one disassembled package into a Project.
type Loader struct {
	Filter Filter
	// Strict aborts the whole load on the first parse error. Otherwise the
	// offending class is skipped and recorded in Project.ParseErrors.
	Strict bool
	// Workers bounds parallel parsing, 0 means GOMAXPROCS.
	Workers int

	logger *zap.Logger
}

// NewLoader creates a loader. A nil logger discards output.
func NewLoader(filter Filter, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{Filter: filter, logger: logger.Named("loader")}
}

// LoadPath loads a directory or zip archive of .smali files.
func (l *Loader) LoadPath(ctx context.Context, root string) (*Project, error) {
	entries, err := crawler.NewCrawler().Collect(root)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, entries)
}

type parsed struct {
	class *smali.Class
	err   *smali.ParseError
}

// Load classifies and parses entries, then attaches inner classes to their
// outer classes. Class order follows entry order.
func (l *Loader) Load(ctx context.Context, entries []crawler.Entry) (*Project, error) {
	p := New()

	var jobs []crawler.Entry
	for _, e := range entries {
		switch kind := l.Filter.Classify(e.Path); kind {
		case ClassFile:
			jobs = append(jobs, e)
		case ResourceFile:
			p.AddResourceIDs(e.Content)
		default:
			l.logger.Debug("skipping entry", zap.String("path", e.Path))
		}
	}

	results, err := l.parseAll(ctx, jobs)
	if err != nil {
		return nil, err
	}

	var inner []*smali.Class
	for _, r := range results {
		if r.err != nil {
			l.logger.Warn("failed to parse class, skipping",
				zap.String("path", r.err.Path), zap.Int("line", r.err.Line), zap.String("content", r.err.Content))
			p.ParseErrors = append(p.ParseErrors, r.err)
			continue
		}
		if _, path := smali.SplitNesting(r.class.Name); len(path) > 0 {
			inner = append(inner, r.class)
			continue
		}
		if !p.AddClass(r.class) {
			l.logger.Warn("duplicate class descriptor, keeping the first", zap.String("class", r.class.Name))
		}
	}

	attachInnerClasses(p, inner)
	p.reindex()

	st := p.Stats()
	l.logger.Debug("project loaded",
		zap.Int("classes", st.Classes),
		zap.Int("inner_classes", st.InnerClasses),
		zap.Int("placeholders", st.Placeholders),
		zap.Int("resource_ids", st.ResourceIDs),
		zap.Int("parse_errors", st.ParseErrors))
	return p, nil
}

// parseAll parses every job in parallel and returns results in job order.
func (l *Loader) parseAll(ctx context.Context, jobs []crawler.Entry) ([]parsed, error) {
	results := make([]parsed, len(jobs))

	workers := l.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := smali.Parse(job.Path, job.Content)
			if err == nil {
				results[i] = parsed{class: c}
				return nil
			}
			var perr *smali.ParseError
			if !errors.As(err, &perr) {
				return fmt.Errorf("failed to parse %s: %w", job.Path, err)
			}
			if l.Strict {
				return perr
			}
			results[i] = parsed{err: perr}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// attachInnerClasses hangs every nested class below its outer class. Classes
// are processed shallowest first so that a parent is always in place before
// its children. Missing levels get a synthetic placeholder.
func attachInnerClasses(p *Project, inner []*smali.Class) {
	type candidate struct {
		class *smali.Class
		outer string
		path  []string
	}
	queue := make([]candidate, 0, len(inner))
	for _, c := range inner {
		outer, path := smali.SplitNesting(c.Name)
		queue = append(queue, candidate{class: c, outer: outer, path: path})
	}
	sort.SliceStable(queue, func(i, j int) bool {
		if len(queue[i].path) != len(queue[j].path) {
			return len(queue[i].path) < len(queue[j].path)
		}
		return queue[i].class.Name < queue[j].class.Name
	})

	for _, cand := range queue {
		parentName := "L" + cand.outer + ";"
		parent := p.Class(parentName)
		if parent == nil {
			parent = smali.NewPlaceholder(parentName)
			p.AddClass(parent)
		}

		last := len(cand.path) - 1
		for i, seg := range cand.path[:last] {
			child, ok := parent.InnerClasses[seg]
			if !ok {
				child = smali.NewPlaceholder("L" + cand.outer + "$" + strings.Join(cand.path[:i+1], "$") + ";")
				child.InnerName = strings.Join(cand.path[:i+1], "$")
				parent.InnerClasses[seg] = child
			}
			parent = child
		}

		local := cand.path[last]
		if existing, ok := parent.InnerClasses[local]; ok {
			if !existing.Synthetic {
				continue
			}
			for k, v := range existing.InnerClasses {
				cand.class.InnerClasses[k] = v
			}
		}
		cand.class.InnerName = strings.Join(cand.path, "$")
		parent.InnerClasses[local] = cand.class
	}
}
