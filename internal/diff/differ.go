package diff

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"smalidiff/internal/project"
	"smalidiff/internal/smali"
)

// Options tunes the differencer.
type Options struct {
	// NormalizeResourceRefs masks resource-id constant loads in bodies.
	NormalizeResourceRefs bool
	// CollapseAnonymousRefs masks anonymous class numbers in bodies.
	CollapseAnonymousRefs bool
	// ProcessInnerClasses matches and diffs nested classes.
	ProcessInnerClasses bool
	// Ignore leaves aspects out of every comparison.
	Ignore smali.Ignore
	// Workers bounds parallel pair diffing, 0 means GOMAXPROCS.
	Workers int
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{
		NormalizeResourceRefs: true,
		CollapseAnonymousRefs: true,
		ProcessInnerClasses:   true,
	}
}

func (o Options) normalize() smali.NormalizeOptions {
	return smali.NormalizeOptions{
		KeepResourceRefs:  !o.NormalizeResourceRefs,
		KeepAnonymousRefs: !o.CollapseAnonymousRefs,
	}
}

// Differencer computes the structural difference of two projects.
type Differencer struct {
	opts   Options
	logger *zap.Logger
}

// NewDifferencer creates a differencer. A nil logger discards output.
func NewDifferencer(opts Options, logger *zap.Logger) *Differencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Differencer{opts: opts, logger: logger.Named("diff")}
}

type classPair struct {
	old, new *smali.Class
}

// Diff compares old against new. Neither project is modified. Entries are
// ordered: matched top-level pairs, deleted classes, added classes, then
// entries for nested classes.
func (d *Differencer) Diff(ctx context.Context, old, new *project.Project) (*Result, error) {
	pairs, deleted, added := matchClasses(old.Classes, new.Classes)

	mapping := smali.NewMapping()
	for _, p := range pairs {
		mapping.Set(p.old.Name, p.new.Name)
	}

	entries, err := d.diffPairs(ctx, pairs, mapping)
	if err != nil {
		return nil, err
	}
	for _, c := range deleted {
		entries = append(entries, Entry{Old: c})
	}
	for _, c := range added {
		entries = append(entries, Entry{New: c})
	}

	if d.opts.ProcessInnerClasses {
		nested, err := d.diffInnerClasses(ctx, pairs, mapping)
		if err != nil {
			return nil, err
		}
		entries = append(entries, nested...)

		for _, c := range deleted {
			entries = append(entries, unmatchedNested(c, true, false)...)
		}
		for _, c := range added {
			entries = append(entries, unmatchedNested(c, false, false)...)
		}
	}

	res := &Result{Entries: entries, Mapping: mapping}
	s := res.Summary()
	d.logger.Debug("diff complete",
		zap.Int("matched", s.MatchedClasses),
		zap.Int("changed", s.ChangedClasses),
		zap.Int("added", s.AddedClasses),
		zap.Int("deleted", s.DeletedClasses),
		zap.Int("mappings", mapping.Len()))
	return res, nil
}

// diffPairs diffs top-level pairs in parallel. The mapping is only read.
func (d *Differencer) diffPairs(ctx context.Context, pairs []classPair, mapping *smali.Mapping) ([]Entry, error) {
	entries := make([]Entry, len(pairs))
	cmp := smali.Comparator{Mapping: mapping, Normalize: d.opts.normalize()}

	workers := d.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, p := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries[i] = Entry{
				Old:     p.old,
				New:     p.new,
				Changes: diffClass(cmp, p.old, p.new, d.opts.Ignore, false),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// matchClasses pairs classes by exact descriptor, then by simple name. Both
// passes walk old in declaration order and take the first new candidate.
func matchClasses(old, new []*smali.Class) (pairs []classPair, deleted, added []*smali.Class) {
	used := make([]bool, len(new))
	byName := make(map[string]int, len(new))
	for i, c := range new {
		if _, ok := byName[c.Name]; !ok {
			byName[c.Name] = i
		}
	}

	var rest []*smali.Class
	for _, o := range old {
		if i, ok := byName[o.Name]; ok && !used[i] {
			used[i] = true
			pairs = append(pairs, classPair{o, new[i]})
			continue
		}
		rest = append(rest, o)
	}

	for _, o := range rest {
		found := false
		for i, n := range new {
			if !used[i] && o.SimpleName() == n.SimpleName() {
				used[i] = true
				pairs = append(pairs, classPair{o, n})
				found = true
				break
			}
		}
		if !found {
			deleted = append(deleted, o)
		}
	}

	for i, n := range new {
		if !used[i] {
			added = append(added, n)
		}
	}
	return pairs, deleted, added
}

// diffClass compares one class pair. Nested pairs compare their names under
// the rename mapping so that renumbered anonymous classes do not report a
// name change.
func diffClass(cmp smali.Comparator, old, new *smali.Class, ignore smali.Ignore, nested bool) []Change {
	var out []Change

	if !ignore.Has(smali.IgnoreClassName) {
		same := old.Name == new.Name
		if nested {
			same = cmp.SameDescriptor(old.Name, new.Name)
		}
		if !same {
			out = append(out, Change{Kind: NameChanged, OldName: old.Name, NewName: new.Name})
		}
	}

	if !ignore.Has(smali.IgnoreClassSuper) && !cmp.SameDescriptor(old.Super, new.Super) {
		out = append(out, Change{Kind: SuperChanged, OldName: old.Super, NewName: new.Super})
	}

	if !ignore.Has(smali.IgnoreClassInterfaces) {
		removed, added := cmp.MissingDescriptors(old.Interfaces.Sorted(), new.Interfaces.Sorted())
		if len(removed)+len(added) > 0 {
			c := Change{Kind: InterfacesChanged, OldName: old.Name, NewName: new.Name}
			for _, r := range removed {
				c.Interfaces = append(c.Interfaces, InterfaceDelta{Side: SideOld, Descriptor: r})
			}
			for _, a := range added {
				c.Interfaces = append(c.Interfaces, InterfaceDelta{Side: SideNew, Descriptor: a})
			}
			out = append(out, c)
		}
	}

	var methodPairs []methodPair
	if !ignore.Has(smali.IgnoreClassMethods) {
		var changes []Change
		changes, methodPairs = matchMethods(cmp, old.Methods, new.Methods, ignore)
		out = append(out, changes...)
	}

	if !ignore.Has(smali.IgnoreClassFields) {
		out = append(out, matchFields(cmp, old, new, ignore, methodPairs)...)
	}
	return out
}
