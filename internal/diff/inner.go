package diff

import (
	"context"

	"smalidiff/internal/smali"
)

// trialIgnore is used when testing whether two anonymous classes correspond.
const trialIgnore = smali.IgnoreClassName | smali.IgnoreFieldName

// diffInnerClasses walks nested classes of every matched pair breadth first.
// Matches are recorded in mapping before their own diff so that later
// comparisons see them.
func (d *Differencer) diffInnerClasses(ctx context.Context, pairs []classPair, mapping *smali.Mapping) ([]Entry, error) {
	var (
		entries []Entry
		queue   []classPair
	)
	for _, p := range pairs {
		if p.old.HasInnerClasses() || p.new.HasInnerClasses() {
			queue = append(queue, p)
		}
	}

	cmp := smali.Comparator{Mapping: mapping, Normalize: d.opts.normalize()}
	matched := func(p classPair) {
		mapping.Set(p.old.Name, p.new.Name)
		entries = append(entries, Entry{
			Old:     p.old,
			New:     p.new,
			Nested:  true,
			Changes: diffClass(cmp, p.old, p.new, d.opts.Ignore, true),
		})
		if p.old.HasInnerClasses() || p.new.HasInnerClasses() {
			queue = append(queue, p)
		}
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := queue[0]
		queue = queue[1:]

		found, oldOnly, newOnly := d.matchAnonymous(cmp, p.old, p.new)
		for _, m := range found {
			matched(m)
		}
		for _, c := range oldOnly {
			entries = append(entries, unmatchedNested(c, true, true)...)
		}
		for _, c := range newOnly {
			entries = append(entries, unmatchedNested(c, false, true)...)
		}

		found, oldOnly, newOnly = matchNamed(p.old, p.new)
		for _, m := range found {
			matched(m)
		}
		for _, c := range oldOnly {
			entries = append(entries, unmatchedNested(c, true, true)...)
		}
		for _, c := range newOnly {
			entries = append(entries, unmatchedNested(c, false, true)...)
		}
	}
	return entries, nil
}

// matchAnonymous pairs anonymous inner classes by trial: two classes match
// when their diff, ignoring names and plain body revisions, is empty.
func (d *Differencer) matchAnonymous(cmp smali.Comparator, old, new *smali.Class) (pairs []classPair, oldOnly, newOnly []*smali.Class) {
	newNames := new.AnonymousInnerClasses()
	used := make(map[string]bool, len(newNames))

	for _, on := range old.AnonymousInnerClasses() {
		oc := old.InnerClasses[on]
		found := false
		for _, nn := range newNames {
			if used[nn] {
				continue
			}
			nc := new.InnerClasses[nn]
			if len(significant(diffClass(cmp, oc, nc, d.opts.Ignore|trialIgnore, true))) == 0 {
				used[nn] = true
				pairs = append(pairs, classPair{oc, nc})
				found = true
				break
			}
		}
		if !found {
			oldOnly = append(oldOnly, oc)
		}
	}

	for _, nn := range newNames {
		if !used[nn] {
			newOnly = append(newOnly, new.InnerClasses[nn])
		}
	}
	return pairs, oldOnly, newOnly
}

// significant drops the changes tolerated between corresponding anonymous
// classes: same-name and revised methods, and pure field renames.
func significant(changes []Change) []Change {
	var out []Change
	for _, c := range changes {
		if c.Kind == MethodSameName || c.Kind == MethodRevised {
			continue
		}
		if c.Refine().Kind == FieldRenamed {
			continue
		}
		out = append(out, c)
	}
	return out
}

// matchNamed pairs named inner classes with the same local name.
func matchNamed(old, new *smali.Class) (pairs []classPair, oldOnly, newOnly []*smali.Class) {
	for _, name := range old.NamedInnerClasses() {
		if nc, ok := new.InnerClasses[name]; ok {
			pairs = append(pairs, classPair{old.InnerClasses[name], nc})
		} else {
			oldOnly = append(oldOnly, old.InnerClasses[name])
		}
	}
	for _, name := range new.NamedInnerClasses() {
		if _, ok := old.InnerClasses[name]; !ok {
			newOnly = append(newOnly, new.InnerClasses[name])
		}
	}
	return pairs, oldOnly, newOnly
}

// unmatchedNested reports c, when self is set, and every class nested below
// it as present on one side only.
func unmatchedNested(c *smali.Class, deleted, self bool) []Entry {
	var classes []*smali.Class
	if self {
		classes = append(classes, c)
	}
	stack := reversed(c.SortedInnerClasses())
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		classes = append(classes, n)
		stack = append(stack, reversed(n.SortedInnerClasses())...)
	}

	entries := make([]Entry, 0, len(classes))
	for _, n := range classes {
		if deleted {
			entries = append(entries, Entry{Old: n, Nested: true})
		} else {
			entries = append(entries, Entry{New: n, Nested: true})
		}
	}
	return entries
}

func reversed(cs []*smali.Class) []*smali.Class {
	out := make([]*smali.Class, len(cs))
	for i, c := range cs {
		out[len(cs)-1-i] = c
	}
	return out
}
