package diff

import (
	"strings"

	"smalidiff/internal/smali"
)

type methodPair struct {
	old, new *smali.Method
}

// removeMethod drops index i, keeping order.
func removeMethod(ms []*smali.Method, i int) []*smali.Method {
	return append(ms[:i:i], ms[i+1:]...)
}

func removeField(fs []*smali.Field, i int) []*smali.Field {
	return append(fs[:i:i], fs[i+1:]...)
}

// matchMethods pairs methods in three greedy passes: exact equality, a
// single differing aspect (body or name), then identical normalized bodies.
// Old methods are visited in declaration order and the first new candidate
// wins. The returned pairs include exact matches.
func matchMethods(cmp smali.Comparator, oldMethods, newMethods []*smali.Method, ignore smali.Ignore) ([]Change, []methodPair) {
	var (
		changes []Change
		pairs   []methodPair
		rest    []*smali.Method
	)
	pool := append([]*smali.Method(nil), newMethods...)

	for _, m := range oldMethods {
		found := false
		for i, cand := range pool {
			if cmp.SameMethod(m, cand) {
				pairs = append(pairs, methodPair{m, cand})
				pool = removeMethod(pool, i)
				found = true
				break
			}
		}
		if !found {
			rest = append(rest, m)
		}
	}

	var unmatched []*smali.Method
	for _, m := range rest {
		idx, kind, aspects := singleAspectMatch(cmp, m, pool, ignore)
		if idx < 0 {
			unmatched = append(unmatched, m)
			continue
		}
		changes = append(changes, Change{Kind: kind, OldMethod: m, NewMethod: pool[idx], Aspects: aspects})
		pairs = append(pairs, methodPair{m, pool[idx]})
		pool = removeMethod(pool, idx)
	}

	for _, m := range unmatched {
		found := false
		if m.MoreThanInstructions(1) {
			for i, cand := range pool {
				if cmp.SameBody(m, cand) {
					changes = append(changes, Change{
						Kind:      MethodRenamed,
						OldMethod: m,
						NewMethod: cand,
						Aspects:   cmp.MethodAspects(m, cand, ignore),
					})
					pairs = append(pairs, methodPair{m, cand})
					pool = removeMethod(pool, i)
					found = true
					break
				}
			}
		}
		if !found {
			changes = append(changes, Change{Kind: MethodDeleted, OldMethod: m})
		}
	}

	for _, m := range pool {
		changes = append(changes, Change{Kind: MethodAdded, NewMethod: m})
	}
	return changes, pairs
}

// singleAspectMatch looks for a candidate differing from m only by its body
// (revised) or only by its name (renamed). Failing that, a candidate with
// the same name is accepted as a multi-aspect change.
func singleAspectMatch(cmp smali.Comparator, m *smali.Method, pool []*smali.Method, ignore smali.Ignore) (int, ChangeKind, []smali.Aspect) {
	for i, cand := range pool {
		aspects := cmp.MethodAspects(m, cand, ignore)
		if len(aspects) != 1 {
			continue
		}
		switch {
		case aspects[0] == smali.NotSameSourceCode:
			return i, MethodRevised, aspects
		case aspects[0] == smali.NotSameName && m.MoreThanInstructions(1):
			return i, MethodRenamed, aspects
		}
	}
	for i, cand := range pool {
		if cand.Name == m.Name {
			return i, MethodSameName, cmp.MethodAspects(m, cand, ignore)
		}
	}
	return -1, "", nil
}

// matchFields pairs fields by exact equality, then by loose equality (same
// declaration apart from the initializer, or same name and static-ness),
// then by tracing the old field's accesses into the paired methods.
func matchFields(cmp smali.Comparator, old, new *smali.Class, ignore smali.Ignore, methods []methodPair) []Change {
	var (
		changes []Change
		rest    []*smali.Field
	)
	pool := append([]*smali.Field(nil), new.Fields...)

	for _, f := range old.Fields {
		found := false
		for i, cand := range pool {
			if cmp.SameField(f, cand) {
				pool = removeField(pool, i)
				found = true
				break
			}
		}
		if !found {
			rest = append(rest, f)
		}
	}

	for _, f := range rest {
		idx := -1
		for i, cand := range pool {
			loose := len(cmp.FieldAspects(f, cand, ignore|smali.IgnoreFieldInit)) == 0
			if loose || (f.Name == cand.Name && f.IsStatic() == cand.IsStatic()) {
				idx = i
				break
			}
		}
		if idx < 0 {
			idx = detectFieldRename(old, new, f, pool, methods)
		}
		if idx < 0 {
			changes = append(changes, Change{Kind: FieldDeleted, OldField: f})
			continue
		}
		changes = append(changes, Change{
			Kind:     FieldChanged,
			OldField: f,
			NewField: pool[idx],
			Aspects:  cmp.FieldAspects(f, pool[idx], 0),
		})
		pool = removeField(pool, idx)
	}

	for _, f := range pool {
		changes = append(changes, Change{Kind: FieldAdded, NewField: f})
	}
	return changes
}

// detectFieldRename finds the instructions of old that access f and reads the
// same instruction in the corresponding method of new. When the text around
// the access operand is unchanged, the operand in between names the renamed
// field. It returns the index in pool of that field, or -1. The default
// constructor is skipped since it only holds compiler-emitted initializers.
func detectFieldRename(old, new *smali.Class, f *smali.Field, pool []*smali.Field, methods []methodPair) int {
	operand := f.Operand(old.Name)

	for _, m := range old.Methods {
		if m.IsDefaultConstructor() {
			continue
		}
		for lineNo, line := range m.CleanLines() {
			pos := strings.Index(line, operand)
			if pos < 0 {
				continue
			}
			other := counterpart(m, new, methods)
			if other == nil {
				continue
			}
			otherLines := other.CleanLines()
			if lineNo >= len(otherLines) {
				continue
			}

			before, after := line[:pos], line[pos+len(operand):]
			candidate := otherLines[lineNo]
			if len(candidate) < len(before)+len(after) ||
				!strings.HasPrefix(candidate, before) || !strings.HasSuffix(candidate, after) {
				continue
			}
			_, name, typ, ok := smali.SplitMemberOperand(candidate[len(before) : len(candidate)-len(after)])
			if !ok {
				continue
			}
			for i, cand := range pool {
				if cand.Name == name && cand.Type == typ {
					return i
				}
			}
		}
	}
	return -1
}

// counterpart returns the method of new paired with m, falling back to the
// first method of new with the same signature and modifiers.
func counterpart(m *smali.Method, new *smali.Class, methods []methodPair) *smali.Method {
	for _, p := range methods {
		if p.old == m {
			return p.new
		}
	}
	cmp := smali.Comparator{}
	for _, cand := range new.Methods {
		if len(cmp.MethodAspects(m, cand, smali.IgnoreSourceCode)) == 0 {
			return cand
		}
	}
	return nil
}
