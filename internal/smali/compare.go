package smali

import "strings"

// Mapping records old -> new class descriptor correspondences discovered
// while diffing. Iteration follows insertion order. A Mapping may be read
// concurrently but must not be written while readers are active.
type Mapping struct {
	order   []string
	to      map[string]string
	version uint64
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{to: make(map[string]string)}
}

// Set records from -> to. Re-setting a key keeps its original position.
func (m *Mapping) Set(from, to string) {
	prev, ok := m.to[from]
	if !ok {
		m.order = append(m.order, from)
	}
	if !ok || prev != to {
		m.version++
	}
	m.to[from] = to
}

// Version changes every time Set alters the mapping. A nil mapping has
// version 0.
func (m *Mapping) Version() uint64 {
	if m == nil {
		return 0
	}
	return m.version
}

// Get returns the new descriptor recorded for from.
func (m *Mapping) Get(from string) (string, bool) {
	if m == nil {
		return "", false
	}
	to, ok := m.to[from]
	return to, ok
}

// Len returns the number of entries. A nil mapping is empty.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Renames returns the entries whose old and new descriptors differ, in
// insertion order.
func (m *Mapping) Renames() [][2]string {
	var out [][2]string
	m.each(func(from, to string) bool {
		if from != to {
			out = append(out, [2]string{from, to})
		}
		return true
	})
	return out
}

func (m *Mapping) each(fn func(from, to string) bool) {
	if m == nil {
		return
	}
	for _, k := range m.order {
		if !fn(k, m.to[k]) {
			return
		}
	}
}

// SameSet reports whether two sets have an empty symmetric difference.
func SameSet(a, b StringSet) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b.Has(k) {
			return false
		}
	}
	return true
}

// SameSequence compares two slices element by element.
func SameSequence(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Aspect names one dimension in which two members or classes differ.
type Aspect string

const (
	NotSameName       Aspect = "NOT_SAME_NAME"
	NotSameType       Aspect = "NOT_SAME_TYPE"
	NotSameInitValue  Aspect = "NOT_SAME_INIT_VALUE"
	NotSameModifiers  Aspect = "NOT_SAME_MODIFIERS"
	NotSameParameters Aspect = "NOT_SAME_PARAMETERS"
	NotSameReturnType Aspect = "NOT_SAME_RETURN_TYPE"
	NotSameSourceCode Aspect = "NOT_SAME_SOURCECODE_LINES"
	NotSameParent     Aspect = "NOT_SAME_PARENT"
	NotSameInterfaces Aspect = "NOT_SAME_INTERFACES"
)

// Ignore is a set of aspects left out of a comparison.
type Ignore uint

const (
	IgnoreClassName Ignore = 1 << iota
	IgnoreClassSuper
	IgnoreClassInterfaces
	IgnoreClassMethods
	IgnoreClassFields
	IgnoreMethodName
	IgnoreMethodReturn
	IgnoreMethodParams
	IgnoreSourceCode
	IgnoreModifiers
	IgnoreFieldName
	IgnoreFieldType
	IgnoreFieldInit
)

// Has reports whether every flag of f is set.
func (i Ignore) Has(f Ignore) bool {
	return i&f == f
}

// Comparator compares model elements under an optional rename mapping.
type Comparator struct {
	Mapping   *Mapping
	Normalize NormalizeOptions
}

// SameDescriptor compares an old descriptor with a new one. When the old
// side's outer class is in the mapping, the anonymous-collapsed old
// descriptor is rewritten with the recorded name and compared with the
// anonymous-collapsed new one. A nested class never equals its outer class.
func (c Comparator) SameDescriptor(old, new string) bool {
	if old == new {
		return true
	}
	if c.Mapping.Len() == 0 {
		return false
	}

	m := outerDescriptor.FindStringSubmatch(old)
	if m == nil {
		return false
	}
	key := "L" + m[1] + ";"
	to, ok := c.Mapping.Get(key)
	if !ok {
		return false
	}

	o := CollapseAnonymousDescriptor(old)
	n := CollapseAnonymousDescriptor(new)
	o = strings.Replace(o, strings.TrimSuffix(key, ";"), strings.TrimSuffix(to, ";"), 1)
	return o == n
}

// SameDescriptors compares two positional descriptor lists.
func (c Comparator) SameDescriptors(old, new []string) bool {
	if len(old) != len(new) {
		return false
	}
	for i := range old {
		if !c.SameDescriptor(old[i], new[i]) {
			return false
		}
	}
	return true
}

// MissingDescriptors returns the descriptors of old with no counterpart in
// new, followed by those of new with no counterpart in old.
func (c Comparator) MissingDescriptors(old, new []string) (removed, added []string) {
	for _, o := range old {
		found := false
		for _, n := range new {
			if c.SameDescriptor(o, n) {
				found = true
				break
			}
		}
		if !found {
			removed = append(removed, o)
		}
	}
	for _, n := range new {
		found := false
		for _, o := range old {
			if c.SameDescriptor(o, n) {
				found = true
				break
			}
		}
		if !found {
			added = append(added, n)
		}
	}
	return removed, added
}

// SameBody compares the normalized bodies of two methods, rewriting the
// old body with the recorded renames first.
func (c Comparator) SameBody(old, new *Method) bool {
	return SameSequence(old.TransposedBody(c.Normalize, c.Mapping), new.Body(c.Normalize))
}

// SameMethod reports full structural equality.
func (c Comparator) SameMethod(old, new *Method) bool {
	return old.Name == new.Name &&
		c.SameDescriptor(old.Return, new.Return) &&
		c.SameDescriptors(old.Params, new.Params) &&
		SameSet(old.Modifiers, new.Modifiers) &&
		len(old.Annotations) == len(new.Annotations) &&
		c.SameBody(old, new)
}

// MethodAspects lists the aspects in which two methods differ.
func (c Comparator) MethodAspects(old, new *Method, ignore Ignore) []Aspect {
	var out []Aspect
	if !ignore.Has(IgnoreMethodReturn) && !c.SameDescriptor(old.Return, new.Return) {
		out = append(out, NotSameReturnType)
	}
	if !ignore.Has(IgnoreMethodParams) && !c.SameDescriptors(old.Params, new.Params) {
		out = append(out, NotSameParameters)
	}
	if !ignore.Has(IgnoreMethodName) && old.Name != new.Name {
		out = append(out, NotSameName)
	}
	if !ignore.Has(IgnoreSourceCode) && !c.SameBody(old, new) {
		out = append(out, NotSameSourceCode)
	}
	if !ignore.Has(IgnoreModifiers) && !SameSet(old.Modifiers, new.Modifiers) {
		out = append(out, NotSameModifiers)
	}
	return out
}

// SameField reports full structural equality.
func (c Comparator) SameField(old, new *Field) bool {
	return old.Name == new.Name &&
		c.SameDescriptor(old.Type, new.Type) &&
		old.Init == new.Init &&
		SameSet(old.Modifiers, new.Modifiers) &&
		len(old.Annotations) == len(new.Annotations)
}

// FieldAspects lists the aspects in which two fields differ.
func (c Comparator) FieldAspects(old, new *Field, ignore Ignore) []Aspect {
	var out []Aspect
	if !ignore.Has(IgnoreFieldName) && old.Name != new.Name {
		out = append(out, NotSameName)
	}
	if !ignore.Has(IgnoreFieldType) && !c.SameDescriptor(old.Type, new.Type) {
		out = append(out, NotSameType)
	}
	if !ignore.Has(IgnoreFieldInit) && old.Init != new.Init {
		out = append(out, NotSameInitValue)
	}
	if !ignore.Has(IgnoreModifiers) && !SameSet(old.Modifiers, new.Modifiers) {
		out = append(out, NotSameModifiers)
	}
	return out
}
