package smali

import (
	"sort"
	"strings"
	"sync"

	"facette.io/natsort"
)

// StringSet is an unordered set of strings (modifiers, interfaces, resource ids).
type StringSet map[string]struct{}

// NewStringSet builds a set from items, skipping empty strings.
func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	for _, it := range items {
		s.Add(it)
	}
	return s
}

// Add inserts a trimmed, non-empty item.
func (s StringSet) Add(item string) {
	item = strings.TrimSpace(item)
	if item != "" {
		s[item] = struct{}{}
	}
}

// Has reports membership.
func (s StringSet) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Sorted returns the members in lexical order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Annotation is an `.annotation ... .end annotation` block. The body is kept
// verbatim; comparisons only look at annotation counts.
type Annotation struct {
	Name       string    `json:"name"`
	Visibility StringSet `json:"visibility,omitempty"`
	Lines      []string  `json:"lines,omitempty"`
}

// Field is a `.field` declaration.
type Field struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Modifiers   StringSet     `json:"modifiers,omitempty"`
	Init        string        `json:"init,omitempty"` // literal initializer, empty when absent
	Annotations []*Annotation `json:"annotations,omitempty"`
}

// IsStatic reports whether the field carries the static modifier.
func (f *Field) IsStatic() bool {
	return f.Modifiers.Has("static")
}

// Operand returns the fully-qualified access operand `owner->name:type` used
// by field instructions.
func (f *Field) Operand(owner string) string {
	return strings.TrimSpace(owner) + "->" + f.Name + ":" + f.Type
}

// Method is a `.method ... .end method` block. Lines holds every trimmed body
// line in order; directive, label and comment lines are filtered on demand.
type Method struct {
	Name        string        `json:"name"`
	Params      []string      `json:"params"`
	Return      string        `json:"return"`
	Modifiers   StringSet     `json:"modifiers,omitempty"`
	Annotations []*Annotation `json:"annotations,omitempty"`
	Lines       []string      `json:"lines,omitempty"`

	owner string

	cleanOnce sync.Once
	clean     []string
	bodyOnce  [bodyVariants]sync.Once
	body      [bodyVariants][]string

	transposeMu sync.Mutex
	transposed  transposedBody
}

// transposedBody is the last Body rewritten under a mapping, valid while the
// mapping keeps the same version.
type transposedBody struct {
	mapping *Mapping
	version uint64
	variant int
	lines   []string
}

// CleanLines returns the instruction lines of the body.
func (m *Method) CleanLines() []string {
	m.cleanOnce.Do(func() { m.clean = CleanLines(m.Lines) })
	return m.clean
}

// Body returns the normalized body used for similarity checks. The result is
// cached per option combination and must not be modified.
func (m *Method) Body(opts NormalizeOptions) []string {
	i := opts.variant()
	m.bodyOnce[i].Do(func() { m.body[i] = NormalizeBody(m.CleanLines(), opts) })
	return m.body[i]
}

// TransposedBody returns Body(opts) with the renames of mapping applied. The
// result is reused until the mapping changes and must not be modified.
func (m *Method) TransposedBody(opts NormalizeOptions, mapping *Mapping) []string {
	body := m.Body(opts)
	if mapping.Len() == 0 {
		return body
	}

	v, ver := opts.variant(), mapping.Version()
	m.transposeMu.Lock()
	defer m.transposeMu.Unlock()
	if t := m.transposed; t.lines != nil && t.mapping == mapping && t.version == ver && t.variant == v {
		return t.lines
	}
	lines := Transpose(body, mapping)
	m.transposed = transposedBody{mapping: mapping, version: ver, variant: v, lines: lines}
	return lines
}

// MoreThanInstructions reports whether the body has more than n instructions.
func (m *Method) MoreThanInstructions(n int) bool {
	return len(m.CleanLines()) > n
}

// IsDefaultConstructor reports whether m is the implicit no-argument
// constructor, where the compiler emits non-static field initializers.
func (m *Method) IsDefaultConstructor() bool {
	return m.Name == "<init>" && len(m.Params) == 0
}

// Signature renders name(params)ret.
func (m *Method) Signature() string {
	return strings.TrimSpace(m.Name + "(" + strings.Join(m.Params, "") + ")" + m.Return)
}

// FullSignature renders the dotted owner class followed by the signature.
func (m *Method) FullSignature() string {
	owner := "?"
	if m.owner != "" {
		owner = strings.ReplaceAll(BaseName(m.owner), "/", ".")
	}
	return owner + "." + m.Signature()
}

// Owner returns the descriptor of the declaring class, if known.
func (m *Method) Owner() string {
	return m.owner
}

// Class is one parsed class block.
type Class struct {
	Name         string            `json:"name"`
	Super        string            `json:"super,omitempty"`
	Source       string            `json:"source,omitempty"`
	Interfaces   StringSet         `json:"interfaces,omitempty"`
	Modifiers    StringSet         `json:"modifiers,omitempty"`
	Annotations  []*Annotation     `json:"annotations,omitempty"`
	Methods      []*Method         `json:"methods,omitempty"`
	Fields       []*Field          `json:"fields,omitempty"`
	InnerClasses map[string]*Class `json:"inner_classes,omitempty"`

	// InnerName is the "$"-joined nesting path below the top-level class,
	// empty for top-level classes.
	InnerName string `json:"inner_name,omitempty"`
	// Synthetic marks a name-only placeholder created for an outer class
	// that was referenced by an inner class but never parsed.
	Synthetic bool `json:"synthetic,omitempty"`
}

// NewClass returns an empty class with initialized collections.
func NewClass(name string) *Class {
	return &Class{
		Name:         name,
		Interfaces:   NewStringSet(),
		Modifiers:    NewStringSet(),
		InnerClasses: make(map[string]*Class),
	}
}

// NewPlaceholder returns a synthetic, body-less class.
func NewPlaceholder(name string) *Class {
	c := NewClass(name)
	c.Synthetic = true
	return c
}

// AddMethod appends m and records c as its owner.
func (c *Class) AddMethod(m *Method) {
	m.owner = c.Name
	c.Methods = append(c.Methods, m)
}

// HasInnerClasses reports whether any nested class is attached.
func (c *Class) HasInnerClasses() bool {
	return len(c.InnerClasses) > 0
}

// AnonymousInnerClasses returns the local names of compiler-numbered inner
// classes, in numeric order.
func (c *Class) AnonymousInnerClasses() []string {
	return c.innerNames(true)
}

// NamedInnerClasses returns the local names of named inner classes in
// natural order.
func (c *Class) NamedInnerClasses() []string {
	return c.innerNames(false)
}

func (c *Class) innerNames(anonymous bool) []string {
	var out []string
	for k := range c.InnerClasses {
		if IsAnonymousLocalName(k) == anonymous {
			out = append(out, k)
		}
	}
	natsort.Sort(out)
	return out
}

// SortedInnerClasses returns the attached nested classes ordered by local
// name (anonymous ones numerically first).
func (c *Class) SortedInnerClasses() []*Class {
	var out []*Class
	for _, k := range c.AnonymousInnerClasses() {
		out = append(out, c.InnerClasses[k])
	}
	for _, k := range c.NamedInnerClasses() {
		out = append(out, c.InnerClasses[k])
	}
	return out
}

// FindMethod looks up a method by name, concatenated parameter descriptors
// and return type.
func (c *Class) FindMethod(name, params, ret string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && strings.Join(m.Params, "") == params && m.Return == ret {
			return m
		}
	}
	return nil
}

// BaseName returns the slash-separated path of the class without the
// descriptor markers (Lpkg/Foo; -> pkg/Foo).
func (c *Class) BaseName() string {
	return BaseName(c.Name)
}

// DisplayName returns the dotted class name (pkg.Foo$Bar).
func (c *Class) DisplayName() string {
	return DisplayName(c.Name)
}

// SimpleName returns the last path segment of the descriptor (Foo;).
func (c *Class) SimpleName() string {
	return SimpleName(c.Name)
}

// SuperName returns the super class descriptor without markers.
func (c *Class) SuperName() string {
	return BaseName(c.Super)
}

// IsObjectDescriptor reports whether s looks like Lpkg/Foo;.
func IsObjectDescriptor(s string) bool {
	return len(s) > 2 && s[0] == 'L' && s[len(s)-1] == ';'
}

// BaseName strips the L...; markers from a descriptor.
func BaseName(desc string) string {
	if IsObjectDescriptor(desc) {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// DisplayName converts a descriptor to dotted notation.
func DisplayName(desc string) string {
	if !IsObjectDescriptor(desc) {
		return desc
	}
	return strings.ReplaceAll(strings.TrimSpace(BaseName(desc)), "/", ".")
}

// SimpleName returns the last "/" segment of desc.
func SimpleName(desc string) string {
	if i := strings.LastIndex(desc, "/"); i >= 0 {
		return desc[i+1:]
	}
	return desc
}

// SplitNesting splits a class descriptor into its outer base name and the
// inner-class path. Names whose "$" directly follows a package separator are
// treated as top-level. Empty segments, as in D8's "Foo$$ExternalSyntheticLambda0",
// are dropped.
func SplitNesting(desc string) (outer string, path []string) {
	parts := strings.Split(BaseName(desc), "$")
	if len(parts) < 2 || strings.HasSuffix(parts[0], "/") || parts[0] == "" {
		return BaseName(desc), nil
	}
	for _, seg := range parts[1:] {
		if seg != "" {
			path = append(path, seg)
		}
	}
	if len(path) == 0 {
		return BaseName(desc), nil
	}
	return parts[0], path
}
