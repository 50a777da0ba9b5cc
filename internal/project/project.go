package project

import (
	"errors"
	"regexp"
	"strings"

	"smalidiff/internal/smali"
)

// ErrObfuscated is returned by callers that refuse to diff an obfuscated project.
var ErrObfuscated = errors.New("project is obfuscated")

// obfuscationThreshold is the ratio of short-named to regular classes above
// which a project is considered obfuscated.
const obfuscationThreshold = 0.75

var obfuscatedName = regexp.MustCompile(`^(?:.*/)?[a-z]{1,3};$`)

// Project is the parsed model of one disassembled package. It is built once by
// a Loader and read-only afterwards.
type Project struct {
	// Classes holds the top-level classes in load order. Inner classes hang
	// off their outer class.
	Classes []*smali.Class
	// ResourceIDs holds the hex literals found in resource holder classes.
	ResourceIDs smali.StringSet
	// ParseErrors lists the files skipped by a lenient load.
	ParseErrors []*smali.ParseError

	byName map[string]*smali.Class
	all    map[string]*smali.Class
}

// New returns an empty project.
func New() *Project {
	return &Project{
		ResourceIDs: smali.NewStringSet(),
		byName:      make(map[string]*smali.Class),
		all:         make(map[string]*smali.Class),
	}
}

// AddClass registers a top-level class. It reports false when a class with
// the same descriptor is already present.
func (p *Project) AddClass(c *smali.Class) bool {
	if _, ok := p.byName[c.Name]; ok {
		return false
	}
	p.Classes = append(p.Classes, c)
	p.byName[c.Name] = c
	p.all[c.Name] = c
	return true
}

// Class returns the top-level class with the exact descriptor name.
func (p *Project) Class(name string) *smali.Class {
	return p.byName[name]
}

// AddResourceIDs records every hex literal of a resource holder class.
func (p *Project) AddResourceIDs(content string) {
	for _, id := range smali.ScanResourceIDs(content) {
		p.ResourceIDs.Add(id)
	}
}

// SearchClass finds a class, top-level or nested, by descriptor (Lpkg/Foo;),
// internal name (pkg/Foo) or dotted name (pkg.Foo).
func (p *Project) SearchClass(name string) *smali.Class {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if !strings.Contains(name, "/") && strings.Contains(name, ".") {
		name = strings.ReplaceAll(name, ".", "/")
	}
	if !smali.IsObjectDescriptor(name) {
		name = "L" + name + ";"
	}
	return p.all[name]
}

// SuperClass returns the in-project super class of c, or nil when it is
// external or absent.
func (p *Project) SuperClass(c *smali.Class) *smali.Class {
	if c == nil || c.Super == "" {
		return nil
	}
	return p.SearchClass(c.Super)
}

// SuperHierarchy returns the descriptors of the super classes of c, nearest
// first. The walk stops at the first super class not defined in the project,
// which is included as the last element.
func (p *Project) SuperHierarchy(c *smali.Class) []string {
	var out []string
	seen := map[*smali.Class]bool{c: true}
	cur := c
	for cur != nil && cur.Super != "" {
		out = append(out, cur.Super)
		next := p.SuperClass(cur)
		if next == nil || seen[next] {
			break
		}
		seen[next] = true
		cur = next
	}
	return out
}

// ObfuscationCounts returns the number of classes with short generated-looking
// names and the number of the others.
func (p *Project) ObfuscationCounts() (short, regular int) {
	for _, c := range p.Classes {
		if obfuscatedName.MatchString(c.Name) {
			short++
		} else {
			regular++
		}
	}
	return short, regular
}

// IsObfuscated reports whether name-based matching is unreliable for p.
func (p *Project) IsObfuscated() bool {
	short, regular := p.ObfuscationCounts()
	if regular == 0 {
		return true
	}
	return float64(short)/float64(regular) > obfuscationThreshold
}

// Stats summarizes a project.
type Stats struct {
	Classes      int
	InnerClasses int
	Placeholders int
	Methods      int
	Fields       int
	ResourceIDs  int
	ParseErrors  int
}

// Stats walks every class, nested ones included.
func (p *Project) Stats() Stats {
	s := Stats{
		Classes:     len(p.Classes),
		ResourceIDs: len(p.ResourceIDs),
		ParseErrors: len(p.ParseErrors),
	}
	p.Walk(func(c *smali.Class) {
		if c.InnerName != "" {
			s.InnerClasses++
		}
		if c.Synthetic {
			s.Placeholders++
		}
		s.Methods += len(c.Methods)
		s.Fields += len(c.Fields)
	})
	return s
}

// Walk visits every class depth-first, outer classes before their nested
// classes.
func (p *Project) Walk(fn func(*smali.Class)) {
	stack := make([]*smali.Class, 0, len(p.Classes))
	for i := len(p.Classes) - 1; i >= 0; i-- {
		stack = append(stack, p.Classes[i])
	}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(c)
		inner := c.SortedInnerClasses()
		for i := len(inner) - 1; i >= 0; i-- {
			stack = append(stack, inner[i])
		}
	}
}

// reindex rebuilds the lookup table over nested classes.
func (p *Project) reindex() {
	p.all = make(map[string]*smali.Class, len(p.byName))
	p.Walk(func(c *smali.Class) {
		if _, ok := p.all[c.Name]; !ok {
			p.all[c.Name] = c
		}
	})
}
