package diff

import (
	"strings"

	"smalidiff/internal/smali"
)

// ChangeKind discriminates member and class level differences.
type ChangeKind string

const (
	MethodAdded    ChangeKind = "METHOD_ADDED"
	MethodDeleted  ChangeKind = "METHOD_DELETED"
	MethodRevised  ChangeKind = "METHOD_REVISED"
	MethodRenamed  ChangeKind = "METHOD_RENAMED"
	MethodSameName ChangeKind = "METHOD_SAME_NAME"

	FieldAdded   ChangeKind = "FIELD_ADDED"
	FieldDeleted ChangeKind = "FIELD_DELETED"
	FieldRenamed ChangeKind = "FIELD_RENAMED"
	FieldChanged ChangeKind = "FIELD_CHANGED"

	NameChanged       ChangeKind = "CLASS_NAME_CHANGED"
	SuperChanged      ChangeKind = "CLASS_SUPER_CHANGED"
	InterfacesChanged ChangeKind = "CLASS_INTERFACES_CHANGED"
)

// IsMethod reports whether k describes a method.
func (k ChangeKind) IsMethod() bool {
	switch k {
	case MethodAdded, MethodDeleted, MethodRevised, MethodRenamed, MethodSameName:
		return true
	}
	return false
}

// IsField reports whether k describes a field.
func (k ChangeKind) IsField() bool {
	switch k {
	case FieldAdded, FieldDeleted, FieldRenamed, FieldChanged:
		return true
	}
	return false
}

// Side tells which version an interface delta belongs to.
type Side string

const (
	SideOld Side = "OLD"
	SideNew Side = "NEW"
)

// InterfaceDelta is one interface present on a single side only.
type InterfaceDelta struct {
	Side       Side
	Descriptor string
}

// Change is one member or class level difference of a matched class pair.
// Only the members relevant to Kind are set: method kinds use OldMethod and
// NewMethod, field kinds use OldField and NewField, NameChanged and
// SuperChanged use OldName and NewName, InterfacesChanged uses Interfaces.
// Added entries leave the Old side nil, deleted entries the New side.
type Change struct {
	Kind ChangeKind

	OldMethod *smali.Method
	NewMethod *smali.Method
	OldField  *smali.Field
	NewField  *smali.Field

	OldName string
	NewName string

	Interfaces []InterfaceDelta
	// Aspects lists the dimensions in which a paired member differs.
	Aspects []smali.Aspect
}

// Refine returns the change with FieldChanged narrowed to FieldRenamed when
// the name is the only aspect that differs.
func (c Change) Refine() Change {
	if c.Kind == FieldChanged && len(c.Aspects) == 1 && c.Aspects[0] == smali.NotSameName {
		c.Kind = FieldRenamed
	}
	return c
}

// Subject returns a short human readable name of the changed element.
func (c Change) Subject() string {
	switch {
	case c.Kind.IsMethod():
		if c.OldMethod != nil && c.NewMethod != nil && c.OldMethod.Signature() != c.NewMethod.Signature() {
			return c.OldMethod.Signature() + " -> " + c.NewMethod.Signature()
		}
		if c.OldMethod != nil {
			return c.OldMethod.Signature()
		}
		if c.NewMethod != nil {
			return c.NewMethod.Signature()
		}
	case c.Kind.IsField():
		if c.OldField != nil && c.NewField != nil && c.OldField.Name+c.OldField.Type != c.NewField.Name+c.NewField.Type {
			return c.OldField.Name + ":" + c.OldField.Type + " -> " + c.NewField.Name + ":" + c.NewField.Type
		}
		if c.OldField != nil {
			return c.OldField.Name + ":" + c.OldField.Type
		}
		if c.NewField != nil {
			return c.NewField.Name + ":" + c.NewField.Type
		}
	case c.Kind == InterfacesChanged:
		parts := make([]string, 0, len(c.Interfaces))
		for _, d := range c.Interfaces {
			if d.Side == SideOld {
				parts = append(parts, "-"+d.Descriptor)
			} else {
				parts = append(parts, "+"+d.Descriptor)
			}
		}
		return strings.Join(parts, ", ")
	}
	return c.OldName + " -> " + c.NewName
}

// Entry is either a matched class pair with its changes or a class present
// on one side only.
type Entry struct {
	Old *smali.Class
	New *smali.Class
	// Nested marks entries produced while walking inner classes.
	Nested  bool
	Changes []Change
}

// Matched reports whether both sides are present.
func (e Entry) Matched() bool { return e.Old != nil && e.New != nil }

// Added reports a class only present in the new version.
func (e Entry) Added() bool { return e.Old == nil && e.New != nil }

// Deleted reports a class only present in the old version.
func (e Entry) Deleted() bool { return e.Old != nil && e.New == nil }

// Name returns the descriptor of the entry, the old one for matched pairs.
func (e Entry) Name() string {
	if e.Old != nil {
		return e.Old.Name
	}
	if e.New != nil {
		return e.New.Name
	}
	return ""
}

// Result is the ordered outcome of diffing two projects.
type Result struct {
	Entries []Entry
	// Mapping holds every class correspondence discovered while diffing.
	Mapping *smali.Mapping
}

// Summary counts entries and changes by kind.
type Summary struct {
	MatchedClasses int
	AddedClasses   int
	DeletedClasses int
	ChangedClasses int
	Changes        map[ChangeKind]int
}

// Summary aggregates r. Field changes are counted after Refine.
func (r *Result) Summary() Summary {
	s := Summary{Changes: make(map[ChangeKind]int)}
	for _, e := range r.Entries {
		switch {
		case e.Matched():
			s.MatchedClasses++
			if len(e.Changes) > 0 {
				s.ChangedClasses++
			}
		case e.Added():
			s.AddedClasses++
		case e.Deleted():
			s.DeletedClasses++
		}
		for _, c := range e.Changes {
			s.Changes[c.Refine().Kind]++
		}
	}
	return s
}
