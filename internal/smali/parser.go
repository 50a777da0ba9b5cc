package smali

import (
	"errors"
	"fmt"
	"strings"
)

// ParseError reports a line that matches none of the class-level directives.
type ParseError struct {
	Path    string
	Line    int // 1-based, 0 when the error is not tied to a line
	Content string
	Reason  string
}

func (e *ParseError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "unrecognized directive"
	}
	if e.Line == 0 {
		return fmt.Sprintf("parse %s: %s", e.Path, reason)
	}
	return fmt.Sprintf("parse %s:%d: %s: %q", e.Path, e.Line, reason, e.Content)
}

// parser holds the scan state of one class block.
type parser struct {
	path   string
	class  *Class
	method *Method
	field  *Field
	annot  *Annotation

	// methodAnnot is the open annotation block inside the current method.
	methodAnnot *Annotation
}

// Parse reads one class block. path is only used for error reporting.
func Parse(path, content string) (*Class, error) {
	p := &parser{path: path, class: NewClass("")}

	for i, raw := range strings.Split(content, "\n") {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := p.line(line); err != nil {
			return nil, &ParseError{Path: path, Line: i + 1, Content: line}
		}
	}

	if p.class.Name == "" {
		return nil, &ParseError{Path: path, Reason: "missing .class declaration"}
	}
	return p.class, nil
}

var errUnrecognized = errors.New("unrecognized line")

func (p *parser) line(line string) error {
	trimmed := strings.TrimSpace(line)

	if p.method != nil {
		p.methodLine(trimmed)
		return nil
	}

	if trimmed == ".end field" {
		p.field = nil
		return nil
	}

	if p.annot != nil {
		if trimmed == ".end annotation" {
			p.attachAnnotation(p.annot)
			p.annot = nil
		} else {
			p.annot.Lines = append(p.annot.Lines, trimmed)
		}
		return nil
	}

	if m := classDecl.FindStringSubmatch(line); m != nil {
		p.field = nil
		p.class.Name = m[2]
		addModifiers(p.class.Modifiers, m[1])
		return nil
	}

	if strings.HasPrefix(line, ".super ") {
		p.class.Super = strings.TrimSpace(strings.TrimPrefix(line, ".super"))
		return nil
	}

	if strings.HasPrefix(line, ".source ") {
		src := strings.TrimPrefix(line, ".source")
		p.class.Source = strings.TrimSpace(strings.ReplaceAll(src, `"`, ""))
		return nil
	}

	if strings.HasPrefix(line, ".implements ") {
		p.class.Interfaces.Add(strings.TrimPrefix(line, ".implements"))
		return nil
	}

	if m := annotationDecl.FindStringSubmatch(trimmed); m != nil {
		p.annot = &Annotation{Name: m[2], Visibility: NewStringSet(strings.Fields(m[1])...)}
		return nil
	}

	if m := methodDecl.FindStringSubmatch(line); m != nil {
		p.field = nil
		p.method = &Method{
			Name:      strings.TrimSpace(m[2]),
			Params:    SplitParams(m[3]),
			Return:    strings.TrimSpace(m[4]),
			Modifiers: NewStringSet(),
		}
		addModifiers(p.method.Modifiers, m[1])
		p.class.AddMethod(p.method)
		return nil
	}

	if m := fieldDecl.FindStringSubmatch(line); m != nil {
		f := &Field{Name: strings.TrimSpace(m[2]), Type: strings.TrimSpace(m[3]), Modifiers: NewStringSet()}
		if ti := fieldTypeInit.FindStringSubmatch(f.Type); ti != nil {
			f.Type = ti[1]
			f.Init = ti[2]
		}
		addModifiers(f.Modifiers, m[1])
		p.class.Fields = append(p.class.Fields, f)
		p.field = f
		return nil
	}

	return errUnrecognized
}

// methodLine records a body line. Annotation blocks, parameter annotations
// included, are also collected into Method.Annotations; their lines stay in
// the body, where the keep-line filter drops the directives.
func (p *parser) methodLine(trimmed string) {
	if trimmed == ".end method" {
		p.method = nil
		p.methodAnnot = nil
		return
	}
	switch {
	case p.methodAnnot != nil && trimmed == ".end annotation":
		p.method.Annotations = append(p.method.Annotations, p.methodAnnot)
		p.methodAnnot = nil
	case p.methodAnnot != nil:
		p.methodAnnot.Lines = append(p.methodAnnot.Lines, trimmed)
	default:
		if m := annotationDecl.FindStringSubmatch(trimmed); m != nil {
			p.methodAnnot = &Annotation{Name: m[2], Visibility: NewStringSet(strings.Fields(m[1])...)}
		}
	}
	p.method.Lines = append(p.method.Lines, trimmed)
}

// attachAnnotation adds a to the field currently being read, or to the class.
func (p *parser) attachAnnotation(a *Annotation) {
	if p.field != nil {
		p.field.Annotations = append(p.field.Annotations, a)
		return
	}
	p.class.Annotations = append(p.class.Annotations, a)
}

func addModifiers(set StringSet, raw string) {
	for _, m := range strings.Fields(raw) {
		set.Add(m)
	}
}
