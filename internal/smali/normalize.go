package smali

import "strings"

// NormalizeOptions selects the rewrites applied to a method body before two
// bodies are compared. The zero value is the comparison default: resource
// loads and anonymous class suffixes are masked and member operands are
// replaced by placeholders.
type NormalizeOptions struct {
	// KeepResourceRefs leaves long hexadecimal constant loads untouched.
	KeepResourceRefs bool
	// KeepAnonymousRefs leaves $<n> anonymous class suffixes untouched.
	KeepAnonymousRefs bool
	// Identity applies the aggressive rewrite (class refs, registers and
	// jump targets collapsed) instead of the operand-only rewrite.
	Identity bool
}

const bodyVariants = 8

func (o NormalizeOptions) variant() int {
	v := 0
	if o.KeepResourceRefs {
		v |= 1
	}
	if o.KeepAnonymousRefs {
		v |= 2
	}
	if o.Identity {
		v |= 4
	}
	return v
}

// KeepLine reports whether a raw body line is an instruction, as opposed to a
// directive, label, comment or blank line.
func KeepLine(line string) bool {
	l := strings.TrimSpace(line)
	if l == "" {
		return false
	}
	switch l[0] {
	case '.', ':', '#':
		return false
	}
	return true
}

// CleanLines drops non-instruction lines and keeps order.
func CleanLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if KeepLine(l) {
			out = append(out, l)
		}
	}
	return out
}

// OperandLines replaces method and field access operands with placeholders,
// keeping the owning class prefix.
func OperandLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		l = fieldAccess.ReplaceAllString(l, "L${1}->"+FieldToken+":")
		l = methodAccess.ReplaceAllString(l, "L${1}->"+MethodToken+":")
		out[i] = l
	}
	return out
}

// IdentityLines collapses class references, member accesses, jump targets
// and register names to fixed tokens.
func IdentityLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		l = classRef.ReplaceAllString(l, ClassWildcard)
		l = methodAccess.ReplaceAllString(l, MethodWildcard)
		l = fieldAccess.ReplaceAllString(l, FieldWildcard)
		l = jumpTarget.ReplaceAllString(l, JumpToken)
		l = localRegister.ReplaceAllString(l, LocalRegToken)
		l = paramRegister.ReplaceAllString(l, ParamRegToken)
		out[i] = l
	}
	return out
}

// MaskResourceRefs rewrites constant loads of resource-id-like literals to
// ResourceToken.
func MaskResourceRefs(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		if m := resourceLoad.FindStringSubmatch(l); m != nil {
			l = strings.ReplaceAll(l, m[1], ResourceToken)
		}
		out[i] = l
	}
	return out
}

// CollapseAnonymousRefs replaces $<n> inner class suffixes with
// AnonymousToken.
func CollapseAnonymousRefs(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = anonymousSuffix.ReplaceAllString(l, AnonymousToken)
	}
	return out
}

// CollapseAnonymousDescriptor collapses the anonymous suffix of a single
// descriptor, keeping the terminating ';'.
func CollapseAnonymousDescriptor(desc string) string {
	return anonymousSuffix.ReplaceAllString(desc, AnonymousToken+";")
}

// NormalizeBody runs the comparison pipeline over already cleaned lines.
func NormalizeBody(clean []string, opts NormalizeOptions) []string {
	lines := clean
	if !opts.KeepResourceRefs {
		lines = MaskResourceRefs(lines)
	}
	if opts.Identity {
		lines = IdentityLines(lines)
	} else {
		lines = OperandLines(lines)
	}
	if !opts.KeepAnonymousRefs {
		lines = CollapseAnonymousRefs(lines)
	}
	return lines
}

// Transpose rewrites known old class names to their new names inside each
// line. Entries are applied in the order they were recorded.
func Transpose(lines []string, mapping *Mapping) []string {
	if mapping.Len() == 0 {
		return lines
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		mapping.each(func(from, to string) bool {
			if from != to {
				l = replaceClassName(l, from, to)
			}
			return true
		})
		out[i] = l
	}
	return out
}

// replaceClassName rewrites whole occurrences of the class from, including
// references to its nested classes (from$Inner).
func replaceClassName(line, from, to string) string {
	fromBase, toBase := strings.TrimSuffix(from, ";"), strings.TrimSuffix(to, ";")
	line = strings.ReplaceAll(line, from, to)
	return strings.ReplaceAll(line, fromBase+"$", toBase+"$")
}
