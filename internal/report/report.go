// Package report renders diff results as plain text.
package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	difflib "github.com/pmezard/go-difflib/difflib"

	"smalidiff/internal/diff"
	"smalidiff/internal/smali"
)

// Options controls what the text report includes.
type Options struct {
	// Patches appends a unified patch of the instructions of every paired
	// method whose body changed.
	Patches bool
	// Context is the number of context lines in patches. If 0, default to 3.
	Context int
	// OnlyChanged hides matched classes without changes.
	OnlyChanged bool
	// Color highlights class lines with ANSI colors.
	Color bool
}

type paintFunc func(a ...interface{}) string

type palette struct {
	added, deleted, changed paintFunc
}

func newPalette(enabled bool) palette {
	mk := func(attr color.Attribute) paintFunc {
		if !enabled {
			return fmt.Sprint
		}
		c := color.New(attr)
		c.EnableColor()
		return c.SprintFunc()
	}
	return palette{
		added:   mk(color.FgGreen),
		deleted: mk(color.FgRed),
		changed: mk(color.FgYellow),
	}
}

// Writer renders results to an io.Writer.
type Writer struct {
	w     io.Writer
	opts  Options
	paint palette
}

// NewWriter creates a report writer.
func NewWriter(w io.Writer, opts Options) *Writer {
	if opts.Context <= 0 {
		opts.Context = 3
	}
	return &Writer{w: w, opts: opts, paint: newPalette(opts.Color)}
}

// Write renders every entry followed by a summary line.
func (r *Writer) Write(res *diff.Result) error {
	bw := bufio.NewWriter(r.w)

	for _, e := range res.Entries {
		if e.Matched() && len(e.Changes) == 0 && r.opts.OnlyChanged {
			continue
		}
		if err := r.writeEntry(bw, e); err != nil {
			return err
		}
	}

	s := res.Summary()
	fmt.Fprintf(bw, "\nclasses: %d matched, %d changed, %d added, %d deleted\n",
		s.MatchedClasses, s.ChangedClasses, s.AddedClasses, s.DeletedClasses)

	kinds := make([]string, 0, len(s.Changes))
	for k := range s.Changes {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(bw, "  %-26s %d\n", k, s.Changes[diff.ChangeKind(k)])
	}
	return bw.Flush()
}

func (r *Writer) writeEntry(w io.Writer, e diff.Entry) error {
	indent := ""
	if e.Nested {
		indent = "  "
	}

	switch {
	case e.Added():
		_, err := fmt.Fprintf(w, "%s%s\n", indent, r.paint.added("+ "+e.New.DisplayName()))
		return err
	case e.Deleted():
		_, err := fmt.Fprintf(w, "%s%s\n", indent, r.paint.deleted("- "+e.Old.DisplayName()))
		return err
	}

	mark, title := "=", e.Old.DisplayName()
	if len(e.Changes) > 0 {
		mark = "~"
	}
	if e.Old.Name != e.New.Name {
		title += " -> " + e.New.DisplayName()
	}
	line := mark + " " + title
	if len(e.Changes) > 0 {
		line = r.paint.changed(line)
	}
	if _, err := fmt.Fprintf(w, "%s%s\n", indent, line); err != nil {
		return err
	}

	for _, c := range e.Changes {
		c = c.Refine()
		line := fmt.Sprintf("%s    %-26s %s", indent, c.Kind, c.Subject())
		if len(c.Aspects) > 0 {
			line += " " + formatAspects(c.Aspects)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}

		if !r.opts.Patches || c.OldMethod == nil || c.NewMethod == nil || !hasAspect(c.Aspects, smali.NotSameSourceCode) {
			continue
		}
		patch, err := MethodPatch(c.OldMethod, c.NewMethod, r.opts.Context)
		if err != nil {
			return err
		}
		for _, pl := range strings.SplitAfter(strings.TrimRight(patch, "\n"), "\n") {
			if _, err := fmt.Fprintf(w, "%s      %s", indent, pl); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

// MethodPatch produces a unified patch of the instructions of two methods.
func MethodPatch(old, new *smali.Method, context int) (string, error) {
	u := difflib.UnifiedDiff{
		A:        withNewlines(old.CleanLines()),
		B:        withNewlines(new.CleanLines()),
		FromFile: "a/" + old.FullSignature(),
		ToFile:   "b/" + new.FullSignature(),
		Context:  context,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return "", fmt.Errorf("failed to build patch for %s: %w", old.Signature(), err)
	}
	return s, nil
}

func withNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}

func formatAspects(as []smali.Aspect) string {
	parts := make([]string, len(as))
	for i, a := range as {
		parts[i] = string(a)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func hasAspect(as []smali.Aspect, want smali.Aspect) bool {
	for _, a := range as {
		if a == want {
			return true
		}
	}
	return false
}
