package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smalidiff/internal/diff"
	"smalidiff/internal/smali"
)

func method(name string, lines ...string) *smali.Method {
	return &smali.Method{Name: name, Return: "V", Modifiers: smali.NewStringSet(), Lines: lines}
}

func sampleResult() *diff.Result {
	foo := smali.NewClass("Lcom/example/Foo;")
	oldRun := method("run", "const/4 v0, 0x1", "return-void")
	newRun := method("run", "const/4 v0, 0x2", "return-void")
	foo.AddMethod(oldRun)
	foo2 := smali.NewClass("Lcom/example/Foo;")
	foo2.AddMethod(newRun)

	return &diff.Result{Entries: []diff.Entry{
		{Old: foo, New: foo2, Changes: []diff.Change{
			{Kind: diff.MethodRevised, OldMethod: oldRun, NewMethod: newRun, Aspects: []smali.Aspect{smali.NotSameSourceCode}},
			{Kind: diff.FieldChanged,
				OldField: &smali.Field{Name: "x", Type: "I"},
				NewField: &smali.Field{Name: "y", Type: "I"},
				Aspects:  []smali.Aspect{smali.NotSameName}},
		}},
		{Old: smali.NewClass("Lcom/example/Same;"), New: smali.NewClass("Lcom/example/Same;")},
		{Old: smali.NewClass("Lcom/example/Gone;")},
		{New: smali.NewClass("Lcom/example/Fresh$1;"), Nested: true},
	}}
}

func TestWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, Options{}).Write(sampleResult()))
	out := buf.String()

	assert.Contains(t, out, "~ com.example.Foo\n")
	assert.Contains(t, out, "METHOD_REVISED")
	assert.Contains(t, out, "run()V [NOT_SAME_SOURCECODE_LINES]")
	assert.Contains(t, out, "FIELD_RENAMED")
	assert.Contains(t, out, "x:I -> y:I")
	assert.Contains(t, out, "= com.example.Same\n")
	assert.Contains(t, out, "- com.example.Gone\n")
	assert.Contains(t, out, "  + com.example.Fresh$1\n")
	assert.Contains(t, out, "classes: 2 matched, 1 changed, 1 added, 1 deleted")
	assert.NotContains(t, out, "@@", "patches are off by default")
}

func TestWriter_PatchesAndFiltering(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, Options{Patches: true, OnlyChanged: true}).Write(sampleResult()))
	out := buf.String()

	assert.NotContains(t, out, "com.example.Same\n")
	assert.Contains(t, out, "--- a/com.example.Foo.run()V")
	assert.Contains(t, out, "+++ b/com.example.Foo.run()V")
	assert.Contains(t, out, "-const/4 v0, 0x1")
	assert.Contains(t, out, "+const/4 v0, 0x2")
}

func TestMethodPatch_Identical(t *testing.T) {
	m := method("run", "return-void")
	patch, err := MethodPatch(m, m, 3)
	require.NoError(t, err)
	assert.Empty(t, patch)
}

func TestWriter_Color(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, Options{Color: true}).Write(sampleResult()))
	out := buf.String()

	assert.Contains(t, out, "\x1b[31m- com.example.Gone\x1b[0m")
	assert.Contains(t, out, "\x1b[32m+ com.example.Fresh$1\x1b[0m")
	assert.Contains(t, out, "\x1b[33m~ com.example.Foo\x1b[0m")
	assert.Contains(t, out, "= com.example.Same\n", "unchanged classes stay plain")
}
