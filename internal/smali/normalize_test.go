package smali

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeepLine(t *testing.T) {
	cases := map[string]bool{
		"return-void":     true,
		"  iget v0, p0":   true,
		".line 12":        false,
		":cond_0":         false,
		"# comment":       false,
		"   ":             false,
		".registers 3":    false,
		"const/4 v0, 0x1": true,
	}
	for line, want := range cases {
		assert.Equal(t, want, KeepLine(line), line)
	}
}

func TestOperandLines(t *testing.T) {
	got := OperandLines([]string{
		"iget v0, p0, Lcom/example/Foo;->count:I",
		"invoke-virtual {p0}, Lcom/example/Foo;->run()V",
		"return-void",
	})
	assert.Equal(t, []string{
		"iget v0, p0, Lcom/example/Foo;->" + FieldToken + ":I",
		"invoke-virtual {p0}, Lcom/example/Foo;->" + MethodToken + ":V",
		"return-void",
	}, got)
}

func TestIdentityLines(t *testing.T) {
	got := IdentityLines([]string{
		"iget v0, p0, Lcom/example/Foo;->count:I",
		"if-eqz v3, :cond_0",
		"move-result-object v12",
	})
	assert.Equal(t, []string{
		"iget vr, pr, fI",
		"if-eqz vr, JMP",
		"move-result-object vr",
	}, got)
}

func TestMaskResourceRefs(t *testing.T) {
	got := MaskResourceRefs([]string{
		"const v1, 0x7f0b0012",
		"const p0, 0x7f0b0012",
		"const v1, 0x12",
		"const/4 v1, 0x7f0b0012",
	})
	assert.Equal(t, []string{
		"const v1, " + ResourceToken,
		"const p0, " + ResourceToken,
		"const v1, 0x12",
		"const/4 v1, 0x7f0b0012",
	}, got)
}

func TestCollapseAnonymousRefs(t *testing.T) {
	got := CollapseAnonymousRefs([]string{
		"new-instance v0, Lcom/example/Foo$1;",
		"new-instance v0, Lcom/example/Foo$Bar;",
	})
	assert.Equal(t, []string{
		"new-instance v0, Lcom/example/Foo$?",
		"new-instance v0, Lcom/example/Foo$Bar;",
	}, got)
	assert.Equal(t, "Lcom/example/Foo$?;", CollapseAnonymousDescriptor("Lcom/example/Foo$12;"))
}

func TestNormalizeBody(t *testing.T) {
	clean := []string{"const v0, 0x7f0b0001", "new-instance v1, Lcom/example/Foo$3;"}

	t.Run("defaults mask everything", func(t *testing.T) {
		assert.Equal(t, []string{
			"const v0, " + ResourceToken,
			"new-instance v1, Lcom/example/Foo$?",
		}, NormalizeBody(clean, NormalizeOptions{}))
	})

	t.Run("keep flags", func(t *testing.T) {
		assert.Equal(t, clean, NormalizeBody(clean, NormalizeOptions{KeepResourceRefs: true, KeepAnonymousRefs: true}))
	})

	t.Run("cached per option set", func(t *testing.T) {
		m := &Method{Name: "m", Lines: clean}
		masked := m.Body(NormalizeOptions{})
		raw := m.Body(NormalizeOptions{KeepResourceRefs: true, KeepAnonymousRefs: true})
		assert.NotEqual(t, masked, raw)
		assert.Equal(t, masked, m.Body(NormalizeOptions{}))
	})
}

func TestTranspose(t *testing.T) {
	mapping := NewMapping()
	mapping.Set("Lcom/example/Old;", "Lcom/example/New;")
	mapping.Set("Lcom/example/Same;", "Lcom/example/Same;")

	got := Transpose([]string{
		"iget v0, p0, Lcom/example/Old;->x:I",
		"new-instance v0, Lcom/example/Old$?",
		"new-instance v0, Lcom/example/OldFactory;",
		"new-instance v0, Lcom/example/Same;",
	}, mapping)
	assert.Equal(t, []string{
		"iget v0, p0, Lcom/example/New;->x:I",
		"new-instance v0, Lcom/example/New$?",
		"new-instance v0, Lcom/example/OldFactory;",
		"new-instance v0, Lcom/example/Same;",
	}, got)

	lines := []string{"return-void"}
	assert.Equal(t, lines, Transpose(lines, nil))
}
