package smali

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fooClass = `.class public Lcom/example/Foo;
.super Ljava/lang/Object;
.source "Foo.java"

# interfaces
.implements Ljava/lang/Runnable;

# annotations
.annotation system Ldalvik/annotation/MemberClasses;
    value = {
        Lcom/example/Foo$Bar;
    }
.end annotation


# static fields
.field private static final TAG:Ljava/lang/String; = "Foo"

# instance fields
.field private count:I
    .annotation runtime Lcom/example/Keep;
    .end annotation
.end field


# direct methods
.method public constructor <init>()V
    .registers 1

    .prologue
    .line 3
    invoke-direct {p0}, Ljava/lang/Object;-><init>()V

    return-void
.end method

.method public static add(IILjava/lang/String;[I)J
    .registers 6

    const-wide/16 v0, 0x0
    return-wide v0
.end method

# virtual methods
.method public run()V
    .registers 3

    iget v0, p0, Lcom/example/Foo;->count:I
    if-eqz v0, :cond_0
    add-int/lit8 v0, v0, 0x1
    iput v0, p0, Lcom/example/Foo;->count:I

    :cond_0
    return-void
.end method
`

func mustParse(t *testing.T, src string) *Class {
	t.Helper()
	c, err := Parse("test.smali", src)
	require.NoError(t, err)
	return c
}

func TestParse_ClassHeader(t *testing.T) {
	c := mustParse(t, fooClass)

	assert.Equal(t, "Lcom/example/Foo;", c.Name)
	assert.Equal(t, "Ljava/lang/Object;", c.Super)
	assert.Equal(t, "Foo.java", c.Source)
	assert.Equal(t, []string{"public"}, c.Modifiers.Sorted())
	assert.Equal(t, []string{"Ljava/lang/Runnable;"}, c.Interfaces.Sorted())

	require.Len(t, c.Annotations, 1)
	assert.Equal(t, "Ldalvik/annotation/MemberClasses;", c.Annotations[0].Name)
	assert.True(t, c.Annotations[0].Visibility.Has("system"))
	assert.Len(t, c.Annotations[0].Lines, 3)

	assert.Equal(t, "com/example/Foo", c.BaseName())
	assert.Equal(t, "com.example.Foo", c.DisplayName())
	assert.Equal(t, "Foo;", c.SimpleName())
	assert.Equal(t, "java/lang/Object", c.SuperName())
}

func TestParse_Fields(t *testing.T) {
	c := mustParse(t, fooClass)
	require.Len(t, c.Fields, 2)

	tag := c.Fields[0]
	assert.Equal(t, "TAG", tag.Name)
	assert.Equal(t, "Ljava/lang/String;", tag.Type)
	assert.Equal(t, `"Foo"`, tag.Init)
	assert.Equal(t, []string{"final", "private", "static"}, tag.Modifiers.Sorted())
	assert.True(t, tag.IsStatic())

	count := c.Fields[1]
	assert.Equal(t, "count", count.Name)
	assert.Equal(t, "I", count.Type)
	assert.Empty(t, count.Init)
	require.Len(t, count.Annotations, 1, "block annotations attach to the field")
	assert.Equal(t, "Lcom/example/Keep;", count.Annotations[0].Name)
	assert.Equal(t, "Lcom/example/Foo;->count:I", count.Operand(c.Name))
}

func TestParse_Methods(t *testing.T) {
	c := mustParse(t, fooClass)
	require.Len(t, c.Methods, 3)

	t.Run("constructor", func(t *testing.T) {
		m := c.Methods[0]
		assert.Equal(t, "<init>", m.Name)
		assert.Empty(t, m.Params)
		assert.Equal(t, "V", m.Return)
		assert.True(t, m.Modifiers.Has("constructor"))
		assert.True(t, m.IsDefaultConstructor())
		assert.Equal(t, []string{
			"invoke-direct {p0}, Ljava/lang/Object;-><init>()V",
			"return-void",
		}, m.CleanLines())
	})

	t.Run("parameters keep position", func(t *testing.T) {
		m := c.Methods[1]
		assert.Equal(t, "add", m.Name)
		assert.Equal(t, []string{"I", "I", "Ljava/lang/String;", "[I"}, m.Params)
		assert.Equal(t, "J", m.Return)
		assert.Equal(t, "add(IILjava/lang/String;[I)J", m.Signature())
		assert.Equal(t, "com.example.Foo.add(IILjava/lang/String;[I)J", m.FullSignature())
		assert.Same(t, m, c.FindMethod("add", "IILjava/lang/String;[I", "J"))
		assert.Nil(t, c.FindMethod("add", "II", "J"))
	})

	t.Run("body drops labels and directives", func(t *testing.T) {
		m := c.Methods[2]
		assert.Equal(t, "run", m.Name)
		assert.Equal(t, "Lcom/example/Foo;", m.Owner())
		assert.Equal(t, []string{
			"iget v0, p0, Lcom/example/Foo;->count:I",
			"if-eqz v0, :cond_0",
			"add-int/lit8 v0, v0, 0x1",
			"iput v0, p0, Lcom/example/Foo;->count:I",
			"return-void",
		}, m.CleanLines())
		assert.True(t, m.MoreThanInstructions(1))
		assert.Contains(t, m.Lines, ":cond_0")
	})
}

func TestParse_MethodAnnotations(t *testing.T) {
	c := mustParse(t, `.class public Lcom/example/Api;
.super Ljava/lang/Object;

.method public call(Ljava/lang/String;)V
    .registers 2
    .param p1, "name"
        .annotation build Landroidx/annotation/NonNull;
        .end annotation
    .end param

    .annotation runtime Ljava/lang/Deprecated;
    .end annotation

    return-void
.end method

.method public plain()V
    .registers 1
    return-void
.end method
`)
	require.Len(t, c.Methods, 2)

	call := c.Methods[0]
	require.Len(t, call.Annotations, 2, "parameter and method annotations are both collected")
	assert.Equal(t, "Landroidx/annotation/NonNull;", call.Annotations[0].Name)
	assert.True(t, call.Annotations[0].Visibility.Has("build"))
	assert.Equal(t, "Ljava/lang/Deprecated;", call.Annotations[1].Name)
	assert.Contains(t, call.Lines, ".annotation runtime Ljava/lang/Deprecated;")
	assert.Equal(t, []string{"return-void"}, call.CleanLines())

	assert.Empty(t, c.Methods[1].Annotations)

	plain := mustParse(t, `.class public Lcom/example/Api;
.super Ljava/lang/Object;

.method public call(Ljava/lang/String;)V
    .registers 2
    return-void
.end method
`)
	assert.False(t, Comparator{}.SameMethod(call, plain.Methods[0]), "annotation count is part of method equality")
}

func TestParse_Errors(t *testing.T) {
	t.Run("unrecognized directive", func(t *testing.T) {
		src := ".class public Lcom/example/Bad;\n.super Ljava/lang/Object;\nnonsense here\n"
		_, err := Parse("bad.smali", src)
		require.Error(t, err)

		var perr *ParseError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, "bad.smali", perr.Path)
		assert.Equal(t, 3, perr.Line)
		assert.Equal(t, "nonsense here", perr.Content)
	})

	t.Run("lines inside bodies are never errors", func(t *testing.T) {
		src := ".class Lcom/example/Ok;\n.method foo()V\nnonsense here\n.end method\n"
		c, err := Parse("ok.smali", src)
		require.NoError(t, err)
		assert.Equal(t, []string{"nonsense here"}, c.Methods[0].Lines)
	})

	t.Run("missing class declaration", func(t *testing.T) {
		_, err := Parse("empty.smali", "# only a comment\n")
		var perr *ParseError
		require.True(t, errors.As(err, &perr))
		assert.Zero(t, perr.Line)
	})
}

func TestParse_RoundTrip(t *testing.T) {
	a := mustParse(t, fooClass)
	b := mustParse(t, fooClass)
	cmp := Comparator{}

	assert.Equal(t, a.Name, b.Name)
	assert.Equal(t, a.Super, b.Super)
	assert.True(t, SameSet(a.Modifiers, b.Modifiers))
	require.Len(t, b.Methods, len(a.Methods))
	for i := range a.Methods {
		assert.True(t, cmp.SameMethod(a.Methods[i], b.Methods[i]), a.Methods[i].Signature())
	}
	require.Len(t, b.Fields, len(a.Fields))
	for i := range a.Fields {
		assert.True(t, cmp.SameField(a.Fields[i], b.Fields[i]), a.Fields[i].Name)
	}

	t.Run("incidental whitespace", func(t *testing.T) {
		spaced := ".class public Lcom/example/Foo;\n\n\n.method public run()V\n        iget v0, p0, Lcom/example/Foo;->count:I   \n\tif-eqz v0, :cond_0\n  add-int/lit8 v0, v0, 0x1\n iput v0, p0, Lcom/example/Foo;->count:I\n:cond_0\nreturn-void\n.end method\n"
		c := mustParse(t, spaced)
		assert.True(t, cmp.SameMethod(a.Methods[2], c.Methods[0]))
	})
}

func TestNesting(t *testing.T) {
	outer, path := SplitNesting("Lcom/example/Foo$Bar$1;")
	assert.Equal(t, "com/example/Foo", outer)
	assert.Equal(t, []string{"Bar", "1"}, path)

	outer, path = SplitNesting("Lcom/example/$Proxy;")
	assert.Equal(t, "com/example/$Proxy", outer)
	assert.Empty(t, path)

	outer, path = SplitNesting("Lcom/example/Foo;")
	assert.Equal(t, "com/example/Foo", outer)
	assert.Empty(t, path)
}
