package project

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"smalidiff/internal/smali"
)

// Kind classifies an input entry.
type Kind int

const (
	Skip Kind = iota
	ClassFile
	ResourceFile
)

func (k Kind) String() string {
	switch k {
	case ClassFile:
		return "class"
	case ResourceFile:
		return "resource"
	default:
		return "skip"
	}
}

// Filter selects which entries of a disassembled package are parsed.
type Filter struct {
	// Package restricts loading to paths containing this dotted package.
	Package string
	// IncludeUnpackaged keeps classes that live in the default package.
	IncludeUnpackaged bool
	// Exclude and Include are substring rules matched against the dotted
	// path. Include wins over Exclude, Exclude wins over the default.
	Exclude []string
	Include []string
}

// Classify decides what to do with the entry at path.
func (f Filter) Classify(path string) Kind {
	if !strings.HasSuffix(path, ".smali") {
		return Skip
	}

	skip := f.Package != "" && !strings.Contains(path, strings.ReplaceAll(f.Package, ".", "/"))

	if smali.IsResourceFile(path) {
		return ResourceFile
	}
	if smali.IsBuildConfigFile(path) {
		return Skip
	}
	if !strings.Contains(path, "/") {
		if f.IncludeUnpackaged {
			return ClassFile
		}
		return Skip
	}

	if len(f.Include) > 0 || len(f.Exclude) > 0 {
		skip = !f.shouldAnalyze(path, !skip)
	}
	if skip {
		return Skip
	}
	return ClassFile
}

func (f Filter) shouldAnalyze(path string, def bool) bool {
	name := strings.TrimPrefix(strings.ReplaceAll(path, "/", "."), ".")
	for _, rule := range f.Include {
		if strings.Contains(name, rule) {
			return true
		}
	}
	for _, rule := range f.Exclude {
		if strings.Contains(name, rule) {
			return false
		}
	}
	return def
}

// LoadRules reads substring rules, one per line, from every file. Blank lines
// are ignored and duplicates removed.
func LoadRules(paths ...string) ([]string, error) {
	set := smali.NewStringSet()
	for _, path := range paths {
		if err := loadRuleFile(path, set); err != nil {
			return nil, err
		}
	}
	return set.Sorted(), nil
}

func loadRuleFile(path string, set smali.StringSet) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		set.Add(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	return nil
}
