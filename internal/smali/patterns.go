package smali

import (
	"path"
	"regexp"
	"strings"
)

// objectDescriptor is the single descriptor grammar shared by parameter
// lists, field types and return types: an optional array prefix followed by
// an object type or a primitive code.
const objectDescriptor = `\[*(?:L[^;\s]+;|[ZBSCIJFDV])`

var (
	classDecl      = regexp.MustCompile(`^\.class((?: [a-z\-]+)*) (L[^\s;]+;)\s*$`)
	annotationDecl = regexp.MustCompile(`^\.annotation((?: [a-z]+)*) (L[^\s;]+;)`)
	methodDecl     = regexp.MustCompile(`^\.method((?: [a-z\-]+)*) ([^ ]+)\((.*)\)(.*)$`)
	fieldDecl      = regexp.MustCompile(`^\.field((?: [a-z\-]+)*) ([^ :]+):(.+)$`)
	fieldTypeInit  = regexp.MustCompile(`^(` + objectDescriptor + `)(?: = (.*))?$`)
	paramToken     = regexp.MustCompile(objectDescriptor)

	// Resource holder classes: .../R.smali and .../R$string.smali.
	resourceClassFile = regexp.MustCompile(`^.*/R(\$[a-z]+)?\.smali$`)
	hexLiteral        = regexp.MustCompile(`0x[0-9a-f]{2,}`)

	// Operand rewriting used by the normalizer.
	classRef        = regexp.MustCompile(`L(.*?);`)
	methodAccess    = regexp.MustCompile(`L(.*?)->(.*?)\)`)
	fieldAccess     = regexp.MustCompile(`L(.*?)->(.*?):`)
	jumpTarget      = regexp.MustCompile(`:[a-zA-Z0-9_\-]+`)
	localRegister   = regexp.MustCompile(`v[0-9]+`)
	paramRegister   = regexp.MustCompile(`p[0-9]+`)
	resourceLoad    = regexp.MustCompile(`^const [vp][0-9]{1,2}, (0x[0-9a-f]{5,})$`)
	anonymousSuffix = regexp.MustCompile(`\$[0-9$]+;`)

	// Descriptor helpers.
	outerDescriptor = regexp.MustCompile(`^\[*L(.*?)(\$.*)?;`)
	memberOperand   = regexp.MustCompile(`^(.*)->(.*):(.*)$`)
	anonymousLocal  = regexp.MustCompile(`^[0-9]+$`)
)

// Placeholder tokens written by the normalizer.
const (
	FieldToken      = "///FIELD///"
	MethodToken     = "///METHOD///"
	ResourceToken   = "<R_REF>"
	AnonymousToken  = "$?"
	JumpToken       = "JMP"
	LocalRegToken   = "vr"
	ParamRegToken   = "pr"
	ClassWildcard   = "L"
	MethodWildcard  = "m"
	FieldWildcard   = "f"
	buildConfigFile = "BuildConfig.smali"
)

// IsResourceFile reports whether p names a generated resource holder class
// (R.smali or R$<kind>.smali). Those files are only scanned for resource ids.
func IsResourceFile(p string) bool {
	return resourceClassFile.MatchString(p)
}

// IsBuildConfigFile reports whether p names the generated BuildConfig class.
func IsBuildConfigFile(p string) bool {
	return path.Base(p) == buildConfigFile
}

// ScanResourceIDs returns every hexadecimal literal found in a resource holder
// class body.
func ScanResourceIDs(content string) []string {
	return hexLiteral.FindAllString(content, -1)
}

// SplitParams tokenizes the raw parameter section of a method signature.
func SplitParams(raw string) []string {
	return paramToken.FindAllString(raw, -1)
}

// IsAnonymousLocalName reports whether an inner class local name was assigned
// by the compiler (a bare integer).
func IsAnonymousLocalName(name string) bool {
	return anonymousLocal.MatchString(name)
}

// SplitMemberOperand splits an `owner->name:type` access operand.
func SplitMemberOperand(operand string) (owner, name, typ string, ok bool) {
	m := memberOperand.FindStringSubmatch(operand)
	if m == nil {
		return "", "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3]), true
}
