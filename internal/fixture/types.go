package fixture

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Lang identifies the surface syntax of a fixture.
type Lang string

const (
	LangJS  Lang = "js"
	LangTS  Lang = "ts"
	LangTSX Lang = "tsx"
)

// LangForPath maps a file extension to a Lang.
func LangForPath(path string) (Lang, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs", ".cjs":
		return LangJS, nil
	case ".ts", ".mts", ".cts":
		return LangTS, nil
	case ".tsx":
		return LangTSX, nil
	default:
		return "", fmt.Errorf("unsupported fixture extension %q", filepath.Ext(path))
	}
}

// Mode says which checks apply to a fixture.
type Mode string

const (
	// ModeStatic fixtures are checked by the type oracle only.
	ModeStatic Mode = "static"
	// ModeRuntime fixtures are executed and their print output compared.
	ModeRuntime Mode = "runtime"
	// ModeMixed fixtures get both checks.
	ModeMixed Mode = "mixed"
)

// ParseMode validates a mode string from metadata or config.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStatic:
		return ModeStatic, nil
	case ModeRuntime:
		return ModeRuntime, nil
	case ModeMixed:
		return ModeMixed, nil
	default:
		return "", fmt.Errorf("unknown fixture mode %q (want static, runtime or mixed)", s)
	}
}

// Static reports whether the mode includes type assertions.
func (m Mode) Static() bool { return m == ModeStatic || m == ModeMixed }

// Runtime reports whether the mode includes execution.
func (m Mode) Runtime() bool { return m == ModeRuntime || m == ModeMixed }

// Metadata holds the @tc.* tags of a fixture header.
// Known tags get fields; everything else lands in Tags.
type Metadata struct {
	Name    string            `json:"name,omitempty"`
	Desc    string            `json:"desc,omitempty"`
	Type    string            `json:"type,omitempty"`
	Require string            `json:"require,omitempty"`
	Mode    string            `json:"mode,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// Position is a 1-based line/column location.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Anchor is the statement an AssertType call annotates: the nearest
// preceding sibling that is not itself a hook call.
type Anchor struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// AssertionSite is one AssertType(value, type) call.
type AssertionSite struct {
	Index    int     `json:"index"`
	Position         // of the call
	Section  string  `json:"section,omitempty"`
	Expr     string  `json:"expr"`      // source text of the value argument
	ExprKind string  `json:"expr_kind"` // grammar node kind of the value argument
	Expected string  `json:"expected"`
	Anchor   *Anchor `json:"anchor,omitempty"`
}

// PrintSite is one print(...) call.
type PrintSite struct {
	Index    int      `json:"index"`
	Position          // of the call
	Args     []string `json:"args"`
}

// ExpectedOutput is an inline expected print value taken from a trailing
// "// literal" comment on the line of a print call.
type ExpectedOutput struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Declaration is an ambient "declare function" in the fixture.
type Declaration struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

// Redeclaration records a lexical binding declared more than once in one
// scope. The fixture format allows this; the record is informational.
type Redeclaration struct {
	Name  string `json:"name"`
	Lines []int  `json:"lines"`
}

// SyntaxError is a tree-sitter ERROR or MISSING node.
type SyntaxError struct {
	Position
	Message string `json:"message"`
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Position, e.Message)
}

// MalformedHook is a hook call the harness cannot interpret, such as
// AssertType with a non-literal type argument.
type MalformedHook struct {
	Position
	Hook    string `json:"hook"`
	Message string `json:"message"`
}

// Section is a "// === name ===" marker in a multi-file fixture.
type Section struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

// Fixture is a parsed fixture file. Fixtures are immutable once loaded and
// may be shared between runs through the Loader cache.
type Fixture struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Lang   Lang   `json:"lang"`
	Source []byte `json:"-"`
	Hash   string `json:"hash"`

	Header       string   `json:"header,omitempty"`
	Meta         Metadata `json:"meta"`
	Mode         Mode     `json:"mode"`
	ModeDeclared bool     `json:"mode_declared"`

	Sections       []Section        `json:"sections,omitempty"`
	Declarations   []Declaration    `json:"declarations,omitempty"`
	Assertions     []AssertionSite  `json:"assertions,omitempty"`
	Prints         []PrintSite      `json:"prints,omitempty"`
	Expected       []ExpectedOutput `json:"expected,omitempty"`
	Redeclarations []Redeclaration  `json:"redeclarations,omitempty"`
	SyntaxErrors   []SyntaxError    `json:"syntax_errors,omitempty"`
	Malformed      []MalformedHook  `json:"malformed,omitempty"`

	// LoadErr marks a placeholder for a file that could not be read or
	// parsed. Only Path, Name, Lang, Source and Hash are set on it.
	LoadErr error `json:"-"`
}

// HasHeader reports whether the fixture starts with a license block comment.
func (f *Fixture) HasHeader() bool {
	return f.Header != ""
}

// Declares reports whether the fixture has an ambient declaration for name.
func (f *Fixture) Declares(name string) bool {
	for _, d := range f.Declarations {
		if d.Name == name {
			return true
		}
	}
	return false
}

// ExpectedTexts returns the inline expected outputs in source order.
func (f *Fixture) ExpectedTexts() []string {
	out := make([]string, len(f.Expected))
	for i, e := range f.Expected {
		out[i] = e.Text
	}
	return out
}

// ExpectedAt returns the inline expectation on line, if any.
func (f *Fixture) ExpectedAt(line int) (ExpectedOutput, bool) {
	for _, e := range f.Expected {
		if e.Line == line {
			return e, true
		}
	}
	return ExpectedOutput{}, false
}

// deriveMode picks a mode from the hooks the fixture calls.
func deriveMode(f *Fixture) Mode {
	switch {
	case len(f.Assertions) > 0 && len(f.Prints) > 0:
		return ModeMixed
	case len(f.Prints) > 0:
		return ModeRuntime
	default:
		return ModeStatic
	}
}
