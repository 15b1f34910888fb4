package fixture

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tsjavascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tstypescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// Hook names understood by the harness.
const (
	HookAssertType = "AssertType"
	HookPrint      = "print"
)

var (
	sectionMarker = regexp.MustCompile(`^//\s*===\s*(.+?)\s*===\s*$`)
	tcTag         = regexp.MustCompile(`@tc\.([A-Za-z0-9_]+)\s*:?\s*(.*)$`)
)

// scopeKinds are grammar nodes that open a lexical scope for let/const/class.
var scopeKinds = map[string]bool{
	"program":              true,
	"statement_block":      true,
	"class_body":           true,
	"switch_body":          true,
	"for_statement":        true,
	"for_in_statement":     true,
	"module":               true, // TS namespace body
	"internal_module":      true,
	"arrow_function":       true,
	"function_declaration": true,
	"function_expression":  true,
	"method_definition":    true,
}

// statementParents are grammar nodes whose children are statements.
var statementParents = map[string]bool{
	"program":         true,
	"statement_block": true,
	"switch_case":     true,
	"switch_default":  true,
	"class_body":      true,
	"ERROR":           true,
}

// ParseError is returned when a fixture cannot be parsed at all.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func languageFor(lang Lang) *sitter.Language {
	switch lang {
	case LangTS:
		return sitter.NewLanguage(tstypescript.LanguageTypescript())
	case LangTSX:
		return sitter.NewLanguage(tstypescript.LanguageTSX())
	default:
		return sitter.NewLanguage(tsjavascript.Language())
	}
}

// Parse parses fixture source. Syntax errors are recorded on the returned
// Fixture; an error is returned only when no tree could be produced.
func Parse(path string, src []byte) (*Fixture, error) {
	lang, err := LangForPath(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	p := sitter.NewParser()
	defer p.Close()
	if err := p.SetLanguage(languageFor(lang)); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	tree := p.Parse(src, nil)
	if tree == nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("parser returned no tree")}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("parser returned no root node")}
	}

	sum := sha256.Sum256(src)
	f := &Fixture{
		Path:   path,
		Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Lang:   lang,
		Source: src,
		Hash:   hex.EncodeToString(sum[:]),
	}

	w := &walker{src: src, f: f, scopes: []map[string][]int{{}}, printRows: map[int]bool{}}
	w.header(root)
	w.walk(root)
	w.closeScope(w.scopes[0])
	w.expectations()

	if f.Meta.Name != "" {
		f.Name = f.Meta.Name
	}
	if f.Meta.Mode != "" {
		mode, err := ParseMode(f.Meta.Mode)
		if err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
		f.Mode = mode
		f.ModeDeclared = true
	} else {
		f.Mode = deriveMode(f)
	}

	return f, nil
}

type walker struct {
	src    []byte
	f      *Fixture
	scopes []map[string][]int

	comments  []*sitter.Node
	printRows map[int]bool
}

func (w *walker) text(n *sitter.Node) string {
	return n.Utf8Text(w.src)
}

func position(n *sitter.Node) Position {
	p := n.StartPosition()
	return Position{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

// header reads the leading comments: the first block comment is the
// license header, and @tc.* tags may appear in any leading comment.
func (w *walker) header(root *sitter.Node) {
	for i := uint(0); i < root.NamedChildCount(); i++ {
		n := root.NamedChild(i)
		if n == nil || n.Kind() != "comment" {
			return
		}
		text := w.text(n)
		if w.f.Header == "" && strings.HasPrefix(text, "/*") {
			w.f.Header = text
		}
		for _, line := range strings.Split(text, "\n") {
			m := tcTag.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			setTag(&w.f.Meta, m[1], strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m[2]), "*/")))
		}
	}
}

func hasTag(text string) bool {
	return strings.Contains(text, "@tc.")
}

func setTag(m *Metadata, key, value string) {
	switch key {
	case "name":
		m.Name = value
	case "desc":
		m.Desc = value
	case "type":
		m.Type = value
	case "require":
		m.Require = value
	case "mode":
		m.Mode = value
	default:
		if m.Tags == nil {
			m.Tags = make(map[string]string)
		}
		m.Tags[key] = value
	}
}

func (w *walker) walk(n *sitter.Node) {
	if n == nil {
		return
	}

	kind := n.Kind()
	switch {
	case n.IsMissing():
		w.f.SyntaxErrors = append(w.f.SyntaxErrors, SyntaxError{
			Position: position(n),
			Message:  fmt.Sprintf("missing %s", kind),
		})
	case n.IsError():
		w.f.SyntaxErrors = append(w.f.SyntaxErrors, SyntaxError{
			Position: position(n),
			Message:  fmt.Sprintf("unexpected %q", firstLine(w.text(n))),
		})
	}

	switch kind {
	case "comment":
		w.comment(n)
		return
	case "call_expression":
		w.call(n)
	case "lexical_declaration":
		w.lexical(n)
	case "class_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			w.declare(w.text(name), n)
		}
	case "ambient_declaration":
		w.ambient(n)
	}

	opened := scopeKinds[kind] && kind != "program"
	if opened {
		w.scopes = append(w.scopes, map[string][]int{})
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		w.walk(n.Child(i))
	}
	if opened {
		top := w.scopes[len(w.scopes)-1]
		w.scopes = w.scopes[:len(w.scopes)-1]
		w.closeScope(top)
	}
}

func (w *walker) comment(n *sitter.Node) {
	text := w.text(n)
	if m := sectionMarker.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		w.f.Sections = append(w.f.Sections, Section{Name: m[1], Line: position(n).Line})
		return
	}
	w.comments = append(w.comments, n)
}

func (w *walker) lexical(n *sitter.Node) {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		d := n.NamedChild(i)
		if d == nil || d.Kind() != "variable_declarator" {
			continue
		}
		name := d.ChildByFieldName("name")
		if name == nil || name.Kind() != "identifier" {
			continue
		}
		w.declare(w.text(name), d)
	}
}

func (w *walker) declare(name string, n *sitter.Node) {
	scope := w.scopes[len(w.scopes)-1]
	scope[name] = append(scope[name], position(n).Line)
}

func (w *walker) closeScope(scope map[string][]int) {
	for name, lines := range scope {
		if len(lines) > 1 {
			w.f.Redeclarations = append(w.f.Redeclarations, Redeclaration{Name: name, Lines: lines})
		}
	}
	for name := range scope {
		delete(scope, name)
	}
	sortRedeclarations(w.f.Redeclarations)
}

func (w *walker) ambient(n *sitter.Node) {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Kind() {
		case "function_signature", "function_declaration":
			if name := c.ChildByFieldName("name"); name != nil {
				w.f.Declarations = append(w.f.Declarations, Declaration{
					Name: w.text(name),
					Line: position(c).Line,
				})
			}
		}
	}
}

func (w *walker) call(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "identifier" {
		return
	}
	switch w.text(fn) {
	case HookAssertType:
		w.assertType(n)
	case HookPrint:
		w.print(n)
	}
}

func (w *walker) args(n *sitter.Node) []*sitter.Node {
	argList := n.ChildByFieldName("arguments")
	if argList == nil {
		return nil
	}
	var out []*sitter.Node
	for i := uint(0); i < argList.NamedChildCount(); i++ {
		a := argList.NamedChild(i)
		if a == nil || a.Kind() == "comment" {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (w *walker) assertType(n *sitter.Node) {
	pos := position(n)
	args := w.args(n)
	if len(args) != 2 {
		w.f.Malformed = append(w.f.Malformed, MalformedHook{
			Position: pos,
			Hook:     HookAssertType,
			Message:  fmt.Sprintf("expected 2 arguments, got %d", len(args)),
		})
		return
	}
	expected, err := w.stringLiteral(args[1])
	if err != nil {
		w.f.Malformed = append(w.f.Malformed, MalformedHook{
			Position: pos,
			Hook:     HookAssertType,
			Message:  fmt.Sprintf("type argument: %v", err),
		})
		return
	}

	w.f.Assertions = append(w.f.Assertions, AssertionSite{
		Index:    len(w.f.Assertions),
		Position: pos,
		Section:  w.currentSection(pos.Line),
		Expr:     w.text(args[0]),
		ExprKind: args[0].Kind(),
		Expected: expected,
		Anchor:   w.anchor(n),
	})
}

func (w *walker) print(n *sitter.Node) {
	site := PrintSite{Index: len(w.f.Prints), Position: position(n)}
	for _, a := range w.args(n) {
		site.Args = append(site.Args, w.text(a))
	}
	w.f.Prints = append(w.f.Prints, site)
	w.printRows[int(n.StartPosition().Row)] = true
}

// stringLiteral decodes a JS string literal or a template literal without
// substitutions.
func (w *walker) stringLiteral(n *sitter.Node) (string, error) {
	raw := w.text(n)
	switch n.Kind() {
	case "string":
		return unquoteJS(raw)
	case "template_string":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			if c := n.NamedChild(i); c != nil && c.Kind() == "template_substitution" {
				return "", fmt.Errorf("template literal with substitutions")
			}
		}
		return unquoteJS(raw)
	default:
		return "", fmt.Errorf("want string literal, got %s", n.Kind())
	}
}

// anchor finds the statement an AssertType call annotates.
func (w *walker) anchor(call *sitter.Node) *Anchor {
	stmt := statementOf(call)
	if stmt == nil {
		return nil
	}
	for prev := stmt.PrevNamedSibling(); prev != nil; prev = prev.PrevNamedSibling() {
		if prev.Kind() == "comment" || w.isHookStatement(prev) {
			continue
		}
		return &Anchor{
			Line: position(prev).Line,
			Text: firstLine(w.text(prev)),
		}
	}
	return nil
}

func (w *walker) isHookStatement(n *sitter.Node) bool {
	if n.Kind() != "expression_statement" || n.NamedChildCount() == 0 {
		return false
	}
	expr := n.NamedChild(0)
	if expr == nil || expr.Kind() != "call_expression" {
		return false
	}
	fn := expr.ChildByFieldName("function")
	return fn != nil && fn.Kind() == "identifier" && w.text(fn) == HookAssertType
}

// statementOf walks up to the node that sits directly in a statement list.
func statementOf(n *sitter.Node) *sitter.Node {
	cur := n
	for {
		parent := cur.Parent()
		if parent == nil {
			return nil
		}
		if statementParents[parent.Kind()] {
			return cur
		}
		cur = parent
	}
}

func (w *walker) currentSection(line int) string {
	name := ""
	for _, s := range w.f.Sections {
		if s.Line < line {
			name = s.Name
		}
	}
	return name
}

// expectations collects trailing comments on lines where a print call
// starts.
func (w *walker) expectations() {
	seen := map[int]bool{}
	for _, c := range w.comments {
		text := w.text(c)
		if !strings.HasPrefix(text, "//") || hasTag(text) {
			continue
		}
		row := int(c.StartPosition().Row)
		if seen[row] || !w.printRows[row] || !w.trailing(c) {
			continue
		}
		seen[row] = true
		w.f.Expected = append(w.f.Expected, ExpectedOutput{
			Line: row + 1,
			Text: strings.TrimSpace(strings.TrimPrefix(text, "//")),
		})
	}
}

// trailing reports whether code precedes the comment on its line.
func (w *walker) trailing(c *sitter.Node) bool {
	start := int(c.StartByte())
	lineStart := bytes.LastIndexByte(w.src[:start], '\n') + 1
	return len(bytes.TrimSpace(w.src[lineStart:start])) > 0
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func sortRedeclarations(rs []Redeclaration) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Lines[0] != rs[j].Lines[0] {
			return rs[i].Lines[0] < rs[j].Lines[0]
		}
		return rs[i].Name < rs[j].Name
	})
}
