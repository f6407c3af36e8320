// Completion: 100% - Header prototype parser complete
package proto

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// Header parser for IDA-style C prototypes, for example:
//
//	int __stdcall sub_401000(int a1<eax>, char *a2, int a3@<ecx>);
//	void __usercall sub_402000(int a1@<esi>);
//
// Only function declarations are collected. Typedefs, struct bodies,
// variables and preprocessor lines are skipped.

var (
	// ErrNotFound is returned by Lookup for symbols the header does not declare
	ErrNotFound = errors.New("prototype not found")
	// ErrSyntax is wrapped by every malformed declaration error
	ErrSyntax = errors.New("syntax error")
)

// SyntaxError is a malformed declaration. It unwraps to ErrSyntax.
type SyntaxError struct {
	File string
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: %s: %s", e.File, e.Line, ErrSyntax, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}

// x86 registers that may carry an argument
var argRegs = map[string]bool{
	"eax": true,
	"ebx": true,
	"ecx": true,
	"edx": true,
	"esi": true,
	"edi": true,
	"ebp": true,
}

// convKeywords maps calling convention keywords to the cleanup rule and
// the registers implicitly used for the leading unannotated arguments.
var convKeywords = map[string]struct {
	conv     Convention
	implicit []string
}{
	"__cdecl":     {conv: Cdecl},
	"_cdecl":      {conv: Cdecl},
	"__usercall":  {conv: Cdecl},
	"__stdcall":   {conv: Stdcall},
	"_stdcall":    {conv: Stdcall},
	"WINAPI":      {conv: Stdcall},
	"CALLBACK":    {conv: Stdcall},
	"APIENTRY":    {conv: Stdcall},
	"__userpurge": {conv: Stdcall},
	"__fastcall":  {conv: Stdcall, implicit: []string{"ecx", "edx"}},
	"__thiscall":  {conv: Stdcall, implicit: []string{"ecx"}},
}

type tokenType int

const (
	tokIdent tokenType = iota
	tokNumber
	tokPunct
	tokPreprocessor
)

type token struct {
	typ   tokenType
	value string
	line  int
}

// Header holds every prototype declared in one header file.
// Declarations that could not be parsed are kept with their error, so only
// looking them up fails.
type Header struct {
	File     string
	protos   map[string]*Prototype
	rejected map[string]error
	order    []string
}

// Lookup returns the prototype declared for sym. A symbol whose
// declaration is malformed yields its *SyntaxError.
func (h *Header) Lookup(sym string) (*Prototype, error) {
	if err, ok := h.rejected[sym]; ok {
		return nil, err
	}
	p, ok := h.protos[sym]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sym)
	}
	return p, nil
}

// Rejected returns the number of malformed declarations
func (h *Header) Rejected() int {
	return len(h.rejected)
}

// Len returns the number of parsed prototypes
func (h *Header) Len() int {
	return len(h.order)
}

// Names returns the declared symbol names in header order
func (h *Header) Names() []string {
	return append([]string(nil), h.order...)
}

// ParseFile reads and parses a header file
func ParseFile(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, path)
}

// Parse parses header source. file is only used in error messages.
// The first declaration of a symbol wins, malformed or not. Parse itself
// only fails when a statement cannot be delimited.
func Parse(r io.Reader, file string) (*Header, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	h := &Header{
		File:     file,
		protos:   make(map[string]*Prototype),
		rejected: make(map[string]error),
	}

	p := &parser{file: file, tokens: tokenize(string(content))}
	for {
		stmt := p.nextStatement()
		if stmt == nil {
			break
		}
		proto, name, err := p.parseDecl(stmt)
		if err != nil && name == "" {
			return nil, err
		}
		if name == "" || h.declared(name) {
			continue
		}
		if err != nil {
			h.rejected[name] = err
			continue
		}
		h.protos[name] = proto
		h.order = append(h.order, name)
	}
	return h, nil
}

// tokenize splits header source into identifiers, numbers and punctuation.
// Comments are dropped and every preprocessor line becomes a single token.
func tokenize(source string) []token {
	var tokens []token
	lines := strings.Split(source, "\n")

	inMultiLineComment := false

	for lineNum, line := range lines {
		i := 0
		for i < len(line) {
			if inMultiLineComment {
				end := strings.Index(line[i:], "*/")
				if end < 0 {
					break
				}
				i += end + 2
				inMultiLineComment = false
				continue
			}

			c := line[i]

			if unicode.IsSpace(rune(c)) {
				i++
				continue
			}

			if c == '#' && strings.TrimSpace(line[:i]) == "" {
				tokens = append(tokens, token{typ: tokPreprocessor, value: strings.TrimSpace(line[i:]), line: lineNum + 1})
				break
			}

			if strings.HasPrefix(line[i:], "//") {
				break
			}

			if strings.HasPrefix(line[i:], "/*") {
				i += 2
				inMultiLineComment = true
				continue
			}

			if strings.HasPrefix(line[i:], "...") {
				tokens = append(tokens, token{typ: tokPunct, value: "...", line: lineNum + 1})
				i += 3
				continue
			}

			if unicode.IsLetter(rune(c)) || c == '_' {
				start := i
				for i < len(line) && (unicode.IsLetter(rune(line[i])) || unicode.IsDigit(rune(line[i])) || line[i] == '_') {
					i++
				}
				tokens = append(tokens, token{typ: tokIdent, value: line[start:i], line: lineNum + 1})
				continue
			}

			if unicode.IsDigit(rune(c)) {
				start := i
				for i < len(line) && (unicode.IsLetter(rune(line[i])) || unicode.IsDigit(rune(line[i]))) {
					i++
				}
				tokens = append(tokens, token{typ: tokNumber, value: line[start:i], line: lineNum + 1})
				continue
			}

			tokens = append(tokens, token{typ: tokPunct, value: string(c), line: lineNum + 1})
			i++
		}
	}

	return tokens
}

type parser struct {
	file   string
	tokens []token
	pos    int
}

// nextStatement returns the tokens of the next top-level statement: up to a
// ';' outside of braces, or up to the '}' closing a function body.
// Preprocessor lines are skipped. Returns nil at the end of input.
func (p *parser) nextStatement() []token {
	for p.pos < len(p.tokens) && p.tokens[p.pos].typ == tokPreprocessor {
		p.pos++
	}
	if p.pos >= len(p.tokens) {
		return nil
	}

	var stmt []token
	depth := 0
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		p.pos++
		if tok.typ == tokPreprocessor {
			continue
		}
		if tok.value == "}" && depth == 0 {
			// closes an extern "C" block
			continue
		}
		stmt = append(stmt, tok)
		switch tok.value {
		case "{":
			if depth == 0 && stmt[0].value == "extern" && len(stmt) > 1 && stmt[1].value == `"` {
				stmt = stmt[:0]
				continue
			}
			depth++
		case "}":
			depth--
			if depth == 0 && !isAggregate(stmt[0].value) {
				return stmt
			}
		case ";":
			if depth == 0 {
				return stmt
			}
		}
	}
	return stmt
}

func isAggregate(word string) bool {
	switch word {
	case "typedef", "struct", "union", "enum":
		return true
	}
	return false
}

func (h *Header) declared(name string) bool {
	_, good := h.protos[name]
	_, bad := h.rejected[name]
	return good || bad
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &SyntaxError{File: p.file, Line: tok.line, Msg: fmt.Sprintf(format, args...)}
}

// parseDecl turns one statement into a prototype and returns the declared
// name alongside it. Statements that are not function declarations yield
// an empty name. An error with an empty name means the statement could not
// be delimited and the rest of the header is unreliable.
func (p *parser) parseDecl(stmt []token) (*Prototype, string, error) {
	if len(stmt) == 0 || isAggregate(stmt[0].value) {
		return nil, "", nil
	}
	stmt = stripAttributes(stmt)
	for _, tok := range stmt {
		if tok.value == "{" {
			return nil, "", nil
		}
	}

	lparen := -1
	for i, tok := range stmt {
		if tok.value == "(" {
			lparen = i
			break
		}
	}
	if lparen < 1 {
		return nil, "", nil
	}

	head := stmt[:lparen]
	// Return register annotation: name@<reg>
	if n := len(head); n >= 5 && head[n-1].value == ">" && head[n-3].value == "<" && head[n-4].value == "@" {
		head = head[:n-4]
	}
	nameTok := head[len(head)-1]
	if len(head) < 2 || nameTok.typ != tokIdent || isTypeWord(nameTok.value) {
		// function pointer variable or similar
		return nil, "", nil
	}
	name := nameTok.value

	conv := Cdecl
	var implicit []string
	for _, tok := range head[:len(head)-1] {
		if kw, ok := convKeywords[tok.value]; ok {
			conv = kw.conv
			implicit = kw.implicit
		}
	}

	rparen := matchParen(stmt, lparen)
	if rparen < 0 {
		return nil, "", p.errorf(stmt[lparen], "unbalanced parentheses in declaration of %s", name)
	}
	if rest := stmt[rparen+1:]; len(rest) != 1 || rest[0].value != ";" {
		return nil, name, p.errorf(stmt[rparen], "unexpected tokens after parameter list of %s", name)
	}

	args, err := p.parseParams(name, stmt[lparen+1:rparen])
	if err != nil {
		return nil, name, err
	}

	for _, reg := range implicit {
		for i := range args {
			if args[i].Bind == nil {
				args[i].Bind = InRegister{Reg: reg}
				break
			}
		}
	}

	regs := lo.FilterMap(args, func(a Argument, _ int) (string, bool) {
		r, ok := a.Bind.(InRegister)
		return r.Reg, ok
	})
	if dups := lo.FindDuplicates(regs); len(dups) > 0 {
		return nil, name, p.errorf(nameTok, "register %s bound to more than one argument of %s", dups[0], name)
	}

	return New(name, conv, args...), name, nil
}

// stripAttributes drops __declspec(...) and __attribute__((...)) groups
func stripAttributes(stmt []token) []token {
	out := make([]token, 0, len(stmt))
	for i := 0; i < len(stmt); i++ {
		v := stmt[i].value
		if (v == "__declspec" || v == "__attribute__") && i+1 < len(stmt) && stmt[i+1].value == "(" {
			if end := matchParen(stmt, i+1); end > 0 {
				i = end
				continue
			}
		}
		out = append(out, stmt[i])
	}
	return out
}

func matchParen(toks []token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch toks[i].value {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseParams parses the tokens between the parameter list parentheses.
// Arguments without a register annotation are returned with a nil Bind.
func (p *parser) parseParams(fn string, toks []token) ([]Argument, error) {
	if len(toks) == 0 || (len(toks) == 1 && toks[0].value == "void") {
		return nil, nil
	}

	var groups [][]token
	start, depth := 0, 0
	for i, tok := range toks {
		switch tok.value {
		case "(", "[":
			depth++
		case ")", "]":
			depth--
		case ",":
			if depth == 0 {
				groups = append(groups, toks[start:i])
				start = i + 1
			}
		}
	}
	groups = append(groups, toks[start:])

	args := make([]Argument, 0, len(groups))
	for i, g := range groups {
		if len(g) == 0 {
			return nil, p.errorf(toks[0], "empty parameter %d of %s", i+1, fn)
		}
		if g[0].value == "..." {
			return nil, p.errorf(g[0], "variadic function %s cannot be bridged", fn)
		}

		arg := Argument{Pos: i}

		// Register annotation: <reg> or @<reg>
		if n := len(g); n >= 3 && g[n-1].value == ">" && g[n-3].value == "<" {
			reg := g[n-2].value
			if !argRegs[reg] {
				return nil, p.errorf(g[n-2], "unknown argument register %q in %s", reg, fn)
			}
			arg.Bind = InRegister{Reg: reg}
			g = g[:n-3]
			if len(g) > 0 && g[len(g)-1].value == "@" {
				g = g[:len(g)-1]
			}
		}
		if len(g) == 0 {
			return nil, p.errorf(toks[0], "parameter %d of %s has no type", i+1, fn)
		}

		if last := g[len(g)-1]; len(g) > 1 && last.typ == tokIdent && !isTypeWord(last.value) {
			arg.Name = last.value
			g = g[:len(g)-1]
		}
		arg.Type = joinType(g)
		args = append(args, arg)
	}
	return args, nil
}

func isTypeWord(word string) bool {
	switch word {
	case "const", "volatile", "unsigned", "signed", "int", "char", "short", "long",
		"float", "double", "void", "struct", "union", "enum":
		return true
	}
	return false
}

func joinType(toks []token) string {
	parts := lo.Map(toks, func(t token, _ int) string { return t.value })
	return strings.ReplaceAll(strings.Join(parts, " "), " *", "*")
}
