// Completion: 100% - Instruction implementation complete
package bridge

import (
	"fmt"
	"io"
	"strings"
)

// Textual i386 instructions in GNU AT&T syntax.
// Only the handful needed to move arguments between calling conventions:
//   - movl from the stack frame into a register
//   - pushl / popl of a register
//   - call / jmp to a symbol
//   - add of an immediate to %esp
//   - ret, with or without an immediate byte count

// Op is the instruction mnemonic of a line
type Op int

const (
	OpNone Op = iota
	OpMov
	OpPush
	OpPop
	OpCall
	OpJmp
	OpAdd
	OpRet
)

func (op Op) String() string {
	switch op {
	case OpMov:
		return "movl"
	case OpPush:
		return "pushl"
	case OpPop:
		return "popl"
	case OpCall:
		return "call"
	case OpJmp:
		return "jmp"
	case OpAdd:
		return "add"
	case OpRet:
		return "ret"
	default:
		return ""
	}
}

// LineKind says how a line is rendered
type LineKind int

const (
	KindBlank LineKind = iota
	KindComment
	KindDirective
	KindLabel
	KindInstr
)

// Line is one line of emitted assembly.
// For instructions, Text holds the operands.
type Line struct {
	Kind   LineKind
	Op     Op
	Text   string
	Indent bool
}

func (l Line) String() string {
	switch l.Kind {
	case KindComment:
		if l.Indent {
			return "\t# " + l.Text
		}
		return "# " + l.Text
	case KindDirective:
		return l.Text
	case KindLabel:
		return l.Text + ":"
	case KindInstr:
		if l.Text == "" {
			return "\t" + l.Op.String()
		}
		return "\t" + l.Op.String() + " " + l.Text
	default:
		return ""
	}
}

// Trampoline is the emitted bridge for one symbol
type Trampoline struct {
	Label  string
	Target string
	Lines  []Line
}

// Instructions returns only the instruction lines, in order
func (t *Trampoline) Instructions() []Line {
	var instrs []Line
	for _, l := range t.Lines {
		if l.Kind == KindInstr {
			instrs = append(instrs, l)
		}
	}
	return instrs
}

// Count returns how many instructions with the given mnemonic were emitted
func (t *Trampoline) Count(op Op) int {
	n := 0
	for _, l := range t.Lines {
		if l.Kind == KindInstr && l.Op == op {
			n++
		}
	}
	return n
}

// String renders the trampoline, one line per Line, each newline terminated
func (t *Trampoline) String() string {
	var sb strings.Builder
	t.WriteTo(&sb)
	return sb.String()
}

// WriteTo writes the rendered trampoline to w
func (t *Trampoline) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, l := range t.Lines {
		n, err := io.WriteString(w, l.String()+"\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Out collects the lines of one trampoline
type Out struct {
	t *Trampoline
}

func newOut(label, target string) *Out {
	return &Out{t: &Trampoline{Label: label, Target: target}}
}

func (o *Out) emit(l Line) {
	o.t.Lines = append(o.t.Lines, l)
}

func (o *Out) instr(op Op, format string, args ...any) {
	o.emit(Line{Kind: KindInstr, Op: op, Text: fmt.Sprintf(format, args...)})
}

// Blank emits an empty line
func (o *Out) Blank() {
	o.emit(Line{Kind: KindBlank})
}

// Comment emits a comment, indented to instruction level if indent is set
func (o *Out) Comment(text string, indent bool) {
	o.emit(Line{Kind: KindComment, Text: text, Indent: indent})
}

// Global exports sym
func (o *Out) Global(sym string) {
	o.emit(Line{Kind: KindDirective, Text: ".global " + sym})
}

// Label defines sym at the current position
func (o *Out) Label(sym string) {
	o.emit(Line{Kind: KindLabel, Text: sym})
}

// MovMemToReg loads a dword from offset(base) into dst
func (o *Out) MovMemToReg(dst, base string, offset int) {
	o.instr(OpMov, "%d(%%%s), %%%s", offset, base, dst)
}

// PushReg pushes a register value onto the stack
func (o *Out) PushReg(reg string) {
	o.instr(OpPush, "%%%s", reg)
}

// PopReg pops a value from the stack into a register
func (o *Out) PopReg(reg string) {
	o.instr(OpPop, "%%%s", reg)
}

// Call calls sym
func (o *Out) Call(sym string) {
	o.instr(OpCall, "%s", sym)
}

// Jump transfers control to sym without pushing a return address
func (o *Out) Jump(sym string) {
	o.instr(OpJmp, "%s", sym)
}

// AddImmToReg adds imm to dst
func (o *Out) AddImmToReg(dst string, imm int) {
	o.instr(OpAdd, "$%d,%%%s", imm, dst)
}

// Ret generates a near return
func (o *Out) Ret() {
	o.instr(OpRet, "")
}

// RetImm generates a return that also pops popBytes of arguments
func (o *Out) RetImm(popBytes int) {
	o.instr(OpRet, "$%d", popBytes)
}

func (o *Out) done() *Trampoline {
	return o.t
}
