// Completion: 100% - Bridge emitter complete
package bridge

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/xyproto/mkbridge/internal/proto"
)

// Bridge trampolines between plain cdecl code, where every argument is on
// the stack, and hand written assembly, where some arguments live in
// registers and the callee may clean the stack (stdcall).
//
// For a symbol sym the assembly side is called sym and the plain side is
// called Prefix+sym (for example _sym):
//   - ToAsm emits _sym, which takes every argument on the stack and
//     forwards to sym with the register arguments loaded
//   - FromAsm emits sym, which takes register arguments in registers and
//     forwards to _sym with every argument pushed on the stack
//
// Stack offsets are counted in words from %esp; word 0 is the return address.

// DefaultPrefix is prepended to a symbol to name its plain side
const DefaultPrefix = "_"

// ErrStackArgMismatch means the number of stack arguments found in the
// argument list differs from the count the prototype declares
var ErrStackArgMismatch = errors.New("stack argument count mismatch")

// Direction selects which side of the bridge is emitted
type Direction int

const (
	DirToAsm Direction = iota
	DirFromAsm
)

func (d Direction) String() string {
	switch d {
	case DirToAsm:
		return "to asm"
	case DirFromAsm:
		return "from asm"
	default:
		return "unknown"
	}
}

// Emitter emits trampolines. The zero value uses DefaultPrefix.
type Emitter struct {
	Prefix string
}

func (e Emitter) plain(sym string) string {
	if e.Prefix == "" {
		return DefaultPrefix + sym
	}
	return e.Prefix + sym
}

// Emit emits the trampoline for sym in the given direction
func (e Emitter) Emit(dir Direction, sym string, p *proto.Prototype) (*Trampoline, error) {
	switch dir {
	case DirToAsm:
		return e.ToAsm(sym, p)
	case DirFromAsm:
		return e.FromAsm(sym, p), nil
	default:
		return nil, fmt.Errorf("unknown bridge direction %d", dir)
	}
}

// ToAsm emits the trampoline for the default prefix
func ToAsm(sym string, p *proto.Prototype) (*Trampoline, error) {
	return Emitter{}.ToAsm(sym, p)
}

// FromAsm emits the trampoline for the default prefix
func FromAsm(sym string, p *proto.Prototype) *Trampoline {
	return Emitter{}.FromAsm(sym, p)
}

// ToAsm emits the plain side label of sym, forwarding to the assembly side.
// The only failure is ErrStackArgMismatch, which means p is corrupt.
func (e Emitter) ToAsm(sym string, p *proto.Prototype) (*Trampoline, error) {
	label := e.plain(sym)
	o := newOut(label, sym)
	o.Global(label)
	o.Label(label)

	calleeCleans := p.Conv.CalleeCleans()

	// Same layout on both sides
	if p.RegArgs == 0 && !calleeCleans {
		o.Jump(sym)
		o.Blank()
		return o.done(), nil
	}

	regArgs := lo.Filter(p.Args, func(a proto.Argument, _ int) bool {
		_, ok := a.Reg()
		return ok
	})
	mustSave := lo.SomeBy(regArgs, func(a proto.Argument) bool {
		reg, _ := a.Reg()
		return MustPreserve(reg)
	})

	// Load the registers straight from the caller's frame and tail jump
	if p.StackArgs == 0 && !mustSave && !calleeCleans {
		for _, a := range regArgs {
			reg, _ := a.Reg()
			o.MovMemToReg(reg, stackPointer, (a.Pos+1)*wordSize)
		}
		o.Jump(sym)
		o.Blank()
		return o.done(), nil
	}

	argOfs := 1 // words between %esp and the first argument

	var saved []string
	for _, a := range regArgs {
		if reg, _ := a.Reg(); MustPreserve(reg) {
			o.PushReg(reg)
			saved = append(saved, reg)
			argOfs++
		}
	}

	repushed := 0
	for i := len(p.Args) - 1; i >= 0; i-- {
		a := p.Args[i]
		if !a.OnStack() {
			continue
		}
		o.MovMemToReg(toAsmScratch, stackPointer, (a.Pos+argOfs)*wordSize)
		o.PushReg(toAsmScratch)
		argOfs++
		repushed++
	}
	if repushed != p.StackArgs {
		return nil, fmt.Errorf("%s: %w: repushed %d, prototype declares %d",
			sym, ErrStackArgMismatch, repushed, p.StackArgs)
	}

	// Registers last, so the scratch register can't clobber one
	for _, a := range regArgs {
		reg, _ := a.Reg()
		o.MovMemToReg(reg, stackPointer, (a.Pos+argOfs)*wordSize)
	}

	o.Blank()
	o.Comment(p.Conv.String(), true)
	o.Call(sym)
	o.Blank()

	if repushed > 0 && !calleeCleans {
		o.AddImmToReg(stackPointer, repushed*wordSize)
	}

	for i := len(saved) - 1; i >= 0; i-- {
		o.PopReg(saved[i])
	}

	o.Ret()
	o.Blank()
	return o.done(), nil
}

// FromAsm emits the assembly side label of sym, forwarding to the plain side
func (e Emitter) FromAsm(sym string, p *proto.Prototype) *Trampoline {
	target := e.plain(sym)
	o := newOut(sym, target)
	o.Comment(p.Conv.String(), false)
	o.Global(sym)
	o.Label(sym)

	if p.RegArgs == 0 && !p.Conv.CalleeCleans() {
		o.Jump(target)
		o.Blank()
		return o.done()
	}

	o.PushReg(fromAsmScratch)
	argOfs := 2 // saved scratch register and return address

	stackArgs := p.StackArgs
	for i := len(p.Args) - 1; i >= 0; i-- {
		a := p.Args[i]
		if reg, ok := a.Reg(); ok {
			o.PushReg(reg)
		} else {
			o.MovMemToReg(fromAsmScratch, stackPointer, (argOfs+stackArgs-1)*wordSize)
			o.PushReg(fromAsmScratch)
			stackArgs--
		}
		argOfs++
	}

	// The plain side is always called as cdecl; this frame is ours to drop
	o.Blank()
	o.Call(target)
	o.Blank()

	if argOfs > 2 {
		o.AddImmToReg(stackPointer, (argOfs-2)*wordSize)
	}

	o.PopReg(fromAsmScratch)

	if p.Conv.CalleeCleans() && p.StackArgs > 0 {
		o.RetImm(p.StackArgs * wordSize)
	} else {
		o.Ret()
	}
	o.Blank()
	return o.done()
}
