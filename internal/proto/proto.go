// Completion: 100% - Prototype model complete
package proto

import (
	"fmt"
	"strings"
)

// Convention is the stack cleanup rule of a prototype
type Convention int

const (
	// Cdecl means the caller removes stack arguments after the call
	Cdecl Convention = iota
	// Stdcall means the callee removes its own stack arguments on return
	Stdcall
)

func (c Convention) String() string {
	switch c {
	case Cdecl:
		return "__cdecl"
	case Stdcall:
		return "__stdcall"
	default:
		return "unknown"
	}
}

// CalleeCleans returns true for callee-cleans (stdcall-style) conventions
func (c Convention) CalleeCleans() bool {
	return c == Stdcall
}

// Binding tells where an argument is passed. It is either InRegister or OnStack.
type Binding interface {
	binding()
	String() string
}

// InRegister binds an argument to a named register
type InRegister struct {
	Reg string
}

// OnStack marks an argument as stack-passed
type OnStack struct{}

func (InRegister) binding() {}
func (OnStack) binding()    {}

func (b InRegister) String() string { return "<" + b.Reg + ">" }
func (OnStack) String() string      { return "stack" }

// Argument is one declared parameter. Pos is the 0-based declaration index.
type Argument struct {
	Pos  int
	Type string
	Name string
	Bind Binding
}

// Binding returns where the argument is passed. An unset Bind means the stack.
func (a Argument) Binding() Binding {
	if a.Bind == nil {
		return OnStack{}
	}
	return a.Bind
}

// Reg returns the register the argument is bound to, if any
func (a Argument) Reg() (string, bool) {
	if r, ok := a.Binding().(InRegister); ok {
		return r.Reg, true
	}
	return "", false
}

// OnStack returns true if the argument is stack-passed
func (a Argument) OnStack() bool {
	_, ok := a.Binding().(OnStack)
	return ok
}

// Prototype is the argument layout of a single symbol.
// RegArgs and StackArgs are stored as declared, so that an inconsistent
// record from a broken parser can still be represented.
type Prototype struct {
	Name      string
	Args      []Argument
	RegArgs   int
	StackArgs int
	Conv      Convention
}

// New creates a prototype and derives the register/stack counts from args.
// Argument positions are renumbered in declaration order.
func New(name string, conv Convention, args ...Argument) *Prototype {
	p := &Prototype{
		Name: name,
		Args: make([]Argument, len(args)),
		Conv: conv,
	}
	for i, a := range args {
		a.Pos = i
		a.Bind = a.Binding()
		p.Args[i] = a
		if a.OnStack() {
			p.StackArgs++
		} else {
			p.RegArgs++
		}
	}
	return p
}

// Reg is a shorthand for an unnamed int argument passed in a register
func Reg(reg string) Argument {
	return Argument{Type: "int", Bind: InRegister{Reg: reg}}
}

// Stack is a shorthand for an unnamed int argument passed on the stack
func Stack() Argument {
	return Argument{Type: "int", Bind: OnStack{}}
}

// Argc returns the total number of declared arguments
func (p *Prototype) Argc() int {
	return len(p.Args)
}

// String returns the prototype in the same notation the header parser accepts
func (p *Prototype) String() string {
	var sb strings.Builder
	sb.WriteString(p.Conv.String())
	sb.WriteByte(' ')
	sb.WriteString(p.Name)
	sb.WriteByte('(')
	for i, a := range p.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.Type)
		if a.Name != "" {
			sb.WriteByte(' ')
			sb.WriteString(a.Name)
		}
		if reg, ok := a.Reg(); ok {
			fmt.Fprintf(&sb, "<%s>", reg)
		}
	}
	sb.WriteByte(')')
	return sb.String()
}
