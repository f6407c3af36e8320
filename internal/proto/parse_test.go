package proto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testHeader = `
#include <windows.h>
#define MAX_PATH 260

// recompiled game code
typedef struct _POINT {
	int x;
	int y;
} POINT;

int __cdecl plain_func(int a1, char *a2);
int __stdcall std_func(int a1, int a2, int a3);
int __usercall mixed_func@<eax>(int a1@<esi>, int a2, int a3@<edi>);
void __userpurge purge_func(int a1<ebx>, int a2);
int __fastcall fast_func(int a1, int a2, int a3);
void __thiscall Obj_method(void *this, int x);
/* void hidden_func(int a); */
void no_args(void);
void empty_args();
__declspec(dllimport) int WINAPI imported_func(HWND hwnd, UINT msg);
int global_var;
int (*fn_ptr)(int);

extern "C" {
int __cdecl wrapped_func(int a1<ecx>);
}

static int inline_body(int a) { return a; }
int plain_func(int other);
`

func parseTestHeader(t *testing.T) *Header {
	h, err := Parse(strings.NewReader(testHeader), "test.h")
	require.NoError(t, err)
	return h
}

func TestParseCollectsFunctionDeclarations(t *testing.T) {
	h := parseTestHeader(t)
	require.Equal(t, []string{
		"plain_func", "std_func", "mixed_func", "purge_func", "fast_func",
		"Obj_method", "no_args", "empty_args", "imported_func", "wrapped_func",
	}, h.Names())
	require.Equal(t, 10, h.Len())
}

func TestParsePlainCdecl(t *testing.T) {
	p, err := parseTestHeader(t).Lookup("plain_func")
	require.NoError(t, err)
	require.Equal(t, Cdecl, p.Conv)
	require.Equal(t, 2, p.Argc())
	require.Equal(t, 0, p.RegArgs)
	require.Equal(t, 2, p.StackArgs)
	require.Equal(t, "char*", p.Args[1].Type)
	require.Equal(t, "a2", p.Args[1].Name)
}

func TestParseUsercall(t *testing.T) {
	p, err := parseTestHeader(t).Lookup("mixed_func")
	require.NoError(t, err)
	require.Equal(t, Cdecl, p.Conv)
	require.Equal(t, 2, p.RegArgs)
	require.Equal(t, 1, p.StackArgs)

	reg, ok := p.Args[0].Reg()
	require.True(t, ok)
	require.Equal(t, "esi", reg)
	require.True(t, p.Args[1].OnStack())
	reg, ok = p.Args[2].Reg()
	require.True(t, ok)
	require.Equal(t, "edi", reg)
	require.Equal(t, 2, p.Args[2].Pos)
}

func TestParseCalleeCleansConventions(t *testing.T) {
	h := parseTestHeader(t)
	for _, name := range []string{"std_func", "purge_func", "fast_func", "Obj_method", "imported_func"} {
		p, err := h.Lookup(name)
		require.NoError(t, err, name)
		require.Equal(t, Stdcall, p.Conv, name)
		require.True(t, p.Conv.CalleeCleans(), name)
	}
}

func TestParseImplicitRegisters(t *testing.T) {
	h := parseTestHeader(t)

	p, err := h.Lookup("fast_func")
	require.NoError(t, err)
	require.Equal(t, InRegister{Reg: "ecx"}, p.Args[0].Bind)
	require.Equal(t, InRegister{Reg: "edx"}, p.Args[1].Bind)
	require.Equal(t, OnStack{}, p.Args[2].Bind)

	p, err = h.Lookup("Obj_method")
	require.NoError(t, err)
	require.Equal(t, InRegister{Reg: "ecx"}, p.Args[0].Bind)
	require.Equal(t, 1, p.StackArgs)
}

func TestParseNoArguments(t *testing.T) {
	h := parseTestHeader(t)
	for _, name := range []string{"no_args", "empty_args"} {
		p, err := h.Lookup(name)
		require.NoError(t, err)
		require.Zero(t, p.Argc())
	}
}

func TestParseExternCBlock(t *testing.T) {
	p, err := parseTestHeader(t).Lookup("wrapped_func")
	require.NoError(t, err)
	require.Equal(t, 1, p.RegArgs)
}

func TestParseFirstDeclarationWins(t *testing.T) {
	p, err := parseTestHeader(t).Lookup("plain_func")
	require.NoError(t, err)
	require.Equal(t, 2, p.Argc())
}

func TestLookupUnknownSymbol(t *testing.T) {
	_, err := parseTestHeader(t).Lookup("hidden_func")
	require.ErrorIs(t, err, ErrNotFound)
	require.EqualError(t, err, "prototype not found: hidden_func")
}

func TestParseRejectedDeclarations(t *testing.T) {
	tests := []struct {
		name   string
		source string
		sym    string
		msg    string
	}{
		{
			name:   "unknown register",
			source: "int f(int a<xmm0>);",
			sym:    "f",
			msg:    `test.h:1: syntax error: unknown argument register "xmm0" in f`,
		},
		{
			name:   "byte register",
			source: "char __usercall g@<al>(char a1@<cl>);",
			sym:    "g",
			msg:    `test.h:1: syntax error: unknown argument register "cl" in g`,
		},
		{
			name:   "duplicate register",
			source: "int f(int a<eax>,\n int b<eax>);",
			sym:    "f",
			msg:    "test.h:1: syntax error: register eax bound to more than one argument of f",
		},
		{
			name:   "variadic",
			source: "int printf(const char *fmt, ...);",
			sym:    "printf",
			msg:    "test.h:1: syntax error: variadic function printf cannot be bridged",
		},
		{
			name:   "trailing tokens",
			source: "int f(int a) const;",
			sym:    "f",
			msg:    "test.h:1: syntax error: unexpected tokens after parameter list of f",
		},
		{
			name:   "empty parameter",
			source: "int f(int a, );",
			sym:    "f",
			msg:    "test.h:1: syntax error: empty parameter 2 of f",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, err := Parse(strings.NewReader(tc.source+"\nint ok(int a);\n"), "test.h")
			require.NoError(t, err)
			require.Equal(t, []string{"ok"}, h.Names())
			require.Equal(t, 1, h.Rejected())

			_, err = h.Lookup(tc.sym)
			require.ErrorIs(t, err, ErrSyntax)
			require.EqualError(t, err, tc.msg)

			var se *SyntaxError
			require.ErrorAs(t, err, &se)
			require.Equal(t, 1, se.Line)

			_, err = h.Lookup("ok")
			require.NoError(t, err)
		})
	}
}

func TestParseFirstDeclarationWinsEvenIfMalformed(t *testing.T) {
	h, err := Parse(strings.NewReader("int f(int a, ...);\nint f(int a);\n"), "test.h")
	require.NoError(t, err)
	_, err = h.Lookup("f")
	require.ErrorIs(t, err, ErrSyntax)
	require.Zero(t, h.Len())
}

func TestParseUnbalancedParenthesesIsFatal(t *testing.T) {
	_, err := Parse(strings.NewReader("int ok(int a);\nint f(int a;\n"), "test.h")
	require.ErrorIs(t, err, ErrSyntax)
	require.EqualError(t, err, "test.h:2: syntax error: unbalanced parentheses in declaration of f")
}

func TestPrototypeString(t *testing.T) {
	p, err := parseTestHeader(t).Lookup("mixed_func")
	require.NoError(t, err)
	require.Equal(t, "__cdecl mixed_func(int a1<esi>, int a2, int a3<edi>)", p.String())
}

func TestNewCountsBindings(t *testing.T) {
	p := New("f", Stdcall, Reg("eax"), Stack(), Reg("ebx"), Argument{Type: "int"})
	require.Equal(t, 2, p.RegArgs)
	require.Equal(t, 2, p.StackArgs)
	require.Equal(t, OnStack{}, p.Args[3].Bind)
	for i, a := range p.Args {
		require.Equal(t, i, a.Pos)
	}
}

func TestArgumentWithoutBindingIsOnStack(t *testing.T) {
	a := Argument{Type: "int"}
	require.True(t, a.OnStack())
	require.Equal(t, OnStack{}, a.Binding())
	_, ok := a.Reg()
	require.False(t, ok)
}
