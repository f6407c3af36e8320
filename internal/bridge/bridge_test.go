package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xyproto/mkbridge/internal/proto"
)

func TestToAsmTailJumpWithoutRegisterArgs(t *testing.T) {
	p := proto.New("f", proto.Cdecl, proto.Stack(), proto.Stack())

	tr, err := ToAsm("f", p)
	require.NoError(t, err)
	require.Equal(t, ".global _f\n_f:\n\tjmp f\n\n", tr.String())
	require.Equal(t, []Line{{Kind: KindInstr, Op: OpJmp, Text: "f"}}, tr.Instructions())
	require.Equal(t, "_f", tr.Label)
	require.Equal(t, "f", tr.Target)
}

func TestFromAsmTailJumpWithoutRegisterArgs(t *testing.T) {
	p := proto.New("f", proto.Cdecl, proto.Stack(), proto.Stack())

	tr := FromAsm("f", p)
	require.Equal(t, "# __cdecl\n.global f\nf:\n\tjmp _f\n\n", tr.String())
	require.Equal(t, []Line{{Kind: KindInstr, Op: OpJmp, Text: "_f"}}, tr.Instructions())
}

func TestToAsmScratchRegistersOnly(t *testing.T) {
	p := proto.New("f", proto.Cdecl, proto.Reg("eax"), proto.Reg("edx"), proto.Reg("ecx"))

	tr, err := ToAsm("f", p)
	require.NoError(t, err)
	require.Equal(t, ".global _f\n"+
		"_f:\n"+
		"\tmovl 4(%esp), %eax\n"+
		"\tmovl 8(%esp), %edx\n"+
		"\tmovl 12(%esp), %ecx\n"+
		"\tjmp f\n"+
		"\n", tr.String())

	for _, op := range []Op{OpPush, OpPop, OpCall, OpRet, OpAdd} {
		assert.Zero(t, tr.Count(op), op.String())
	}
	assert.Equal(t, 3, tr.Count(OpMov))
}

func TestToAsmPreservedRegistersAndStackArg(t *testing.T) {
	p := proto.New("g", proto.Cdecl, proto.Reg("ebx"), proto.Stack(), proto.Reg("esi"))

	tr, err := ToAsm("g", p)
	require.NoError(t, err)
	require.Equal(t, ".global _g\n"+
		"_g:\n"+
		"\tpushl %ebx\n"+
		"\tpushl %esi\n"+
		"\tmovl 16(%esp), %eax\n"+
		"\tpushl %eax\n"+
		"\tmovl 16(%esp), %ebx\n"+
		"\tmovl 24(%esp), %esi\n"+
		"\n"+
		"\t# __cdecl\n"+
		"\tcall g\n"+
		"\n"+
		"\tadd $4,%esp\n"+
		"\tpopl %esi\n"+
		"\tpopl %ebx\n"+
		"\tret\n"+
		"\n", tr.String())
}

func TestFromAsmPreservedRegistersAndStackArg(t *testing.T) {
	p := proto.New("g", proto.Cdecl, proto.Reg("ebx"), proto.Stack(), proto.Reg("esi"))

	tr := FromAsm("g", p)
	require.Equal(t, "# __cdecl\n"+
		".global g\n"+
		"g:\n"+
		"\tpushl %edx\n"+
		"\tpushl %esi\n"+
		"\tmovl 12(%esp), %edx\n"+
		"\tpushl %edx\n"+
		"\tpushl %ebx\n"+
		"\n"+
		"\tcall _g\n"+
		"\n"+
		"\tadd $12,%esp\n"+
		"\tpopl %edx\n"+
		"\tret\n"+
		"\n", tr.String())
}

func TestToAsmStdcallLeavesCleanupToCallee(t *testing.T) {
	p := proto.New("s", proto.Stdcall, proto.Reg("eax"), proto.Stack(), proto.Stack())

	tr, err := ToAsm("s", p)
	require.NoError(t, err)
	require.Equal(t, ".global _s\n"+
		"_s:\n"+
		"\tmovl 12(%esp), %eax\n"+
		"\tpushl %eax\n"+
		"\tmovl 12(%esp), %eax\n"+
		"\tpushl %eax\n"+
		"\tmovl 12(%esp), %eax\n"+
		"\n"+
		"\t# __stdcall\n"+
		"\tcall s\n"+
		"\n"+
		"\tret\n"+
		"\n", tr.String())
	assert.Zero(t, tr.Count(OpAdd))
	assert.Equal(t, 2, tr.Count(OpPush))
}

func TestToAsmStdcallWithoutRegisterArgsIsNotATailJump(t *testing.T) {
	p := proto.New("z", proto.Stdcall, proto.Stack())

	tr, err := ToAsm("z", p)
	require.NoError(t, err)
	require.Equal(t, []Line{
		{Kind: KindInstr, Op: OpMov, Text: "4(%esp), %eax"},
		{Kind: KindInstr, Op: OpPush, Text: "%eax"},
		{Kind: KindInstr, Op: OpCall, Text: "z"},
		{Kind: KindInstr, Op: OpRet},
	}, tr.Instructions())
}

func TestFromAsmStdcallPopsStackArgs(t *testing.T) {
	p := proto.New("s", proto.Stdcall, proto.Reg("eax"), proto.Stack(), proto.Stack())

	tr := FromAsm("s", p)
	require.Equal(t, "# __stdcall\n"+
		".global s\n"+
		"s:\n"+
		"\tpushl %edx\n"+
		"\tmovl 12(%esp), %edx\n"+
		"\tpushl %edx\n"+
		"\tmovl 12(%esp), %edx\n"+
		"\tpushl %edx\n"+
		"\tpushl %eax\n"+
		"\n"+
		"\tcall _s\n"+
		"\n"+
		"\tadd $12,%esp\n"+
		"\tpopl %edx\n"+
		"\tret $8\n"+
		"\n", tr.String())
}

func TestFromAsmReturnEncoding(t *testing.T) {
	tests := []struct {
		name string
		p    *proto.Prototype
		ret  Line
	}{
		{
			name: "cdecl with stack args",
			p:    proto.New("f", proto.Cdecl, proto.Reg("ecx"), proto.Stack(), proto.Stack(), proto.Stack()),
			ret:  Line{Kind: KindInstr, Op: OpRet},
		},
		{
			name: "stdcall with stack args",
			p:    proto.New("f", proto.Stdcall, proto.Reg("ecx"), proto.Stack(), proto.Stack(), proto.Stack()),
			ret:  Line{Kind: KindInstr, Op: OpRet, Text: "$12"},
		},
		{
			name: "stdcall without stack args",
			p:    proto.New("f", proto.Stdcall, proto.Reg("ecx")),
			ret:  Line{Kind: KindInstr, Op: OpRet},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			instrs := FromAsm("f", tc.p).Instructions()
			require.Equal(t, tc.ret, instrs[len(instrs)-1])
		})
	}
}

func TestFromAsmNoCleanupForScratchSaveOnly(t *testing.T) {
	p := proto.New("n", proto.Stdcall)

	tr := FromAsm("n", p)
	require.Equal(t, []Line{
		{Kind: KindInstr, Op: OpPush, Text: "%edx"},
		{Kind: KindInstr, Op: OpCall, Text: "_n"},
		{Kind: KindInstr, Op: OpPop, Text: "%edx"},
		{Kind: KindInstr, Op: OpRet},
	}, tr.Instructions())
}

func TestToAsmRepushCountMatchesDeclaredStackArgs(t *testing.T) {
	p := proto.New("h", proto.Cdecl, proto.Stack(), proto.Reg("edi"), proto.Stack(), proto.Stack())

	tr, err := ToAsm("h", p)
	require.NoError(t, err)
	// one save of edi plus one push per stack argument
	require.Equal(t, 1+p.StackArgs, tr.Count(OpPush))
	require.Equal(t, 1, tr.Count(OpPop))
}

func TestToAsmInconsistentPrototype(t *testing.T) {
	p := proto.New("bad", proto.Cdecl, proto.Reg("ebx"), proto.Stack())
	p.StackArgs = 2

	tr, err := ToAsm("bad", p)
	require.ErrorIs(t, err, ErrStackArgMismatch)
	require.EqualError(t, err, "bad: stack argument count mismatch: repushed 1, prototype declares 2")
	require.Nil(t, tr)
}

func TestEmitterPrefix(t *testing.T) {
	e := Emitter{Prefix: "asm_"}
	p := proto.New("f", proto.Cdecl, proto.Stack())

	tr, err := e.Emit(DirToAsm, "f", p)
	require.NoError(t, err)
	require.Equal(t, ".global asm_f\nasm_f:\n\tjmp f\n\n", tr.String())

	tr, err = e.Emit(DirFromAsm, "f", p)
	require.NoError(t, err)
	require.Equal(t, "asm_f", tr.Target)

	_, err = e.Emit(Direction(7), "f", p)
	require.Error(t, err)
}

func TestEmitIsIndependentPerCall(t *testing.T) {
	p := proto.New("g", proto.Cdecl, proto.Reg("ebx"), proto.Stack(), proto.Reg("esi"))

	first, err := ToAsm("g", p)
	require.NoError(t, err)
	second, err := ToAsm("g", p)
	require.NoError(t, err)
	require.Equal(t, first.String(), second.String())
}

func TestUnsetBindingIsStackInBothDirections(t *testing.T) {
	unset := &proto.Prototype{
		Name:      "u",
		Args:      []proto.Argument{{Pos: 0, Type: "int", Bind: proto.InRegister{Reg: "ebx"}}, {Pos: 1, Type: "int"}},
		RegArgs:   1,
		StackArgs: 1,
		Conv:      proto.Cdecl,
	}
	explicit := proto.New("u", proto.Cdecl, proto.Reg("ebx"), proto.Stack())

	got, err := ToAsm("u", unset)
	require.NoError(t, err)
	want, err := ToAsm("u", explicit)
	require.NoError(t, err)
	require.Equal(t, want.String(), got.String())
	require.Equal(t, 2, got.Count(OpMov), "one stack copy and one register load")

	require.Equal(t, FromAsm("u", explicit).String(), FromAsm("u", unset).String())
}
