// Completion: 100% - CLI interface complete
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xyproto/mkbridge/internal/bridge"
	"github.com/xyproto/mkbridge/internal/proto"
	"github.com/xyproto/mkbridge/internal/symlist"
)

// cli.go - Command-line interface for mkbridge
//
// - mkbridge <bridge.s> <toasm_symf> <fromasm_symf> <hdrf> (shorthand for gen)
// - mkbridge gen <bridge.s> <toasm_symf> <fromasm_symf> <hdrf>
// - mkbridge show <hdrf> <sym>... (print trampolines to stdout)
// - mkbridge help / version

const usageLine = "usage: mkbridge [flags] <bridge.s> <toasm_symf> <fromasm_symf> <hdrf>"

// CommandContext holds the execution context for a CLI command
type CommandContext struct {
	Args     []string
	Emitter  bridge.Emitter
	Verbose  bool
	Watch    bool
	UseColor bool
	Stdout   io.Writer
}

// RunCLI is the main entry point for the CLI.
// It determines which command to run based on arguments.
func RunCLI(ctx context.Context, cc *CommandContext) error {
	if cc.Stdout == nil {
		cc.Stdout = os.Stdout
	}

	args := cc.Args
	if len(args) == 0 {
		return fmt.Errorf("%s\n\nRun 'mkbridge help' for usage information", usageLine)
	}

	switch args[0] {
	case "gen":
		return cmdGen(ctx, cc, args[1:])

	case "show":
		return cmdShow(cc, args[1:])

	case "help", "--help", "-h":
		return cmdHelp(cc)

	case "version", "--version", "-V":
		fmt.Fprintln(cc.Stdout, versionString)
		return nil

	default:
		// Positional form of the original tool
		if len(args) == 4 {
			return cmdGen(ctx, cc, args)
		}
		return fmt.Errorf("unknown command: %s\n\nRun 'mkbridge help' for usage information", args[0])
	}
}

// cmdGen writes the bridge file
func cmdGen(ctx context.Context, cc *CommandContext, args []string) error {
	if len(args) != 4 {
		return errors.New(usageLine)
	}

	paths := Paths{
		Output:      args[0],
		ToAsmList:   args[1],
		FromAsmList: args[2],
		Header:      args[3],
	}

	if cc.Verbose {
		fmt.Fprintf(os.Stderr, "Generating %s from %s (to asm: %s, from asm: %s)\n",
			paths.Output, paths.Header, paths.ToAsmList, paths.FromAsmList)
	}

	if cc.Watch {
		return watchAndRegenerate(ctx, paths, cc.Emitter, cc.UseColor)
	}
	return Run(ctx, paths, cc.Emitter)
}

// cmdShow prints both trampolines for each named symbol
func cmdShow(cc *CommandContext, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: mkbridge show <hdrf> <sym>...")
	}

	hdrf := args[0]
	h, err := proto.ParseFile(hdrf)
	if err != nil {
		if errors.Is(err, proto.ErrSyntax) {
			return ParseError(hdrf, err)
		}
		return InputError(hdrf, err)
	}

	for i, sym := range args[1:] {
		entry := symlist.Entry{Name: sym, File: "<command line>", Line: i + 1}
		p, err := h.Lookup(sym)
		if err != nil {
			return lookupFailure(h, entry, err)
		}

		fmt.Fprintf(cc.Stdout, "# %s\n\n", p)
		for _, dir := range []bridge.Direction{bridge.DirToAsm, bridge.DirFromAsm} {
			tr, err := cc.Emitter.Emit(dir, sym, p)
			if err != nil {
				return EmitError(entry.File, entry.Line, sym, err)
			}
			if _, err := tr.WriteTo(cc.Stdout); err != nil {
				return err
			}
		}
	}
	return nil
}

func cmdHelp(cc *CommandContext) error {
	fmt.Fprintf(cc.Stdout, `mkbridge - x86 calling convention bridge generator (%s)

USAGE:
    mkbridge [flags] <bridge.s> <toasm_symf> <fromasm_symf> <hdrf>
    mkbridge [flags] <command> [arguments]

COMMANDS:
    gen <bridge.s> <toasm_symf> <fromasm_symf> <hdrf>
                          Write trampolines for every listed symbol to bridge.s
    show <hdrf> <sym>...  Print both trampolines of the given symbols
    help                  Show this help message
    version               Show version information

INPUT FILES:
    toasm_symf            Symbols called from plain code into assembly
    fromasm_symf          Symbols called from assembly into plain code
    hdrf                  C header with IDA-style prototypes, e.g.
                          int __usercall sub_401000(int a1@<esi>, int a2);
    Symbol lists hold one name per line; empty lines and lines starting
    with ';' or '#' are ignored.

FLAGS:
    -v, --verbose          Verbose mode (MKBRIDGE_VERBOSE)
    -prefix <prefix>       Prefix of plain side symbols (MKBRIDGE_PREFIX, default "_")
    -color                 Colored error messages (MKBRIDGE_COLOR)
    -watch                 Regenerate whenever an input file changes
    -V, --version          Print version information and exit

`, versionString)
	return nil
}
