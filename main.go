// Completion: 100% - CLI interface complete, all flags working
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/xyproto/env/v2"

	"github.com/xyproto/mkbridge/internal/bridge"
)

// Generates i386 trampolines between plain cdecl code and hand written
// assembly that takes arguments in registers

const versionString = "mkbridge 1.0.0"

// VerboseMode enables progress output on stderr
var VerboseMode bool

func main() {
	// NOTE: Go's flag package stops parsing at the first non-flag argument
	// So flags must come BEFORE the filenames: mkbridge -v bridge.s ...
	var verbose = flag.Bool("v", env.Bool("MKBRIDGE_VERBOSE"), "verbose mode (show files read and symbols emitted)")
	var verboseLong = flag.Bool("verbose", false, "verbose mode (show files read and symbols emitted)")
	var versionShort = flag.Bool("V", false, "print version information and exit")
	var version = flag.Bool("version", false, "print version information and exit")
	var prefixFlag = flag.String("prefix", env.Str("MKBRIDGE_PREFIX", bridge.DefaultPrefix), "prefix of the plain side symbol names")
	var colorFlag = flag.Bool("color", env.Bool("MKBRIDGE_COLOR"), "colored error messages")
	var watchFlag = flag.Bool("watch", false, "watch mode: regenerate when the header or a symbol list changes")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), usageLine)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *version || *versionShort {
		fmt.Println(versionString)
		os.Exit(0)
	}

	// Set global verbosity flag (use whichever was specified)
	VerboseMode = *verbose || *verboseLong

	if VerboseMode {
		fmt.Fprintf(os.Stderr, "----=[ %s ]=----\n", versionString)
	}

	cc := &CommandContext{
		Args:     flag.Args(),
		Emitter:  bridge.Emitter{Prefix: *prefixFlag},
		Verbose:  VerboseMode,
		Watch:    *watchFlag,
		UseColor: *colorFlag,
		Stdout:   os.Stdout,
	}

	if err := RunCLI(context.Background(), cc); err != nil {
		fmt.Fprint(os.Stderr, FormatError(err, cc.UseColor))
		os.Exit(1)
	}
}
