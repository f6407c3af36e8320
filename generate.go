// Completion: 100% - Bridge generation pipeline complete
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/xyproto/mkbridge/internal/bridge"
	"github.com/xyproto/mkbridge/internal/proto"
	"github.com/xyproto/mkbridge/internal/symlist"
)

// generate.go - Reads the header and both symbol lists, emits every
// trampoline and writes the bridge file.
//
// Output layout:
//
//	.text
//
//	# to asm
//
//	<one ToAsm trampoline per symbol in the to-asm list>
//	# from asm
//
//	<one FromAsm trampoline per symbol in the from-asm list>
//
// Any failure discards the whole output.

// Paths names the files of one run
type Paths struct {
	Output      string
	ToAsmList   string
	FromAsmList string
	Header      string
}

// Inputs holds the parsed input files of one run
type Inputs struct {
	Header  *proto.Header
	ToAsm   []symlist.Entry
	FromAsm []symlist.Entry
}

// LoadInputs parses the header and reads both symbol lists concurrently
func LoadInputs(ctx context.Context, paths Paths) (*Inputs, error) {
	in := &Inputs{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		h, err := proto.ParseFile(paths.Header)
		if err != nil {
			if errors.Is(err, proto.ErrSyntax) {
				return ParseError(paths.Header, err)
			}
			return InputError(paths.Header, err)
		}
		if VerboseMode {
			fmt.Fprintf(os.Stderr, "Parsed %d prototypes from %s (%d malformed)\n", h.Len(), paths.Header, h.Rejected())
		}
		in.Header = h
		return nil
	})

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		entries, err := symlist.ReadFile(paths.ToAsmList)
		if err != nil {
			return InputError(paths.ToAsmList, err)
		}
		in.ToAsm = entries
		return nil
	})

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		entries, err := symlist.ReadFile(paths.FromAsmList)
		if err != nil {
			return InputError(paths.FromAsmList, err)
		}
		in.FromAsm = entries
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return in, nil
}

// Generate writes the complete bridge source for in to w.
// It stops at the first symbol that cannot be bridged.
func Generate(w io.Writer, in *Inputs, e bridge.Emitter) error {
	if _, err := io.WriteString(w, ".text\n\n"); err != nil {
		return err
	}
	if err := emitSection(w, in.Header, bridge.DirToAsm, in.ToAsm, e); err != nil {
		return err
	}
	return emitSection(w, in.Header, bridge.DirFromAsm, in.FromAsm, e)
}

func emitSection(w io.Writer, h *proto.Header, dir bridge.Direction, entries []symlist.Entry, e bridge.Emitter) error {
	if _, err := fmt.Fprintf(w, "# %s\n\n", dir); err != nil {
		return err
	}
	for _, entry := range entries {
		p, err := h.Lookup(entry.Name)
		if err != nil {
			return lookupFailure(h, entry, err)
		}

		tr, err := e.Emit(dir, entry.Name, p)
		if err != nil {
			return EmitError(entry.File, entry.Line, entry.Name, err)
		}

		if VerboseMode {
			fmt.Fprintf(os.Stderr, "  %s: %s: %s (%d instructions)\n", dir, entry, p, len(tr.Instructions()))
		}

		if _, err := tr.WriteTo(w); err != nil {
			return err
		}
	}
	return nil
}

// lookupFailure turns a failed Header.Lookup into the matching BridgeError
func lookupFailure(h *proto.Header, entry symlist.Entry, err error) *BridgeError {
	if errors.Is(err, proto.ErrSyntax) {
		return DeclarationError(entry, err)
	}
	return LookupError(entry.File, entry.Line, entry.Name, err, h.Similar(entry.Name, 3)...)
}

// Run generates the bridge file named by paths.Output. On failure nothing
// is written and a previous output file is removed.
func Run(ctx context.Context, paths Paths, e bridge.Emitter) error {
	err := run(ctx, paths, e)
	if err != nil {
		if rmErr := os.Remove(paths.Output); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && VerboseMode {
			fmt.Fprintf(os.Stderr, "Could not remove %s: %v\n", paths.Output, rmErr)
		}
	}
	return err
}

func run(ctx context.Context, paths Paths, e bridge.Emitter) error {
	in, err := LoadInputs(ctx, paths)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Generate(&buf, in, e); err != nil {
		return err
	}

	if err := writeFileAtomic(paths.Output, buf.Bytes()); err != nil {
		return InputError(paths.Output, err)
	}

	if VerboseMode {
		fmt.Fprintf(os.Stderr, "-> Wrote %s (%d to asm, %d from asm)\n", paths.Output, len(in.ToAsm), len(in.FromAsm))
	}
	return nil
}

// writeFileAtomic writes data next to path and renames it into place, so
// readers never observe a partial bridge file
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".mkbridge-*.s")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
