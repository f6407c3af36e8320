// Completion: 100% - Error handling complete, clear and helpful messages
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/xyproto/mkbridge/internal/bridge"
	"github.com/xyproto/mkbridge/internal/proto"
	"github.com/xyproto/mkbridge/internal/symlist"
)

// ErrorLevel indicates the severity of an error
type ErrorLevel int

const (
	LevelWarning ErrorLevel = iota
	LevelError
	LevelFatal
)

func (l ErrorLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal error"
	default:
		return "unknown"
	}
}

// ErrorCategory classifies the type of error
type ErrorCategory int

const (
	CategoryInput ErrorCategory = iota
	CategoryParse
	CategoryLookup
	CategoryInternal
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryInput:
		return "input"
	case CategoryParse:
		return "parse"
	case CategoryLookup:
		return "lookup"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// SourceLocation is the symbol list line or file an error refers to
type SourceLocation struct {
	File string
	Line int
}

func (loc SourceLocation) String() string {
	switch {
	case loc.File == "":
		return "<input>"
	case loc.Line == 0:
		return loc.File
	default:
		return fmt.Sprintf("%s:%d", loc.File, loc.Line)
	}
}

// BridgeError is a run-level failure. Every BridgeError aborts generation.
type BridgeError struct {
	Level    ErrorLevel
	Category ErrorCategory
	Message  string
	Location SourceLocation
	HelpText string
	Err      error
}

// Error implements the error interface
func (e *BridgeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Location, e.Message)
}

// Unwrap returns the underlying error
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// Format returns a nicely formatted error message
func (e *BridgeError) Format(useColor bool) string {
	var sb strings.Builder

	if useColor {
		sb.WriteString("\033[1;31m") // Bold red
	}
	sb.WriteString(e.Level.String())
	sb.WriteString(": ")
	if useColor {
		sb.WriteString("\033[0m")
	}
	sb.WriteString(e.Message)
	sb.WriteString("\n")

	if useColor {
		sb.WriteString("\033[1;34m") // Bold blue
	}
	sb.WriteString("  --> ")
	sb.WriteString(e.Location.String())
	if useColor {
		sb.WriteString("\033[0m")
	}
	sb.WriteString("\n")

	if e.HelpText != "" {
		if useColor {
			sb.WriteString("\033[1;36m") // Bold cyan
		}
		sb.WriteString("   note: ")
		if useColor {
			sb.WriteString("\033[0m")
		}
		sb.WriteString(e.HelpText)
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatError renders err with Format if it is a BridgeError
func FormatError(err error, useColor bool) string {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Format(useColor)
	}
	return "error: " + err.Error() + "\n"
}

// InputError creates an error for an input file that could not be read
func InputError(file string, err error) *BridgeError {
	msg := err.Error()
	var pe *fs.PathError
	if errors.As(err, &pe) {
		// the path is already in Location
		msg = pe.Op + ": " + pe.Err.Error()
	}
	return &BridgeError{
		Level:    LevelError,
		Category: CategoryInput,
		Message:  msg,
		Location: SourceLocation{File: file},
		Err:      err,
	}
}

// ParseError creates an error for a malformed header or declaration
func ParseError(file string, err error) *BridgeError {
	be := &BridgeError{
		Level:    LevelError,
		Category: CategoryParse,
		Message:  err.Error(),
		Location: SourceLocation{File: file},
		Err:      err,
	}
	var se *proto.SyntaxError
	if errors.As(err, &se) {
		be.Message = fmt.Sprintf("%s: %s", proto.ErrSyntax, se.Msg)
		be.Location = SourceLocation{File: se.File, Line: se.Line}
	}
	return be
}

// DeclarationError creates an error for a listed symbol whose declaration
// is malformed. The location is the declaration, the help text names the
// list entry that asked for it.
func DeclarationError(entry symlist.Entry, err error) *BridgeError {
	be := ParseError(entry.File, err)
	be.HelpText = fmt.Sprintf("'%s' is listed at %s", entry.Name, SourceLocation{File: entry.File, Line: entry.Line})
	return be
}

// LookupError creates an error for a listed symbol the header does not declare.
// suggestions are declared names close to sym.
func LookupError(file string, line int, sym string, err error, suggestions ...string) *BridgeError {
	help := "Every listed symbol must be declared in the header"
	if len(suggestions) > 0 {
		help = fmt.Sprintf("Did you mean: %s?", strings.Join(suggestions, ", "))
	}
	return &BridgeError{
		Level:    LevelError,
		Category: CategoryLookup,
		Message:  fmt.Sprintf("no prototype for '%s'", sym),
		Location: SourceLocation{File: file, Line: line},
		HelpText: help,
		Err:      err,
	}
}

// EmitError creates an error for a trampoline that could not be emitted
func EmitError(file string, line int, sym string, err error) *BridgeError {
	be := &BridgeError{
		Level:    LevelError,
		Category: CategoryInternal,
		Message:  fmt.Sprintf("cannot bridge '%s': %v", sym, err),
		Location: SourceLocation{File: file, Line: line},
		Err:      err,
	}
	if errors.Is(err, bridge.ErrStackArgMismatch) {
		be.Level = LevelFatal
		be.HelpText = "The prototype's argument counts are inconsistent. This is an internal error, please report it."
	}
	return be
}
