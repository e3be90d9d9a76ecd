// Package errors implements the c57 diagnostic taxonomy: lexical, syntax,
// semantic, internal-invariant, and I/O errors, each carrying a source
// location and rendered in a consistent, greppable format.
package errors

import (
	"fmt"
	"strings"
)

// Category classifies a CompilerError by which compiler phase raised it.
type Category int

const (
	CategoryLexical Category = iota
	CategorySyntax
	CategorySemantic
	CategoryInternal
	CategoryIO
)

func (c Category) String() string {
	switch c {
	case CategoryLexical:
		return "lexical error"
	case CategorySyntax:
		return "syntax error"
	case CategorySemantic:
		return "semantic error"
	case CategoryInternal:
		return "internal error"
	case CategoryIO:
		return "I/O error"
	default:
		return "error"
	}
}

// Location is a position in a source file, 1-based.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.Line == 0 && l.Column == 0 {
		return l.File
	}
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// CompilerError is the single error type every c57 phase returns. Fatal is
// true for everything except a reserved future warning channel — spec.md
// §7 policy is "no error is locally recovered", so today Fatal is always
// true, but the field is carried through so the pipeline's reporting code
// doesn't need to special-case categories.
type CompilerError struct {
	Category   Category
	Message    string
	Location   Location
	SourceLine string
	Fatal      bool
}

func (e *CompilerError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Location, e.Category, e.Message)
}

// Format renders the error with a caret under the offending column, in the
// style c57's two CLI drivers print to stderr.
func (e *CompilerError) Format() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s\n", e.Category, e.Message)
	fmt.Fprintf(&sb, "  --> %s\n", e.Location)
	if e.SourceLine != "" {
		lineNum := fmt.Sprintf("%d", e.Location.Line)
		pad := strings.Repeat(" ", len(lineNum)+1)
		fmt.Fprintf(&sb, "%s|\n", pad)
		fmt.Fprintf(&sb, "%s | %s\n", lineNum, e.SourceLine)
		fmt.Fprintf(&sb, "%s| ", pad)
		if e.Location.Column > 0 {
			sb.WriteString(strings.Repeat(" ", e.Location.Column-1))
		}
		sb.WriteString("^\n")
	}
	return sb.String()
}

// Lexical reports an unrecognised character, unterminated string, or
// malformed number literal. Always fatal for the current compilation.
func Lexical(loc Location, format string, args ...any) *CompilerError {
	return &CompilerError{Category: CategoryLexical, Message: fmt.Sprintf(format, args...), Location: loc, Fatal: true}
}

// Syntax reports a token the grammar could not match. Always fatal.
func Syntax(loc Location, format string, args ...any) *CompilerError {
	return &CompilerError{Category: CategorySyntax, Message: fmt.Sprintf(format, args...), Location: loc, Fatal: true}
}

// Semantic reports an undeclared-name reference or a duplicate declaration
// caught at use-site lookup. Always fatal.
func Semantic(loc Location, format string, args ...any) *CompilerError {
	return &CompilerError{Category: CategorySemantic, Message: fmt.Sprintf(format, args...), Location: loc, Fatal: true}
}

// Internal reports a compiler-bug-class failure: an unresolved label, a
// malformed IR operand reaching the encoder, a missing rodata entry after
// insertion. Callers should treat this as a reason to abort, not retry.
func Internal(format string, args ...any) *CompilerError {
	return &CompilerError{Category: CategoryInternal, Message: fmt.Sprintf(format, args...), Fatal: true}
}

// IO reports a failure to open, read, or write a file, including the
// stdlib blob.
func IO(format string, args ...any) *CompilerError {
	return &CompilerError{Category: CategoryIO, Message: fmt.Sprintf(format, args...), Fatal: true}
}

// WithSourceLine attaches the offending source line for caret rendering.
func (e *CompilerError) WithSourceLine(line string) *CompilerError {
	e.SourceLine = line
	return e
}

// ExitCode maps a CompilerError to the process exit status the two CLI
// drivers return.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ce *CompilerError
	if as(err, &ce) {
		switch ce.Category {
		case CategoryIO:
			return 2
		case CategoryInternal:
			return 3
		default:
			return 1
		}
	}
	return 1
}

func as(err error, target **CompilerError) bool {
	ce, ok := err.(*CompilerError)
	if !ok {
		return false
	}
	*target = ce
	return true
}
