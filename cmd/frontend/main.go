// Command frontend lexes and parses a "57" source file and writes its
// AST to disk in the textual prefix format internal/ast defines, for
// cmd/backend to read in a separate process (spec.md §6's two-program
// split). Built with spf13/cobra, the CLI framework the retrieval pack's
// own compiler/assembler tools (raymyers/ralph-cc, keurnel/assembler)
// wire for exactly this "compile this file" command shape.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xyproto/c57/internal/ast"
	cerrors "github.com/xyproto/c57/internal/errors"
	"github.com/xyproto/c57/internal/lexer"
	"github.com/xyproto/c57/internal/parser"
	"github.com/xyproto/c57/internal/pipeline"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// report already printed CompilerError diagnostics from inside
		// RunE; anything else reaching here is a cobra-level usage error
		// (wrong arg count, unknown flag) that was never passed through
		// report, so it still needs printing.
		if _, already := err.(*cerrors.CompilerError); !already {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "frontend <source.57> <ast-out>",
		Short:         "Lex and parse a 57 source file into the prefix AST format",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline.VerboseMode = verbose
			return run(args[0], args[1])
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "trace pipeline stages to stderr")
	return cmd
}

func run(srcPath, astOutPath string) error {
	src, err := os.ReadFile(srcPath)
	if err != nil {
		return report(cerrors.IO("reading %s: %v", srcPath, err))
	}

	pipe := pipeline.New()

	toks, err := lexer.New(srcPath, src).Tokenize()
	if err != nil {
		return report(err)
	}
	pipe.Checkpoint(fmt.Sprintf("lexed %d token(s)", len(toks)))
	pipe.AdvanceTo(pipeline.StageParse)

	root, tbl, err := parser.ParseProgram(srcPath, toks)
	if err != nil {
		return report(err)
	}

	out := ast.Print(root, tbl)
	if err := os.WriteFile(astOutPath, []byte(out), 0o644); err != nil {
		return report(cerrors.IO("writing %s: %v", astOutPath, err))
	}
	return nil
}

func report(err error) error {
	if ce, ok := err.(*cerrors.CompilerError); ok {
		fmt.Fprint(os.Stderr, ce.Format())
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	return err
}

func exitCodeFor(err error) int {
	if code := cerrors.ExitCode(err); code != 0 {
		return code
	}
	return 1
}
