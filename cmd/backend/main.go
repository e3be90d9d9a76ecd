// Command backend reads the textual prefix AST cmd/frontend produced,
// lowers it to IR, runs the two-pass layout, and writes a standalone
// ELF64 executable — optionally alongside a NASM-style .s listing when
// -S is given (spec.md §6's Flags, SPEC_FULL.md §4.11).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xyproto/c57/internal/ast"
	"github.com/xyproto/c57/internal/elfwriter"
	cerrors "github.com/xyproto/c57/internal/errors"
	"github.com/xyproto/c57/internal/listing"
	"github.com/xyproto/c57/internal/lower"
	"github.com/xyproto/c57/internal/pipeline"
	"github.com/xyproto/c57/internal/stdlib"
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
	var (
		verbose    bool
		listingOut bool
		stdlibPath string
	)

	cmd := &cobra.Command{
		Use:           "backend <ast-in> <out.bin>",
		Short:         "Lower an AST and emit a standalone ELF64 executable",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline.VerboseMode = verbose
			return run(args[0], args[1], stdlibPath, listingOut)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "trace pipeline stages to stderr")
	cmd.Flags().BoolVarP(&listingOut, "listing", "S", false, "write <out.bin>.s with a NASM-style listing")
	cmd.Flags().StringVar(&stdlibPath, "stdlib", stdlib.DefaultPath, "path to the prebuilt stdlib ELF blob")
	return cmd
}

func run(astInPath, outPath, stdlibPath string, writeListing bool) error {
	text, err := os.ReadFile(astInPath)
	if err != nil {
		return report(cerrors.IO("reading %s: %v", astInPath, err))
	}

	pipe := pipeline.NewAt(pipeline.StageParse)

	root, tbl, err := ast.Parse(string(text))
	if err != nil {
		return report(cerrors.Syntax(cerrors.Location{File: astInPath}, "malformed AST input: %v", err))
	}
	pipe.AdvanceTo(pipeline.StageLower)

	res, err := lower.Lower(root, tbl)
	if err != nil {
		return report(err)
	}
	pipe.Checkpoint(fmt.Sprintf("lowered to %d IR node(s)", res.Program.Len()))

	layout, err := pipeline.Run(pipe, res.Program, res.Rodata)
	if err != nil {
		return report(err)
	}

	blob, err := stdlib.Load(stdlibPath)
	if err != nil {
		return report(err)
	}
	defer blob.Close()

	pipe.AdvanceTo(pipeline.StageELFWrite)
	out, err := os.Create(outPath)
	if err != nil {
		return report(cerrors.IO("creating %s: %v", outPath, err))
	}
	defer out.Close()

	if err := elfwriter.Write(out, blob.Code, layout.Rodata, layout.Code); err != nil {
		return report(cerrors.IO("writing %s: %v", outPath, err))
	}
	if err := out.Chmod(0o755); err != nil {
		return report(cerrors.IO("chmod %s: %v", outPath, err))
	}
	pipe.AdvanceTo(pipeline.StageComplete)

	if writeListing {
		listingPath := outPath + ".s"
		lf, err := os.Create(listingPath)
		if err != nil {
			return report(cerrors.IO("creating %s: %v", listingPath, err))
		}
		defer lf.Close()
		if err := listing.Write(lf, res.Program, elfwriter.ProgramVirtAddr); err != nil {
			return report(cerrors.IO("writing %s: %v", listingPath, err))
		}
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
