// Command hemlock runs, compiles, and bundles Hemlock scripts.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/nbeerbower/hemlock"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		evalCode  string
		compile   string
		bundle    string
		output    string
		compress  bool
		debug     bool
		emitC     string
		dumpAST   bool
		stdlibDir string
	)

	root := &cobra.Command{
		Use:           "hemlock [file]",
		Short:         "Run, compile, or bundle Hemlock scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			if emitC != "" {
				return fmt.Errorf("--emit-c is handled by an external AOT codegen tool, not this binary")
			}

			config := hemlock.NewRunConfig()
			config.SetBool("serializer.debug_lines", debug)
			config.SetBool("serializer.compress", compress)
			if stdlibDir != "" {
				config.SetString("module.stdlib_dir", stdlibDir)
			}

			switch {
			case evalCode != "":
				return hemlock.RunSource([]byte(evalCode), "<eval>", config)

			case compile != "":
				out, err := hemlock.CompileFile(compile, config)
				if err != nil {
					return err
				}
				return writeOutput(output, out)

			case bundle != "":
				out, err := hemlock.Bundle(bundle, config)
				if err != nil {
					return err
				}
				return writeOutput(output, out)

			case dumpAST:
				if len(positional) != 1 {
					return fmt.Errorf("--dump-ast requires a file argument")
				}
				mod, perrs := hemlock.ParseFile(positional[0])
				if len(perrs) > 0 {
					return perrs[0]
				}
				fmt.Print(hemlock.DumpModule(mod))
				return nil

			case len(positional) == 1:
				return hemlock.RunAny(positional[0], config)

			default:
				return cmd.Help()
			}
		},
	}

	flags := root.Flags()
	flags.StringVarP(&evalCode, "eval", "c", "", "run the given code instead of a file")
	flags.StringVar(&compile, "compile", "", "parse a file and serialize its AST to -o")
	flags.StringVar(&bundle, "bundle", "", "flatten a file's import graph and serialize it to -o")
	flags.StringVarP(&output, "output", "o", "", "output path for --compile/--bundle")
	flags.BoolVar(&compress, "compress", false, "zlib-compress --bundle output into the .hmlb container")
	flags.BoolVar(&debug, "debug", false, "retain source line numbers in serialized output")
	flags.StringVar(&emitC, "emit-c", "", "AOT C codegen output path (handled externally)")
	flags.BoolVar(&dumpAST, "dump-ast", false, "print the parsed AST of a file instead of running it")
	flags.StringVar(&stdlibDir, "stdlib-dir", "", "directory @stdlib/ imports resolve against")

	root.SetArgs(args)
	err := root.Execute()
	return exitCode(err)
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// exitCode maps an error returned from the run path to a process exit
// code: 0 success, 1 runtime error, 2 parse error, 3 I/O error. `124`
// (timeout) is only ever produced by the external supervisor that
// wraps this binary, never by the process itself.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, err)

	var perr hemlock.ParseError
	if errors.As(err, &perr) {
		return 2
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || os.IsNotExist(err) {
		return 3
	}

	return 1
}
