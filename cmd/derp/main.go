// Command derp is the Derp runtime's CLI front-end: run a script file,
// evaluate a one-liner, or drop into a REPL, the way the teacher pack
// wraps its own runtime in cmd/devcmd and cli/main.go with cobra.
package main

import (
	"bufio"
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/derp-lang/derp/internal/diag"
	"github.com/derp-lang/derp/internal/scriptwatch"
	"github.com/derp-lang/derp/internal/secretval"
	"github.com/derp-lang/derp/internal/value"
	"github.com/derp-lang/derp/internal/vm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "derp",
		Short:         "Run and explore Derp scripts",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(newRunCmd(), newEvalCmd(), newReplCmd())
	return root
}

// newMachine builds a VM with the CLI's demo natives installed: print,
// secret (fingerprinted via a fixed key, the same in every run), and the table_*
// built-ins already installed by vm.New.
func newMachine() *vm.VM {
	m := vm.New()
	m.RegisterNative("print", nativePrint, false)

	secretKey := sha256.Sum256([]byte("derp-cli-demo-key"))
	m.RegisterNative("secret", secretval.NativeConstructor("cli", secretKey), false)
	return m
}

// nativePrint is the CLI's demo `print(x)`: writes the debug
// representation of its single argument to stdout and returns it
// unchanged, so print can be chained inline in an expression.
func nativePrint(call *value.Call) *value.Handle {
	if len(call.Params) != 1 {
		call.Errors.AddError("print() expects 1 argument, got %d", len(call.Params))
		return nil
	}
	fmt.Println(vm.DebugString(call.Params[0].Value()))
	h := call.VM.MakeObject()
	if err := h.Value().Set(call.Params[0].Value()); err != nil {
		h.Destroy()
		call.Errors.AddError("print(): %s", err)
		return nil
	}
	return h
}

func newRunCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a .derp script file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			m := newMachine()

			runOnce := func(src string) {
				errs := diag.NewState()
				m.EvalString(src, path, errs)
				if errs.HasErrors() {
					fmt.Fprint(os.Stderr, errs.GetAllErrorText())
				}
			}

			if !watch {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("derp run: %w", err)
				}
				runOnce(string(data))
				return nil
			}

			stop := make(chan struct{})
			return scriptwatch.Watch(path, os.ReadFile, runOnce, stop)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "re-run the script on every save")
	return cmd
}

func newEvalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <expr>",
		Short: "Evaluate a single Derp expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := newMachine()
			errs := diag.NewState()
			result := m.EvalString(args[0], "<eval>", errs)
			if errs.HasErrors() {
				fmt.Fprint(os.Stderr, errs.GetAllErrorText())
				return fmt.Errorf("eval failed")
			}
			if !result.IsNull() {
				fmt.Println(vm.DebugString(result.Value()))
				result.Destroy()
			}
			return nil
		},
	}
}

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive Derp session",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := newMachine()
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("> ")
			for scanner.Scan() {
				line := scanner.Text()
				errs := diag.NewState()
				result := m.EvalString(line, "<repl>", errs)
				if errs.HasErrors() {
					fmt.Fprint(os.Stderr, errs.GetAllErrorText())
				} else if !result.IsNull() {
					fmt.Println(vm.DebugString(result.Value()))
					result.Destroy()
				}
				fmt.Print("> ")
			}
			fmt.Println()
			return scanner.Err()
		},
	}
}
