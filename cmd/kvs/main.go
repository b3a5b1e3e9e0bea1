// Command kvs is the CLI and interactive shell driving the core store
// through its open/get/set/remove contract. It carries no storage logic
// of its own: command-line parsing, exit codes, and the REPL loop are
// external collaborators layered over package kvs.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/DrJackilD/kvs"
	"github.com/spf13/cobra"
)

const shellPrompt = ">>> "

var dbPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kvs",
		Short:         "kvs is an embedded write-ahead-log key-value store",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&dbPath, "db", "d", "kvs.db", "path to database file")
	root.AddCommand(newSetCmd(), newGetCmd(), newRmCmd(), newShellCmd())
	return root
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "set key with given value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := kvs.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Set(args[0], args[1])
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "get key from storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := kvs.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			value, err := store.Get(args[0])
			switch {
			case errors.Is(err, kvs.ErrKeyNotFound):
				fmt.Fprintln(cmd.OutOrStdout(), "Key not found")
				return nil
			case err != nil:
				return err
			default:
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			}
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm KEY",
		Short: "remove key-value pair from storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := kvs.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			err = store.Remove(args[0])
			if errors.Is(err, kvs.ErrKeyNotFound) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Key not found")
			}
			return err
		},
	}
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "start an interactive shell over one open store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := kvs.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
			return runShell(store, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// runShell reads whitespace-separated commands line by line until exit,
// quit, or EOF. It never returns a non-nil error for user-level mistakes
// (unknown command, wrong arity, missing key) - those are printed the
// same way the CLI prints them and the loop continues.
func runShell(store *kvs.Store, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, shellPrompt)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Fprint(out, shellPrompt)
			continue
		}

		switch fields[0] {
		case "set":
			if len(fields) != 3 {
				fmt.Fprintln(out, "usage: set KEY VALUE")
			} else if err := store.Set(fields[1], fields[2]); err != nil {
				fmt.Fprintln(out, err)
			}
		case "get":
			if len(fields) != 2 {
				fmt.Fprintln(out, "usage: get KEY")
			} else if value, err := store.Get(fields[1]); errors.Is(err, kvs.ErrKeyNotFound) {
				fmt.Fprintln(out, "Key not found")
			} else if err != nil {
				fmt.Fprintln(out, err)
			} else {
				fmt.Fprintln(out, value)
			}
		case "rm":
			if len(fields) != 2 {
				fmt.Fprintln(out, "usage: rm KEY")
			} else if err := store.Remove(fields[1]); errors.Is(err, kvs.ErrKeyNotFound) {
				fmt.Fprintln(out, "Key not found")
			} else if err != nil {
				fmt.Fprintln(out, err)
			}
		case "help":
			fmt.Fprintln(out, "commands: set KEY VALUE | get KEY | rm KEY | help | exit")
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return nil
		default:
			fmt.Fprintln(out, "error: invalid command")
		}
		fmt.Fprint(out, shellPrompt)
	}
	return scanner.Err()
}
