// Package console builds the cobra command tree that drives a
// pkg/system.System from line-oriented input, one subcommand per verb.
// Screen navigation and banner art are explicitly out of scope; this
// is deliberately a thin verb dispatcher, not a styled terminal UI.
package console

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/csopesy/emulator/pkg/system"
)

// GuardMessage is printed verbatim for any command but `initialize`
// run before initialization.
const GuardMessage = "Please run the 'initialize' command first."

// ErrExit is returned by the `exit` command to signal the REPL loop
// (cmd/csopesy) to stop reading further lines.
var ErrExit = errors.New("console: exit requested")

// Build constructs a fresh root *cobra.Command tree bound to sys. A
// new tree is built per input line (cmd/csopesy) since cobra commands
// carry parsed-flag state that shouldn't leak across invocations.
func Build(sys *system.System, out io.Writer, configPath string) *cobra.Command {
	root := &cobra.Command{
		Use:           "csopesy",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	guard := func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "initialize" {
			return nil
		}
		if !sys.Initialized() {
			fmt.Fprintln(out, GuardMessage)
			return errGuarded
		}
		return nil
	}

	root.AddCommand(&cobra.Command{
		Use: "initialize",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sys.Initialize(configPath); err != nil {
				fmt.Fprintln(out, err.Error())
				return nil
			}
			fmt.Fprintln(out, "Initialized.")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "scheduler-start",
		PreRunE: guard,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sys.SchedulerStart(); err != nil {
				return printErr(out, err)
			}
			fmt.Fprintln(out, "Scheduler started.")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "scheduler-stop",
		PreRunE: guard,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sys.SchedulerStop(); err != nil {
				return printErr(out, err)
			}
			fmt.Fprintln(out, "Scheduler stopped.")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "screen",
		PreRunE: guard,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScreen(sys, out, args)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "process-smi",
		PreRunE: guard,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				fmt.Fprintln(out, "usage: process-smi <name>")
				return nil
			}
			smi, err := sys.ProcessSMI(args[0])
			if err != nil {
				return printErr(out, err)
			}
			out.Write(smi)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "vmstat",
		PreRunE: guard,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := sys.Vmstat()
			if err != nil {
				return printErr(out, err)
			}
			fmt.Fprintln(out, line)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "report-util",
		PreRunE: guard,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sys.ReportUtil(); err != nil {
				return printErr(out, err)
			}
			fmt.Fprintln(out, "Report saved to csopesy-log.txt")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "exit",
		PreRunE: guard,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ErrExit
		},
	})

	return root
}

// errGuarded is a sentinel distinguishing "already printed the guard
// message, do nothing else" from a real error that cobra should
// report.
var errGuarded = errors.New("console: command guard violation")

func printErr(out io.Writer, err error) error {
	fmt.Fprintln(out, err.Error())
	return nil
}

// runScreen dispatches `screen -s|-c|-r|-ls` by switching on the
// leading token rather than cobra flags, since each verb consumes a
// different positional tail.
func runScreen(sys *system.System, out io.Writer, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(out, "Unknown command: screen")
		return nil
	}
	switch args[0] {
	case "-s":
		if len(args) != 3 {
			fmt.Fprintln(out, "usage: screen -s <name> <mem>")
			return nil
		}
		mem, err := strconv.Atoi(args[2])
		if err != nil {
			fmt.Fprintln(out, "Invalid memory allocation.")
			return nil
		}
		p, err := sys.CreateRandomProcess(args[1], mem)
		if err != nil {
			return printErr(out, friendly(err))
		}
		fmt.Fprintf(out, "Process %s created.\n", p.Name)
		return nil
	case "-c":
		if len(args) != 4 {
			fmt.Fprintln(out, `usage: screen -c <name> <mem> "<instructions>"`)
			return nil
		}
		mem, err := strconv.Atoi(args[2])
		if err != nil {
			fmt.Fprintln(out, "Invalid memory allocation.")
			return nil
		}
		p, err := sys.CreateProgram(args[1], mem, args[3])
		if err != nil {
			return printErr(out, friendly(err))
		}
		fmt.Fprintf(out, "Process %s created.\n", p.Name)
		return nil
	case "-r":
		if len(args) != 2 {
			fmt.Fprintln(out, "usage: screen -r <name>")
			return nil
		}
		p, err := sys.Resume(args[1])
		if err != nil {
			return printErr(out, err)
		}
		if p.ShutDown {
			fmt.Fprintln(out, p.ShutDownMessage)
			return nil
		}
		fmt.Fprintf(out, "%s: %d/%d instructions executed, shutdown=%v\n",
			p.Name, p.IP, len(p.Instructions), p.ShutDown)
		return nil
	case "-ls":
		rows, err := sys.ListStatus()
		if err != nil {
			return printErr(out, err)
		}
		for _, r := range rows {
			fmt.Fprintf(out, "%s executed=%d/%d finished=%v\n", r.Name, r.Executed, r.Total, r.Finished)
		}
		return nil
	default:
		fmt.Fprintln(out, "Unknown command:", strings.Join(args, " "))
		return nil
	}
}

func friendly(err error) error {
	switch {
	case errors.Is(err, system.ErrAllocationFailed):
		return errors.New("Memory allocation failed.")
	case errors.Is(err, system.ErrInvalidMemorySize):
		return errors.New("Invalid memory allocation.")
	default:
		return err
	}
}
