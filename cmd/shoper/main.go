package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/arnarg/shoper/internal/exec"
	"github.com/arnarg/shoper/internal/operator"
	"github.com/arnarg/shoper/internal/task"
	"github.com/arnarg/shoper/internal/tui"
	"github.com/arnarg/shoper/internal/util"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

var version = "unknown"

var app = &cli.Command{
	Name:    "shoper",
	Version: version,
	Usage:   "Run shell commands with input/output path checks and logging.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "log",
			Aliases: []string{"l"},
			Usage:   "Tee command lines and output into this file",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Do not pass live command output through to stdout",
		},
		&cli.BoolFlag{
			Name:  "clear-log",
			Usage: "Remove an existing log file before starting",
		},
		&cli.BoolFlag{
			Name:  "no-print",
			Usage: "Do not echo command lines before running them",
		},
		&cli.StringFlag{
			Name:    "shell",
			Aliases: []string{"s"},
			Value:   "/bin/bash",
			Usage:   "Shell executable commands are passed to",
		},
		&cli.StringFlag{
			Name:    "target",
			Aliases: []string{"t"},
			Usage:   "Run commands on a remote host ([user@]host[:port]) over ssh",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Enable debug logging",
		},
	},
	Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		if cmd.Bool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		return ctx, nil
	},
	Commands: []*cli.Command{
		// Run
		{
			Name:        "run",
			Usage:       "Run one or more command lines",
			Description: "Each argument is one command line, executed in order.",
			ArgsUsage:   "COMMAND...",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{
					Name:    "input",
					Aliases: []string{"i"},
					Usage:   "Path that must exist before running",
				},
				&cli.StringSliceFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "Path that must exist after running",
				},
				&cli.StringSliceFlag{
					Name:    "env",
					Aliases: []string{"e"},
					Usage:   "Extra environment entry (KEY=value)",
				},
				&cli.StringFlag{
					Name:    "cwd",
					Aliases: []string{"C"},
					Usage:   "Working directory for the commands",
				},
				&cli.StringFlag{
					Name:  "prompt",
					Usage: "Prefix for echoed command lines",
				},
				&cli.BoolFlag{
					Name:  "async",
					Usage: "Spawn the commands in the background and wait at the end",
				},
				&cli.BoolFlag{
					Name:  "keep-if-failed",
					Usage: "Keep declared outputs when the run fails",
				},
				&cli.BoolFlag{
					Name:  "remove-previous",
					Usage: "Delete declared outputs before running",
				},
				&cli.BoolFlag{
					Name:  "no-skip",
					Usage: "Run even when all declared outputs already exist",
				},
				&cli.BoolFlag{
					Name:    "yes",
					Aliases: []string{"y"},
					Usage:   "Do not ask for confirmation before deleting outputs",
				},
			},
			Action: runAction,
		},

		// Play
		{
			Name:        "play",
			Usage:       "Run the tasks of a playbook file",
			Description: "Runs every task of a JSON playbook in order and prints a summary.",
			ArgsUsage:   "FILE",
			Action:      playAction,
		},
	},
}

func printSection(text string) {
	fmt.Fprintf(os.Stderr, "\033[32m>\033[0m %s\n", text)
}

func buildOperator(cmd *cli.Command, logPath, shell string, quiet bool) (*operator.Operator, error) {
	executor := exec.NewLocalExecutor()

	if target := cmd.String("target"); target != "" {
		remote, err := exec.NewSSHExecutor(target)
		if err != nil {
			return nil, err
		}
		executor = remote
	}

	return operator.New(operator.Config{
		LogPath:        logPath,
		Quiet:          quiet,
		ClearLog:       cmd.Bool("clear-log"),
		NoPrintCommand: cmd.Bool("no-print"),
		Shell:          shell,
		Executor:       executor,
	})
}

// waitPending joins the operator's queued batches, with a spinner when
// stderr is a terminal.
func waitPending(op *operator.Operator) error {
	if batches, _ := op.Pending(); batches == 0 {
		return nil
	}

	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return op.Wait()
	}

	// The operator itself is not goroutine safe, so the reporter gets
	// a snapshot of the counts instead of polling it.
	batches, procs := op.Pending()
	done := make(chan error, 1)
	go func() {
		done <- op.Wait()
	}()

	return tui.RunWait(func() (int, int) {
		return batches, procs
	}, done)
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	commands := cmd.Args().Slice()
	if len(commands) == 0 {
		return fmt.Errorf("no commands given")
	}

	outputs := cmd.StringSlice("output")

	if cmd.Bool("remove-previous") && len(outputs) > 0 && !cmd.Bool("yes") {
		ok, err := tui.RunConfirm(
			fmt.Sprintf("Delete %s before running?", strings.Join(outputs, ", ")),
		)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("aborted")
		}
	}

	op, err := buildOperator(cmd, cmd.String("log"), cmd.String("shell"), cmd.Bool("quiet"))
	if err != nil {
		return err
	}

	spec := operator.NewRun(commands...).
		WithInputs(cmd.StringSlice("input")...).
		WithOutputs(outputs...).
		WithEnv(cmd.StringSlice("env")...).
		WithCwd(cmd.String("cwd")).
		WithPrompt(cmd.String("prompt"))

	if cmd.Bool("async") {
		spec = spec.Async()
	}
	if cmd.Bool("keep-if-failed") {
		spec = spec.KeepIfFailed()
	}
	if cmd.Bool("remove-previous") {
		spec = spec.WithRemovePrevious()
	}
	if cmd.Bool("no-skip") {
		spec = spec.NoSkip()
	}

	if err := op.Run(ctx, spec); err != nil {
		return err
	}

	return waitPending(op)
}

func playAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("no playbook file given")
	}

	file, err := task.Load(path)
	if err != nil {
		return err
	}

	// Flags override playbook settings
	logPath := file.Log
	if cmd.String("log") != "" {
		logPath = cmd.String("log")
	}
	shell := cmd.String("shell")
	if file.Shell != "" && !cmd.IsSet("shell") {
		shell = file.Shell
	}
	quiet := file.Quiet || cmd.Bool("quiet")

	op, err := buildOperator(cmd, logPath, shell, quiet)
	if err != nil {
		return err
	}

	rows := [][]string{}
	failed := false

	for _, t := range file.Tasks {
		name := t.Name
		if name == "" {
			name = t.Commands[0]
		}

		printSection(name)

		if err := op.Run(ctx, t.Spec()); err != nil {
			log.Error("task failed", "task", name, "err", err)
			rows = append(rows, []string{name, "failed"})
			failed = true
			continue
		}

		if t.Async {
			rows = append(rows, []string{name, "queued"})
		} else {
			rows = append(rows, []string{name, "ok"})
		}
	}

	if err := waitPending(op); err != nil {
		log.Error("background tasks failed", "err", err)
		failed = true
	}

	fmt.Fprintln(os.Stderr, util.RenderTable([]string{"TASK", "STATUS"}, rows...))

	if failed {
		return fmt.Errorf("one or more tasks failed")
	}

	return nil
}

func main() {
	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
