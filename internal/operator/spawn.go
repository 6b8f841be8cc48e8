package operator

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/arnarg/shoper/internal/exec"
)

// spawnSync runs one command line and blocks until it exits. With a log
// file configured the process output is appended to it, and unless quiet
// also teed to stdout. Without one, output goes straight to stdout, or
// nowhere when quiet.
func (o *Operator) spawnSync(ctx context.Context, cmdline, prompt string, spec RunSpec) (exec.Command, error) {
	o.echoCommand(cmdline, prompt)

	var sink io.Writer
	var closer io.Closer

	switch {
	case o.logPath != "":
		f, err := o.appendCommandLine(prompt + cmdline + "\n")
		if err != nil {
			return nil, err
		}
		closer = f
		if o.quiet {
			sink = f
		} else {
			sink = io.MultiWriter(f, o.stdout)
		}
	case o.quiet:
		sink = io.Discard
	default:
		sink = o.stdout
	}

	proc, err := o.startCommand(ctx, cmdline, sink, spec)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}

	err = proc.Wait()
	if closer != nil {
		closer.Close()
	}
	if err != nil {
		return nil, err
	}

	return proc, nil
}

// spawnAsync starts one command line without waiting. Output goes to an
// append handle on the log file, or is discarded when no log file is
// configured. The returned closer is held by the batch until Wait.
func (o *Operator) spawnAsync(ctx context.Context, cmdline, prompt string, spec RunSpec) (exec.Command, io.Closer, error) {
	o.echoCommand(cmdline, prompt)

	var sink io.Writer
	var closer io.Closer

	if o.logPath != "" {
		f, err := o.appendCommandLine(prompt + cmdline + "\n")
		if err != nil {
			return nil, nil, err
		}
		sink = f
		closer = f
	} else {
		sink = io.Discard
	}

	proc, err := o.startCommand(ctx, cmdline, sink, spec)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, nil, err
	}

	return proc, closer, nil
}

func (o *Operator) startCommand(ctx context.Context, cmdline string, sink io.Writer, spec RunSpec) (exec.Command, error) {
	proc, err := o.executor.Shell(ctx, o.shell, cmdline)
	if err != nil {
		return nil, err
	}

	if spec.Cwd != "" {
		proc.SetDir(spec.Cwd)
	}
	if len(spec.Env) > 0 {
		proc.SetEnv(spec.Env)
	}
	proc.SetStdout(sink)
	proc.SetStderr(sink)

	if err := proc.Start(); err != nil {
		return nil, err
	}

	return proc, nil
}

func (o *Operator) echoCommand(cmdline, prompt string) {
	o.logger.Debug("spawning command", "shell", o.shell, "command", cmdline)

	if o.noPrintCommand {
		return
	}

	line := prompt + cmdline
	fmt.Fprintln(o.stdout, line)
	o.logger.Info(line)
}

// appendCommandLine writes the echoed command line into the log file
// (creating it, or appending after a blank separator line) and returns a
// fresh append handle to use as the process's combined stdout/stderr
// sink.
func (o *Operator) appendCommandLine(line string) (*os.File, error) {
	_, err := os.Stat(o.logPath)
	switch {
	case err == nil:
		f, err := os.OpenFile(o.logPath, os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		_, werr := io.Copy(f, strings.NewReader("\n"+line))
		f.Close()
		if werr != nil {
			return nil, werr
		}
	case os.IsNotExist(err):
		if err := os.WriteFile(o.logPath, []byte(line), 0o644); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return os.OpenFile(o.logPath, os.O_WRONLY|os.O_APPEND, 0o644)
}
