package exec

import (
	"context"
	"errors"
	"io"
	"os"
	gexec "os/exec"
)

type localExecutor struct{}

func NewLocalExecutor() Executor {
	return &localExecutor{}
}

func (e *localExecutor) Shell(ctx context.Context, shell, cmdline string) (Command, error) {
	return &localCommand{
		cmd:  gexec.CommandContext(ctx, shell, "-c", cmdline),
		line: cmdline,
	}, nil
}

func (e *localExecutor) PathExists(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (e *localExecutor) IsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	return info.IsDir(), nil
}

func (e *localExecutor) Remove(path string) error {
	return os.RemoveAll(path)
}

func (e *localExecutor) IsLocal() bool {
	return true
}

type localCommand struct {
	cmd  *gexec.Cmd
	line string
}

func (c *localCommand) Run() error {
	if err := c.Start(); err != nil {
		return err
	}

	return c.Wait()
}

func (c *localCommand) Start() error {
	return c.cmd.Start()
}

func (c *localCommand) Wait() error {
	err := c.cmd.Wait()

	// A non-zero exit status is reported through ExitCode, not as an
	// error from Wait.
	var eerr *gexec.ExitError
	if errors.As(err, &eerr) {
		return nil
	}

	return err
}

func (c *localCommand) SetStdin(r io.Reader) {
	c.cmd.Stdin = r
}

func (c *localCommand) SetStdout(w io.Writer) {
	c.cmd.Stdout = w
}

func (c *localCommand) SetStderr(w io.Writer) {
	c.cmd.Stderr = w
}

func (c *localCommand) SetDir(dir string) {
	c.cmd.Dir = dir
}

func (c *localCommand) SetEnv(env []string) {
	c.cmd.Env = append(os.Environ(), env...)
}

func (c *localCommand) ExitCode() int {
	if c.cmd.ProcessState == nil {
		return -1
	}

	return c.cmd.ProcessState.ExitCode()
}

func (c *localCommand) String() string {
	return c.line
}
