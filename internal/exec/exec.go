// Package exec abstracts where shell commands run. The operator talks to
// an Executor so that path checks, cleanup and command execution behave
// the same whether the target is the local machine or a remote host.
package exec

import (
	"context"
	"io"
)

type Executor interface {
	// Shell prepares a command that runs cmdline through the given
	// shell executable (`shell -c cmdline`).
	Shell(ctx context.Context, shell, cmdline string) (Command, error)
	PathExists(string) (bool, error)
	IsDir(string) (bool, error)
	// Remove deletes a file or directory (recursively). Removing a
	// path that does not exist is not an error.
	Remove(string) error
	IsLocal() bool
}

// Command is a single prepared shell invocation.
//
// Wait and Run return an error only when the command could not be run or
// was interrupted; a process that runs to completion with a non-zero
// status yields a nil error and the status through ExitCode.
type Command interface {
	Run() error
	Start() error
	Wait() error
	SetStdin(io.Reader)
	SetStdout(io.Writer)
	SetStderr(io.Writer)
	SetDir(string)
	SetEnv([]string)
	// ExitCode returns the exit status of the finished process, or -1
	// if it has not exited yet.
	ExitCode() int
	// String returns the command line for log and error messages.
	String() string
}
