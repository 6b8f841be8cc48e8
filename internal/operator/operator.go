// Package operator runs shell command lines with declared input and
// output paths. Inputs are checked before anything spawns, outputs are
// validated (and optionally cleaned up) afterwards, command lines and
// process output can be teed into a log file, and commands can be run in
// the background and joined later with Wait.
package operator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/arnarg/shoper/internal/exec"
	"github.com/charmbracelet/log"
	"github.com/sourcegraph/conc"
)

const defaultShell = "/bin/bash"

// Config configures an Operator. The zero value is usable: no log file,
// output passed through, command lines echoed, /bin/bash on the local
// machine, default logger.
type Config struct {
	// LogPath is a file that receives every command line and the
	// combined stdout/stderr of every process. Empty disables it.
	LogPath string
	// Quiet suppresses live process output on stdout.
	Quiet bool
	// ClearLog removes an existing LogPath when the Operator is built.
	ClearLog bool
	// NoPrintCommand disables echoing "prompt + command" before a run.
	NoPrintCommand bool
	// Shell is the shell executable commands are passed to.
	Shell string
	// Logger receives debug/info/warn/error lines. The operator never
	// configures it.
	Logger *log.Logger
	// Executor decides where commands run. Defaults to the local
	// machine.
	Executor exec.Executor
	// Stdout is where command echoes and teed output go.
	Stdout io.Writer
}

// Operator is not safe for concurrent use; the pending batch list is
// only ever touched by the calling goroutine.
type Operator struct {
	logPath        string
	quiet          bool
	noPrintCommand bool
	shell          string
	logger         *log.Logger
	executor       exec.Executor
	stdout         io.Writer

	pending []*batch
}

// batch is the bookkeeping for one asynchronous Run call.
type batch struct {
	procs          []exec.Command
	outputs        []string
	validator      func(string) bool
	removeIfFailed bool
	closers        []io.Closer
}

func New(cfg Config) (*Operator, error) {
	o := &Operator{
		logPath:        cfg.LogPath,
		quiet:          cfg.Quiet,
		noPrintCommand: cfg.NoPrintCommand,
		shell:          cfg.Shell,
		logger:         cfg.Logger,
		executor:       cfg.Executor,
		stdout:         cfg.Stdout,
	}

	if o.logPath != "" {
		o.logPath = filepath.Clean(o.logPath)
	}
	if o.shell == "" {
		o.shell = defaultShell
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	if o.executor == nil {
		o.executor = exec.NewLocalExecutor()
	}
	if o.stdout == nil {
		o.stdout = os.Stdout
	}

	// The log file always lives on the operator's side, even when
	// commands run remotely, so it is cleared locally.
	if cfg.ClearLog && o.logPath != "" {
		if _, err := os.Stat(o.logPath); err == nil {
			if err := os.RemoveAll(o.logPath); err != nil {
				return nil, err
			}
			o.logger.Warn("log file removed", "path", o.logPath)
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return o, nil
}

// Run executes the commands in spec in order. With spec.Asynchronous the
// processes are spawned and queued for a later Wait; otherwise Run
// blocks until every command has finished and its results are validated.
func (o *Operator) Run(ctx context.Context, spec RunSpec) error {
	o.logger.Debug("checking input paths", "paths", spec.Inputs)
	missingInputs, err := o.missingPaths(spec.Inputs)
	if err != nil {
		return err
	}
	if len(spec.Inputs) > 0 && len(missingInputs) > 0 {
		return &InputNotFoundError{Paths: missingInputs}
	}

	o.logger.Debug("checking output paths", "paths", spec.Outputs)
	missingOutputs, err := o.missingPaths(spec.Outputs)
	if err != nil {
		return err
	}
	if len(spec.Outputs) > 0 && len(missingOutputs) == 0 && spec.SkipIfExist {
		o.logger.Debug("all outputs exist, skipping", "commands", spec.Commands)
		return nil
	}

	if spec.RemovePrevious {
		if err := o.RemovePaths(spec.Outputs...); err != nil {
			return err
		}
	}

	prompt := spec.Prompt
	if prompt == "" {
		cwd := spec.Cwd
		if cwd == "" {
			if wd, err := os.Getwd(); err == nil {
				cwd = wd
			}
		}
		prompt = fmt.Sprintf("[%s] $ ", cwd)
	}

	if spec.Asynchronous {
		return o.runAsync(ctx, spec, prompt)
	}

	return o.runSync(ctx, spec, prompt)
}

func (o *Operator) runSync(ctx context.Context, spec RunSpec, prompt string) error {
	procs := make([]exec.Command, 0, len(spec.Commands))

	for _, cmdline := range spec.Commands {
		proc, err := o.spawnSync(ctx, cmdline, prompt, spec)
		if err != nil {
			// Execution errors clean up declared outputs but
			// propagate unchanged.
			if len(spec.Outputs) > 0 && spec.RemoveIfFailed {
				if rerr := o.RemovePaths(spec.Outputs...); rerr != nil {
					o.logger.Error("cleanup after failure", "err", rerr)
				}
			}
			return err
		}
		procs = append(procs, proc)
	}

	return o.validateResults(procs, spec.Outputs, spec.Validator, spec.RemoveIfFailed)
}

func (o *Operator) runAsync(ctx context.Context, spec RunSpec, prompt string) error {
	b := &batch{
		outputs:        spec.Outputs,
		validator:      spec.Validator,
		removeIfFailed: spec.RemoveIfFailed,
	}

	for _, cmdline := range spec.Commands {
		proc, closer, err := o.spawnAsync(ctx, cmdline, prompt, spec)
		if err != nil {
			b.close()
			return err
		}
		b.procs = append(b.procs, proc)
		if closer != nil {
			b.closers = append(b.closers, closer)
		}
	}

	o.pending = append(o.pending, b)

	return nil
}

// Wait joins every queued asynchronous batch in order and validates each
// one. All batches are joined and validated even when earlier ones fail;
// the pending list is always left empty and failures come back joined
// into one error.
func (o *Operator) Wait() error {
	if len(o.pending) == 0 {
		o.logger.Debug("no pending processes to wait for")
		return nil
	}

	var errs []error

	for _, b := range o.pending {
		waitErrs := make([]error, len(b.procs))

		var wg conc.WaitGroup
		for i, proc := range b.procs {
			wg.Go(func() {
				waitErrs[i] = proc.Wait()
			})
		}
		wg.Wait()

		b.close()

		if err := errors.Join(waitErrs...); err != nil {
			errs = append(errs, err)
			continue
		}

		if err := o.validateResults(b.procs, b.outputs, b.validator, b.removeIfFailed); err != nil {
			errs = append(errs, err)
		}
	}

	o.pending = nil

	return errors.Join(errs...)
}

// Pending reports the number of queued batches and the total number of
// processes in them.
func (o *Operator) Pending() (batches, procs int) {
	batches = len(o.pending)
	for _, b := range o.pending {
		procs += len(b.procs)
	}
	return
}

// missingPaths returns the declared paths that do not currently exist.
func (o *Operator) missingPaths(paths []string) ([]string, error) {
	missing := []string{}

	for _, p := range paths {
		exists, err := o.executor.PathExists(p)
		if err != nil {
			return nil, err
		}
		if !exists {
			missing = append(missing, p)
		}
	}

	return missing, nil
}

func (b *batch) close() {
	for _, c := range b.closers {
		c.Close()
	}
	b.closers = nil
}
