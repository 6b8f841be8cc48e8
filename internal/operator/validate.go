package operator

import (
	"slices"

	"github.com/arnarg/shoper/internal/exec"
	"github.com/s0rg/set"
)

// validateResults checks the exit status of every finished process and
// then the declared outputs. Any non-zero exit fails the whole set with
// an error enumerating every failed invocation.
func (o *Operator) validateResults(procs []exec.Command, outputs []string, validator func(string) bool, removeIfFailed bool) error {
	failed := []ExitFailure{}
	for _, p := range procs {
		if code := p.ExitCode(); code != 0 {
			o.logger.Error("command returned non-zero exit status", "command", p.String(), "code", code)
			failed = append(failed, ExitFailure{Command: p.String(), Code: code})
		}
	}

	if len(failed) > 0 {
		if len(outputs) > 0 && removeIfFailed {
			if err := o.RemovePaths(outputs...); err != nil {
				return err
			}
		}
		return &ExitStatusError{Failures: failed}
	}

	if len(outputs) > 0 {
		return o.validateOutputs(outputs, validator, removeIfFailed)
	}

	return nil
}

// validateOutputs partitions the declared outputs into found and
// missing, then runs the caller's validator over the found ones.
func (o *Operator) validateOutputs(outputs []string, validator func(string) bool, removeIfFailed bool) error {
	found := make(set.Unordered[string])
	missing := make(set.Unordered[string])

	for _, p := range outputs {
		exists, err := o.executor.PathExists(p)
		if err != nil {
			return err
		}
		if exists {
			found.Add(p)
		} else {
			missing.Add(p)
		}
	}

	if len(missing) > 0 {
		if removeIfFailed && len(found) > 0 {
			if err := o.RemovePaths(sorted(found)...); err != nil {
				return err
			}
		}
		return &OutputNotFoundError{Paths: sorted(missing)}
	}

	if validator != nil {
		rejected := make(set.Unordered[string])
		for p := range found.Iter {
			if !validator(p) {
				rejected.Add(p)
			}
		}

		if len(rejected) > 0 {
			if removeIfFailed {
				if err := o.RemovePaths(sorted(found)...); err != nil {
					return err
				}
			}
			return &OutputValidationError{Paths: sorted(rejected)}
		}
	}

	o.logger.Debug("outputs validated", "paths", sorted(found))

	return nil
}

// RemovePaths deletes each path, recursively for directories. Paths that
// do not exist are skipped. Every removal is logged.
func (o *Operator) RemovePaths(paths ...string) error {
	for _, p := range paths {
		isDir, err := o.executor.IsDir(p)
		if err != nil {
			return err
		}

		if isDir {
			if err := o.executor.Remove(p); err != nil {
				return err
			}
			o.logger.Warn("directory removed", "path", p)
			continue
		}

		exists, err := o.executor.PathExists(p)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}

		if err := o.executor.Remove(p); err != nil {
			return err
		}
		o.logger.Warn("file removed", "path", p)
	}

	return nil
}

func sorted(s set.Unordered[string]) []string {
	lst := set.ToSlice(s)
	slices.Sort(lst)
	return lst
}
