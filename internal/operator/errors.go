package operator

import (
	"fmt"
	"strings"
)

// InputNotFoundError is returned before anything spawns when declared
// input paths are missing.
type InputNotFoundError struct {
	Paths []string
}

func (e *InputNotFoundError) Error() string {
	return fmt.Sprintf("input not found: %s", strings.Join(e.Paths, ", "))
}

// ExitFailure is one command that finished with a non-zero status.
type ExitFailure struct {
	Command string
	Code    int
}

// ExitStatusError reports every command in a run that exited non-zero.
type ExitStatusError struct {
	Failures []ExitFailure
}

func (e *ExitStatusError) Error() string {
	descs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		descs[i] = fmt.Sprintf("'%s' (exit status %d)", f.Command, f.Code)
	}

	plural := ""
	if len(e.Failures) > 1 {
		plural = "es"
	}

	return fmt.Sprintf(
		"%d process%s returned non-zero exit status: %s",
		len(e.Failures), plural, strings.Join(descs, ", "),
	)
}

// OutputNotFoundError is returned when declared output paths do not
// exist after a run.
type OutputNotFoundError struct {
	Paths []string
}

func (e *OutputNotFoundError) Error() string {
	return fmt.Sprintf("output not found: %s", strings.Join(e.Paths, ", "))
}

// OutputValidationError is returned when the caller's validator rejects
// existing output paths.
type OutputValidationError struct {
	Paths []string
}

func (e *OutputValidationError) Error() string {
	return fmt.Sprintf("output not validated: %s", strings.Join(e.Paths, ", "))
}
