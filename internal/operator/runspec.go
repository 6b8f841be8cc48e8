package operator

// RunSpec describes one Run call: the ordered command lines plus the
// declared paths and policies around them.
type RunSpec struct {
	Commands []string
	// Inputs must all exist before anything spawns.
	Inputs []string
	// Outputs are expected to exist after the commands finish.
	Outputs []string
	// Validator is called once per existing output path; false fails
	// the run.
	Validator func(string) bool
	Cwd       string
	// Prompt is prefixed to each echoed command line. Defaults to
	// "[<cwd>] $ ".
	Prompt string
	// Env entries ("KEY=value") are added to the process environment.
	Env []string

	Asynchronous   bool
	RemoveIfFailed bool
	RemovePrevious bool
	SkipIfExist    bool
}

// NewRun returns a RunSpec for the given command lines with the default
// policies: failed runs clean up their declared outputs, and runs whose
// outputs all exist are skipped.
func NewRun(commands ...string) RunSpec {
	return RunSpec{
		Commands:       commands,
		RemoveIfFailed: true,
		SkipIfExist:    true,
	}
}

func (s RunSpec) WithInputs(paths ...string) RunSpec {
	s.Inputs = paths
	return s
}

func (s RunSpec) WithOutputs(paths ...string) RunSpec {
	s.Outputs = paths
	return s
}

func (s RunSpec) WithValidator(f func(string) bool) RunSpec {
	s.Validator = f
	return s
}

func (s RunSpec) WithCwd(cwd string) RunSpec {
	s.Cwd = cwd
	return s
}

func (s RunSpec) WithPrompt(prompt string) RunSpec {
	s.Prompt = prompt
	return s
}

func (s RunSpec) WithEnv(env ...string) RunSpec {
	s.Env = env
	return s
}

// Async makes Run return right after spawning; results are collected by
// a later Wait.
func (s RunSpec) Async() RunSpec {
	s.Asynchronous = true
	return s
}

// KeepIfFailed leaves declared outputs in place when the run fails.
func (s RunSpec) KeepIfFailed() RunSpec {
	s.RemoveIfFailed = false
	return s
}

// WithRemovePrevious deletes the declared outputs before running.
func (s RunSpec) WithRemovePrevious() RunSpec {
	s.RemovePrevious = true
	return s
}

// NoSkip runs the commands even when all declared outputs already exist.
func (s RunSpec) NoSkip() RunSpec {
	s.SkipIfExist = false
	return s
}
