// Package task parses playbook files: a JSON document describing a list
// of shell tasks for the CLI to feed through the operator.
package task

import (
	"fmt"
	"os"
	"sort"

	"github.com/arnarg/shoper/internal/operator"
	"github.com/valyala/fastjson"
)

// File is one parsed playbook.
type File struct {
	Log   string
	Shell string
	Quiet bool
	Tasks []Task
}

// Task is one entry in a playbook. Policy fields default to the
// operator's defaults (remove_if_failed and skip_if_exist true).
type Task struct {
	Name           string
	Commands       []string
	Inputs         []string
	Outputs        []string
	Cwd            string
	Env            []string
	Async          bool
	RemoveIfFailed bool
	RemovePrevious bool
	SkipIfExist    bool
}

// Spec converts the task into a RunSpec for the operator.
func (t Task) Spec() operator.RunSpec {
	spec := operator.NewRun(t.Commands...).
		WithInputs(t.Inputs...).
		WithOutputs(t.Outputs...).
		WithCwd(t.Cwd).
		WithEnv(t.Env...)

	spec.Asynchronous = t.Async
	spec.RemoveIfFailed = t.RemoveIfFailed
	spec.RemovePrevious = t.RemovePrevious
	spec.SkipIfExist = t.SkipIfExist

	return spec
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	parser := &fastjson.Parser{}

	val, err := parser.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("invalid playbook: %w", err)
	}

	file := &File{
		Log:   string(val.GetStringBytes("log")),
		Shell: string(val.GetStringBytes("shell")),
		Quiet: val.GetBool("quiet"),
	}

	tasks := val.GetArray("tasks")
	if tasks == nil {
		return nil, fmt.Errorf("invalid playbook: missing \"tasks\" array")
	}

	for i, tv := range tasks {
		task, err := parseTask(tv)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		file.Tasks = append(file.Tasks, task)
	}

	return file, nil
}

func parseTask(val *fastjson.Value) (Task, error) {
	task := Task{
		Name:           string(val.GetStringBytes("name")),
		Cwd:            string(val.GetStringBytes("cwd")),
		Async:          val.GetBool("async"),
		RemovePrevious: val.GetBool("remove_previous"),
		RemoveIfFailed: true,
		SkipIfExist:    true,
	}

	commands, err := stringOrList(val, "commands")
	if err != nil {
		return task, err
	}
	if len(commands) == 0 {
		return task, fmt.Errorf("missing \"commands\"")
	}
	task.Commands = commands

	if task.Inputs, err = stringOrList(val, "inputs"); err != nil {
		return task, err
	}
	if task.Outputs, err = stringOrList(val, "outputs"); err != nil {
		return task, err
	}

	if v := val.Get("remove_if_failed"); v != nil {
		task.RemoveIfFailed = v.Type() == fastjson.TypeTrue
	}
	if v := val.Get("skip_if_exist"); v != nil {
		task.SkipIfExist = v.Type() == fastjson.TypeTrue
	}

	if env := val.GetObject("env"); env != nil {
		env.Visit(func(key []byte, v *fastjson.Value) {
			task.Env = append(task.Env, fmt.Sprintf("%s=%s", key, v.GetStringBytes()))
		})
		// Visit order is not stable
		sort.Strings(task.Env)
	}

	return task, nil
}

// stringOrList accepts a field that is either one string or an array of
// strings and returns it as a list.
func stringOrList(val *fastjson.Value, key string) ([]string, error) {
	v := val.Get(key)
	if v == nil {
		return nil, nil
	}

	switch v.Type() {
	case fastjson.TypeString:
		return []string{string(v.GetStringBytes())}, nil

	case fastjson.TypeArray:
		lst := []string{}
		for _, item := range v.GetArray() {
			s := item.GetStringBytes()
			if s == nil {
				return nil, fmt.Errorf("\"%s\" must contain only strings", key)
			}
			lst = append(lst, string(s))
		}
		return lst, nil
	}

	return nil, fmt.Errorf("\"%s\" must be a string or a list of strings", key)
}
