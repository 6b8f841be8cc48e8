package operator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-test/deep"
)

func newTestOperator(t *testing.T, cfg Config) *Operator {
	t.Helper()

	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	if cfg.Stdout == nil {
		cfg.Stdout = &bytes.Buffer{}
	}

	o, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	return o
}

func TestNewRunDefaults(t *testing.T) {
	got := NewRun("echo a", "echo b")

	want := RunSpec{
		Commands:       []string{"echo a", "echo b"},
		RemoveIfFailed: true,
		SkipIfExist:    true,
	}

	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}
}

func TestRunInputNotFound(t *testing.T) {
	o := newTestOperator(t, Config{Quiet: true})
	dir := t.TempDir()

	out := filepath.Join(dir, "out")
	missing := filepath.Join(dir, "missing")

	err := o.Run(context.Background(), NewRun(fmt.Sprintf("echo x > %s", out)).
		WithInputs(missing).
		WithOutputs(out))

	var nferr *InputNotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("expected InputNotFoundError, got %v", err)
	}
	if diff := deep.Equal(nferr.Paths, []string{missing}); diff != nil {
		t.Error(diff)
	}

	// Nothing may have spawned
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("command should not have run")
	}
}

func TestRunSkipIfExist(t *testing.T) {
	o := newTestOperator(t, Config{Quiet: true})
	dir := t.TempDir()

	out := filepath.Join(dir, "out")
	if err := os.WriteFile(out, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := o.Run(context.Background(), NewRun(fmt.Sprintf("echo replaced > %s", out)).
		WithOutputs(out))
	if err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "original" {
		t.Errorf("output was overwritten: \"%s\"", content)
	}
}

func TestRunNoSkip(t *testing.T) {
	o := newTestOperator(t, Config{Quiet: true})
	dir := t.TempDir()

	out := filepath.Join(dir, "out")
	if err := os.WriteFile(out, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := o.Run(context.Background(), NewRun(fmt.Sprintf("echo replaced > %s", out)).
		WithOutputs(out).
		NoSkip())
	if err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "replaced\n" {
		t.Errorf("output was not replaced: \"%s\"", content)
	}
}

func TestRunRemovePrevious(t *testing.T) {
	o := newTestOperator(t, Config{Quiet: true})
	dir := t.TempDir()

	out := filepath.Join(dir, "out")
	if err := os.WriteFile(out, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Appending after removal proves the previous file was deleted
	// before the command ran.
	err := o.Run(context.Background(), NewRun(fmt.Sprintf("echo new >> %s", out)).
		WithOutputs(out).
		WithRemovePrevious().
		NoSkip())
	if err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "new\n" {
		t.Errorf("unexpected content: \"%s\"", content)
	}
}

func TestRunExitStatusRemovesOutputs(t *testing.T) {
	o := newTestOperator(t, Config{Quiet: true})
	dir := t.TempDir()

	out := filepath.Join(dir, "out")
	if err := os.WriteFile(out, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := o.Run(context.Background(), NewRun("exit 7").
		WithOutputs(out).
		NoSkip())

	var eserr *ExitStatusError
	if !errors.As(err, &eserr) {
		t.Fatalf("expected ExitStatusError, got %v", err)
	}
	want := []ExitFailure{{Command: "exit 7", Code: 7}}
	if diff := deep.Equal(eserr.Failures, want); diff != nil {
		t.Error(diff)
	}

	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("declared output should have been removed")
	}
}

func TestRunExitStatusKeepIfFailed(t *testing.T) {
	o := newTestOperator(t, Config{Quiet: true})
	dir := t.TempDir()

	out := filepath.Join(dir, "out")
	if err := os.WriteFile(out, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := o.Run(context.Background(), NewRun("exit 1").
		WithOutputs(out).
		NoSkip().
		KeepIfFailed())

	var eserr *ExitStatusError
	if !errors.As(err, &eserr) {
		t.Fatalf("expected ExitStatusError, got %v", err)
	}

	if _, err := os.Stat(out); err != nil {
		t.Error("declared output should have been kept")
	}
}

func TestRunAggregatesFailures(t *testing.T) {
	o := newTestOperator(t, Config{Quiet: true})

	err := o.Run(context.Background(), NewRun("exit 1", "exit 2", "true"))

	var eserr *ExitStatusError
	if !errors.As(err, &eserr) {
		t.Fatalf("expected ExitStatusError, got %v", err)
	}

	want := []ExitFailure{
		{Command: "exit 1", Code: 1},
		{Command: "exit 2", Code: 2},
	}
	if diff := deep.Equal(eserr.Failures, want); diff != nil {
		t.Error(diff)
	}

	// The message enumerates every failed invocation
	for _, frag := range []string{"2 processes", "'exit 1'", "'exit 2'"} {
		if !strings.Contains(err.Error(), frag) {
			t.Errorf("error message is missing \"%s\": %s", frag, err)
		}
	}
}

func TestRunOutputNotFound(t *testing.T) {
	o := newTestOperator(t, Config{Quiet: true})
	dir := t.TempDir()

	out := filepath.Join(dir, "never-created")

	err := o.Run(context.Background(), NewRun("true").WithOutputs(out))

	var nferr *OutputNotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("expected OutputNotFoundError, got %v", err)
	}
	if diff := deep.Equal(nferr.Paths, []string{out}); diff != nil {
		t.Error(diff)
	}
}

func TestRunOutputNotFoundRemovesExisting(t *testing.T) {
	o := newTestOperator(t, Config{Quiet: true})
	dir := t.TempDir()

	created := filepath.Join(dir, "created")
	missing := filepath.Join(dir, "missing")

	err := o.Run(context.Background(), NewRun(fmt.Sprintf("echo x > %s", created)).
		WithOutputs(created, missing))

	var nferr *OutputNotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("expected OutputNotFoundError, got %v", err)
	}

	// The output that did exist is cleaned up along with the failure
	if _, err := os.Stat(created); !os.IsNotExist(err) {
		t.Error("existing output should have been removed")
	}
}

func TestRunRoundTrip(t *testing.T) {
	o := newTestOperator(t, Config{Quiet: true})
	dir := t.TempDir()

	out := filepath.Join(dir, "out")

	err := o.Run(context.Background(), NewRun(fmt.Sprintf("printf hello > %s", out)).
		WithOutputs(out))
	if err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "hello" {
		t.Errorf("unexpected content: \"%s\"", content)
	}
}

func TestRunValidator(t *testing.T) {
	nonEmpty := func(p string) bool {
		info, err := os.Stat(p)
		return err == nil && info.Size() > 0
	}

	t.Run("rejected output is removed", func(t *testing.T) {
		o := newTestOperator(t, Config{Quiet: true})
		dir := t.TempDir()

		out := filepath.Join(dir, "empty")

		err := o.Run(context.Background(), NewRun(fmt.Sprintf(": > %s", out)).
			WithOutputs(out).
			WithValidator(nonEmpty))

		var verr *OutputValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected OutputValidationError, got %v", err)
		}
		if diff := deep.Equal(verr.Paths, []string{out}); diff != nil {
			t.Error(diff)
		}

		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Error("rejected output should have been removed")
		}
	})

	t.Run("accepted output passes", func(t *testing.T) {
		o := newTestOperator(t, Config{Quiet: true})
		dir := t.TempDir()

		out := filepath.Join(dir, "filled")

		err := o.Run(context.Background(), NewRun(fmt.Sprintf("echo data > %s", out)).
			WithOutputs(out).
			WithValidator(nonEmpty))
		if err != nil {
			t.Fatal(err)
		}

		if _, err := os.Stat(out); err != nil {
			t.Error("accepted output should still exist")
		}
	})
}

func TestRunAsyncWait(t *testing.T) {
	o := newTestOperator(t, Config{Quiet: true})
	dir := t.TempDir()

	out := filepath.Join(dir, "out")

	err := o.Run(context.Background(), NewRun(fmt.Sprintf("sleep 0.2 && echo X > %s", out)).
		WithOutputs(out).
		Async())
	if err != nil {
		t.Fatal(err)
	}

	// Run returned before the command finished
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("output should not exist yet")
	}
	if batches, procs := o.Pending(); batches != 1 || procs != 1 {
		t.Errorf("unexpected pending counts: %d batches, %d procs", batches, procs)
	}

	if err := o.Wait(); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "X\n" {
		t.Errorf("unexpected content: \"%s\"", content)
	}
	if batches, _ := o.Pending(); batches != 0 {
		t.Error("pending list should be empty after Wait")
	}
}

func TestWaitValidatesEveryBatch(t *testing.T) {
	o := newTestOperator(t, Config{Quiet: true})
	dir := t.TempDir()

	late := filepath.Join(dir, "late")

	// First batch fails, second one still runs and gets validated.
	if err := o.Run(context.Background(), NewRun("exit 4").Async()); err != nil {
		t.Fatal(err)
	}
	err := o.Run(context.Background(), NewRun(fmt.Sprintf("echo done > %s", late)).
		WithOutputs(late).
		Async())
	if err != nil {
		t.Fatal(err)
	}

	err = o.Wait()

	var eserr *ExitStatusError
	if !errors.As(err, &eserr) {
		t.Fatalf("expected ExitStatusError, got %v", err)
	}

	if _, err := os.Stat(late); err != nil {
		t.Error("second batch should have completed")
	}
	if batches, _ := o.Pending(); batches != 0 {
		t.Error("pending list should be empty even after failures")
	}
}

func TestWaitWithoutPending(t *testing.T) {
	o := newTestOperator(t, Config{Quiet: true})

	if err := o.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestRemovePathsIdempotent(t *testing.T) {
	o := newTestOperator(t, Config{Quiet: true})
	dir := t.TempDir()

	file := filepath.Join(dir, "f")
	sub := filepath.Join(dir, "sub")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(sub, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := o.RemovePaths(file, sub); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{file, sub} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should have been removed", p)
		}
	}

	// Second pass over the same, now deleted, set is a no-op
	if err := o.RemovePaths(file, sub); err != nil {
		t.Fatal(err)
	}
}
