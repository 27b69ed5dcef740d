package solver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
)

// Log file names written into the working directory of every run.
const (
	StdoutLog = "log.stdout"
	StderrLog = "log.stderr"
)

// Runner executes an external tool inside a case directory.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, dir, name string, args ...string) error

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, dir, name string, args ...string) error {
	return f(ctx, dir, name, args...)
}

// ExecRunner runs tools as child processes. Output goes to dir/log.stdout and
// dir/log.stderr, truncated per run; a non-zero exit status is an error.
type ExecRunner struct {
	// Env is appended to the parent environment when set.
	Env []string
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (err error) {
	stdout, err := os.Create(filepath.Join(dir, StdoutLog))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	stderr, err := os.Create(filepath.Join(dir, StderrLog))
	if err != nil {
		_ = stdout.Close()
		return fmt.Errorf("%s: %w", name, err)
	}
	defer func() {
		var errs *multierror.Error
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		if cerr := stdout.Close(); cerr != nil {
			errs = multierror.Append(errs, cerr)
		}
		if cerr := stderr.Close(); cerr != nil {
			errs = multierror.Append(errs, cerr)
		}
		err = errs.ErrorOrNil()
	}()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s in %s: %w (see %s)", name, dir, err, StderrLog)
	}
	return nil
}
