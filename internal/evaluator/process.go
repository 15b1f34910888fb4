package evaluator

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/roach88/fixharness/internal/fixture"
)

// Process runs an external engine binary on the fixture. Every stdout line
// is one output record; source lines are unknown. A non-zero exit is an
// engine crash.
type Process struct {
	Command string
	Args    []string
	Env     []string
	Dir     string
}

func (p *Process) Evaluate(ctx context.Context, fx *fixture.Fixture, env Env) error {
	if p.Command == "" {
		return &UnsupportedError{Fixture: fx.Name, Reason: "no engine command configured"}
	}
	args := append(append([]string{}, p.Args...), fx.Path)
	cmd := exec.CommandContext(ctx, p.Command, args...)
	cmd.Dir = p.Dir
	if len(p.Env) > 0 {
		cmd.Env = append(cmd.Environ(), p.Env...)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("engine %s: %w", p.Command, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("engine %s: %w", p.Command, err)
	}

	scanErr := scanLines(stdout, func(line string) {
		env.Hooks.Print(0, line)
	})
	if scanErr != nil {
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("engine %s: %w", p.Command, ctxErr)
	}
	if waitErr != nil {
		return fmt.Errorf("engine %s crashed: %w: %s", p.Command, waitErr, strings.TrimSpace(stderr.String()))
	}
	if scanErr != nil {
		return fmt.Errorf("engine %s: read stdout: %w", p.Command, scanErr)
	}
	return nil
}

func scanLines(r io.Reader, fn func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		fn(strings.TrimRight(sc.Text(), "\r"))
	}
	return sc.Err()
}
