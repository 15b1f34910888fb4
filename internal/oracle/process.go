package oracle

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/roach88/fixharness/internal/fixture"
)

// Process runs an external checker once per fixture and reads its answers
// from stdout, one JSON object per line:
//
//	{"index": 0, "type": "int"}
//	{"line": 20, "expr": "x", "type": "number"}
//	{"diagnostic": {"line": 19, "code": "2451", "message": "Cannot redeclare block-scoped variable 'foo'."}}
//
// Blank lines and lines starting with "#" are ignored. The fixture path is
// appended to Args.
type Process struct {
	Command string
	Args    []string
	Env     []string
	Dir     string
	Logger  *slog.Logger
}

type processLine struct {
	Index      *int        `json:"index"`
	Line       int         `json:"line"`
	Expr       string      `json:"expr"`
	Type       *string     `json:"type"`
	Diagnostic *Diagnostic `json:"diagnostic"`
}

func (p *Process) Check(ctx context.Context, fx *fixture.Fixture) (*Report, error) {
	if p.Command == "" {
		return nil, fmt.Errorf("oracle process: no command configured")
	}
	args := append(append([]string{}, p.Args...), fx.Path)
	cmd := exec.CommandContext(ctx, p.Command, args...)
	cmd.Dir = p.Dir
	if len(p.Env) > 0 {
		cmd.Env = append(cmd.Environ(), p.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("oracle process %s: %w", p.Command, ctxErr)
	}

	r, parsed, err := parseProcessOutput(&stdout, fx)
	if err != nil {
		return nil, fmt.Errorf("oracle process %s: %w", p.Command, err)
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		// A checker that reports errors may exit non-zero; only a silent
		// failure counts as a crash.
		if !errors.As(runErr, &exitErr) || parsed == 0 {
			return nil, fmt.Errorf("oracle process %s failed: %w: %s",
				p.Command, runErr, strings.TrimSpace(stderr.String()))
		}
		p.logger().Debug("oracle exited non-zero", "fixture", fx.Name, "code", exitErr.ExitCode())
	}
	return r, nil
}

func (p *Process) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func parseProcessOutput(out io.Reader, fx *fixture.Fixture) (*Report, int, error) {
	byLine := make(map[string]int, len(fx.Assertions))
	for _, s := range fx.Assertions {
		byLine[fmt.Sprintf("%d:%s", s.Line, s.Expr)] = s.Index
	}

	r := NewReport()
	parsed := 0
	sc := bufio.NewScanner(out)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var pl processLine
		if err := json.Unmarshal([]byte(text), &pl); err != nil {
			return nil, parsed, fmt.Errorf("stdout line %d: %w", lineNo, err)
		}
		parsed++

		if pl.Diagnostic != nil {
			d := *pl.Diagnostic
			if d.Source == "" {
				d.Source = "checker"
			}
			r.Diagnostics = append(r.Diagnostics, d)
			continue
		}
		if pl.Type == nil {
			return nil, parsed, fmt.Errorf("stdout line %d: missing \"type\"", lineNo)
		}
		switch {
		case pl.Index != nil:
			r.Types[*pl.Index] = *pl.Type
		case pl.Line > 0:
			idx, ok := byLine[fmt.Sprintf("%d:%s", pl.Line, pl.Expr)]
			if !ok {
				return nil, parsed, fmt.Errorf("stdout line %d: no assertion at %d:%s", lineNo, pl.Line, pl.Expr)
			}
			r.Types[idx] = *pl.Type
		default:
			return nil, parsed, fmt.Errorf("stdout line %d: need \"index\" or \"line\"", lineNo)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, parsed, fmt.Errorf("read stdout: %w", err)
	}
	return r, parsed, nil
}
