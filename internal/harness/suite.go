package harness

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/roach88/fixharness/internal/fixture"
)

// SuiteResult aggregates fixture results in input order.
type SuiteResult struct {
	Results []*Result `json:"results"`
	Passed  int       `json:"passed"`
	Failed  int       `json:"failed"`
	Fatal   int       `json:"fatal"`
}

// Pass reports whether every fixture passed.
func (s *SuiteResult) Pass() bool {
	return s.Failed == 0
}

// ByPath returns the result for the fixture at path, or nil.
func (s *SuiteResult) ByPath(path string) *Result {
	for _, r := range s.Results {
		if r.Path == path {
			return r
		}
	}
	return nil
}

type indexed struct {
	index  int
	result *Result
}

// RunSuite runs fixtures on at most parallel workers and returns results
// in input order. Each fixture gets its own queue, clock and hooks. A
// fixture that cannot run is reported as HARNESS_FATAL; it never stops
// the others. Cancelling ctx marks unstarted fixtures fatal.
func RunSuite(ctx context.Context, fixtures []*fixture.Fixture, parallel int, opts Options) *SuiteResult {
	if parallel <= 0 {
		parallel = runtime.GOMAXPROCS(0)
	}

	sem := make(chan struct{}, parallel)
	results := make(chan indexed, len(fixtures))
	var wg sync.WaitGroup

	for i, fx := range fixtures {
		wg.Add(1)
		go func(idx int, fx *fixture.Fixture) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- indexed{index: idx, result: fatalResult(fx, ctx.Err())}
				return
			}

			r, err := runIsolated(ctx, fx, opts)
			if err != nil {
				r = fatalResult(fx, err)
			}
			results <- indexed{index: idx, result: r}
		}(i, fx)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*Result, len(fixtures))
	for res := range results {
		ordered[res.index] = res.result
	}

	suite := &SuiteResult{Results: ordered}
	for _, r := range ordered {
		switch {
		case r.Pass:
			suite.Passed++
		case r.Fatal():
			suite.Fatal++
			suite.Failed++
		default:
			suite.Failed++
		}
	}
	opts.emit(Event{Kind: EventSuiteEnd, Pass: suite.Pass(), Passed: suite.Passed, Failed: suite.Failed})
	return suite
}

// runIsolated converts a panic in one fixture into an error.
func runIsolated(ctx context.Context, fx *fixture.Fixture, opts Options) (r *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return Run(ctx, fx, opts)
}

func fatalResult(fx *fixture.Fixture, err error) *Result {
	r := NewResult(fx)
	r.AddFailure(Failure{Code: CodeFatal, Message: err.Error()})
	_ = finish(r)
	return r
}
