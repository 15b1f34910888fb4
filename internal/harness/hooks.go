package harness

import (
	"log/slog"
	"sync"

	"github.com/roach88/fixharness/internal/evaluator"
	"github.com/roach88/fixharness/internal/ir"
	"github.com/roach88/fixharness/internal/jobs"
)

// Hooks is the harness side of print and AssertType for one fixture run.
// Evaluators receive it as evaluator.Hooks; fixtures never define these
// functions themselves.
type Hooks struct {
	mu          sync.Mutex
	clock       *jobs.Clock
	fixtureHash string
	fixtureName string
	outputs     []OutputRecord
	asserts     int
	err         error
	logger      *slog.Logger
	emit        func(Event)
}

var _ evaluator.Hooks = (*Hooks)(nil)

func newHooks(clock *jobs.Clock, name, hash string, logger *slog.Logger, emit func(Event)) *Hooks {
	return &Hooks{
		clock:       clock,
		fixtureHash: hash,
		fixtureName: name,
		outputs:     []OutputRecord{},
		logger:      logger,
		emit:        emit,
	}
}

// AssertType is a runtime no-op; calls are only counted.
func (h *Hooks) AssertType(_ any, _ string) {
	h.mu.Lock()
	h.asserts++
	h.mu.Unlock()
}

// Print appends one output record stamped from the run's clock.
func (h *Hooks) Print(line int, values ...any) {
	text := evaluator.Join(values...)

	h.mu.Lock()
	seq := h.clock.Next()
	ordinal := int64(len(h.outputs) + 1)
	id, err := ir.OutputID(h.fixtureHash, ordinal, text)
	if err != nil && h.err == nil {
		h.err = err
	}
	rec := OutputRecord{ID: id, Seq: seq, Line: line, Text: text}
	h.outputs = append(h.outputs, rec)
	h.mu.Unlock()

	h.logger.Debug("print", "fixture", h.fixtureName, "seq", seq, "line", line, "text", text)
	h.emit(Event{Kind: EventOutput, Fixture: h.fixtureName, Seq: seq, Line: line, Text: text})
}

// Outputs returns a copy of the records captured so far.
func (h *Hooks) Outputs() []OutputRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]OutputRecord(nil), h.outputs...)
}

// RuntimeAsserts returns how many AssertType calls executed.
func (h *Hooks) RuntimeAsserts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.asserts
}
